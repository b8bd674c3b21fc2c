package models

import (
	"time"
)

// Campaign is a single outbound e-mail broadcast: its content, the lists it
// goes out to, and where it is in its lifecycle.
type Campaign struct {
	ID          int            `json:"id" db:"id"`
	UUID        string         `json:"uuid" db:"uuid"`
	Name        string         `json:"name" db:"name"`
	Subject     string         `json:"subject" db:"subject"`
	FromEmail   string         `json:"from_email" db:"from_email"`
	ContentType ContentType    `json:"content_type" db:"content_type"`
	Body        string         `json:"body" db:"body"`
	AltBody     *string        `json:"altbody" db:"altbody"`
	Status      CampaignStatus `json:"status" db:"status"`
	SendAt      *time.Time     `json:"send_at" db:"send_at"`
	Lists       []ListRef      `json:"lists"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// ListRef is the denormalized reference to an externally owned list
type ListRef struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// ListIDs returns the ids of the attached lists in attachment order
func (c *Campaign) ListIDs() []int {
	ids := make([]int, len(c.Lists))
	for i, l := range c.Lists {
		ids[i] = l.ID
	}
	return ids
}

// Clone returns a deep copy of the campaign
func (c *Campaign) Clone() *Campaign {
	out := *c
	if c.AltBody != nil {
		alt := *c.AltBody
		out.AltBody = &alt
	}
	if c.SendAt != nil {
		t := *c.SendAt
		out.SendAt = &t
	}
	out.Lists = append([]ListRef{}, c.Lists...)
	out.Tags = append([]string{}, c.Tags...)
	return &out
}

// IsEditable returns true if authoring edits are allowed in the current status
func (c *Campaign) IsEditable() bool {
	return c.Status.IsEditable()
}
