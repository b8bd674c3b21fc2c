package models

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
)

// maxInputLen bounds name and subject lengths
const maxInputLen = 200

// CreateCampaignRequest carries the fields of a new campaign
type CreateCampaignRequest struct {
	Name        string      `json:"name"`
	Subject     string      `json:"subject"`
	FromEmail   string      `json:"from_email"`
	ContentType ContentType `json:"content_type"`
	Body        string      `json:"body"`
	Lists       []int       `json:"lists"`
	Tags        []string    `json:"tags"`
}

// Normalize trims free text, applies the default content type and
// de-duplicates lists and tags
func (r *CreateCampaignRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Subject = strings.TrimSpace(r.Subject)
	r.FromEmail = strings.TrimSpace(r.FromEmail)
	if r.ContentType == "" {
		r.ContentType = ContentRichtext
	}
	r.Lists = NormalizeListIDs(r.Lists)
	r.Tags = NormalizeTags(r.Tags)
}

// Validate checks the request after Normalize
func (r *CreateCampaignRequest) Validate() error {
	if err := validateText("name", r.Name); err != nil {
		return err
	}
	if err := validateText("subject", r.Subject); err != nil {
		return err
	}
	if r.FromEmail != "" {
		if err := ValidateFromEmail(r.FromEmail); err != nil {
			return err
		}
	}
	if !r.ContentType.IsValid() {
		return apperrors.NewValidation("content_type", "unknown content type %q", r.ContentType)
	}
	return nil
}

// UpdateCampaignRequest carries a partial update. Nil fields are left untouched.
type UpdateCampaignRequest struct {
	Name        *string      `json:"name,omitempty"`
	Subject     *string      `json:"subject,omitempty"`
	FromEmail   *string      `json:"from_email,omitempty"`
	ContentType *ContentType `json:"content_type,omitempty"`
	Body        *string      `json:"body,omitempty"`
	Lists       *[]int       `json:"lists,omitempty"`
	Tags        *[]string    `json:"tags,omitempty"`
	SendAt      *time.Time   `json:"send_at,omitempty"`
}

// HasContentEdits returns true if any authoring field is present
func (r *UpdateCampaignRequest) HasContentEdits() bool {
	return r.Name != nil || r.Subject != nil || r.FromEmail != nil || r.ContentType != nil ||
		r.Body != nil || r.Lists != nil || r.Tags != nil
}

// Normalize trims present fields and de-duplicates lists and tags
func (r *UpdateCampaignRequest) Normalize() {
	if r.Name != nil {
		v := strings.TrimSpace(*r.Name)
		r.Name = &v
	}
	if r.Subject != nil {
		v := strings.TrimSpace(*r.Subject)
		r.Subject = &v
	}
	if r.FromEmail != nil {
		v := strings.TrimSpace(*r.FromEmail)
		r.FromEmail = &v
	}
	if r.Lists != nil {
		v := NormalizeListIDs(*r.Lists)
		r.Lists = &v
	}
	if r.Tags != nil {
		v := NormalizeTags(*r.Tags)
		r.Tags = &v
	}
}

// Validate checks the present fields after Normalize
func (r *UpdateCampaignRequest) Validate() error {
	if r.Name != nil {
		if err := validateText("name", *r.Name); err != nil {
			return err
		}
	}
	if r.Subject != nil {
		if err := validateText("subject", *r.Subject); err != nil {
			return err
		}
	}
	if r.FromEmail != nil {
		if err := ValidateFromEmail(*r.FromEmail); err != nil {
			return err
		}
	}
	if r.ContentType != nil && !r.ContentType.IsValid() {
		return apperrors.NewValidation("content_type", "unknown content type %q", *r.ContentType)
	}
	return nil
}

// ValidateFromEmail requires a display name and address, eg: `Name <addr@host>`
func ValidateFromEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return apperrors.NewValidation("from_email", "%q is not a valid address", s)
	}
	if strings.TrimSpace(addr.Name) == "" {
		return apperrors.NewValidation("from_email", "%q has no display name", s)
	}
	return nil
}

func validateText(field, v string) error {
	if v == "" {
		return apperrors.NewValidation(field, "cannot be empty")
	}
	if utf8.RuneCountInString(v) > maxInputLen {
		return apperrors.NewValidation(field, "cannot exceed %d characters", maxInputLen)
	}
	return nil
}
