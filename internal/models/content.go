package models

// ContentType is the authoring syntax of a campaign body
type ContentType string

const (
	ContentRichtext ContentType = "richtext"
	ContentHTML     ContentType = "html"
	ContentMarkdown ContentType = "markdown"
	ContentPlain    ContentType = "plain"
)

// IsValid checks c against the supported content types
func (c ContentType) IsValid() bool {
	switch c {
	case ContentRichtext, ContentHTML, ContentMarkdown, ContentPlain:
		return true
	}
	return false
}

// IsHTML returns true for types whose body is already HTML
func (c ContentType) IsHTML() bool {
	return c == ContentRichtext || c == ContentHTML
}

// Subscriber is the per-recipient data context a campaign is rendered against
type Subscriber struct {
	ID      int            `json:"id" db:"id"`
	UUID    string         `json:"uuid" db:"uuid"`
	Email   string         `json:"email" db:"email"`
	Name    string         `json:"name" db:"name"`
	Attribs map[string]any `json:"attribs" db:"attribs"`
	Status  string         `json:"status" db:"status"`
}

// Subscriber statuses. Only enabled subscribers receive campaign messages.
const (
	SubscriberStatusEnabled     = "enabled"
	SubscriberStatusDisabled    = "disabled"
	SubscriberStatusBlocklisted = "blocklisted"
)

// Preview is the rendering of a campaign against the demo subscriber
type Preview struct {
	CampaignID  int         `json:"campaign_id"`
	ContentType ContentType `json:"content_type"`
	Subject     string      `json:"subject"`
	HTML        string      `json:"html"`
	PlainText   string      `json:"plain_text"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// ConversionResult is returned when a campaign's content type is switched
type ConversionResult struct {
	Campaign       *Campaign `json:"campaign"`
	FormattingLost bool      `json:"formatting_lost"`
}
