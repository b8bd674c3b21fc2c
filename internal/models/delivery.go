package models

import "time"

// WorkToken asks the delivery subsystem to begin or continue sending a campaign
type WorkToken struct {
	CampaignID   int       `json:"campaign_id"`
	CampaignUUID string    `json:"campaign_uuid"`
	Action       Action    `json:"action"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ControlSignal tells the delivery subsystem to stop sending a campaign
type ControlSignal struct {
	CampaignID int       `json:"campaign_id"`
	Action     Action    `json:"action"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Completion is reported by the delivery subsystem once a campaign has
// been sent to every recipient
type Completion struct {
	CampaignID int `json:"campaign_id"`
	Sent       int `json:"sent"`
}

// Message is one rendered e-mail ready for the mail transport
type Message struct {
	CampaignID    int    `json:"campaign_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Subject       string `json:"subject"`
	HTMLBody      string `json:"html_body"`
	PlainTextBody string `json:"plain_text_body"`
}
