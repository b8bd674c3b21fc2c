package models

// CampaignStatus represents where a campaign is in its lifecycle
type CampaignStatus string

// enum values for CampaignStatus
const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusRunning   CampaignStatus = "running"
	StatusPaused    CampaignStatus = "paused"
	StatusCancelled CampaignStatus = "cancelled"
	StatusFinished  CampaignStatus = "finished"
)

// Action is a lifecycle operation requested on a campaign
type Action string

const (
	ActionSchedule   Action = "schedule"
	ActionUnschedule Action = "unschedule"
	ActionStart      Action = "start"
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionCancel     Action = "cancel"
	ActionFinish     Action = "finish"
	ActionEdit       Action = "edit"
)

// transitions is the complete lifecycle table. Anything not listed is illegal.
var transitions = map[CampaignStatus]map[Action]CampaignStatus{
	StatusDraft: {
		ActionSchedule: StatusScheduled,
		ActionStart:    StatusRunning,
	},
	StatusScheduled: {
		ActionSchedule:   StatusScheduled,
		ActionUnschedule: StatusDraft,
		ActionStart:      StatusRunning,
		ActionCancel:     StatusCancelled,
	},
	StatusRunning: {
		ActionPause:  StatusPaused,
		ActionCancel: StatusCancelled,
		ActionFinish: StatusFinished,
	},
	StatusPaused: {
		ActionResume: StatusRunning,
		ActionCancel: StatusCancelled,
	},
}

// Next returns the status reached by applying action, and false if the
// action is not legal from s.
func (s CampaignStatus) Next(action Action) (CampaignStatus, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

// IsEditable returns true if name, subject, content, lists and tags may change
func (s CampaignStatus) IsEditable() bool {
	return s == StatusDraft || s == StatusScheduled || s == StatusPaused
}

// IsTerminal returns true if no further transition is possible
func (s CampaignStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid checks s against the closed set of statuses
func (s CampaignStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusRunning, StatusPaused, StatusCancelled, StatusFinished:
		return true
	}
	return false
}
