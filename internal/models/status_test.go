package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignStatus_Next(t *testing.T) {
	tests := []struct {
		name     string
		from     CampaignStatus
		action   Action
		expected CampaignStatus
		ok       bool
	}{
		{"draft schedule", StatusDraft, ActionSchedule, StatusScheduled, true},
		{"draft start", StatusDraft, ActionStart, StatusRunning, true},
		{"draft pause", StatusDraft, ActionPause, "", false},
		{"draft cancel", StatusDraft, ActionCancel, "", false},
		{"scheduled reschedule", StatusScheduled, ActionSchedule, StatusScheduled, true},
		{"scheduled unschedule", StatusScheduled, ActionUnschedule, StatusDraft, true},
		{"scheduled start", StatusScheduled, ActionStart, StatusRunning, true},
		{"scheduled cancel", StatusScheduled, ActionCancel, StatusCancelled, true},
		{"running pause", StatusRunning, ActionPause, StatusPaused, true},
		{"running start", StatusRunning, ActionStart, "", false},
		{"running cancel", StatusRunning, ActionCancel, StatusCancelled, true},
		{"running finish", StatusRunning, ActionFinish, StatusFinished, true},
		{"paused resume", StatusPaused, ActionResume, StatusRunning, true},
		{"paused cancel", StatusPaused, ActionCancel, StatusCancelled, true},
		{"paused finish", StatusPaused, ActionFinish, "", false},
		{"cancelled start", StatusCancelled, ActionStart, "", false},
		{"finished resume", StatusFinished, ActionResume, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := tt.from.Next(tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestCampaignStatus_Predicates(t *testing.T) {
	assert.True(t, StatusDraft.IsEditable())
	assert.True(t, StatusScheduled.IsEditable())
	assert.True(t, StatusPaused.IsEditable())
	assert.False(t, StatusRunning.IsEditable())
	assert.False(t, StatusCancelled.IsEditable())

	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFinished.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())

	assert.True(t, StatusFinished.IsValid())
	assert.False(t, CampaignStatus("archived").IsValid())
}
