package models

import (
	"testing"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignQuery_Normalize(t *testing.T) {
	q := CampaignQuery{Page: 0, PerPage: 500}
	require.NoError(t, q.Normalize())
	assert.Equal(t, OrderByCreatedAt, q.OrderBy)
	assert.Equal(t, OrderDesc, q.Order)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPerPage, q.PerPage)
	assert.Equal(t, 0, q.Offset())

	q = CampaignQuery{OrderBy: "NAME", Order: "ASC", Page: 3, PerPage: 10}
	require.NoError(t, q.Normalize())
	assert.Equal(t, OrderByName, q.OrderBy)
	assert.Equal(t, OrderAsc, q.Order)
	assert.Equal(t, 20, q.Offset())

	q = CampaignQuery{OrderBy: "priority"}
	assert.True(t, apperrors.IsValidation(q.Normalize()))

	q = CampaignQuery{Order: "sideways"}
	assert.True(t, apperrors.IsValidation(q.Normalize()))

	q = CampaignQuery{Statuses: []CampaignStatus{"archived"}}
	assert.True(t, apperrors.IsValidation(q.Normalize()))
}

func TestCampaignQuery_Matches(t *testing.T) {
	c := &Campaign{Name: "Spring Sale", Subject: "Fresh deals", Status: StatusDraft}

	assert.True(t, (&CampaignQuery{}).Matches(c))
	assert.True(t, (&CampaignQuery{Search: "spring"}).Matches(c))
	assert.True(t, (&CampaignQuery{Search: "DEALS"}).Matches(c))
	assert.False(t, (&CampaignQuery{Search: "winter"}).Matches(c))
	assert.True(t, (&CampaignQuery{Statuses: []CampaignStatus{StatusDraft, StatusRunning}}).Matches(c))
	assert.False(t, (&CampaignQuery{Search: "spring", Statuses: []CampaignStatus{StatusRunning}}).Matches(c))
}

func TestCampaign_Clone(t *testing.T) {
	alt := "text"
	c := &Campaign{ID: 1, AltBody: &alt, Lists: []ListRef{{ID: 1, Name: "a"}}, Tags: []string{"x"}}
	cp := c.Clone()
	cp.Lists[0].Name = "changed"
	cp.Tags[0] = "y"
	*cp.AltBody = "other"

	assert.Equal(t, "a", c.Lists[0].Name)
	assert.Equal(t, "x", c.Tags[0])
	assert.Equal(t, "text", *c.AltBody)
	assert.Equal(t, []int{1}, c.ListIDs())
}
