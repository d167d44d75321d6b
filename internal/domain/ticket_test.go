package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityUrgent, ParsePriority("URGENT"))
	assert.Equal(t, PriorityLow, ParsePriority(" low "))
	assert.Equal(t, PriorityMedium, ParsePriority("whenever"))
	assert.Equal(t, PriorityMedium, ParsePriority(""))
}

func TestMaxPriority(t *testing.T) {
	assert.Equal(t, PriorityUrgent, MaxPriority(PriorityHigh, PriorityUrgent))
	assert.Equal(t, PriorityHigh, MaxPriority(PriorityHigh, PriorityLow))
	assert.Equal(t, PriorityMedium, MaxPriority(PriorityLow, PriorityMedium))
}

func TestRecentTicket_Normalize(t *testing.T) {
	ticket := &RecentTicket{ID: "1"}
	ticket.Normalize()

	assert.Equal(t, PriorityMedium, ticket.Priority)
	assert.Equal(t, DefaultStatus, ticket.Status)
	assert.NotNil(t, ticket.Labels)
}

func TestRecentTicket_CloneIsDeep(t *testing.T) {
	original := &RecentTicket{
		ID:       "owner/repo#1",
		Labels:   []string{"bug"},
		Assignee: StringPtr("octocat"),
	}

	clone := original.Clone()
	clone.Labels[0] = "feature"
	*clone.Assignee = "someone"

	assert.Equal(t, "bug", original.Labels[0])
	assert.Equal(t, "octocat", *original.Assignee)
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr("   "))
	assert.Equal(t, "x", *StringPtr(" x "))
}
