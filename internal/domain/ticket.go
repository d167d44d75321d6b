package domain

import (
	"strings"
	"time"
)

// Priority enumerates the canonical urgency tiers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DefaultPriority is used whenever no signal matches.
const DefaultPriority = PriorityMedium

// DefaultStatus is used when a source record carries no status.
const DefaultStatus = "open"

// Rank orders priorities so that a higher value is more urgent.
// Unknown priorities rank with medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Valid reports whether p is one of the four canonical tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority accepts a tier name in any case and falls back to medium.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return DefaultPriority
	}
	return p
}

// MaxPriority returns the more urgent of two priorities.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ProviderKind identifies the source system of a ticket.
type ProviderKind string

const (
	ProviderJira   ProviderKind = "jira"
	ProviderGitHub ProviderKind = "github"
	ProviderSlack  ProviderKind = "slack"
)

// RecentTicket is the canonical, provider independent ticket.
// Values are produced once per mapping call and never mutated afterwards.
type RecentTicket struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Priority    Priority     `json:"priority"`
	Status      string       `json:"status"`
	Assignee    *string      `json:"assignee"`
	Labels      []string     `json:"labels"`
	Created     time.Time    `json:"created"`
	Updated     time.Time    `json:"updated"`
	Provider    ProviderKind `json:"provider"`
	URL         *string      `json:"url"`
}

// Normalize fills the invariants of a freshly mapped ticket: priority and
// status are never empty and labels is never nil.
func (t *RecentTicket) Normalize() {
	if !t.Priority.Valid() {
		t.Priority = DefaultPriority
	}
	if strings.TrimSpace(t.Status) == "" {
		t.Status = DefaultStatus
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
}

// Clone returns a deep copy so cached values cannot be mutated by callers.
func (t *RecentTicket) Clone() *RecentTicket {
	if t == nil {
		return nil
	}
	out := *t
	if t.Labels != nil {
		out.Labels = append([]string(nil), t.Labels...)
	}
	if t.Assignee != nil {
		a := *t.Assignee
		out.Assignee = &a
	}
	if t.URL != nil {
		u := *t.URL
		out.URL = &u
	}
	return &out
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
