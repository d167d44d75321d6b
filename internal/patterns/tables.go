// Package patterns holds the keyword, regex and emoji tables that drive ticket
// classification. Tables are plain data: classifiers receive them at
// construction so they can be tuned or overridden without touching control flow.
package patterns

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
)

// Tier maps a set of tokens to a priority. Tier slices are evaluated in order.
type Tier struct {
	Priority domain.Priority `yaml:"priority"`
	Tokens   []string        `yaml:"tokens"`
}

// StatusKeywords are the substring sets behind the three status predicates.
type StatusKeywords struct {
	InProgress   []string `yaml:"in_progress"`
	ReadyToStart []string `yaml:"ready_to_start"`
	Blocked      []string `yaml:"blocked"`
}

// ReactionStatus maps a Slack reaction name to a status label.
type ReactionStatus struct {
	Reaction string `yaml:"reaction"`
	Status   string `yaml:"status"`
}

// Tables is the full classification configuration.
type Tables struct {
	// JiraPriorities is matched exactly after lower-casing the priority name.
	JiraPriorities map[string]domain.Priority `yaml:"jira_priorities"`

	// LabelTiers are matched as substrings of lower-cased GitHub label names.
	LabelTiers []Tier `yaml:"label_tiers"`

	// SlackTextTiers are matched as substrings of lower-cased message text.
	SlackTextTiers []Tier `yaml:"slack_text_tiers"`

	// SlackReactionTiers are matched exactly against reaction names.
	SlackReactionTiers []Tier `yaml:"slack_reaction_tiers"`

	Status StatusKeywords `yaml:"status"`

	// ReactionStatuses is in fixed table order; that order is the fallback tie-break.
	ReactionStatuses []ReactionStatus `yaml:"reaction_statuses"`

	TaskKeywords        []string `yaml:"task_keywords"`
	TaskFormatPatterns  []string `yaml:"task_format_patterns"`
	TaskChannelPatterns []string `yaml:"task_channel_patterns"`

	// AssigneePatterns are tried in order; capture group 1 is the handle.
	AssigneePatterns []string `yaml:"assignee_patterns"`
	MentionPattern   string   `yaml:"mention_pattern"`
	HashtagPattern   string   `yaml:"hashtag_pattern"`
}

// Default returns a fresh copy of the built-in tables.
func Default() *Tables {
	return &Tables{
		JiraPriorities: map[string]domain.Priority{
			"lowest":   domain.PriorityLow,
			"low":      domain.PriorityLow,
			"trivial":  domain.PriorityLow,
			"minor":    domain.PriorityLow,
			"medium":   domain.PriorityMedium,
			"high":     domain.PriorityHigh,
			"major":    domain.PriorityHigh,
			"highest":  domain.PriorityUrgent,
			"critical": domain.PriorityUrgent,
			"blocker":  domain.PriorityUrgent,
		},
		LabelTiers: []Tier{
			{Priority: domain.PriorityUrgent, Tokens: []string{"critical", "urgent", "p0"}},
			{Priority: domain.PriorityHigh, Tokens: []string{"high", "p1"}},
			{Priority: domain.PriorityLow, Tokens: []string{"low", "p3"}},
		},
		SlackTextTiers: []Tier{
			{Priority: domain.PriorityUrgent, Tokens: []string{"🔥", "urgent", "critical", "emergency"}},
			{Priority: domain.PriorityHigh, Tokens: []string{"⚡", "high priority", "important", "asap"}},
			{Priority: domain.PriorityLow, Tokens: []string{"low priority", "no rush", "when you have time", "nice to have"}},
		},
		SlackReactionTiers: []Tier{
			{Priority: domain.PriorityUrgent, Tokens: []string{"fire", "rotating_light", "warning"}},
			{Priority: domain.PriorityHigh, Tokens: []string{"zap", "exclamation", "heavy_exclamation_mark"}},
		},
		Status: StatusKeywords{
			InProgress:   []string{"in progress", "working on", "started", "development", "doing"},
			ReadyToStart: []string{"to do", "todo", "open", "ready", "backlog"},
			Blocked:      []string{"blocked", "stuck", "waiting", "on hold"},
		},
		ReactionStatuses: []ReactionStatus{
			{Reaction: "white_check_mark", Status: "completed"},
			{Reaction: "heavy_check_mark", Status: "completed"},
			{Reaction: "x", Status: "cancelled"},
			{Reaction: "hourglass_flowing_sand", Status: "in_progress"},
			{Reaction: "red_circle", Status: "blocked"},
			{Reaction: "yellow_circle", Status: "waiting"},
			{Reaction: "green_circle", Status: "ready"},
			{Reaction: "eyes", Status: "in_review"},
			{Reaction: "raising_hand", Status: "assigned"},
		},
		TaskKeywords: []string{
			"todo", "to do", "fix", "bug", "urgent", "asap", "deadline", "task",
			"action item", "need to", "needs to", "can you", "could you", "please",
			"broken", "issue", "error", "review", "deploy",
		},
		TaskFormatPatterns: []string{
			`(?m)^\s*[-*•]\s+\S`,
			`(?m)^\s*\d+[.)]\s+\S`,
			`(?m)^\s*[-*]?\s*\[[ xX]\]`,
			`(?mi)^\s*(TODO|FIXME|NOTE|HACK):`,
		},
		TaskChannelPatterns: []string{
			`(?i)(^|[-_])(tasks?|todos?|issues?|bugs?|tickets?|support|help|incidents?|dev|eng)([-_]|$)`,
		},
		AssigneePatterns: []string{
			`(?i)assigned to\s+@?([\w.\-]+)`,
			`(?i)assignee:\s*@?([\w.\-]+)`,
			`(?i)<?@([\w.\-]+)>?,?\s+(?:please|can you|could you)`,
		},
		MentionPattern: `<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`,
		HashtagPattern: `(?:^|[^\w&/])#([A-Za-z][\w\-]*)`,
	}
}

// LoadFile overlays a YAML file onto the default tables. Keys present in the
// file replace the defaults; jira_priorities entries are merged.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern tables: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML content onto the default tables.
func Parse(data []byte) (*Tables, error) {
	tables := Default()
	if err := yaml.Unmarshal(data, tables); err != nil {
		return nil, fmt.Errorf("parse pattern tables: %w", err)
	}
	tables.lowerTokens()
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Validate checks tier priorities and regex syntax.
func (t *Tables) Validate() error {
	for name, p := range t.JiraPriorities {
		if !p.Valid() {
			return fmt.Errorf("jira priority %q maps to unknown tier %q", name, p)
		}
	}
	for _, group := range [][]Tier{t.LabelTiers, t.SlackTextTiers, t.SlackReactionTiers} {
		for _, tier := range group {
			if !tier.Priority.Valid() {
				return fmt.Errorf("unknown priority tier %q", tier.Priority)
			}
		}
	}
	exprs := append([]string{}, t.TaskFormatPatterns...)
	exprs = append(exprs, t.TaskChannelPatterns...)
	exprs = append(exprs, t.AssigneePatterns...)
	exprs = append(exprs, t.MentionPattern, t.HashtagPattern)
	for _, expr := range exprs {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
	}
	return nil
}

func (t *Tables) lowerTokens() {
	lowered := make(map[string]domain.Priority, len(t.JiraPriorities))
	for name, p := range t.JiraPriorities {
		lowered[strings.ToLower(name)] = p
	}
	t.JiraPriorities = lowered
	lowerTiers := func(tiers []Tier) {
		for i := range tiers {
			for j, token := range tiers[i].Tokens {
				tiers[i].Tokens[j] = strings.ToLower(token)
			}
		}
	}
	lowerTiers(t.LabelTiers)
	lowerTiers(t.SlackTextTiers)
	lowerTiers(t.SlackReactionTiers)
}
