package classify

import (
	"strings"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/patterns"
)

// Signal is the union of the inputs a provider can offer for priority.
type Signal struct {
	Provider  domain.ProviderKind
	Name      string   // structured priority name (Jira)
	Labels    []string // label names (GitHub)
	Text      string   // free text (Slack)
	Reactions []string // reaction names (Slack)
}

// Priority dispatches to the rule matching the signal's provider.
func (c *Classifier) Priority(sig Signal) domain.Priority {
	switch sig.Provider {
	case domain.ProviderJira:
		return c.JiraPriority(sig.Name)
	case domain.ProviderGitHub:
		return c.LabelPriority(sig.Labels)
	case domain.ProviderSlack:
		return c.SlackPriority(sig.Text, sig.Reactions)
	default:
		return domain.DefaultPriority
	}
}

// JiraPriority looks the name up exactly, ignoring case and surrounding space.
func (c *Classifier) JiraPriority(name string) domain.Priority {
	if p, ok := c.tables.JiraPriorities[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return domain.DefaultPriority
}

// LabelPriority scans label names tier by tier; the first tier with any
// matching label wins regardless of label order.
func (c *Classifier) LabelPriority(labels []string) domain.Priority {
	lowered := make([]string, len(labels))
	for i, l := range labels {
		lowered[i] = strings.ToLower(l)
	}
	for _, tier := range c.tables.LabelTiers {
		for _, label := range lowered {
			if containsAny(label, tier.Tokens) {
				return tier.Priority
			}
		}
	}
	return domain.DefaultPriority
}

// TextPriority reports the first text tier whose keywords occur in text.
func (c *Classifier) TextPriority(text string) (domain.Priority, bool) {
	return firstTier(strings.ToLower(text), c.tables.SlackTextTiers)
}

// ReactionPriority reports the most urgent tier among the reactions.
func (c *Classifier) ReactionPriority(reactions []string) (domain.Priority, bool) {
	var best domain.Priority
	found := false
	for _, r := range reactions {
		p, ok := c.reactionTiers[normalizeReaction(r)]
		if !ok {
			continue
		}
		if !found || p.Rank() > best.Rank() {
			best = p
			found = true
		}
	}
	return best, found
}

// SlackPriority combines text and reaction signals; the higher tier wins.
func (c *Classifier) SlackPriority(text string, reactions []string) domain.Priority {
	textTier, textOK := c.TextPriority(text)
	reactionTier, reactionOK := c.ReactionPriority(reactions)
	switch {
	case textOK && reactionOK:
		return domain.MaxPriority(textTier, reactionTier)
	case textOK:
		return textTier
	case reactionOK:
		return reactionTier
	default:
		return domain.DefaultPriority
	}
}

func firstTier(lowered string, tiers []patterns.Tier) (domain.Priority, bool) {
	for _, tier := range tiers {
		if containsAny(lowered, tier.Tokens) {
			return tier.Priority, true
		}
	}
	return "", false
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if token != "" && strings.Contains(s, token) {
			return true
		}
	}
	return false
}

// normalizeReaction strips colons and skin-tone suffixes ("thumbsup::skin-tone-2").
func normalizeReaction(name string) string {
	name = strings.Trim(strings.ToLower(strings.TrimSpace(name)), ":")
	if i := strings.Index(name, "::"); i >= 0 {
		name = name[:i]
	}
	return name
}
