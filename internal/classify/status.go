package classify

import "strings"

// StatusFlags are the derived, non-exclusive status predicates.
type StatusFlags struct {
	InProgress   bool `json:"in_progress"`
	ReadyToStart bool `json:"ready_to_start"`
	Blocked      bool `json:"blocked"`
}

func (c *Classifier) IsInProgress(status string) bool {
	return containsAny(strings.ToLower(status), c.tables.Status.InProgress)
}

func (c *Classifier) IsReadyToStart(status string) bool {
	return containsAny(strings.ToLower(status), c.tables.Status.ReadyToStart)
}

func (c *Classifier) IsBlocked(status string) bool {
	return containsAny(strings.ToLower(status), c.tables.Status.Blocked)
}

// Flags evaluates all three predicates.
func (c *Classifier) Flags(status string) StatusFlags {
	return StatusFlags{
		InProgress:   c.IsInProgress(status),
		ReadyToStart: c.IsReadyToStart(status),
		Blocked:      c.IsBlocked(status),
	}
}

// StatusForReaction maps one reaction name to its status label.
func (c *Classifier) StatusForReaction(reaction string) (string, bool) {
	status, ok := c.reactionStatuses[normalizeReaction(reaction)]
	return status, ok
}

// ReactionStatus picks the status from reactions listed in the order they were
// first added to the message. The last status-bearing reaction is the most
// recently introduced one and wins.
func (c *Classifier) ReactionStatus(reactions []string) (string, bool) {
	for i := len(reactions) - 1; i >= 0; i-- {
		if status, ok := c.StatusForReaction(reactions[i]); ok {
			return status, true
		}
	}
	return "", false
}

// ReactionStatusByTableOrder is the fallback when reactions carry no order:
// the first entry of the fixed reaction table that is present wins.
func (c *Classifier) ReactionStatusByTableOrder(reactions []string) (string, bool) {
	present := make(map[string]struct{}, len(reactions))
	for _, r := range reactions {
		present[normalizeReaction(r)] = struct{}{}
	}
	for _, rs := range c.tables.ReactionStatuses {
		if _, ok := present[rs.Reaction]; ok {
			return rs.Status, true
		}
	}
	return "", false
}
