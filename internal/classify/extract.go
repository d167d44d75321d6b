package classify

import "strings"

// ExtractAssignee returns the handle captured by the first assignee pattern
// that matches, without a leading "@".
func (c *Classifier) ExtractAssignee(text string) *string {
	for _, re := range c.assignees {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		handle := strings.TrimSpace(strings.TrimPrefix(m[1], "@"))
		handle = strings.TrimRight(handle, ".-")
		if handle != "" {
			return &handle
		}
	}
	return nil
}

// ExtractMentions returns raw user ids in order of appearance, duplicates kept.
func (c *Classifier) ExtractMentions(text string) []string {
	return submatches(c.mention.FindAllStringSubmatch(text, -1))
}

// ExtractHashtags returns hashtag words (without "#") in order of appearance.
func (c *Classifier) ExtractHashtags(text string) []string {
	return submatches(c.hashtag.FindAllStringSubmatch(text, -1))
}

func submatches(matches [][]string) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

// HasTaskKeyword reports whether text contains a task keyword as a whole word.
func (c *Classifier) HasTaskKeyword(text string) bool {
	if c.taskKeywords != nil && c.taskKeywords.MatchString(text) {
		return true
	}
	// Emoji and other non-word keywords cannot use word boundaries.
	lowered := strings.ToLower(text)
	for _, kw := range c.tables.TaskKeywords {
		if kw != "" && !isWordy(kw) && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// HasTaskFormat reports bullets, numbered items, checkboxes and TODO-style prefixes.
func (c *Classifier) HasTaskFormat(text string) bool {
	for _, re := range c.taskFormats {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsTaskChannel reports whether a channel name looks task oriented.
func (c *Classifier) IsTaskChannel(channel string) bool {
	if channel == "" {
		return false
	}
	for _, re := range c.taskChannels {
		if re.MatchString(channel) {
			return true
		}
	}
	return false
}

// IsTaskRelated is a boolean gate: any single signal qualifies the message.
func (c *Classifier) IsTaskRelated(text, channel string) bool {
	return c.HasTaskKeyword(text) || c.HasTaskFormat(text) || c.IsTaskChannel(channel)
}

func isWordy(s string) bool {
	for _, r := range s {
		if !(r == ' ' || r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
