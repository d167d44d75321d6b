// Package classify derives canonical priority, status and people/label signals
// from provider records. Every function is pure; behaviour is entirely driven
// by the pattern tables given to New.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/patterns"
)

// Classifier holds the compiled form of a patterns.Tables value.
type Classifier struct {
	tables *patterns.Tables

	taskKeywords     *regexp.Regexp
	taskFormats      []*regexp.Regexp
	taskChannels     []*regexp.Regexp
	assignees        []*regexp.Regexp
	mention          *regexp.Regexp
	hashtag          *regexp.Regexp
	reactionStatuses map[string]string
	reactionTiers    map[string]domain.Priority
}

// New compiles tables into a Classifier. Tables must not be mutated afterwards.
func New(tables *patterns.Tables) (*Classifier, error) {
	if tables == nil {
		tables = patterns.Default()
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		tables:           tables,
		reactionStatuses: make(map[string]string, len(tables.ReactionStatuses)),
		reactionTiers:    make(map[string]domain.Priority),
	}

	var err error
	if c.taskKeywords, err = keywordRegexp(tables.TaskKeywords); err != nil {
		return nil, err
	}
	if c.taskFormats, err = compileAll(tables.TaskFormatPatterns); err != nil {
		return nil, err
	}
	if c.taskChannels, err = compileAll(tables.TaskChannelPatterns); err != nil {
		return nil, err
	}
	if c.assignees, err = compileAll(tables.AssigneePatterns); err != nil {
		return nil, err
	}
	if c.mention, err = regexp.Compile(tables.MentionPattern); err != nil {
		return nil, fmt.Errorf("mention pattern: %w", err)
	}
	if c.hashtag, err = regexp.Compile(tables.HashtagPattern); err != nil {
		return nil, fmt.Errorf("hashtag pattern: %w", err)
	}

	for _, rs := range tables.ReactionStatuses {
		c.reactionStatuses[rs.Reaction] = rs.Status
	}
	// Earlier tiers take precedence when a reaction is listed twice.
	for _, tier := range tables.SlackReactionTiers {
		for _, name := range tier.Tokens {
			if _, seen := c.reactionTiers[name]; !seen {
				c.reactionTiers[name] = tier.Priority
			}
		}
	}
	return c, nil
}

// Default returns a Classifier over patterns.Default. It panics only if the
// built-in tables are broken.
func Default() *Classifier {
	c, err := New(patterns.Default())
	if err != nil {
		panic(fmt.Sprintf("classify: built-in tables invalid: %v", err))
	}
	return c
}

// Tables exposes the tables the classifier was built from.
func (c *Classifier) Tables() *patterns.Tables {
	return c.tables
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// keywordRegexp builds a case-insensitive whole-word alternation.
func keywordRegexp(words []string) (*regexp.Regexp, error) {
	if len(words) == 0 {
		return nil, nil
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || !isWordy(w) {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
