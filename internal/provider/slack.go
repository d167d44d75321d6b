package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

const (
	defaultSlackAPI      = "https://slack.com/api"
	defaultThreadReplies = 10
	maxSlackSummaryRunes = 100
)

var slackIDPattern = regexp.MustCompile(`^([A-Z0-9]{2,})[/:](\d+\.\d+)$`)

// SlackProvider treats individual Slack messages as tickets.
type SlackProvider struct {
	base
	cfg           Config
	threadReplies int
}

// NewSlackProvider creates a Slack provider. The default TTL is ten minutes.
func NewSlackProvider(cfg Config, opts Options) *SlackProvider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultSlackAPI
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SlackProvider{
		base:          newBase(string(domain.ProviderSlack), cfg.CacheTTL, opts),
		cfg:           cfg,
		threadReplies: defaultThreadReplies,
	}
}

// SetThreadReplies changes how many thread replies are folded into a ticket.
func (p *SlackProvider) SetThreadReplies(n int) {
	if n >= 0 {
		p.threadReplies = n
	}
}

// ValidateConfig requires a token accepted by auth.test.
func (p *SlackProvider) ValidateConfig(ctx context.Context) bool {
	if strings.TrimSpace(p.cfg.Token) == "" {
		p.logger.Warn("slack token missing")
		return false
	}
	if err := p.call(ctx, "auth.test", nil, "slack workspace", nil); err != nil {
		p.logger.Warn("slack validation failed", zap.Error(err))
		return false
	}
	return true
}

// GetTicket fetches the message "CHANNEL/TS" (or "CHANNEL:TS") with its thread.
func (p *SlackProvider) GetTicket(ctx context.Context, id string) (*domain.RecentTicket, error) {
	id = strings.TrimSpace(id)
	m := slackIDPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Invalid Slack ticket ID format: %q. Format should be \"CHANNEL/TIMESTAMP\"", id),
			map[string]any{"id": id})
	}
	channel, ts := m[1], m[2]

	return p.cached(ctx, slackKey(channel, ts), func(ctx context.Context) (*domain.RecentTicket, error) {
		msg, err := p.fetchMessage(ctx, channel, ts)
		if err != nil {
			return nil, err
		}
		if msg.ReplyCount > 0 && p.threadReplies > 0 {
			replies, err := p.fetchReplies(ctx, channel, ts, p.threadReplies)
			if err != nil {
				return nil, err
			}
			msg.Replies = replies
		}
		msg.Channel = slackChannel{ID: channel}
		return p.mapMessage(msg), nil
	})
}

// InvalidateCache drops the entry for id in either accepted form.
func (p *SlackProvider) InvalidateCache(id string) {
	id = strings.TrimSpace(id)
	if m := slackIDPattern.FindStringSubmatch(id); m != nil {
		id = slackKey(m[1], m[2])
	}
	p.cache.Invalidate(id)
}

func (p *SlackProvider) fetchMessage(ctx context.Context, channel, ts string) (*slackMessage, error) {
	query := url.Values{}
	query.Set("channel", channel)
	query.Set("latest", ts)
	query.Set("inclusive", "true")
	query.Set("limit", "1")

	var out slackHistory
	if err := p.call(ctx, "conversations.history", query, "slack channel "+channel, &out); err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 || out.Messages[0].TS != ts {
		return nil, apperrors.NewNotFound("slack message "+slackKey(channel, ts), map[string]any{"channel": channel, "ts": ts})
	}
	return &out.Messages[0], nil
}

// fetchReplies returns up to limit replies, excluding the parent message.
func (p *SlackProvider) fetchReplies(ctx context.Context, channel, ts string, limit int) ([]slackMessage, error) {
	query := url.Values{}
	query.Set("channel", channel)
	query.Set("ts", ts)
	query.Set("limit", strconv.Itoa(limit+1))

	var out slackHistory
	if err := p.call(ctx, "conversations.replies", query, "slack thread "+slackKey(channel, ts), &out); err != nil {
		return nil, err
	}
	replies := make([]slackMessage, 0, len(out.Messages))
	for _, msg := range out.Messages {
		if msg.TS == ts {
			continue
		}
		replies = append(replies, msg)
		if len(replies) == limit {
			break
		}
	}
	return replies, nil
}

// call performs a Slack Web API GET and decodes the envelope into out.
func (p *SlackProvider) call(ctx context.Context, method string, query url.Values, resource string, out any) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.cfg.Token)
	resp, err := p.transport.Do(ctx, &Request{
		Method: http.MethodGet,
		URL:    p.cfg.APIBaseURL + "/" + method,
		Query:  query,
		Header: header,
	})
	if err != nil {
		return err
	}
	if err := checkStatus(p.name, resource, resp); err != nil {
		return err
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return apperrors.NewParsingError("malformed slack response", err)
	}
	if !envelope.OK {
		return slackError(envelope.Error, resource, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return apperrors.NewParsingError("malformed slack response", err)
	}
	return nil
}

// slackError maps Slack's ok:false error strings onto the error taxonomy.
func slackError(code, resource string, resp *Response) error {
	details := map[string]any{"slack_error": code}
	switch code {
	case "ratelimited":
		if wait := retryAfter(resp.Header, time.Now()); wait > 0 {
			details["retry_after_seconds"] = int(wait.Seconds())
		}
		return apperrors.NewRateLimitError(string(domain.ProviderSlack), details)
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired":
		return apperrors.NewPermissionError("slack rejected the credentials", details)
	case "missing_scope", "not_in_channel", "access_denied":
		return apperrors.NewPermissionError("slack denied access to "+resource, details)
	case "channel_not_found", "message_not_found", "thread_not_found":
		return apperrors.NewNotFound(resource, details)
	default:
		return apperrors.NewNetworkError(fmt.Sprintf("slack error: %s", code), nil)
	}
}

type slackHistory struct {
	Messages         []slackMessage `json:"messages"`
	HasMore          bool           `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type slackReaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// slackChannel accepts a channel id string or a {"id","name"} object.
type slackChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *slackChannel) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		c.ID = id
		return nil
	}
	type plain slackChannel
	return json.Unmarshal(data, (*plain)(c))
}

type slackMessage struct {
	Type        string          `json:"type"`
	Subtype     string          `json:"subtype"`
	User        string          `json:"user"`
	Text        string          `json:"text"`
	TS          string          `json:"ts"`
	ThreadTS    string          `json:"thread_ts"`
	ReplyCount  int             `json:"reply_count"`
	Reactions   []slackReaction `json:"reactions"`
	Channel     slackChannel    `json:"channel"`
	ChannelName string          `json:"channel_name"`
	Permalink   string          `json:"permalink"`
	Edited      *struct {
		TS string `json:"ts"`
	} `json:"edited"`
	// Replies is not part of Slack's payload; the provider attaches thread
	// replies here before mapping.
	Replies []slackMessage `json:"replies"`
}

// MapToRecentTicket converts a Slack message payload. The channel may be given
// as "channel" (id or object) and "channel_name".
func (p *SlackProvider) MapToRecentTicket(raw json.RawMessage) (*domain.RecentTicket, error) {
	var msg slackMessage
	if err := decodeObject(p.name, raw, &msg); err != nil {
		return nil, err
	}
	return p.mapMessage(&msg), nil
}

func (p *SlackProvider) mapMessage(msg *slackMessage) *domain.RecentTicket {
	reactions := make([]string, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		reactions = append(reactions, r.Name)
	}

	status, ok := p.classifier.ReactionStatus(reactions)
	if !ok {
		status = domain.DefaultStatus
	}
	assignee := p.classifier.ExtractAssignee(msg.Text)
	if assignee == nil {
		if mentions := p.classifier.ExtractMentions(msg.Text); len(mentions) > 0 {
			assignee = domain.StringPtr(mentions[0])
		}
	}

	created := parseSlackTS(msg.TS)
	updated := created
	if msg.Edited != nil {
		updated = latest(updated, parseSlackTS(msg.Edited.TS))
	}
	for _, reply := range msg.Replies {
		updated = latest(updated, parseSlackTS(reply.TS))
	}

	ticket := &domain.RecentTicket{
		ID:          msg.TS,
		Key:         slackKey(msg.Channel.ID, msg.TS),
		Summary:     slackSummary(msg.Text, msg.TS),
		Description: slackDescription(msg),
		Priority:    p.classifier.SlackPriority(msg.Text, reactions),
		Status:      status,
		Assignee:    assignee,
		Labels:      dedupe(p.classifier.ExtractHashtags(msg.Text)),
		Created:     created,
		Updated:     updated,
		Provider:    domain.ProviderSlack,
		URL:         p.permalink(msg),
	}
	ticket.Normalize()
	return ticket
}

func (p *SlackProvider) permalink(msg *slackMessage) *string {
	if msg.Permalink != "" {
		return domain.StringPtr(msg.Permalink)
	}
	if p.cfg.BaseURL == "" || msg.Channel.ID == "" || msg.TS == "" {
		return nil
	}
	return domain.StringPtr(fmt.Sprintf("%s/archives/%s/p%s", p.cfg.BaseURL, msg.Channel.ID, strings.ReplaceAll(msg.TS, ".", "")))
}

// urlValues builds a query, dropping empty values.
func urlValues(params map[string]string) url.Values {
	query := url.Values{}
	for k, v := range params {
		if v != "" {
			query.Set(k, v)
		}
	}
	return query
}

func slackKey(channel, ts string) string {
	if channel == "" {
		return ts
	}
	return channel + "/" + ts
}

// slackSummary is the first non-blank line, capped at 100 runes.
func slackSummary(text, ts string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxSlackSummaryRunes {
			runes := []rune(line)
			return strings.TrimSpace(string(runes[:maxSlackSummaryRunes-3])) + "..."
		}
		return line
	}
	if ts == "" {
		return "Slack message"
	}
	return "Slack message " + ts
}

func slackDescription(msg *slackMessage) string {
	if len(msg.Replies) == 0 {
		return msg.Text
	}
	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n\nThread:")
	for _, reply := range msg.Replies {
		b.WriteString("\n- ")
		if reply.User != "" {
			b.WriteString(reply.User)
			b.WriteString(": ")
		}
		b.WriteString(reply.Text)
	}
	return b.String()
}

// parseSlackTS converts "1700000000.000100" to a time.
func parseSlackTS(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if frac != "" {
		frac = (frac + "000000")[:6]
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond)).UTC()
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
