package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// Config is the per-provider connection configuration.
type Config struct {
	// BaseURL is the Jira site, or the Slack workspace URL used for permalinks.
	BaseURL string
	// APIBaseURL overrides the GitHub or Slack API root.
	APIBaseURL string
	Token      string
	// Email switches Jira to basic auth (Atlassian Cloud API tokens).
	Email    string
	CacheTTL time.Duration
}

var jiraIDPattern = regexp.MustCompile(`^(?:[A-Z][A-Z0-9_]*-\d+|\d+)$`)

// jiraTimeLayouts covers Jira's "2024-01-15T10:30:00.000+0000" and RFC 3339.
var jiraTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

// JiraProvider reads issues from the Jira Cloud REST API v3.
type JiraProvider struct {
	base
	cfg Config
}

// NewJiraProvider creates a Jira provider. The default TTL is five minutes.
func NewJiraProvider(cfg Config, opts Options) *JiraProvider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &JiraProvider{base: newBase(string(domain.ProviderJira), cfg.CacheTTL, opts), cfg: cfg}
}

// ValidateConfig checks the token and base URL shape, then calls /myself.
func (p *JiraProvider) ValidateConfig(ctx context.Context) bool {
	if strings.TrimSpace(p.cfg.Token) == "" || !isHTTPURL(p.cfg.BaseURL) {
		p.logger.Warn("jira config incomplete")
		return false
	}
	resp, err := p.transport.Do(ctx, p.request(p.cfg.BaseURL+"/rest/api/3/myself"))
	if err != nil {
		p.logger.Warn("jira validation failed", zap.Error(err))
		return false
	}
	if err := checkStatus(p.name, "jira user", resp); err != nil {
		p.logger.Warn("jira validation failed", zap.Error(err))
		return false
	}
	return true
}

// GetTicket fetches an issue by key ("TEST-123") or numeric id.
func (p *JiraProvider) GetTicket(ctx context.Context, id string) (*domain.RecentTicket, error) {
	id = strings.TrimSpace(id)
	if !jiraIDPattern.MatchString(id) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Invalid Jira ticket ID format: %q. Format should be \"PROJECT-123\" or a numeric issue id", id),
			map[string]any{"id": id})
	}
	return p.cached(ctx, id, func(ctx context.Context) (*domain.RecentTicket, error) {
		resp, err := p.transport.Do(ctx, p.request(p.cfg.BaseURL+"/rest/api/3/issue/"+url.PathEscape(id)))
		if err != nil {
			return nil, err
		}
		if err := checkStatus(p.name, "jira issue "+id, resp); err != nil {
			return nil, err
		}
		return p.MapToRecentTicket(resp.Body)
	})
}

func (p *JiraProvider) request(target string) *Request {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if p.cfg.Email != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(p.cfg.Email + ":" + p.cfg.Token))
		header.Set("Authorization", "Basic "+creds)
	} else {
		header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
	return &Request{Method: http.MethodGet, URL: target, Header: header}
}

type jiraIssue struct {
	ID     flexString `json:"id"`
	Key    string     `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Priority    *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Status *struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName  string `json:"displayName"`
			EmailAddress string `json:"emailAddress"`
			AccountID    string `json:"accountId"`
		} `json:"assignee"`
		Labels  []string `json:"labels"`
		Created string   `json:"created"`
		Updated string   `json:"updated"`
	} `json:"fields"`
}

// MapToRecentTicket converts a Jira issue payload. Missing fields take defaults.
func (p *JiraProvider) MapToRecentTicket(raw json.RawMessage) (*domain.RecentTicket, error) {
	var issue jiraIssue
	if err := decodeObject(p.name, raw, &issue); err != nil {
		return nil, err
	}
	f := issue.Fields

	var priorityName, status string
	if f.Priority != nil {
		priorityName = f.Priority.Name
	}
	if f.Status != nil {
		status = f.Status.Name
	}
	var assignee *string
	if f.Assignee != nil {
		assignee = domain.StringPtr(firstNonEmpty(f.Assignee.DisplayName, f.Assignee.EmailAddress, f.Assignee.AccountID))
	}

	id := string(issue.ID)
	if id == "" {
		id = issue.Key
	}
	var link *string
	if issue.Key != "" && p.cfg.BaseURL != "" {
		link = domain.StringPtr(p.cfg.BaseURL + "/browse/" + issue.Key)
	}

	ticket := &domain.RecentTicket{
		ID:          id,
		Key:         issue.Key,
		Summary:     f.Summary,
		Description: jiraDescription(f.Description),
		Priority:    p.classifier.JiraPriority(priorityName),
		Status:      status,
		Assignee:    assignee,
		Labels:      append([]string(nil), f.Labels...),
		Created:     parseJiraTime(f.Created),
		Updated:     parseJiraTime(f.Updated),
		Provider:    domain.ProviderJira,
		URL:         link,
	}
	ticket.Normalize()
	return ticket, nil
}

func parseJiraTime(s string) time.Time {
	for _, layout := range jiraTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// adfNode is a node of an Atlassian Document Format tree.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
	Attrs   struct {
		Text      string `json:"text"`
		ShortName string `json:"shortName"`
	} `json:"attrs"`
}

// jiraDescription accepts the plain string of API v2 or the ADF document of v3.
func jiraDescription(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	flattenADF(&b, doc)
	return strings.TrimSpace(b.String())
}

var adfBlockTypes = map[string]bool{
	"paragraph": true, "heading": true, "listItem": true, "codeBlock": true,
	"blockquote": true, "rule": true, "panel": true, "tableRow": true,
}

func flattenADF(b *strings.Builder, node adfNode) {
	switch node.Type {
	case "text":
		b.WriteString(node.Text)
		return
	case "hardBreak":
		b.WriteString("\n")
		return
	case "mention":
		b.WriteString(node.Attrs.Text)
		return
	case "emoji":
		b.WriteString(firstNonEmpty(node.Attrs.Text, node.Attrs.ShortName))
		return
	}
	for _, child := range node.Content {
		flattenADF(b, child)
	}
	if adfBlockTypes[node.Type] && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

// flexString decodes a JSON string or number as a string.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
