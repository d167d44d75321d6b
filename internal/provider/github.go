package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

const defaultGitHubAPI = "https://api.github.com"

// UnknownRepo is returned when a repository cannot be derived from a URL.
const UnknownRepo = "unknown/unknown"

var (
	githubIDPattern = regexp.MustCompile(`^([\w.\-]+)/([\w.\-]+)#(\d+)$`)

	githubAPIRepoURL = regexp.MustCompile(`^https?://api\.github\.com/repos/([^/\s?#]+)/([^/\s?#]+)`)
	githubWebRepoURL = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/\s?#]+)/([^/\s?#]+)`)
)

// ExtractRepoFromURL returns "owner/repo" for GitHub web and API URLs, or
// UnknownRepo for anything else.
func ExtractRepoFromURL(raw string) string {
	for _, re := range []*regexp.Regexp{githubAPIRepoURL, githubWebRepoURL} {
		if m := re.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
			return m[1] + "/" + strings.TrimSuffix(m[2], ".git")
		}
	}
	return UnknownRepo
}

// GitHubProvider reads issues (and pull requests) through the REST API.
type GitHubProvider struct {
	base
	cfg Config
}

// NewGitHubProvider creates a GitHub provider. The default TTL is five minutes.
func NewGitHubProvider(cfg Config, opts Options) *GitHubProvider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultGitHubAPI
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return &GitHubProvider{base: newBase(string(domain.ProviderGitHub), cfg.CacheTTL, opts), cfg: cfg}
}

// ValidateConfig requires a token accepted by GET /user.
func (p *GitHubProvider) ValidateConfig(ctx context.Context) bool {
	if strings.TrimSpace(p.cfg.Token) == "" {
		p.logger.Warn("github token missing")
		return false
	}
	resp, err := p.transport.Do(ctx, p.request(p.cfg.APIBaseURL+"/user"))
	if err == nil {
		err = checkStatus(p.name, "github user", resp)
	}
	if err != nil {
		p.logger.Warn("github validation failed", zap.Error(err))
		return false
	}
	return true
}

// GetTicket fetches an issue by "owner/repo#number".
func (p *GitHubProvider) GetTicket(ctx context.Context, id string) (*domain.RecentTicket, error) {
	id = strings.TrimSpace(id)
	m := githubIDPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Invalid GitHub ticket ID format: %q. Format should be \"owner/repo#number\"", id),
			map[string]any{"id": id})
	}
	owner, repo, number := m[1], m[2], m[3]

	return p.cached(ctx, id, func(ctx context.Context) (*domain.RecentTicket, error) {
		target := fmt.Sprintf("%s/repos/%s/%s/issues/%s", p.cfg.APIBaseURL, owner, repo, number)
		resp, err := p.transport.Do(ctx, p.request(target))
		if err != nil {
			return nil, err
		}
		if err := checkStatus(p.name, "github issue "+id, resp); err != nil {
			return nil, err
		}
		return p.MapToRecentTicket(resp.Body)
	})
}

func (p *GitHubProvider) request(target string) *Request {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", "2022-11-28")
	header.Set("Authorization", "Bearer "+p.cfg.Token)
	return &Request{Method: http.MethodGet, URL: target, Header: header}
}

type githubUser struct {
	Login string `json:"login"`
}

// githubLabel accepts both label objects and bare label names.
type githubLabel string

func (l *githubLabel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*l = githubLabel(name)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*l = githubLabel(obj.Name)
	return nil
}

type githubIssue struct {
	Number        int           `json:"number"`
	Title         string        `json:"title"`
	Body          *string       `json:"body"`
	State         string        `json:"state"`
	HTMLURL       string        `json:"html_url"`
	URL           string        `json:"url"`
	RepositoryURL string        `json:"repository_url"`
	Labels        []githubLabel `json:"labels"`
	Assignee      *githubUser   `json:"assignee"`
	Assignees     []githubUser  `json:"assignees"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MapToRecentTicket converts a GitHub issue payload.
func (p *GitHubProvider) MapToRecentTicket(raw json.RawMessage) (*domain.RecentTicket, error) {
	var issue githubIssue
	if err := decodeObject(p.name, raw, &issue); err != nil {
		return nil, err
	}

	repo := UnknownRepo
	for _, candidate := range []string{issue.HTMLURL, issue.RepositoryURL, issue.URL} {
		if r := ExtractRepoFromURL(candidate); r != UnknownRepo {
			repo = r
			break
		}
	}
	number := strconv.Itoa(issue.Number)

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		if l != "" {
			labels = append(labels, string(l))
		}
	}

	var assignee *string
	if issue.Assignee != nil {
		assignee = domain.StringPtr(issue.Assignee.Login)
	} else if len(issue.Assignees) > 0 {
		assignee = domain.StringPtr(issue.Assignees[0].Login)
	}
	var description string
	if issue.Body != nil {
		description = *issue.Body
	}

	ticket := &domain.RecentTicket{
		ID:          repo + "#" + number,
		Key:         "#" + number,
		Summary:     issue.Title,
		Description: description,
		Priority:    p.classifier.LabelPriority(labels),
		Status:      p.status(issue.State, labels),
		Assignee:    assignee,
		Labels:      labels,
		Created:     issue.CreatedAt,
		Updated:     issue.UpdatedAt,
		Provider:    domain.ProviderGitHub,
		URL:         domain.StringPtr(issue.HTMLURL),
	}
	ticket.Normalize()
	return ticket, nil
}

// status is the issue state, except that an open issue carrying an
// in-progress or blocked label reports that label.
func (p *GitHubProvider) status(state string, labels []string) string {
	if state != "" && state != "open" {
		return state
	}
	for _, l := range labels {
		if p.classifier.IsInProgress(l) || p.classifier.IsBlocked(l) {
			return l
		}
	}
	return state
}
