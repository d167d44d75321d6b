package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

const githubIssueJSON = `{
	"number": 42,
	"title": "Crash on startup",
	"body": "Stack trace attached",
	"state": "open",
	"html_url": "https://github.com/acme/widgets/issues/42",
	"url": "https://api.github.com/repos/acme/widgets/issues/42",
	"labels": [{"name": "bug"}, {"name": "high-priority"}],
	"assignee": {"login": "octocat"},
	"created_at": "2024-02-01T08:00:00Z",
	"updated_at": "2024-02-02T08:00:00Z"
}`

func newTestGitHub(t *testing.T) (*GitHubProvider, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	return NewGitHubProvider(Config{Token: "gh-token"}, Options{Transport: ft}), ft
}

func TestExtractRepoFromURL(t *testing.T) {
	tests := map[string]string{
		"https://github.com/owner/repo/issues/123":           "owner/repo",
		"https://github.com/owner/repo/pull/7":               "owner/repo",
		"https://github.com/owner/repo":                      "owner/repo",
		"https://github.com/owner/repo.git":                  "owner/repo",
		"http://www.github.com/owner/repo/issues/1":          "owner/repo",
		"https://api.github.com/repos/owner/repo/issues/123": "owner/repo",
		"https://api.github.com/repos/owner/repo":            "owner/repo",
		"https://gitlab.com/owner/repo/issues/1":             UnknownRepo,
		"https://github.com/owner":                           UnknownRepo,
		"not a url":                                          UnknownRepo,
		"":                                                   UnknownRepo,
	}
	for in, want := range tests {
		assert.Equalf(t, want, ExtractRepoFromURL(in), "url %q", in)
	}
}

func TestGitHub_MapToRecentTicket(t *testing.T) {
	p, _ := newTestGitHub(t)

	ticket, err := p.MapToRecentTicket([]byte(githubIssueJSON))
	require.NoError(t, err)

	assert.Equal(t, "acme/widgets#42", ticket.ID)
	assert.Equal(t, "#42", ticket.Key)
	assert.Equal(t, "Crash on startup", ticket.Summary)
	assert.Equal(t, "Stack trace attached", ticket.Description)
	assert.Equal(t, domain.PriorityHigh, ticket.Priority)
	assert.Equal(t, "open", ticket.Status)
	require.NotNil(t, ticket.Assignee)
	assert.Equal(t, "octocat", *ticket.Assignee)
	assert.Equal(t, []string{"bug", "high-priority"}, ticket.Labels)
	assert.Equal(t, domain.ProviderGitHub, ticket.Provider)
	require.NotNil(t, ticket.URL)
	assert.Equal(t, "https://github.com/acme/widgets/issues/42", *ticket.URL)
	assert.Equal(t, 2024, ticket.Created.Year())
}

func TestGitHub_MapToRecentTicket_UrgentLabelWins(t *testing.T) {
	p, _ := newTestGitHub(t)

	ticket, err := p.MapToRecentTicket([]byte(`{"number":1,"state":"open","labels":["low","critical"]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUrgent, ticket.Priority)
	assert.Equal(t, "unknown/unknown#1", ticket.ID)
	assert.Nil(t, ticket.URL)
	assert.Empty(t, ticket.Description, "null or missing body maps to empty")
}

func TestGitHub_MapToRecentTicket_Status(t *testing.T) {
	p, _ := newTestGitHub(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"closed ignores labels", `{"number":1,"state":"closed","labels":["in progress"]}`, "closed"},
		{"open promoted to in-progress label", `{"number":1,"state":"open","labels":["bug","In Progress"]}`, "In Progress"},
		{"open promoted to blocked label", `{"number":1,"state":"open","labels":["blocked"]}`, "blocked"},
		{"open without status labels", `{"number":1,"state":"open","labels":["bug"]}`, "open"},
		{"missing state", `{"number":1}`, domain.DefaultStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, err := p.MapToRecentTicket([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ticket.Status)
		})
	}
}

func TestGitHub_GetTicket(t *testing.T) {
	p, ft := newTestGitHub(t)
	ft.respond("https://api.github.com/repos/acme/widgets/issues/42", http.StatusOK, githubIssueJSON)

	ticket, err := p.GetTicket(context.Background(), "acme/widgets#42")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets#42", ticket.ID)

	call := ft.lastCall()
	assert.Equal(t, "Bearer gh-token", call.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", call.Header.Get("Accept"))
}

func TestGitHub_ClearCache(t *testing.T) {
	p, ft := newTestGitHub(t)
	ft.respond("https://api.github.com/repos/acme/widgets/issues/42", http.StatusOK, githubIssueJSON)
	ft.respond("https://api.github.com/repos/acme/widgets/issues/43", http.StatusOK, githubIssueJSON)
	ctx := context.Background()

	_, err := p.GetTicket(ctx, "acme/widgets#42")
	require.NoError(t, err)
	_, err = p.GetTicket(ctx, "acme/widgets#43")
	require.NoError(t, err)
	require.Equal(t, 2, p.CacheStats().Size)

	p.ClearCache()
	assert.Equal(t, 0, p.CacheStats().Size)
	assert.Empty(t, p.CacheStats().Keys)

	_, err = p.GetTicket(ctx, "acme/widgets#42")
	require.NoError(t, err)
	assert.Equal(t, 3, ft.callCount(), "previous keys miss after a clear")
}

func TestGitHub_GetTicket_InvalidFormat(t *testing.T) {
	p, ft := newTestGitHub(t)

	for _, id := range []string{"invalid-format", "owner/repo", "owner#1", "owner/repo#abc", "owner/repo/1"} {
		_, err := p.GetTicket(context.Background(), id)
		require.Errorf(t, err, "id %q", id)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), `Format should be "owner/repo#number"`)
		assert.Contains(t, err.Error(), "Invalid GitHub ticket ID format")
		assert.NotContains(t, err.Error(), "not found")
	}
	assert.Zero(t, ft.callCount())
}

func TestGitHub_GetTicket_ValidIDNeverReportsFormat(t *testing.T) {
	p, _ := newTestGitHub(t)

	_, err := p.GetTicket(context.Background(), "acme/missing#9")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NotContains(t, err.Error(), "Format should be")
}

func TestGitHub_GetTicket_RateLimited(t *testing.T) {
	p, ft := newTestGitHub(t)
	ft.handle("https://api.github.com/repos/acme/widgets/issues/1", func(*Request) (*Response, error) {
		resp := jsonResponse(http.StatusForbidden, `{"message":"API rate limit exceeded for user ID 1."}`)
		resp.Header.Set("Retry-After", "30")
		return resp, nil
	})

	_, err := p.GetTicket(context.Background(), "acme/widgets#1")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimit(err))

	de := apperrors.ToDomainError(err)
	assert.Equal(t, 30, de.Details["retry_after_seconds"])
}

func TestGitHub_GetTicket_Forbidden(t *testing.T) {
	p, ft := newTestGitHub(t)
	ft.respond("https://api.github.com/repos/acme/private/issues/1", http.StatusForbidden, `{"message":"Resource not accessible by integration"}`)

	_, err := p.GetTicket(context.Background(), "acme/private#1")
	assert.True(t, apperrors.IsPermission(err))
}

func TestGitHub_ValidateConfig(t *testing.T) {
	p, ft := newTestGitHub(t)
	assert.False(t, p.ValidateConfig(context.Background()), "GET /user not answered")

	ft.respond("https://api.github.com/user", http.StatusOK, `{"login":"octocat"}`)
	assert.True(t, p.ValidateConfig(context.Background()))

	empty := NewGitHubProvider(Config{}, Options{Transport: ft})
	assert.False(t, empty.ValidateConfig(context.Background()))
}

func TestGitHub_CustomAPIBase(t *testing.T) {
	ft := newFakeTransport()
	p := NewGitHubProvider(Config{Token: "t", APIBaseURL: "https://ghe.acme.io/api/v3/"}, Options{Transport: ft})
	ft.respond("https://ghe.acme.io/api/v3/repos/acme/widgets/issues/42", http.StatusOK, githubIssueJSON)

	_, err := p.GetTicket(context.Background(), "acme/widgets#42")
	require.NoError(t, err)
}
