package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

const jiraBase = "https://acme.atlassian.net"

const jiraIssueJSON = `{
	"id": "10001",
	"key": "TEST-123",
	"fields": {
		"summary": "Login fails for SSO users",
		"description": "Users cannot log in",
		"priority": {"name": "Highest"},
		"status": {"name": "In Progress"},
		"assignee": {"displayName": "Jane Doe", "accountId": "abc"},
		"labels": ["backend", "auth"],
		"created": "2024-01-15T10:30:00.000+0000",
		"updated": "2024-01-16T09:00:00.000+0000"
	}
}`

func newTestJira(t *testing.T, cfg Config) (*JiraProvider, *fakeTransport, *fakeClock) {
	t.Helper()
	ft := newFakeTransport()
	clock := newFakeClock()
	if cfg.BaseURL == "" {
		cfg.BaseURL = jiraBase
	}
	if cfg.Token == "" {
		cfg.Token = "jira-token"
	}
	return NewJiraProvider(cfg, Options{Transport: ft, Clock: clock.Now}), ft, clock
}

func TestJira_MapToRecentTicket(t *testing.T) {
	p, _, _ := newTestJira(t, Config{})

	ticket, err := p.MapToRecentTicket([]byte(jiraIssueJSON))
	require.NoError(t, err)

	assert.Equal(t, "10001", ticket.ID)
	assert.Equal(t, "TEST-123", ticket.Key)
	assert.Equal(t, "Login fails for SSO users", ticket.Summary)
	assert.Equal(t, "Users cannot log in", ticket.Description)
	assert.Equal(t, domain.PriorityUrgent, ticket.Priority)
	assert.Equal(t, "In Progress", ticket.Status)
	assert.True(t, classify.Default().IsInProgress(ticket.Status))
	require.NotNil(t, ticket.Assignee)
	assert.Equal(t, "Jane Doe", *ticket.Assignee)
	assert.Equal(t, []string{"backend", "auth"}, ticket.Labels)
	assert.Equal(t, domain.ProviderJira, ticket.Provider)
	require.NotNil(t, ticket.URL)
	assert.Equal(t, jiraBase+"/browse/TEST-123", *ticket.URL)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), ticket.Created.UTC())
	assert.Equal(t, time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC), ticket.Updated.UTC())
}

func TestJira_MapToRecentTicket_MissingFields(t *testing.T) {
	p, _, _ := newTestJira(t, Config{})

	ticket, err := p.MapToRecentTicket([]byte(`{"key":"OPS-7","fields":{}}`))
	require.NoError(t, err)

	assert.Equal(t, "OPS-7", ticket.ID, "key stands in for a missing id")
	assert.Equal(t, domain.PriorityMedium, ticket.Priority)
	assert.Equal(t, domain.DefaultStatus, ticket.Status)
	assert.Nil(t, ticket.Assignee)
	assert.NotNil(t, ticket.Labels)
	assert.Empty(t, ticket.Labels)
	assert.True(t, ticket.Created.IsZero())
}

func TestJira_MapToRecentTicket_NumericID(t *testing.T) {
	p, _, _ := newTestJira(t, Config{})

	ticket, err := p.MapToRecentTicket([]byte(`{"id":10002,"key":"TEST-124","fields":{"priority":{"name":"Lowest"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "10002", ticket.ID)
	assert.Equal(t, domain.PriorityLow, ticket.Priority)
}

func TestJira_MapToRecentTicket_ADFDescription(t *testing.T) {
	p, _, _ := newTestJira(t, Config{})

	raw := `{"key":"TEST-1","fields":{"description":{
		"type":"doc","version":1,"content":[
			{"type":"paragraph","content":[{"type":"text","text":"First line"},{"type":"hardBreak"},{"type":"text","text":"second"}]},
			{"type":"bulletList","content":[
				{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"item "},{"type":"mention","attrs":{"text":"@bob"}}]}]}
			]}
		]}}}`
	ticket, err := p.MapToRecentTicket([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "First line\nsecond\nitem @bob", ticket.Description)
}

func TestJira_MapToRecentTicket_RejectsNonObjects(t *testing.T) {
	p, _, _ := newTestJira(t, Config{})

	for _, raw := range []string{`[1,2]`, `null`, `"TEST-1"`, ``, `{"key":`} {
		_, err := p.MapToRecentTicket([]byte(raw))
		assert.Truef(t, apperrors.IsParsing(err), "payload %q: %v", raw, err)
	}
}

func TestJira_GetTicket(t *testing.T) {
	p, ft, _ := newTestJira(t, Config{})
	ft.respond(jiraBase+"/rest/api/3/issue/TEST-123", http.StatusOK, jiraIssueJSON)

	ticket, err := p.GetTicket(context.Background(), "TEST-123")
	require.NoError(t, err)
	assert.Equal(t, "TEST-123", ticket.Key)
	assert.Equal(t, "Bearer jira-token", ft.lastCall().Header.Get("Authorization"))
}

func TestJira_GetTicket_BasicAuthWithEmail(t *testing.T) {
	p, ft, _ := newTestJira(t, Config{Email: "me@acme.io", Token: "secret"})
	ft.respond(jiraBase+"/rest/api/3/issue/10001", http.StatusOK, jiraIssueJSON)

	_, err := p.GetTicket(context.Background(), "10001")
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("me@acme.io:secret"))
	assert.Equal(t, want, ft.lastCall().Header.Get("Authorization"))
}

func TestJira_GetTicket_InvalidID(t *testing.T) {
	p, ft, _ := newTestJira(t, Config{})

	for _, id := range []string{"", "test-123", "TEST123", "TEST-", "owner/repo#1"} {
		_, err := p.GetTicket(context.Background(), id)
		assert.Truef(t, apperrors.IsValidation(err), "id %q", id)
	}
	assert.Zero(t, ft.callCount(), "ids are validated before any request")
}

func TestJira_GetTicket_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, `{"errorMessages":["Issue does not exist"]}`, apperrors.IsNotFound},
		{"unauthorized", http.StatusUnauthorized, `{}`, apperrors.IsPermission},
		{"forbidden", http.StatusForbidden, `{}`, apperrors.IsPermission},
		{"throttled", http.StatusTooManyRequests, `{}`, apperrors.IsRateLimit},
		{"server error", http.StatusServiceUnavailable, ``, apperrors.IsNetwork},
		{"garbage body", http.StatusOK, `<html>`, apperrors.IsParsing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ft, _ := newTestJira(t, Config{})
			ft.respond(jiraBase+"/rest/api/3/issue/TEST-9", tt.status, tt.body)

			_, err := p.GetTicket(context.Background(), "TEST-9")
			require.Error(t, err)
			assert.Truef(t, tt.check(err), "unexpected error: %v", err)
			assert.Zero(t, p.CacheStats().Size, "failures are not cached")
		})
	}
}

func TestJira_Cache(t *testing.T) {
	p, ft, clock := newTestJira(t, Config{CacheTTL: time.Minute})
	ft.respond(jiraBase+"/rest/api/3/issue/TEST-123", http.StatusOK, jiraIssueJSON)
	ctx := context.Background()

	first, err := p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	first.Summary = "mutated by caller"

	second, err := p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	assert.Equal(t, 1, ft.callCount(), "second read is served from cache")
	assert.Equal(t, "Login fails for SSO users", second.Summary, "cached value is isolated from callers")

	stats := p.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, []string{"TEST-123"}, stats.Keys)

	clock.Advance(time.Minute + time.Second)
	_, err = p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	assert.Equal(t, 2, ft.callCount(), "expired entry is refetched")

	p.InvalidateCache("TEST-123")
	_, err = p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	assert.Equal(t, 3, ft.callCount())
}

func TestJira_ClearCache(t *testing.T) {
	p, ft, _ := newTestJira(t, Config{})
	ft.respond(jiraBase+"/rest/api/3/issue/TEST-123", http.StatusOK, jiraIssueJSON)
	ft.respond(jiraBase+"/rest/api/3/issue/10001", http.StatusOK, jiraIssueJSON)
	ctx := context.Background()

	_, err := p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	_, err = p.GetTicket(ctx, "10001")
	require.NoError(t, err)
	require.Equal(t, 2, p.CacheStats().Size)

	p.ClearCache()
	assert.Equal(t, 0, p.CacheStats().Size)
	assert.Empty(t, p.CacheStats().Keys)

	_, err = p.GetTicket(ctx, "TEST-123")
	require.NoError(t, err)
	assert.Equal(t, 3, ft.callCount(), "previous keys miss after a clear")
}

func TestJira_ObserverSeesHitsAndMisses(t *testing.T) {
	ft := newFakeTransport()
	obs := &countingObserver{}
	p := NewJiraProvider(Config{BaseURL: jiraBase, Token: "t"}, Options{Transport: ft, Observer: obs})
	ft.respond(jiraBase+"/rest/api/3/issue/TEST-123", http.StatusOK, jiraIssueJSON)

	for i := 0; i < 3; i++ {
		_, err := p.GetTicket(context.Background(), "TEST-123")
		require.NoError(t, err)
	}
	_, err := p.GetTicket(context.Background(), "TEST-404")
	require.Error(t, err)

	assert.Equal(t, 2, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, 1, obs.errs)
}

func TestJira_ValidateConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		p := NewJiraProvider(Config{BaseURL: jiraBase}, Options{Transport: newFakeTransport()})
		assert.False(t, p.ValidateConfig(ctx))
	})

	t.Run("relative base url", func(t *testing.T) {
		p := NewJiraProvider(Config{BaseURL: "acme.atlassian.net", Token: "t"}, Options{Transport: newFakeTransport()})
		assert.False(t, p.ValidateConfig(ctx))
	})

	t.Run("accepted", func(t *testing.T) {
		p, ft, _ := newTestJira(t, Config{})
		ft.respond(jiraBase+"/rest/api/3/myself", http.StatusOK, `{"accountId":"abc"}`)
		assert.True(t, p.ValidateConfig(ctx))
	})

	t.Run("rejected", func(t *testing.T) {
		p, ft, _ := newTestJira(t, Config{})
		ft.respond(jiraBase+"/rest/api/3/myself", http.StatusUnauthorized, `{}`)
		assert.False(t, p.ValidateConfig(ctx))
	})
}
