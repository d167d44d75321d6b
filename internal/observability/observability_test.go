package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ticketlens/ticket-aggregator/internal/config"
)

func TestMetrics_ProviderCounters(t *testing.T) {
	m := NewMetrics()
	m.CacheMiss("github")
	m.Fetched("github", 20*time.Millisecond, nil)
	m.CacheHit("github")
	m.CacheMiss("jira")
	m.Fetched("jira", 5*time.Millisecond, errors.New("boom"))

	snap := m.Snapshot()
	assert.Equal(t, []string{"github", "jira"}, snap.ProviderNames())
	assert.Equal(t, ProviderCounters{Fetches: 1, CacheHits: 1, CacheMisses: 1, FetchDuration: 20 * time.Millisecond}, snap.Providers["github"])
	assert.Equal(t, int64(1), snap.Providers["jira"].FetchErrors)
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets/:provider", "GET", 200, time.Millisecond)
	snap := m.Snapshot()
	m.RecordRequest("/tickets/:provider", "GET", 200, time.Millisecond)

	assert.Equal(t, int64(1), snap.Requests["/tickets/:provider|GET|200"])
	assert.Equal(t, int64(2), m.Snapshot().Requests["/tickets/:provider|GET|200"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.CacheHit("slack")
	assert.Empty(t, m.Snapshot().Providers)
}

func TestSentryCore_ForwardsErrorsOnly(t *testing.T) {
	var events []*sentry.Event
	core := NewSentryCore(zapcore.ErrorLevel, func(e *sentry.Event) { events = append(events, e) })
	logger := zap.New(core).With(zap.String("provider", "jira"))

	logger.Info("fine")
	logger.Warn("meh")
	logger.Error("fetch failed", zap.String("key", "TEST-1"))

	require.Len(t, events, 1)
	assert.Equal(t, "fetch failed", events[0].Message)
	assert.Equal(t, sentry.LevelError, events[0].Level)
	assert.Equal(t, "jira", events[0].Extra["provider"])
	assert.Equal(t, "TEST-1", events[0].Extra["key"])
}

func TestNewLogger_WithoutSentry(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
