package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ticketlens/ticket-aggregator/internal/config"
)

// NewLogger creates a structured zap.Logger configured via env settings. When
// a Sentry DSN is configured, error-level entries are also sent to Sentry.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: cfg.Env != "production",
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			LevelKey:   "level",
			TimeKey:    "ts",
			NameKey:    "logger",
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(l.String())
			},
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
		}); err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, NewSentryCore(zapcore.ErrorLevel, captureEvent))
		}))
	}
	return logger, nil
}

// FlushSentry waits for buffered Sentry events. It is a no-op without a client.
func FlushSentry(timeout time.Duration) {
	if sentry.CurrentHub().Client() != nil {
		sentry.Flush(timeout)
	}
}

func captureEvent(event *sentry.Event) {
	sentry.CaptureEvent(event)
}

// sentryCore forwards entries at or above its level to a capture function.
type sentryCore struct {
	zapcore.LevelEnabler
	fields  []zapcore.Field
	capture func(*sentry.Event)
}

// NewSentryCore builds a zapcore.Core that turns entries into Sentry events.
func NewSentryCore(level zapcore.LevelEnabler, capture func(*sentry.Event)) zapcore.Core {
	return &sentryCore{LevelEnabler: level, capture: capture}
}

func (c *sentryCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &sentryCore{LevelEnabler: c.LevelEnabler, fields: merged, capture: c.capture}
}

func (c *sentryCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *sentryCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	event := sentry.NewEvent()
	event.Level = sentryLevel(entry.Level)
	event.Message = entry.Message
	event.Timestamp = entry.Time
	event.Logger = entry.LoggerName
	for k, v := range enc.Fields {
		event.Extra[k] = v
	}
	if entry.Caller.Defined {
		event.Exception = []sentry.Exception{{
			Type:  "LogError",
			Value: entry.Message,
			Stacktrace: &sentry.Stacktrace{
				Frames: []sentry.Frame{{
					Filename: entry.Caller.File,
					Function: entry.Caller.Function,
					Lineno:   entry.Caller.Line,
				}},
			},
		}}
	}
	c.capture(event)
	return nil
}

func (c *sentryCore) Sync() error { return nil }

func sentryLevel(level zapcore.Level) sentry.Level {
	switch {
	case level >= zapcore.FatalLevel:
		return sentry.LevelFatal
	case level >= zapcore.ErrorLevel:
		return sentry.LevelError
	case level >= zapcore.WarnLevel:
		return sentry.LevelWarning
	case level >= zapcore.InfoLevel:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}
