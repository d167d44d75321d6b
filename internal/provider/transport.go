package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 10 << 20

// Request is a provider API call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the buffered result of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs provider HTTP calls. Failures to reach the provider are
// returned as NetworkError; any HTTP status is returned as a Response.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Quota is an optional shared request budget consulted before every call.
type Quota interface {
	Allow(ctx context.Context, provider string) (bool, error)
}

// TransportConfig configures HTTPTransport.
type TransportConfig struct {
	Provider          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Quota             Quota
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// HTTPTransport is the net/http Transport with a local token bucket limiter.
type HTTPTransport struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	quota    Quota
	logger   *zap.Logger
}

// NewHTTPTransport builds a rate limited transport for one provider.
func NewHTTPTransport(cfg TransportConfig) *HTTPTransport {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		provider: cfg.Provider,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		quota:    cfg.Quota,
		logger:   logger,
	}
}

// Do waits for the limiter and quota, then performs the request.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, t.wrapErr(err)
	}
	if t.quota != nil {
		allowed, err := t.quota.Allow(ctx, t.provider)
		if err != nil {
			// A broken quota store must not take the providers down with it.
			t.logger.Warn("quota check failed", zap.String("provider", t.provider), zap.Error(err))
		} else if !allowed {
			return nil, apperrors.NewRateLimitError(t.provider, map[string]any{"source": "quota"})
		}
	}

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid %s request url", t.provider), map[string]any{"url": req.URL})
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.wrapErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, t.wrapErr(err)
	}
	t.logger.Debug("provider request",
		zap.String("provider", t.provider),
		zap.String("method", method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (t *HTTPTransport) wrapErr(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s request timed out", t.provider), err)
	}
	return apperrors.NewNetworkError(fmt.Sprintf("%s request failed", t.provider), err)
}
