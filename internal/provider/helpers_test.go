package provider

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// fakeTransport answers requests from a route table keyed by URL without query.
type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]func(*Request) (*Response, error)
	calls  []*Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]func(*Request) (*Response, error){}}
}

func (f *fakeTransport) handle(url string, fn func(*Request) (*Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = fn
}

func (f *fakeTransport) respond(url string, status int, body string) {
	f.handle(url, func(*Request) (*Response, error) {
		return jsonResponse(status, body), nil
	})
}

func (f *fakeTransport) Do(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn, ok := f.routes[req.URL]
	f.mu.Unlock()
	if !ok {
		return jsonResponse(http.StatusNotFound, `{"message":"Not Found"}`), nil
	}
	return fn(req)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) lastCall() *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func jsonResponse(status int, body string) *Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &Response{StatusCode: status, Header: header, Body: []byte(body)}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
	errs   int
}

func (o *countingObserver) CacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *countingObserver) CacheMiss(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}

func (o *countingObserver) Fetched(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errs++
	}
}
