// Package prestotest provides a scriptable HTTPPort test double, grounded
// on the teacher's transport/mock fluent configuration style, for
// exercising the statement client's paging, retry, and cancellation logic
// without a real coordinator.
package prestotest

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/presto-go-client/presto"
)

// Script is one scripted response for a single Execute/ExecuteAsync call.
// StatusCode 0 and a non-nil Err means Execute returns a transport error
// instead of a response.
type Script struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Err        error
	Delay      time.Duration
}

// FakePort is an HTTPPort test double. Responses are scripted per call, in
// order: each Execute/ExecuteAsync call consumes the next unconsumed
// Script for the matching HTTP method, falling back to the last Script
// registered for that method if the per-call queue is exhausted.
//
// Example:
//
//	port := prestotest.NewFakePort()
//	port.WithResponses(http.MethodGet, firstPageScript, secondPageScript)
type FakePort struct {
	mu      sync.Mutex
	queues  map[string][]Script
	history []*http.Request

	executeCalls atomic.Int32
	asyncCalls   atomic.Int32
}

// NewFakePort creates an empty FakePort; register responses with
// WithResponses before use.
func NewFakePort() *FakePort {
	return &FakePort{queues: make(map[string][]Script)}
}

// WithResponses appends scripts to the queue consumed by requests with the
// given HTTP method. Returns the receiver for chaining.
func (p *FakePort) WithResponses(method string, scripts ...Script) *FakePort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queues[method] = append(p.queues[method], scripts...)
	return p
}

// Execute implements presto.HTTPPort.
func (p *FakePort) Execute(ctx context.Context, req *http.Request) (presto.RawResponse, error) {
	p.executeCalls.Add(1)
	s := p.next(req)

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return presto.RawResponse{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	if s.Err != nil {
		return presto.RawResponse{}, s.Err
	}

	return presto.RawResponse{
		StatusCode:    s.StatusCode,
		StatusMessage: s.Status,
		Headers:       s.Headers,
		Body:          s.Body,
	}, nil
}

// ExecuteAsync implements presto.HTTPPort. It mirrors the real
// httpClientPort.ExecuteAsync: the call runs on its own goroutine against a
// cancelable child context, so Await can genuinely race a timeout instead of
// always observing a completed call.
func (p *FakePort) ExecuteAsync(ctx context.Context, req *http.Request) (presto.AsyncHandle, error) {
	p.asyncCalls.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	h := &fakeHandle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		resp, err := p.Execute(ctx, req)
		h.mu.Lock()
		h.resp, h.err = resp, err
		h.mu.Unlock()
	}()

	return h, nil
}

func (p *FakePort) next(req *http.Request) Script {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = append(p.history, req)

	q := p.queues[req.Method]
	if len(q) == 0 {
		return Script{StatusCode: http.StatusOK}
	}
	if len(q) == 1 {
		return q[0]
	}
	s := q[0]
	p.queues[req.Method] = q[1:]
	return s
}

// ExecuteCallCount returns how many times Execute was invoked.
func (p *FakePort) ExecuteCallCount() int { return int(p.executeCalls.Load()) }

// AsyncCallCount returns how many times ExecuteAsync was invoked.
func (p *FakePort) AsyncCallCount() int { return int(p.asyncCalls.Load()) }

// History returns every request observed, in order.
func (p *FakePort) History() []*http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*http.Request, len(p.history))
	copy(out, p.history)
	return out
}

type fakeHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	resp presto.RawResponse
	err  error
}

func (h *fakeHandle) Await(timeout time.Duration) (presto.RawResponse, error, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.resp, h.err, true
	case <-time.After(timeout):
		return presto.RawResponse{}, nil, false
	}
}

func (h *fakeHandle) Cancel() {
	h.cancel()
}
