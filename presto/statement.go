package presto

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// statementPath is the coordinator endpoint the initial POST is sent to
// (spec.md §6).
const statementPath = "/v1/statement"

// retryBaseDelay is the per-attempt backoff unit: wait (attempt-1)*retryBaseDelay
// before the attempt-th request, capped by the remaining deadline
// (spec.md §4.4).
const retryBaseDelay = 100 * time.Millisecond

// StatementClient is the statement-client state machine (spec.md §4.4):
// it posts the initial query, advances through nextUri pages with
// retry/backoff, harvests session mutations from response headers, and
// supports partial and full cancellation. It is safe for one producer
// goroutine to call Advance while other goroutines observe Current,
// IsValid, and the session-mutation snapshots (spec.md §5); Advance
// itself must not be called concurrently with itself.
type StatementClient struct {
	session ClientSession
	opts    ClientOptions
	port    HTTPPort
	logger  Logger

	currentResults atomic.Pointer[QueryResults]

	setSessionProperties    sync.Map // string -> string
	resetSessionProperties  sync.Map // string -> struct{}
	addedPreparedStatements sync.Map // string -> string
	deallocatedPrepared     sync.Map // string -> struct{}

	startedTransactionID atomic.Pointer[string]
	clearTransactionID   atomic.Bool

	valid  atomic.Bool
	closed atomic.Bool
	gone   atomic.Bool
}

// NewStatementClient submits query to session.Server and returns a
// StatementClient positioned on the first page (spec.md §4.4
// Construction). The returned client is usable (IsValid() == true)
// immediately on success.
func NewStatementClient(ctx context.Context, port HTTPPort, session ClientSession, opts ClientOptions, query string) (*StatementClient, error) {
	logger := opts.logger().WithFields(String("component", "statement-client"))

	c := &StatementClient{
		session: session,
		opts:    opts,
		port:    port,
		logger:  logger,
	}

	reqID := uuid.New().String()
	logger.Debug("submitting query", String("requestId", reqID))

	u := *session.Server
	u.Path = joinPath(u.Path, statementPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader([]byte(query)))
	if err != nil {
		return nil, err
	}
	req.Header = buildRequestHeaders(session, opts.userAgent())
	req.Header.Set("Content-Type", "application/octet-stream")

	raw, err := port.Execute(ctx, req)
	if err != nil {
		return nil, newTransportError(err, opts.DebugMode)
	}

	if raw.StatusCode != http.StatusOK {
		return nil, newProtocolError("starting query", raw.StatusCode, raw.StatusMessage, raw.Body, nil, opts.DebugMode)
	}

	env := decodeEnvelope(raw, decodeQueryResults)
	if !env.hasValue() {
		return nil, newProtocolError("starting query", raw.StatusCode, raw.StatusMessage, raw.Body, env.decodeErr, opts.DebugMode)
	}
	qr := env.body

	if err := c.processResponse(raw.Headers, qr); err != nil {
		return nil, newProtocolError("starting query", raw.StatusCode, raw.StatusMessage, raw.Body, err, opts.DebugMode)
	}
	c.valid.Store(true)

	logger.Info("query started", String("queryId", qr.ID), String("requestId", reqID))
	return c, nil
}

// Advance pulls the next page, per spec.md §4.4. It returns false with a
// nil error exactly when the prior page's nextUri is nil or the client
// has been closed — in both cases IsValid() becomes false. It must not be
// called concurrently with itself.
func (c *StatementClient) Advance(ctx context.Context) (bool, error) {
	if c.closed.Load() {
		c.valid.Store(false)
		return false, nil
	}

	current := c.currentResults.Load()
	if current == nil || current.NextURI == nil {
		c.valid.Store(false)
		return false, nil
	}

	deadline := time.Now().Add(c.session.ClientRequestTimeout)
	var lastErr error

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if c.closed.Load() {
				c.gone.Store(true)
				return false, newTransportError(lastErr, c.opts.DebugMode)
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				c.gone.Store(true)
				return false, newTransportError(lastErr, c.opts.DebugMode)
			}

			wait := time.Duration(attempt-1) * retryBaseDelay
			if wait > remaining {
				wait = remaining
			}
			if c.opts.MaxRetryBackoff > 0 && wait > c.opts.MaxRetryBackoff {
				wait = c.opts.MaxRetryBackoff
			}
			if c.opts.OnRetry != nil {
				c.opts.OnRetry(attempt, lastErr, wait)
			}
			c.logger.Debug("retrying page fetch", Int("attempt", attempt), Duration("wait", wait), Err("cause", lastErr))

			select {
			case <-ctx.Done():
				c.Close()
				return false, &InterruptedError{Cause: ctx.Err()}
			case <-time.After(wait):
			}
		}

		if c.closed.Load() {
			c.gone.Store(true)
			return false, newTransportError(lastErr, c.opts.DebugMode)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.NextURI.String(), nil)
		if err != nil {
			return false, err
		}
		req.Header = buildIdentityHeaders(c.session, c.opts.userAgent())

		raw, err := c.port.Execute(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case raw.StatusCode == http.StatusServiceUnavailable:
			lastErr = fmt.Errorf("503 Service Unavailable fetching %s", current.NextURI)
			continue

		case raw.StatusCode == http.StatusOK:
			env := decodeEnvelope(raw, decodeQueryResults)
			if !env.hasValue() {
				c.gone.Store(true)
				return false, newProtocolError("fetching next", raw.StatusCode, raw.StatusMessage, raw.Body, env.decodeErr, c.opts.DebugMode)
			}
			if err := c.processResponse(raw.Headers, env.body); err != nil {
				c.gone.Store(true)
				return false, newProtocolError("fetching next", raw.StatusCode, raw.StatusMessage, raw.Body, err, c.opts.DebugMode)
			}
			return true, nil

		default:
			c.gone.Store(true)
			return false, newProtocolError("fetching next", raw.StatusCode, raw.StatusMessage, raw.Body, nil, c.opts.DebugMode)
		}
	}
}

// AdvanceAll pulls pages until Advance returns false or an error, for
// callers that only care about the final page.
func (c *StatementClient) AdvanceAll(ctx context.Context) error {
	for {
		more, err := c.Advance(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// processResponse applies session mutations from headers, then publishes
// qr as the current page. The mutation writes happen-before the
// currentResults store (an atomic release), satisfying spec.md §5's
// ordering guarantee: any reader that observes qr via Current() also
// observes every mutation that arrived with it. A malformed
// prepared-statement header aborts before any mutation or page is
// published, leaving the client's prior state untouched.
func (c *StatementClient) processResponse(headers http.Header, qr *QueryResults) error {
	m, err := parseResponseHeaders(headers)
	if err != nil {
		return err
	}

	for k, v := range m.setSessionProperties {
		c.setSessionProperties.Store(k, v)
	}
	for k := range m.resetSessionProperties {
		c.resetSessionProperties.Store(k, struct{}{})
	}
	for k, v := range m.addedPreparedStatements {
		c.addedPreparedStatements.Store(k, v)
	}
	for k := range m.deallocatedPreparedStmts {
		c.deallocatedPrepared.Store(k, struct{}{})
	}
	if m.hasStartedTransactionID {
		id := m.startedTransactionID
		c.startedTransactionID.Store(&id)
	}
	if m.clearTransactionID {
		c.clearTransactionID.Store(true)
	}

	c.currentResults.Store(qr)
	return nil
}

// IsValid reports whether the client can still make progress: it has
// completed construction, has not gone, and has not been closed.
func (c *StatementClient) IsValid() bool {
	return c.valid.Load() && !c.gone.Load() && !c.closed.Load()
}

// IsGone reports whether the client has observed an unrecoverable
// failure.
func (c *StatementClient) IsGone() bool {
	return c.gone.Load()
}

// IsClosed reports whether Close has been called.
func (c *StatementClient) IsClosed() bool {
	return c.closed.Load()
}

// IsFailed reports whether the current page carries a query error.
func (c *StatementClient) IsFailed() bool {
	qr := c.currentResults.Load()
	return qr != nil && qr.Error != nil
}

// Current returns the latest page. It is a programming error to call this
// when not IsValid().
func (c *StatementClient) Current() (*QueryResults, error) {
	if !c.IsValid() {
		return nil, &IllegalStateError{Op: "Current", Reason: "client is not valid"}
	}
	return c.currentResults.Load(), nil
}

// FinalResults returns the last page observed. It is a programming error
// to call this while still IsValid() and not IsFailed().
func (c *StatementClient) FinalResults() (*QueryResults, error) {
	if c.IsValid() && !c.IsFailed() {
		return nil, &IllegalStateError{Op: "FinalResults", Reason: "client is still valid and has not failed"}
	}
	return c.currentResults.Load(), nil
}

// QueryID returns the server-assigned id of the current page, or "" if no
// page has landed yet. Unlike Current, it never returns an error.
func (c *StatementClient) QueryID() string {
	if qr := c.currentResults.Load(); qr != nil {
		return qr.ID
	}
	return ""
}

// InfoURI returns the current page's informational URI, or nil if no page
// has landed yet.
func (c *StatementClient) InfoURI() *url.URL {
	if qr := c.currentResults.Load(); qr != nil {
		return qr.InfoURI
	}
	return nil
}

// SetSessionProperties returns a snapshot of session properties the
// server has asked the caller to set.
func (c *StatementClient) SetSessionProperties() map[string]string {
	out := map[string]string{}
	c.setSessionProperties.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(string)
		return true
	})
	return out
}

// ResetSessionProperties returns a snapshot of session properties the
// server has asked the caller to clear.
func (c *StatementClient) ResetSessionProperties() map[string]struct{} {
	out := map[string]struct{}{}
	c.resetSessionProperties.Range(func(k, _ interface{}) bool {
		out[k.(string)] = struct{}{}
		return true
	})
	return out
}

// AddedPreparedStatements returns a snapshot of prepared statements the
// server has registered.
func (c *StatementClient) AddedPreparedStatements() map[string]string {
	out := map[string]string{}
	c.addedPreparedStatements.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(string)
		return true
	})
	return out
}

// DeallocatedPreparedStatements returns a snapshot of prepared statement
// names the server has asked the caller to forget.
func (c *StatementClient) DeallocatedPreparedStatements() map[string]struct{} {
	out := map[string]struct{}{}
	c.deallocatedPrepared.Range(func(k, _ interface{}) bool {
		out[k.(string)] = struct{}{}
		return true
	})
	return out
}

// StartedTransactionID returns the transaction id the server started, and
// whether one has been started.
func (c *StatementClient) StartedTransactionID() (string, bool) {
	if p := c.startedTransactionID.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// IsClearTransactionID reports whether the server asked the caller to
// clear its transaction id.
func (c *StatementClient) IsClearTransactionID() bool {
	return c.clearTransactionID.Load()
}

// CancelLeafStage requests server-side cancellation of the current page's
// leaf stage (spec.md §4.4). It returns false without error if the
// current page has no partialCancelUri, or if the wait times out. It is a
// programming error to call this after Close().
func (c *StatementClient) CancelLeafStage(ctx context.Context, timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, &IllegalStateError{Op: "CancelLeafStage", Reason: "client is closed"}
	}

	qr := c.currentResults.Load()
	if qr == nil || qr.PartialCancelURI == nil {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, qr.PartialCancelURI.String(), nil)
	if err != nil {
		return false, err
	}
	req.Header = buildIdentityHeaders(c.session, c.opts.userAgent())

	handle, err := c.port.ExecuteAsync(ctx, req)
	if err != nil {
		return false, newTransportError(err, c.opts.DebugMode)
	}

	resp, err, completed := handle.Await(timeout)
	if !completed {
		handle.Cancel()
		return false, nil
	}
	if err != nil {
		return false, newTransportError(err, c.opts.DebugMode)
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Close is idempotent: only the first call fires the best-effort cleanup
// DELETE to the current page's nextUri (if any); later calls are no-ops.
func (c *StatementClient) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	qr := c.currentResults.Load()
	if qr == nil || qr.NextURI == nil {
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, qr.NextURI.String(), nil)
	if err != nil {
		return
	}
	req.Header = buildIdentityHeaders(c.session, c.opts.userAgent())

	if _, err := c.port.ExecuteAsync(context.Background(), req); err != nil {
		c.logger.Warn("cleanup DELETE failed to dispatch", Err("error", err))
	}
}

func joinPath(base, suffix string) string {
	switch {
	case base == "" || base == "/":
		return suffix
	case strings.HasSuffix(base, "/"):
		return base + suffix[1:]
	default:
		return base + suffix
	}
}
