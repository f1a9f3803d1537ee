package presto

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dan-strohschein/presto-go-client/internal/typesig"
	"github.com/dan-strohschein/presto-go-client/internal/valuefix"
)

// InvalidTypeSignatureError wraps a type-signature parse failure. It
// indicates caller bug or server/client version skew (spec.md §7).
type InvalidTypeSignatureError = typesig.InvalidSignatureError

// ValueCoercionError reports a JSON value incompatible with its declared
// type signature (spec.md §7).
type ValueCoercionError = valuefix.CoercionError

// ProtocolError is raised when the HTTP exchange returns a status the
// state machine refuses to retry (non-200/503 during paging, non-200
// during submit), or a 200 response whose body failed to decode. Raising
// it sets the client's gone flag.
type ProtocolError struct {
	Task       string // "starting query" | "fetching next"
	StatusCode int
	Reason     string
	Body       []byte
	Cause      error // set when the body failed to decode
	Timestamp  time.Time
	StackTrace []string
}

func newProtocolError(task string, status int, reason string, body []byte, cause error, debug bool) *ProtocolError {
	e := &ProtocolError{
		Task:       task,
		StatusCode: status,
		Reason:     reason,
		Body:       body,
		Cause:      cause,
		Timestamp:  time.Now(),
	}
	if debug {
		e.StackTrace = captureStack()
	}
	return e
}

func (e *ProtocolError) Error() string {
	return e.FormatError(false)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// FormatError renders the error: a concise "CODE: message" line in
// production, or the full field dump (including a stack trace, if one was
// captured at construction time) in debug mode.
func (e *ProtocolError) FormatError(debug bool) string {
	if !debug {
		if e.Cause != nil {
			return fmt.Sprintf("PROTOCOL_ERROR: %s failed with HTTP %d %s (body decode: %v)", e.Task, e.StatusCode, e.Reason, e.Cause)
		}
		return fmt.Sprintf("PROTOCOL_ERROR: %s failed with HTTP %d %s", e.Task, e.StatusCode, e.Reason)
	}

	msg := fmt.Sprintf("PROTOCOL_ERROR task=%q status=%d reason=%q cause=%v timestamp=%s",
		e.Task, e.StatusCode, e.Reason, e.Cause, e.Timestamp.Format(time.RFC3339Nano))
	if len(e.Body) > 0 {
		msg += fmt.Sprintf(" body=%q", truncate(e.Body, 512))
	}
	for _, frame := range e.StackTrace {
		msg += "\n\t" + frame
	}
	return msg
}

// TransportError is raised when a transport-level I/O or protocol
// exception persists beyond the retry deadline, or the client is closed
// mid-retry. Raising it sets the client's gone flag. It carries the last
// transient cause observed before the deadline elapsed.
type TransportError struct {
	Cause      error
	Timestamp  time.Time
	StackTrace []string
}

func newTransportError(cause error, debug bool) *TransportError {
	e := &TransportError{Cause: cause, Timestamp: time.Now()}
	if debug {
		e.StackTrace = captureStack()
	}
	return e
}

func (e *TransportError) Error() string { return e.FormatError(false) }

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) FormatError(debug bool) string {
	if !debug {
		return fmt.Sprintf("TRANSPORT_ERROR: %v", e.Cause)
	}
	msg := fmt.Sprintf("TRANSPORT_ERROR cause=%v timestamp=%s", e.Cause, e.Timestamp.Format(time.RFC3339Nano))
	for _, frame := range e.StackTrace {
		msg += "\n\t" + frame
	}
	return msg
}

// InterruptedError indicates the paging thread's backoff sleep was
// interrupted via context cancellation; the client is best-effort closed
// before this is returned.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("INTERRUPTED: paging cancelled: %v", e.Cause)
}

func (e *InterruptedError) Unwrap() error { return e.Cause }

// IllegalStateError indicates API misuse: Current() called when not
// valid, FinalResults() called while still valid, or CancelLeafStage()
// called after Close().
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("ILLEGAL_STATE: %s: %s", e.Op, e.Reason)
}

func captureStack() []string {
	var frames []string
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	callersFrames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callersFrames.Next()
		frames = append(frames, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return frames
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
