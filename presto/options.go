package presto

import (
	"net/http"
	"time"
)

// ClientOptions configures ambient concerns the ClientSession doesn't
// carry: the HTTP client/port to use, logging, and retry observability.
type ClientOptions struct {
	// HTTPClient is not read by NewStatementClient, which sends every
	// request through the HTTPPort it is given; NewHTTPPort takes its
	// *http.Client as a direct argument.
	HTTPClient *http.Client

	// UserAgent overrides the "StatementClient/<version>" default sent
	// with every request.
	UserAgent string

	// Logger is the logger implementation to use. If nil, a default
	// logger at LogLevel is used.
	Logger Logger

	// LogLevel sets the minimum level for the default logger. Ignored
	// when Logger is set. Default: "INFO".
	LogLevel string

	// DebugMode enables verbose error formatting (stack traces, full
	// field dumps) on errors returned by the statement client.
	DebugMode bool

	// MaxRetryBackoff caps the linear per-attempt backoff ((attempt-1) *
	// 100ms) computed by the retry loop (spec.md §4.4: min(remaining, i*100ms)).
	// Default: no additional cap beyond the request deadline.
	MaxRetryBackoff time.Duration

	// OnRetry, if set, is called before each retry sleep during paging,
	// mirroring the teacher's connection lifecycle callbacks.
	OnRetry func(attempt int, cause error, wait time.Duration)
}

// DefaultOptions returns the zero-value-safe defaults: INFO logging to
// stdout and no retry observability hook.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		LogLevel: "INFO",
	}
}

func (o ClientOptions) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	level := o.LogLevel
	if level == "" {
		level = "INFO"
	}
	return NewLogger(level, nil)
}

func (o ClientOptions) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return "StatementClient/" + Version
}

// Version is the client library version reported in the User-Agent header.
const Version = "1.0.0"
