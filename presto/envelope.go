package presto

import "net/http"

// responseEnvelope is a typed view over one HTTP response (spec.md §4.3):
// status, headers (case-insensitive via http.Header, which canonicalizes
// names on Set/Get/Values), the decoded body of the expected type (when
// decoding succeeded), and the raw bytes for error reporting otherwise.
type responseEnvelope[T any] struct {
	statusCode    int
	statusMessage string
	headers       http.Header
	body          T
	decodeErr     error
	rawBody       []byte
}

// hasValue reports whether the body decoded successfully.
func (r responseEnvelope[T]) hasValue() bool {
	return r.decodeErr == nil
}

// decodeEnvelope wraps raw in a responseEnvelope[T], running decode over
// the body (also when it is empty). A decode failure is recorded on decodeErr rather
// than returned, so callers can inspect the status code and raw body
// together with why decoding failed (spec.md §4.3).
func decodeEnvelope[T any](raw RawResponse, decode func([]byte) (T, error)) responseEnvelope[T] {
	env := responseEnvelope[T]{
		statusCode:    raw.StatusCode,
		statusMessage: raw.StatusMessage,
		headers:       raw.Headers,
		rawBody:       raw.Body,
	}
	v, err := decode(raw.Body)
	if err != nil {
		env.decodeErr = err
		return env
	}
	env.body = v
	return env
}
