package presto

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request headers (spec.md §6).
const (
	headerUser      = "X-Presto-User"
	headerSource    = "X-Presto-Source"
	headerCatalog   = "X-Presto-Catalog"
	headerSchema    = "X-Presto-Schema"
	headerTimeZone  = "X-Presto-Time-Zone"
	headerLanguage  = "X-Presto-Language"
	headerSession   = "X-Presto-Session"
	headerPrepared  = "X-Presto-Prepared-Statement"
	headerTxID      = "X-Presto-Transaction-Id"
	headerUserAgent = "User-Agent"
)

// Response headers (spec.md §6) carrying session mutations.
const (
	headerSetSession         = "X-Presto-Set-Session"
	headerClearSession       = "X-Presto-Clear-Session"
	headerAddedPrepare       = "X-Presto-Added-Prepare"
	headerDeallocatedPrepare = "X-Presto-Deallocated-Prepare"
	headerStartedTxID        = "X-Presto-Started-Transaction-Id"
	headerClearTxID          = "X-Presto-Clear-Transaction-Id"
)

// buildRequestHeaders composes the full outbound headers for the initial
// POST, per spec.md §4.4/§6. Absent optional session fields are omitted.
// Page-fetch GETs use buildIdentityHeaders instead.
func buildRequestHeaders(session ClientSession, userAgent string) http.Header {
	h := http.Header{}
	h.Set(headerUser, session.User)
	h.Set(headerUserAgent, userAgent)
	h.Set(headerTimeZone, session.TimeZone)
	h.Set(headerLanguage, session.Language)
	h.Set(headerTxID, session.transactionIDOrNone())

	if session.Source != "" {
		h.Set(headerSource, session.Source)
	}
	if session.Catalog != "" {
		h.Set(headerCatalog, session.Catalog)
	}
	if session.Schema != "" {
		h.Set(headerSchema, session.Schema)
	}

	for k, v := range session.Properties {
		h.Add(headerSession, k+"="+v)
	}
	for k, v := range session.PreparedStatements {
		h.Add(headerPrepared, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}

	return h
}

// buildIdentityHeaders composes the minimal "who is asking" headers used
// for page-fetch GETs and cancel/close DELETEs (spec.md §4.4): just the
// user identity and client version, none of the full session-setup
// headers the initial POST carries.
func buildIdentityHeaders(session ClientSession, userAgent string) http.Header {
	h := http.Header{}
	h.Set(headerUser, session.User)
	h.Set(headerUserAgent, userAgent)
	return h
}

// sessionMutations is the set of session-state changes harvested from one
// response's headers, applied atomically in processResponse.
type sessionMutations struct {
	setSessionProperties     map[string]string
	resetSessionProperties   map[string]struct{}
	addedPreparedStatements  map[string]string
	deallocatedPreparedStmts map[string]struct{}
	startedTransactionID     string
	hasStartedTransactionID  bool
	clearTransactionID       bool
}

// parseResponseHeaders extracts session mutations from a response's
// headers, per spec.md §4.4's processResponse rules. A set-session entry
// missing its "=" separator is silently dropped (spec.md §9 Open
// Question). A prepared-statement entry that fails to URL-decode is NOT
// silently dropped: spec.md §9 treats that as a programming error on the
// server's part, so it is returned as an error for the caller to surface
// as a ProtocolError.
func parseResponseHeaders(h http.Header) (sessionMutations, error) {
	m := sessionMutations{
		setSessionProperties:     map[string]string{},
		resetSessionProperties:   map[string]struct{}{},
		addedPreparedStatements:  map[string]string{},
		deallocatedPreparedStmts: map[string]struct{}{},
	}

	for _, v := range h.Values(headerSetSession) {
		k, val, ok := splitOnce(v, "=")
		if !ok {
			continue
		}
		m.setSessionProperties[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}

	for _, v := range h.Values(headerClearSession) {
		m.resetSessionProperties[strings.TrimSpace(v)] = struct{}{}
	}

	for _, v := range h.Values(headerAddedPrepare) {
		k, val, ok := splitOnce(v, "=")
		if !ok {
			continue
		}
		decodedKey, err := url.QueryUnescape(k)
		if err != nil {
			return sessionMutations{}, fmt.Errorf("%s: invalid URL-encoded prepared statement name %q: %w", headerAddedPrepare, k, err)
		}
		decodedVal, err := url.QueryUnescape(val)
		if err != nil {
			return sessionMutations{}, fmt.Errorf("%s: invalid URL-encoded prepared statement body for %q: %w", headerAddedPrepare, decodedKey, err)
		}
		m.addedPreparedStatements[decodedKey] = decodedVal
	}

	for _, v := range h.Values(headerDeallocatedPrepare) {
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			return sessionMutations{}, fmt.Errorf("%s: invalid URL-encoded prepared statement name %q: %w", headerDeallocatedPrepare, v, err)
		}
		m.deallocatedPreparedStmts[decoded] = struct{}{}
	}

	if v := h.Get(headerStartedTxID); v != "" {
		m.startedTransactionID = v
		m.hasStartedTransactionID = true
	}

	if v := h.Get(headerClearTxID); v != "" {
		m.clearTransactionID = true
	}

	return m, nil
}

// splitOnce splits s on the first occurrence of sep, trimming whitespace
// from both halves. ok is false if sep does not occur in s.
func splitOnce(s, sep string) (before, after string, ok bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):]), true
}
