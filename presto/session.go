package presto

import (
	"fmt"
	"net/url"
	"time"
)

// ClientSession is the immutable per-query input bundle (spec.md §3): the
// coordinator to talk to, the identity and locale to present, and the
// session state (properties, prepared statements, transaction id) carried
// forward from a prior statement client.
type ClientSession struct {
	Server *url.URL
	User   string

	Source   string
	Catalog  string
	Schema   string
	TimeZone string
	Language string

	// Properties is copied at construction; mutating the caller's map
	// afterward has no effect on the session.
	Properties map[string]string

	// PreparedStatements is copied at construction.
	PreparedStatements map[string]string

	// TransactionID is empty when no transaction is active; the wire
	// encoding for "no transaction" is the literal "NONE" (spec.md §3).
	TransactionID string

	ClientRequestTimeout time.Duration
	Debug                bool
}

// NewClientSession constructs a ClientSession with required fields and
// sane defaults (the host system's local time zone and the "en-US"
// language tag, a 2-minute request timeout), returning an error if server
// is not an absolute URI or user is empty.
func NewClientSession(server, user string) (*ClientSession, error) {
	if user == "" {
		return nil, fmt.Errorf("presto: user is required")
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("presto: invalid server URI: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("presto: server URI must be absolute: %q", server)
	}

	return &ClientSession{
		Server:               u,
		User:                 user,
		TimeZone:             time.Local.String(),
		Language:             "en-US",
		Properties:           map[string]string{},
		PreparedStatements:   map[string]string{},
		ClientRequestTimeout: 2 * time.Minute,
	}, nil
}

// WithProperties returns a copy of the session with its session properties
// replaced, leaving the receiver unmodified.
func (s ClientSession) WithProperties(props map[string]string) ClientSession {
	s.Properties = copyStringMap(props)
	return s
}

// WithPreparedStatements returns a copy of the session with its prepared
// statements replaced, leaving the receiver unmodified.
func (s ClientSession) WithPreparedStatements(stmts map[string]string) ClientSession {
	s.PreparedStatements = copyStringMap(stmts)
	return s
}

// WithTransactionID returns a copy of the session with its transaction id
// replaced, leaving the receiver unmodified.
func (s ClientSession) WithTransactionID(id string) ClientSession {
	s.TransactionID = id
	return s
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// transactionIDOrNone returns TransactionID, or the literal "NONE" when no
// transaction is active, per the wire encoding in spec.md §3/§6.
func (s ClientSession) transactionIDOrNone() string {
	if s.TransactionID == "" {
		return "NONE"
	}
	return s.TransactionID
}
