package presto

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dan-strohschein/presto-go-client/internal/typesig"
	"github.com/dan-strohschein/presto-go-client/internal/valuefix"
)

// Column describes one result column (spec.md §3): its name, the raw type
// signature text sent by the server, and the lazily-parsed, cached
// signature tree.
type Column struct {
	Name string
	Type string

	parsedType     typesig.Signature
	parsedTypeOnce bool
}

// ParsedType parses (and memoizes) Type into a typesig.Signature.
func (c *Column) ParsedType() (typesig.Signature, error) {
	if c.parsedTypeOnce {
		return c.parsedType, nil
	}
	sig, err := typesig.Parse(c.Type)
	if err != nil {
		return typesig.Signature{}, err
	}
	c.parsedType = sig
	c.parsedTypeOnce = true
	return sig, nil
}

// StatementStats mirrors the server's progress-reporting block (required
// on every page).
type StatementStats struct {
	State           string  `json:"state"`
	Queued          bool    `json:"queued"`
	Scheduled       bool    `json:"scheduled"`
	Nodes           int     `json:"nodes"`
	TotalSplits     int     `json:"totalSplits"`
	QueuedSplits    int     `json:"queuedSplits"`
	RunningSplits   int     `json:"runningSplits"`
	CompletedSplits int     `json:"completedSplits"`
	CPUTimeMillis   int64   `json:"cpuTimeMillis"`
	WallTimeMillis  int64   `json:"wallTimeMillis"`
	ProcessedRows   int64   `json:"processedRows"`
	ProcessedBytes  int64   `json:"processedBytes"`
	PeakMemoryBytes int64   `json:"peakMemoryBytes"`
	ProgressPercent float64 `json:"progressPercentage"`
}

// QueryError describes a failed query, carried on the page that observed
// the failure.
type QueryError struct {
	Message       string                 `json:"message"`
	SQLState      string                 `json:"sqlState,omitempty"`
	ErrorCode     int                    `json:"errorCode"`
	ErrorName     string                 `json:"errorName"`
	ErrorType     string                 `json:"errorType"`
	FailureInfo   map[string]interface{} `json:"failureInfo,omitempty"`
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.ErrorName, e.ErrorType, e.Message)
}

// QueryResults is one page of the server's response stream (spec.md §3).
// Once constructed by decodeQueryResults, it is immutable.
type QueryResults struct {
	ID               string
	InfoURI          *url.URL
	PartialCancelURI *url.URL
	NextURI          *url.URL
	Columns          []Column
	// Data holds one entry per row, each already fixed to a typed native
	// value per the page's Columns (internal/valuefix). Nil when the page's
	// data field is absent or null; an empty JSON array gives an empty,
	// non-nil slice.
	Data        [][]interface{}
	Stats       StatementStats
	Error       *QueryError
	UpdateType  string
	UpdateCount *int64
}

// wireQueryResults mirrors the server's JSON document field-for-field,
// before type-signature-driven fixing is applied to Data.
type wireQueryResults struct {
	ID               string          `json:"id"`
	InfoURI          string          `json:"infoUri"`
	PartialCancelURI string          `json:"partialCancelUri,omitempty"`
	NextURI          string          `json:"nextUri,omitempty"`
	Columns          []wireColumn    `json:"columns,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Stats            StatementStats  `json:"stats"`
	Error            *QueryError     `json:"error,omitempty"`
	UpdateType       string          `json:"updateType,omitempty"`
	UpdateCount      *int64          `json:"updateCount,omitempty"`
}

type wireColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// decodeQueryResults decodes one page body, parsing column type
// signatures and fixing row values against them. The `data` field is
// parsed with an order-preserving object decoder (jsonvalue.go) rather
// than plain json.Unmarshal, so that map-typed values survive with their
// server-sent key order intact.
func decodeQueryResults(raw []byte) (*QueryResults, error) {
	var wire wireQueryResults
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}

	qr := &QueryResults{
		ID:          wire.ID,
		Stats:       wire.Stats,
		Error:       wire.Error,
		UpdateType:  wire.UpdateType,
		UpdateCount: wire.UpdateCount,
	}

	var err error
	if qr.InfoURI, err = url.Parse(wire.InfoURI); err != nil {
		return nil, fmt.Errorf("presto: invalid infoUri: %w", err)
	}
	if wire.PartialCancelURI != "" {
		if qr.PartialCancelURI, err = url.Parse(wire.PartialCancelURI); err != nil {
			return nil, fmt.Errorf("presto: invalid partialCancelUri: %w", err)
		}
	}
	if wire.NextURI != "" {
		if qr.NextURI, err = url.Parse(wire.NextURI); err != nil {
			return nil, fmt.Errorf("presto: invalid nextUri: %w", err)
		}
	}

	if len(wire.Columns) > 0 {
		qr.Columns = make([]Column, len(wire.Columns))
		for i, c := range wire.Columns {
			qr.Columns[i] = Column{Name: c.Name, Type: c.Type}
		}
	}

	if len(wire.Data) > 0 && string(wire.Data) != "null" {
		rows, err := decodeArrayFromRaw(wire.Data)
		if err != nil {
			return nil, fmt.Errorf("presto: decoding data: %w", err)
		}

		fixedRows := make([][]interface{}, len(rows))
		for i, row := range rows {
			cells, ok := row.([]interface{})
			if !ok {
				return nil, fmt.Errorf("presto: row %d is not a JSON array", i)
			}
			if len(cells) != len(qr.Columns) {
				return nil, fmt.Errorf("presto: row %d has %d cells, expected %d columns", i, len(cells), len(qr.Columns))
			}
			fixed := make([]interface{}, len(cells))
			for j, cell := range cells {
				sig, err := qr.Columns[j].ParsedType()
				if err != nil {
					return nil, err
				}
				fixedVal, err := valuefix.Fix(sig, cell)
				if err != nil {
					return nil, err
				}
				fixed[j] = fixedVal
			}
			fixedRows[i] = fixed
		}
		qr.Data = fixedRows
	}

	return qr, nil
}

func decodeArrayFromRaw(raw json.RawMessage) ([]interface{}, error) {
	v, err := decodeOrderedValue(raw)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("presto: expected a JSON array, got %T", v)
	}
	return arr, nil
}
