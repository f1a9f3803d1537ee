package presto_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dan-strohschein/presto-go-client/internal/valuefix"
	"github.com/dan-strohschein/presto-go-client/presto"
	"github.com/dan-strohschein/presto-go-client/prestotest"
)

func newSession(t *testing.T, server string) presto.ClientSession {
	t.Helper()
	s, err := presto.NewClientSession(server, "alice")
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	s.ClientRequestTimeout = 2 * time.Second
	return *s
}

const firstPageBody = `{
	"id": "20260731_q1",
	"infoUri": "http://coordinator/ui/q1",
	"nextUri": "http://coordinator/v1/statement/q1/1",
	"columns": [{"name":"x","type":"bigint"}],
	"data": [[1],[2]],
	"stats": {"state":"RUNNING","queued":false,"scheduled":true}
}`

const secondPageBody = `{
	"id": "20260731_q1",
	"infoUri": "http://coordinator/ui/q1",
	"columns": [{"name":"x","type":"bigint"}],
	"data": [[3]],
	"stats": {"state":"FINISHED","queued":false,"scheduled":false}
}`

func TestHappyPathTwoPages(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(firstPageBody)}).
		WithResponses(http.MethodGet, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(secondPageBody)})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	qr, err := client.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(qr.Data) != 2 {
		t.Fatalf("expected 2 rows on first page, got %d", len(qr.Data))
	}
	if !client.IsValid() {
		t.Fatalf("expected client to be valid after first page")
	}

	more, err := client.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !more {
		t.Fatalf("expected more data after first Advance")
	}

	more, err = client.Advance(context.Background())
	if err != nil {
		t.Fatalf("second Advance: %v", err)
	}
	if more {
		t.Fatalf("expected no more pages (nextUri absent)")
	}
	if client.IsValid() {
		t.Fatalf("expected client to be invalid once paging is exhausted")
	}

	final, err := client.FinalResults()
	if err != nil {
		t.Fatalf("FinalResults: %v", err)
	}
	if len(final.Data) != 1 {
		t.Fatalf("expected 1 row on final page, got %d", len(final.Data))
	}
}

func TestRetriesOn503ThenSucceeds(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(firstPageBody)}).
		WithResponses(http.MethodGet,
			prestotest.Script{StatusCode: http.StatusServiceUnavailable},
			prestotest.Script{StatusCode: http.StatusServiceUnavailable},
			prestotest.Script{StatusCode: http.StatusOK, Body: []byte(secondPageBody)},
		)

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	more, err := client.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance after retries: %v", err)
	}
	if !more {
		t.Fatalf("expected a successful page after retries")
	}
	if port.ExecuteCallCount() < 4 {
		t.Fatalf("expected at least 4 Execute calls (1 POST + 2 503s + 1 200), got %d", port.ExecuteCallCount())
	}
}

func TestDeadlineExceededDuringRetry(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(firstPageBody)}).
		WithResponses(http.MethodGet, prestotest.Script{StatusCode: http.StatusServiceUnavailable})

	session := newSession(t, "http://coordinator")
	session.ClientRequestTimeout = 150 * time.Millisecond
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	_, err = client.Advance(context.Background())
	if err == nil {
		t.Fatalf("expected an error once the retry deadline elapses")
	}
	if client.IsValid() {
		t.Fatalf("expected client to be invalid (gone) after deadline exceeded")
	}
	if !client.IsGone() {
		t.Fatalf("expected IsGone() true after deadline exceeded")
	}
}

func TestSessionMutationHeadersHarvested(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Presto-Set-Session", "query_max_memory=1GB")
	headers.Set("X-Presto-Clear-Session", "join_distribution_type")
	headers.Set("X-Presto-Started-Transaction-Id", "txn-123")

	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{
			StatusCode: http.StatusOK,
			Body:       []byte(firstPageBody),
			Headers:    headers,
		})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	props := client.SetSessionProperties()
	if props["query_max_memory"] != "1GB" {
		t.Fatalf("expected harvested session property, got %+v", props)
	}
	reset := client.ResetSessionProperties()
	if _, ok := reset["join_distribution_type"]; !ok {
		t.Fatalf("expected harvested reset property, got %+v", reset)
	}
	id, ok := client.StartedTransactionID()
	if !ok || id != "txn-123" {
		t.Fatalf("expected harvested transaction id, got %q, %v", id, ok)
	}
}

const typedRowBody = `{
	"id": "20260731_q2",
	"infoUri": "http://coordinator/ui/q2",
	"columns": [
		{"name":"r","type":"row(\"a\" bigint,\"b\" array(varchar))"}
	],
	"data": [[[7, ["x","y"]]]],
	"stats": {"state":"FINISHED","queued":false,"scheduled":false}
}`

func TestTypedRowValue(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(typedRowBody)})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT r FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	qr, err := client.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	row, ok := qr.Data[0][0].(valuefix.OrderedMap)
	if !ok {
		t.Fatalf("expected row value to be an ordered map, got %T", qr.Data[0][0])
	}
	aVal, ok := row.Get("a")
	if !ok || aVal != int64(7) {
		t.Fatalf("expected field a=7, got %v, %v", aVal, ok)
	}
}

const cancelPageBody = `{
	"id": "20260731_q3",
	"infoUri": "http://coordinator/ui/q3",
	"partialCancelUri": "http://coordinator/v1/stage/q3.1",
	"nextUri": "http://coordinator/v1/statement/q3/1",
	"columns": [{"name":"x","type":"bigint"}],
	"data": [[1]],
	"stats": {"state":"RUNNING","queued":false,"scheduled":true}
}`

func TestCancelLeafStage(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(cancelPageBody)}).
		WithResponses(http.MethodDelete, prestotest.Script{StatusCode: http.StatusNoContent})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	ok, err := client.CancelLeafStage(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("CancelLeafStage: %v", err)
	}
	if !ok {
		t.Fatalf("expected CancelLeafStage to report success")
	}
}

func TestCancelLeafStageServerError(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(cancelPageBody)}).
		WithResponses(http.MethodDelete, prestotest.Script{StatusCode: http.StatusInternalServerError})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	ok, err := client.CancelLeafStage(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("CancelLeafStage: %v", err)
	}
	if ok {
		t.Fatalf("expected CancelLeafStage to report failure for a 500 response")
	}
}

func TestCancelLeafStageTimesOut(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(cancelPageBody)}).
		WithResponses(http.MethodDelete, prestotest.Script{StatusCode: http.StatusNoContent, Delay: 100 * time.Millisecond})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	ok, err := client.CancelLeafStage(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("CancelLeafStage: %v", err)
	}
	if ok {
		t.Fatalf("expected CancelLeafStage to report failure when the wait times out")
	}
	if client.IsClosed() {
		t.Fatalf("a timed-out cancel must not mark the client closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	port := prestotest.NewFakePort().
		WithResponses(http.MethodPost, prestotest.Script{StatusCode: http.StatusOK, Body: []byte(firstPageBody)}).
		WithResponses(http.MethodDelete, prestotest.Script{StatusCode: http.StatusNoContent})

	session := newSession(t, "http://coordinator")
	opts := presto.DefaultOptions()

	client, err := presto.NewStatementClient(context.Background(), port, session, opts, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("NewStatementClient: %v", err)
	}

	client.Close()
	client.Close()

	if port.AsyncCallCount() != 1 {
		t.Fatalf("expected exactly one async DELETE dispatched, got %d", port.AsyncCallCount())
	}
	if client.IsValid() {
		t.Fatalf("expected client to be invalid after Close")
	}

	more, err := client.Advance(context.Background())
	if err != nil || more {
		t.Fatalf("Advance after Close should report (false, nil), got (%v, %v)", more, err)
	}
}
