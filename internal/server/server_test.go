package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"sentinel/internal/client"
	"sentinel/internal/domain"
	"sentinel/internal/engine"
	"sentinel/internal/state"
)

const sampleTicket = "Hi, I was charged twice for my subscription and need a refund. Please help ASAP."

type testServer struct {
	URL    string
	Stub   *Server
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	stub, err := New(Config{
		ModelVersion: "stub-test",
		Now:          func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: stub}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Stub:   stub,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestDecideAndHistory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/decide", map[string]any{"ticket_text": sampleTicket})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide status %d: %s", res.StatusCode, string(data))
	}
	var decided domain.DecisionResult
	if err := json.Unmarshal(data, &decided); err != nil {
		t.Fatalf("unmarshal decide: %v", err)
	}
	if decided.RunID == "" || decided.Decision.Route != domain.RouteBilling || decided.Decision.Urgency != domain.UrgencyHigh {
		t.Fatalf("unexpected decision %+v", decided)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/history?limit=5", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var page domain.HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != decided.RunID {
		t.Fatalf("history items %+v", page.Items)
	}
	item := page.Items[0]
	if item.ModelVersion != "stub-test" || item.CreatedAt != "2024-05-01T10:00:00Z" {
		t.Fatalf("history metadata %+v", item)
	}
	if route, _ := item.Decision.String("route"); route != "billing" {
		t.Fatalf("decision_json route = %q", route)
	}
}

func TestShortTicketIsBadInput(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/decide", map[string]any{"ticket_text": "hey"})
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error_code"] != "BAD_INPUT" {
		t.Fatalf("error body %s", string(data))
	}
}

func TestHistoryLimitBounds(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/history?limit=0", nil)
	if !strings.Contains(string(data), `"error_code"`) {
		t.Fatalf("limit=0 accepted: %s", string(data))
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/history", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"items":[]`) {
		t.Fatalf("empty history %d: %s", res.StatusCode, string(data))
	}
}

func TestClientAgainstStub(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c := client.New(srv.URL)

	health, err := c.Health(context.Background())
	if err != nil || !health.OK {
		t.Fatalf("health %+v: %v", health, err)
	}

	srv.Stub.InjectFaults(true, false)
	_, err = c.Decide(context.Background(), sampleTicket)
	var se *client.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected service error, got %v", err)
	}
	if se.Error() != "DECIDE_PIPELINE_FAILED: Decision pipeline failed (fault injected)" {
		t.Fatalf("message = %q", se.Error())
	}
}

func TestEngineEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	eng := engine.New(client.New(srv.URL), engine.Options{Logger: log.New(io.Discard, "", 0)})
	ctx := context.Background()

	eng.Start(ctx)
	eng.Wait()
	if snap := eng.Snapshot(); snap.History.Status != state.StatusSuccess || len(snap.Items) != 0 {
		t.Fatalf("initial history %+v", snap.History)
	}

	eng.SetText(sampleTicket)
	res, err := eng.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	eng.Wait()
	snap := eng.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != res.RunID {
		t.Fatalf("history not refreshed after decide: %+v", snap.Items)
	}

	srv.Stub.InjectFaults(false, true)
	if _, err := eng.RefreshHistory(ctx, 20); err == nil {
		t.Fatalf("expected history failure")
	}
	snap = eng.Snapshot()
	if len(snap.Items) != 1 || snap.History.VisibleErr() != "" {
		t.Fatalf("history failure not absorbed: items=%d err=%q", len(snap.Items), snap.History.VisibleErr())
	}

	eng.SetText("hey")
	if _, err := eng.Decide(ctx, eng.Text()); err == nil {
		t.Fatalf("expected BAD_INPUT")
	}
	if msg := eng.Snapshot().Decide.VisibleErr(); !strings.HasPrefix(msg, "BAD_INPUT: ") {
		t.Fatalf("decide error = %q", msg)
	}
}
