package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/LapseGo/internal/logic/timelapse"
	"github.com/cjeanneret/LapseGo/internal/metrics"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{"index.html": &fstest.MapFile{Data: []byte("<html>lapse</html>")}}
}

// ---------- HandleStatus ----------

func TestHandleStatus(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), timelapse.NewTracker("run-1", "garden"), nil, testFS())
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var s timelapse.Status
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.RunID != "run-1" || s.Project != "garden" || s.State != timelapse.StateIdle {
		t.Errorf("status = %+v", s)
	}
}

func TestHandleStatus_NoTracker(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil, testFS())
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// ---------- HandleMetrics ----------

func TestHandleMetrics(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil, testFS())
	rec := httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("without handler: status = %d, want 404", rec.Code)
	}

	h.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "lapsego_sequence 3\n")
	})
	rec = httptest.NewRecorder()
	h.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lapsego_sequence 3") {
		t.Errorf("delegated: %d %q", rec.Code, rec.Body.String())
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil, testFS())
	rec := httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "<html>lapse</html>" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil, fstest.MapFS{})
	rec := httptest.NewRecorder()
	h.ServeIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ---------- HandleStatusStream ----------

// dataLines returns the payloads of the next n SSE "data:" lines.
func dataLines(t *testing.T, sc *bufio.Scanner, n int) []StatusEvent {
	t.Helper()
	var events []StatusEvent
	for len(events) < n && sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		events = append(events, evt)
	}
	if len(events) < n {
		t.Fatalf("got %d events, want %d (scan err %v)", len(events), n, sc.Err())
	}
	return events
}

func TestHandleStatusStream(t *testing.T) {
	b := NewStatusBroadcaster()
	h := NewHandlers(b, timelapse.NewTracker("run-2", "harbour"), nil, testFS())
	srv := httptest.NewServer(http.HandlerFunc(h.HandleStatusStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	first := dataLines(t, sc, 1)[0]
	if first.Kind != KindStatus || first.Status == nil || first.Status.RunID != "run-2" {
		t.Fatalf("first event = %+v", first)
	}

	b.Log("info", "Day 1 window 07:00-19:30")
	next := dataLines(t, sc, 1)[0]
	if next.Kind != KindLog || next.Msg != "Day 1 window 07:00-19:30" {
		t.Errorf("next event = %+v", next)
	}
}

// ---------- Server ----------

func newTestServer(t *testing.T) (*Server, *timelapse.Tracker) {
	t.Helper()
	tracker := timelapse.NewTracker("run-3", "garden")
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.SetSequence(7)
	s, err := NewServer("127.0.0.1:0", NewStatusBroadcaster(), tracker, metrics.HTTPHandler(reg))
	if err != nil {
		t.Fatal(err)
	}
	return s, tracker
}

func TestServer_Routes(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	cases := []struct {
		method, path string
		code         int
		contains     string
	}{
		{http.MethodGet, "/", http.StatusOK, "LapseGo"},
		{http.MethodGet, "/static/app.js", http.StatusOK, "EventSource"},
		{http.MethodGet, "/status", http.StatusOK, `"run_id":"run-3"`},
		{http.MethodGet, "/metrics", http.StatusOK, "lapsego_sequence 7"},
		{http.MethodPost, "/status", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.code)
			}
			if tc.contains != "" && !strings.Contains(string(body), tc.contains) {
				t.Errorf("body does not contain %q:\n%s", tc.contains, body)
			}
		})
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	// Hold a stream open; shutdown must still complete.
	req, _ := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunBadAddress(t *testing.T) {
	s, err := NewServer("127.0.0.1:99999", NewStatusBroadcaster(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}
