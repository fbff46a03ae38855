package phone

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ─── Fake Phone Service ─────────────────────────────────────────────

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	svc := &fakeService{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		svc.mu.Lock()
		svc.requests = append(svc.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		status := svc.status
		svc.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "line busy", status)
			return
		}
		if r.URL.Path == "/status" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"hook":"on","ringing":false}`)) //nolint:errcheck // test server
		}
	}))
	t.Cleanup(srv.Close)
	return svc, srv
}

func (f *fakeService) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return f.requests[len(f.requests)-1]
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestClient_Ring(t *testing.T) {
	svc, srv := newFakeService(t)
	c := NewClient(srv.URL+"/", nil)

	tests := []struct {
		name        string
		pattern     string
		repeat      int
		wantPattern string
		wantRepeat  float64
	}{
		{name: "explicit", pattern: "DOUBLE", repeat: 3, wantPattern: "DOUBLE", wantRepeat: 3},
		{name: "defaults", pattern: "", repeat: 0, wantPattern: DefaultRingPattern, wantRepeat: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Ring(context.Background(), tt.pattern, tt.repeat); err != nil {
				t.Fatalf("Ring() error = %v", err)
			}
			req := svc.last(t)
			if req.Method != http.MethodPost || req.Path != "/ring" {
				t.Fatalf("request = %s %s, want POST /ring", req.Method, req.Path)
			}
			var got map[string]any
			if err := json.Unmarshal(req.Body, &got); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if got["pattern"] != tt.wantPattern {
				t.Errorf("pattern = %v, want %q", got["pattern"], tt.wantPattern)
			}
			if got["repeat"] != tt.wantRepeat {
				t.Errorf("repeat = %v, want %v", got["repeat"], tt.wantRepeat)
			}
		})
	}
}

func TestClient_StopRingAndPlayAudio(t *testing.T) {
	svc, srv := newFakeService(t)
	c := NewClient(srv.URL, nil)
	ctx := context.Background()

	if err := c.StopRing(ctx); err != nil {
		t.Fatalf("StopRing() error = %v", err)
	}
	if req := svc.last(t); req.Path != "/stop-ring" {
		t.Errorf("path = %q, want /stop-ring", req.Path)
	}

	audio := []byte{0x52, 0x49, 0x46, 0x46}
	if err := c.PlayAudio(ctx, audio); err != nil {
		t.Fatalf("PlayAudio() error = %v", err)
	}
	req := svc.last(t)
	if req.Path != "/play-audio" || req.ContentType != "application/octet-stream" {
		t.Errorf("request = %s %q, want /play-audio application/octet-stream", req.Path, req.ContentType)
	}
	if string(req.Body) != string(audio) {
		t.Errorf("body = %v, want %v", req.Body, audio)
	}

	if err := c.PlayAudio(ctx, nil); err == nil {
		t.Error("PlayAudio(nil) should fail")
	}
}

func TestClient_Status(t *testing.T) {
	_, srv := newFakeService(t)
	c := NewClient(srv.URL, nil)

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st["hook"] != "on" {
		t.Errorf("hook = %v, want on", st["hook"])
	}
}

func TestClient_APIError(t *testing.T) {
	svc, srv := newFakeService(t)
	svc.status = http.StatusServiceUnavailable
	c := NewClient(srv.URL, nil)

	err := c.Ring(context.Background(), "", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Ring() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
	if apiErr.Body != "line busy" {
		t.Errorf("Body = %q, want %q", apiErr.Body, "line busy")
	}
	if errors.Is(err, ErrConnectivity) {
		t.Error("API errors should not be connectivity errors")
	}
}

func TestClient_ConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil)
	err := c.StopRing(context.Background())
	if !errors.Is(err, ErrConnectivity) {
		t.Fatalf("StopRing() error = %v, want ErrConnectivity", err)
	}
	var ce *ConnectivityError
	if !errors.As(err, &ce) || ce.Op != "stop-ring" {
		t.Errorf("ConnectivityError = %+v, want op stop-ring", ce)
	}
}
