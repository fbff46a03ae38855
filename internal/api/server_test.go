package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iroh-home/iroh-core/internal/audit"
	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/infrastructure/config"
	"github.com/iroh-home/iroh-core/internal/infrastructure/database"
	"github.com/iroh-home/iroh-core/internal/infrastructure/logging"
	"github.com/iroh-home/iroh-core/internal/phone"
	"github.com/iroh-home/iroh-core/internal/timer"
	"github.com/iroh-home/iroh-core/migrations"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeEngine struct{ snap dtmf.Snapshot }

func (f fakeEngine) Snapshot() dtmf.Snapshot { return f.snap }

type fakeLine struct{ state phone.LineState }

func (f fakeLine) Line() phone.LineState { return f.state }

type fakeStream struct{ status phone.StreamStatus }

func (f fakeStream) Status() phone.StreamStatus { return f.status }

type fakeHomeHub struct{ connected bool }

func (f fakeHomeHub) Connected() bool            { return f.connected }
func (f fakeHomeHub) LastStateUpdate() time.Time { return time.Time{} }

type fakeBroker struct{ connected bool }

func (f fakeBroker) IsConnected() bool { return f.connected }

type failingAudit struct{}

func (failingAudit) Create(context.Context, *audit.Entry) error { return errors.New("disk full") }
func (failingAudit) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return nil, errors.New("disk full")
}
func (failingAudit) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

// ─── Helpers ───────────────────────────────────────────────────────

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// testServer creates a Server over a real timer manager and SQLite
// repositories. Countdown ticks are an hour so timers stay running.
func testServer(t *testing.T) (*Server, *timer.Manager, *audit.SQLiteRepository) {
	t.Helper()

	db := openTestDB(t)
	history := timer.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	timers := timer.NewManager(
		timer.WithTick(time.Hour),
		timer.WithListener(timer.RecordingListener(history, nil)),
	)
	t.Cleanup(func() { timers.Close() }) //nolint:errcheck // Test cleanup

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:           config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:       testLogger(),
		Timers:       timers,
		TimerHistory: history,
		Audit:        auditRepo,
		Engine:       fakeEngine{snap: dtmf.Snapshot{State: "temperature", Buffer: "7", PendingTimeouts: 1, Started: true}},
		Line:         fakeLine{state: phone.LineState{OffHook: true, Digits: []string{"7"}}},
		Phone:        fakeStream{status: phone.StreamStatus{Connected: true, Received: 4}},
		HomeHub:      fakeHomeHub{connected: false},
		Broker:       fakeBroker{connected: true},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("iroh_phone_connected 1\n")) //nolint:errcheck // Test handler
		}),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, timers, auditRepo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without timers should fail")
	}
}

// ─── Health & Status ───────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestStatus(t *testing.T) {
	srv, timers, _ := testServer(t)
	if _, err := timers.CreateTimer(context.Background(), 5*time.Minute, "Tea"); err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decode[StatusResponse](t, w)

	if resp.Line == nil || !resp.Line.OffHook {
		t.Errorf("line = %+v, want off hook", resp.Line)
	}
	if resp.Engine == nil || resp.Engine.State != "temperature" || resp.Engine.PendingTimeouts != 1 {
		t.Errorf("engine = %+v", resp.Engine)
	}
	if len(resp.Timers) != 1 || resp.Timers[0].Name != "Tea" {
		t.Errorf("timers = %+v", resp.Timers)
	}
	c := resp.Connectivity
	if c.Phone == nil || !c.Phone.Connected || c.Phone.Received != 4 {
		t.Errorf("phone = %+v", c.Phone)
	}
	if c.HomeAssistant == nil || c.HomeAssistant.Connected {
		t.Errorf("home assistant = %+v, want disconnected", c.HomeAssistant)
	}
	if c.MQTT == nil || !c.MQTT.Connected {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
}

func TestStatus_OmitsMissingComponents(t *testing.T) {
	timers := timer.NewManager(timer.WithTick(time.Hour))
	defer timers.Close()
	srv, err := New(Deps{Logger: testLogger(), Timers: timers})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status", "")
	resp := decode[map[string]any](t, w)

	for _, key := range []string{"line", "engine"} {
		if _, ok := resp[key]; ok {
			t.Errorf("%s present without a source", key)
		}
	}
	if conn, _ := resp["connectivity"].(map[string]any); len(conn) != 0 {
		t.Errorf("connectivity = %v, want empty", conn)
	}

	for _, path := range []string{"/api/v1/audit", "/api/v1/timers/x/history"} {
		if w := do(t, srv.buildRouter(), http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, w.Code)
		}
	}
	if w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", w.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	srv, _, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "iroh_phone_connected") {
		t.Errorf("metrics = %d %q", w.Code, w.Body.String())
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	if got := do(t, router, http.MethodGet, "/api/v1/health", "").Header().Get("X-Request-ID"); got == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, _, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := do(t, h, http.MethodGet, "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if resp := decode[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	if w := do(t, router, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/api/v1/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /health status = %d, want 405", w.Code)
	}
}

// ─── Timers ────────────────────────────────────────────────────────

func TestTimers_CreateGetCancel(t *testing.T) {
	srv, timers, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/timers", `{"name":"Pasta","minutes":9}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	created := decode[timer.Info](t, w)
	if created.Name != "Pasta" || created.Duration != 540 || created.Remaining != 540 {
		t.Errorf("created = %+v", created)
	}

	w = do(t, router, http.MethodGet, "/api/v1/timers/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	list := decode[TimerListResponse](t, do(t, router, http.MethodGet, "/api/v1/timers", ""))
	if list.Count != 1 || list.Timers[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	w = do(t, router, http.MethodDelete, "/api/v1/timers/"+created.ID, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d; body: %s", w.Code, w.Body.String())
	}

	tm, err := timers.GetTimer(created.ID)
	if err != nil {
		t.Fatalf("GetTimer() error = %v", err)
	}
	select {
	case <-tm.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not stop after cancel")
	}

	active := decode[TimerListResponse](t, do(t, router, http.MethodGet, "/api/v1/timers", ""))
	if active.Count != 0 {
		t.Errorf("active after cancel = %d, want 0", active.Count)
	}
	all := decode[TimerListResponse](t, do(t, router, http.MethodGet, "/api/v1/timers?all=true", ""))
	if all.Count != 1 || !all.Timers[0].Cancelled {
		t.Errorf("all after cancel = %+v", all)
	}

	history := decode[map[string]any](t, do(t, router, http.MethodGet, "/api/v1/timers/"+created.ID+"/history", ""))
	if history["count"].(float64) != 2 {
		t.Errorf("history = %v, want created and cancelled", history)
	}
}

func TestTimers_CreateErrors(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed", body: `{`, want: http.StatusBadRequest},
		{name: "no duration", body: `{"name":"x"}`, want: http.StatusBadRequest},
		{name: "both units", body: `{"minutes":1,"seconds":30}`, want: http.StatusBadRequest},
		{name: "seconds", body: `{"seconds":90}`, want: http.StatusCreated},
		{name: "one day", body: `{"minutes":1440}`, want: http.StatusCreated},
		{name: "minutes over a day", body: `{"minutes":1441}`, want: http.StatusBadRequest},
		{name: "seconds over a day", body: `{"seconds":86401}`, want: http.StatusBadRequest},
		{name: "minutes overflow", body: `{"minutes":99999999999}`, want: http.StatusBadRequest},
		{name: "seconds overflow", body: `{"seconds":9223372036854775807}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/api/v1/timers", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestTimers_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := do(t, router, method, "/api/v1/timers/missing", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s missing timer = %d, want 404", method, w.Code)
		}
	}
}

func TestTimers_HistoryBadLimit(t *testing.T) {
	srv, _, _ := testServer(t)
	if w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/timers/x/history?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWriteTimerError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &timer.NotFoundError{ID: "x"}, want: http.StatusNotFound},
		{err: &timer.ValidationError{Field: "duration"}, want: http.StatusUnprocessableEntity},
		{err: timer.ErrClosed, want: http.StatusServiceUnavailable},
		{err: errors.New("other"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeTimerError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("writeTimerError(%v) = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

// ─── Audit ─────────────────────────────────────────────────────────

func TestAudit_ListFiltered(t *testing.T) {
	srv, _, repo := testServer(t)
	ctx := context.Background()
	for _, e := range []*audit.Entry{
		{State: "initial", Handler: "lights_on", Pattern: `\*1`, Input: "*1", Outcome: dtmf.OutcomeOK},
		{State: "temperature", Handler: "set_temperature", Pattern: `\d\d`, Input: "99", Outcome: dtmf.OutcomeRejected},
		{State: "initial", Handler: "quick_timer", Pattern: "[1-9]", Input: "5", Outcome: dtmf.OutcomeOK},
	} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	router := srv.buildRouter()
	all := decode[audit.ListResult](t, do(t, router, http.MethodGet, "/api/v1/audit", ""))
	if all.Total != 3 {
		t.Errorf("total = %d, want 3", all.Total)
	}

	rejected := decode[audit.ListResult](t, do(t, router, http.MethodGet, "/api/v1/audit?outcome=rejected", ""))
	if rejected.Total != 1 || rejected.Entries[0].Handler != "set_temperature" {
		t.Errorf("rejected = %+v", rejected)
	}

	page := decode[audit.ListResult](t, do(t, router, http.MethodGet, "/api/v1/audit?limit=1&offset=1", ""))
	if len(page.Entries) != 1 || page.Total != 3 {
		t.Errorf("page = %+v", page)
	}
}

func TestAudit_RepositoryError(t *testing.T) {
	timers := timer.NewManager(timer.WithTick(time.Hour))
	defer timers.Close()
	srv, err := New(Deps{Logger: testLogger(), Timers: timers, Audit: failingAudit{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	addr := srv.Addr()
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, _, _ := testServer(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer first.Close()

	second, _, _ := testServer(t)
	_, port, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error = %v", first.Addr(), err)
	}
	if second.cfg.Port, err = strconv.Atoi(port); err != nil {
		t.Fatalf("Atoi(%q) error = %v", port, err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Fatal("Start() on a used port should fail")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func startServer(t *testing.T) *Server {
	t.Helper()
	srv, _, _ := testServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return srv
}

func connectWebSocket(t *testing.T, addr, query string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws"+query, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	return ws
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	srv := startServer(t)
	ws := connectWebSocket(t, srv.Addr(), "")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"timer.event"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	srv.Hub().Broadcast("phone.event", map[string]string{"type": "dtmf"})
	srv.Hub().Broadcast("timer.event", map[string]string{"event": "completed"})

	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if resp.Type != WSTypeEvent || resp.EventType != "timer.event" {
		t.Errorf("broadcast = %+v, want only the subscribed timer.event", resp)
	}
}

func TestWebSocket_QuerySubscriptionAndWildcard(t *testing.T) {
	srv := startServer(t)
	specific := connectWebSocket(t, srv.Addr(), "?channels=dtmf.transition")
	all := connectWebSocket(t, srv.Addr(), "?channels=*")
	waitForClients(t, srv.Hub(), 2)

	srv.Hub().Broadcast("dtmf.transition", map[string]string{"to": "temperature"})

	for name, ws := range map[string]*websocket.Conn{"specific": specific, "wildcard": all} {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("%s: read broadcast: %v", name, err)
		}
		if msg.EventType != "dtmf.transition" {
			t.Errorf("%s: event_type = %q", name, msg.EventType)
		}
	}
}

func TestWebSocket_Messages(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
	}{
		{name: "ping", raw: `{"type":"ping","id":"p1"}`, wantType: WSTypePong},
		{name: "invalid json", raw: `not json`, wantType: WSTypeError},
		{name: "unknown type", raw: `{"type":"launch"}`, wantType: WSTypeError},
		{name: "subscribe without channels", raw: `{"type":"subscribe","payload":{}}`, wantType: WSTypeError},
		{name: "unsubscribe", raw: `{"type":"unsubscribe","payload":{"channels":["timer.event"]}}`, wantType: WSTypeResponse},
	}
	srv := startServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := connectWebSocket(t, srv.Addr(), "")
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp WSMessage
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType {
				t.Errorf("response type = %q, want %q", resp.Type, tt.wantType)
			}
		})
	}
}

func TestWebSocket_ClosedOnShutdown(t *testing.T) {
	srv, _, _ := testServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ws := connectWebSocket(t, srv.Addr(), "")
	waitForClients(t, srv.Hub(), 1)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	waitForClients(t, srv.Hub(), 0)

	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{WSChannelAll: {}}}
	hub.Register(client)

	hub.Unregister(client)
	hub.Unregister(client)

	if client.trySend([]byte("x")) {
		t.Error("trySend on a closed client should fail")
	}
	hub.Broadcast("timer.event", nil)
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", hub.ClientCount())
	}
}

func TestResolveTimings_Defaults(t *testing.T) {
	got := resolveTimings(config.WebSocketConfig{})
	if got.ping != defaultWSPingInterval || got.pong != defaultWSPongTimeout || got.maxMessage != defaultWSMaxMessageSize {
		t.Errorf("resolveTimings(zero) = %+v", got)
	}
}
