package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/phone"
	"github.com/iroh-home/iroh-core/internal/timer"
)

// StatusResponse is the body of GET /status. Components that are not
// configured are omitted.
type StatusResponse struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	Line          *phone.LineState    `json:"line,omitempty"`
	Engine        *dtmf.Snapshot      `json:"engine,omitempty"`
	Timers        []timer.Info        `json:"timers"`
	Connectivity  ConnectivityMetrics `json:"connectivity"`
	WebSocket     WSMetrics           `json:"websocket"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ConnectivityMetrics reports each external collaborator.
type ConnectivityMetrics struct {
	Phone         *phone.StreamStatus `json:"phone,omitempty"`
	HomeAssistant *HubStatus          `json:"home_assistant,omitempty"`
	MQTT          *BrokerStatus       `json:"mqtt,omitempty"`
}

// HubStatus reports home automation hub connectivity.
type HubStatus struct {
	Connected       bool      `json:"connected"`
	LastStateUpdate time.Time `json:"last_state_update,omitzero"`
}

// BrokerStatus reports message broker connectivity.
type BrokerStatus struct {
	Connected bool `json:"connected"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Timers:    s.timers.ActiveTimers(),
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
	}

	if s.line != nil {
		line := s.line.Line()
		resp.Line = &line
	}
	if s.engine != nil {
		snap := s.engine.Snapshot()
		resp.Engine = &snap
	}
	if s.phone != nil {
		st := s.phone.Status()
		resp.Connectivity.Phone = &st
	}
	if s.homeHub != nil {
		resp.Connectivity.HomeAssistant = &HubStatus{
			Connected:       s.homeHub.Connected(),
			LastStateUpdate: s.homeHub.LastStateUpdate(),
		}
	}
	if s.broker != nil {
		resp.Connectivity.MQTT = &BrokerStatus{Connected: s.broker.IsConnected()}
	}

	writeJSON(w, http.StatusOK, resp)
}
