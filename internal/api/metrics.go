package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/anhhung04/plant-care/internal/automation"
)

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Scheduler     JobMetrics     `json:"scheduler"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// JobMetrics counts scheduler jobs by state.
type JobMetrics struct {
	Pending  int `json:"pending"`
	Executed int `json:"executed"`
	Missed   int `json:"missed"`
	Failed   int `json:"failed"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	jobs := JobMetrics{Pending: len(s.jobs.Pending())}
	for _, rec := range s.jobs.Recent() {
		switch rec.Outcome {
		case automation.OutcomeExecuted:
			jobs.Executed++
		case automation.OutcomeMissed:
			jobs.Missed++
		case automation.OutcomeFailed:
			jobs.Failed++
		}
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Scheduler: jobs,
	})
}
