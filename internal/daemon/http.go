package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/version"
)

// HealthResponse is served on the health path.
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Version   string     `json:"version"`
	Building  bool       `json:"building"`
	LastBuild *LastBuild `json:"last_build,omitempty"`
}

// LastBuild summarizes the most recent finished build.
type LastBuild struct {
	ID       string    `json:"id"`
	Outcome  string    `json:"outcome"`
	Message  string    `json:"message"`
	Finished time.Time `json:"finished"`
}

func (d *Daemon) handler(mon *config.MonitoringConfig, g prom.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+mon.Health.Path, d.handleHealth)
	if mon.Metrics.Enabled {
		mux.Handle("GET "+mon.Metrics.Path, metrics.HTTPHandler(g))
	}
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(d.started).Round(time.Second).String(),
		Version:   version.Version,
		Building:  d.svc.Busy(),
		LastBuild: d.lastBuild(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
