package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/filecloud/internal/logging"
)

// sessionJSON is the /sessions wire form of SessionInfo.
type sessionJSON struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Login      string    `json:"login,omitempty"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
}

// NewAdminHandler serves the read-only HTTP side of the control plane:
//
//	/metrics   Prometheus exposition of gatherer
//	/healthz   200 while the listener is bound, 503 otherwise
//	/sessions  open sessions as JSON
func NewAdminHandler(srv *Server, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !srv.Running() || !srv.BindValid() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not listening\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		infos := srv.ActiveSessions()
		out := make([]sessionJSON, 0, len(infos))
		for _, s := range infos {
			out = append(out, sessionJSON{
				ID:         s.ID,
				RemoteAddr: s.RemoteAddr,
				Login:      s.Login,
				State:      s.State.String(),
				StartedAt:  s.StartedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			logging.Warn("Failed to encode sessions", zap.Error(err))
		}
	})
	return mux
}
