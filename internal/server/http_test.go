package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAdminHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, Options{Metrics: NewMetrics(reg)})
	h := NewAdminHandler(srv, reg)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/healthz before Start = %d, want 503", rec.Code)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz while running = %d, want 200", rec.Code)
	}

	c := dial(t, srv)
	c.roundTrip("LOGIN frank")
	waitFor(t, func() bool { return len(srv.ActiveSessions()) == 1 })

	rec := get("/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("/sessions = %d", rec.Code)
	}
	var sessions []sessionJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode /sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Login != "frank" || sessions[0].State != "active" {
		t.Errorf("/sessions = %+v", sessions)
	}

	rec = get("/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "filecloud_sessions_total 1") {
		t.Errorf("/metrics missing filecloud_sessions_total:\n%s", body)
	}
}
