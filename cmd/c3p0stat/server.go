package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/oss-evaluation-repository/swaldman-c3p0/poolprom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type server struct {
	manager *c3p0.Manager
	users   map[string]c3p0.Credential
	logger  zerolog.Logger
}

func newRouter(m *c3p0.Manager, creds []c3p0.Credential, logger zerolog.Logger) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(poolprom.NewCollector(m, "c3p0")); err != nil {
		return nil, err
	}

	s := &server{manager: m, users: make(map[string]c3p0.Credential, len(creds)), logger: logger}
	for _, cred := range creds {
		s.users[cred.User] = cred
	}

	r := chi.NewRouter()
	r.Get("/stats", s.stats)
	r.Get("/stats/{user}", s.userStats)
	r.Post("/reset", s.resetAll)
	r.Post("/reset/{user}", s.resetUser)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r, nil
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Stat())
}

func (s *server) userStats(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pool(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, p.Stat())
}

func (s *server) resetAll(w http.ResponseWriter, r *http.Request) {
	s.manager.SoftResetAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resetUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pool(w, r)
	if !ok {
		return
	}
	p.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) pool(w http.ResponseWriter, r *http.Request) (*c3p0.Pool, bool) {
	cred, ok := s.users[chi.URLParam(r, "user")]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown user"})
		return nil, false
	}

	p, err := s.manager.LookupPool(cred)
	switch {
	case errors.Is(err, c3p0.ErrPoolNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return nil, false
	case err != nil:
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return nil, false
	}
	return p, true
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Int("status", status).Msg("failed to write response")
	}
}
