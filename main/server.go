package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shipnav/nmearouter/common"
	"github.com/shipnav/nmearouter/station"
	log "github.com/sirupsen/logrus"
)

// statusServer serves the station status as JSON and the prometheus metrics.
type statusServer struct {
	srv *http.Server
	log *log.Entry
}

func newStatusServer(addr string, st *station.Station, g prometheus.Gatherer) *statusServer {
	return &statusServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      newStatusHandler(st, g),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: common.Logger("status"),
	}
}

func (s *statusServer) Start() {
	go func() {
		s.log.Infof("listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("status server failed")
		}
	}()
}

func (s *statusServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("shutdown")
	}
}

func newStatusHandler(st *station.Station, g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.Status())
	})

	r.Route("/measurements", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, st.Measurements().All())
		})
		r.Get("/{name}", func(w http.ResponseWriter, r *http.Request) {
			m, ok := st.Measurements().Get(chi.URLParam(r, "name"))
			if !ok {
				writeError(w, http.StatusNotFound, "no such measurement")
				return
			}
			writeJSON(w, http.StatusOK, m)
		})
	})

	r.Get("/ais", func(w http.ResponseWriter, r *http.Request) {
		if st.Targets() == nil {
			writeError(w, http.StatusNotFound, "ais is disabled")
			return
		}
		writeJSON(w, http.StatusOK, st.Targets().Targets())
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("encoding response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
