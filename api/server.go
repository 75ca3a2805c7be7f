// Package api exposes the read endpoints and the on-demand scrape trigger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ZaitsWit/re-scraper/listing"
	"github.com/ZaitsWit/re-scraper/pipeline"
	"github.com/ZaitsWit/re-scraper/store"
)

// Triggerer is the runner surface the API needs.
type Triggerer interface {
	TriggerAsync() bool
	Status() pipeline.Status
}

type Server struct {
	http   *http.Server
	store  store.Store
	runner Triggerer
	log    *zap.SugaredLogger
}

func NewServer(addr string, st store.Store, runner Triggerer, log *zap.SugaredLogger) *Server {
	s := &Server{store: st, runner: runner, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/scrape", s.handleScrape).Methods(http.MethodPost)
	r.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/listings/{id:[0-9]+}/history", s.handleHistory).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Infow("API listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

// handleScrape queues an on-demand run. 202 either way: queued=false means
// a run is already pending and this request coalesced into it.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	queued := s.runner.TriggerAsync()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer in [1,500]")
			return
		}
		limit = n
	}
	listings, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Errorw("list listings", "err", err)
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if listings == nil {
		listings = []listing.Listing{}
	}
	s.writeJSON(w, http.StatusOK, listings)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	snaps, err := s.store.ListSnapshots(r.Context(), id)
	if err != nil {
		s.log.Errorw("list snapshots", "listing_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if snaps == nil {
		snaps = []listing.PriceSnapshot{}
	}
	s.writeJSON(w, http.StatusOK, snaps)
}
