// CLAUDE:SUMMARY HTTP surface: catalog CRUD, batch submission, results, export.
// Package httpapi exposes the service over REST: broker and format
// catalogs, batch submission and monitoring, and result queries with
// Excel export.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearway/dutyrec/dutyrun"
	"github.com/clearway/dutyrec/store"
)

// BatchRunner executes one batch to completion. Implemented by
// dutyrun.Orchestrator.
type BatchRunner interface {
	RunBatch(ctx context.Context, batchID string, hooks dutyrun.BatchHooks) error
}

// Presigner re-signs stored artifact keys. Implemented by
// artifact.Gateway; nil disables the presign endpoint.
type Presigner interface {
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config configures the server.
type Config struct {
	Logger     *slog.Logger
	PresignTTL time.Duration
}

// Server carries the handler dependencies and the single-slot batch
// worker state.
type Server struct {
	store     *store.Store
	runner    BatchRunner
	presigner Presigner
	logger    *slog.Logger
	ttl       time.Duration

	// One batch runs at a time; submissions queue on the slot.
	slot chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewServer wires the REST surface. presigner may be nil when no
// artifact storage is configured.
func NewServer(cfg Config, st *store.Store, runner BatchRunner, presigner Presigner) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	return &Server{
		store:     st,
		runner:    runner,
		presigner: presigner,
		logger:    cfg.Logger,
		ttl:       cfg.PresignTTL,
		slot:      make(chan struct{}, 1),
		cancels:   map[string]context.CancelFunc{},
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/brokers", func(r chi.Router) {
			r.Get("/", s.listBrokers)
			r.Post("/", s.createBroker)
			r.Get("/{id}", s.getBroker)
			r.Put("/{id}", s.updateBroker)
			r.Delete("/{id}", s.deleteBroker)
		})
		r.Route("/formats", func(r chi.Router) {
			r.Get("/", s.listFormats)
			r.Post("/", s.createFormat)
			r.Get("/{id}", s.getFormat)
			r.Put("/{id}", s.updateFormat)
			r.Delete("/{id}", s.deleteFormat)
		})
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.listBatches)
			r.Post("/", s.submitBatch)
			r.Get("/{id}", s.getBatch)
			r.Get("/{id}/items", s.getBatchItems)
			r.Post("/{id}/cancel", s.cancelBatch)
		})
		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.listResults)
			r.Get("/export", s.exportResults)
			r.Get("/{id}", s.getResult)
			r.Post("/{id}/presign", s.presignResult)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
