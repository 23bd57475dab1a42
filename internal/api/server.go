// Package api exposes the scraper over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"storefront/scraper/internal/domain"
	"storefront/scraper/internal/metrics"
	"storefront/scraper/internal/queue"
	"storefront/scraper/internal/state"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 1000
)

// Runner starts one crawl run.
type Runner interface {
	Run(ctx context.Context) (*domain.RunResult, error)
}

// ProductLister reads every stored product.
type ProductLister interface {
	List(ctx context.Context) ([]domain.Product, error)
}

// Server wires HTTP handlers to the crawler and stores.
type Server struct {
	router       chi.Router
	runner       Runner
	products     ProductLister
	stateManager state.StateManager
	journal      queue.FailureJournal
	baseCtx      context.Context
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, products ProductLister, stateManager state.StateManager, journal queue.FailureJournal) *Server {
	s := &Server{
		runner:       runner,
		products:     products,
		stateManager: stateManager,
		journal:      journal,
		baseCtx:      context.Background(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Post("/scrape", s.scrape)
	r.Get("/products", s.listProducts)
	r.Get("/runs/last", s.lastRun)
	r.Get("/failures", s.failures)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetBaseContext bounds crawl runs started over HTTP by ctx instead of the
// request that started them.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.baseCtx = ctx
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	// A client going away must not abort the run half way.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	result, err := s.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.products.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) lastRun(w http.ResponseWriter, r *http.Request) {
	cp, err := s.stateManager.LastCheckpoint(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cp == nil {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (s *Server) failures(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultFailureLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFailureLimit)
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).Round(time.Millisecond).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
