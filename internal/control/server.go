package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedwagon-io/skbridge/internal/audit"
	"github.com/speedwagon-io/skbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/skbridge/internal/shutdown"
)

const (
	triggeredMessage  = "Shutdown Triggered via Signal K"
	defaultAuditLimit = 20
	maxAuditLimit     = 500
)

type Trigger interface {
	InitiateShutdown(ctx context.Context, source string) bool
	Triggered() bool
}

// Journal is the read side of the shutdown audit trail.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
	Count(ctx context.Context) (int64, error)
}

type AuditResponse struct {
	Count   int64          `json:"count"`
	Records []audit.Record `json:"records"`
}

// Server is the local HTTP surface: the shutdown page and trigger, health
// checks and metrics.
type Server struct {
	log      *slog.Logger
	address  string
	trigger  Trigger
	journal  Journal
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
	checkers []HealthChecker
	mu       sync.RWMutex
}

func NewServer(log *slog.Logger, address string, trigger Trigger, gatherer prometheus.Gatherer) *Server {
	return &Server{
		log:      log.With(slog.String("component", "control")),
		address:  address,
		trigger:  trigger,
		gatherer: gatherer,
		checkers: make([]HealthChecker, 0),
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

// SetJournal enables GET /audit. Call before Start.
func (s *Server) SetJournal(j Journal) {
	s.journal = j
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/trigger_shutdown", s.handleTrigger)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	r.Get("/audit", s.handleAudit)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting control server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("control server error", sl.Err(err))
		}
	}()

	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(indexPage))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("shutdown requested from control page", slog.String("remote", r.RemoteAddr))
	s.trigger.InitiateShutdown(r.Context(), shutdown.SourceLocal)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(triggeredMessage))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     StatusHealthy,
		Components: make([]ComponentHealth, 0, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	for _, checker := range checkers {
		status, message := checker.Check(ctx)
		response.Components = append(response.Components, ComponentHealth{
			Name:    checker.Name(),
			Status:  status,
			Message: message,
		})

		if status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.trigger.Triggered() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "audit journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAuditLimit)
	}

	count, err := s.journal.Count(r.Context())
	if err != nil {
		s.log.Error("failed to count audit records", sl.Err(err))
		http.Error(w, "audit journal unavailable", http.StatusInternalServerError)
		return
	}
	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to read audit records", sl.Err(err))
		http.Error(w, "audit journal unavailable", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(AuditResponse{Count: count, Records: records})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
