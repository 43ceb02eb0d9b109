// Package api serves a read-only JSON view of the escrow engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/lock"
	"github.com/xraph/escrow/pause"
	"github.com/xraph/escrow/types"
)

// maxJournalPage caps the journal page size a client may request.
const maxJournalPage = 500

// Engine is the query surface the API reads. *escrow.Engine satisfies it.
type Engine interface {
	BalanceOf(account types.Address) types.Amount
	AllowanceOf(account types.Address) types.Amount
	RolesOf(account types.Address) []access.Role
	GetLock(owner types.Address, lockID uint64) (lock.Lock, error)
	ListLocks(owner types.Address) []lock.Lock
	Members(role access.Role) []types.Address
	Config() config.Config
	Paused() bool
	PausedOperations() []pause.Operation
	Treasury() types.Address
	Version() string
	Stats() escrow.Stats
	Journal(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error)
	VerifyJournal(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

var _ Engine = (*escrow.Engine)(nil)

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server routes query requests to an Engine.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	metrics http.Handler
	router  chi.Router
}

// New builds the router.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/stats", s.stats)
		api.Get("/config", s.config)
		api.Get("/pause", s.pause)
		api.Get("/roles/{role}", s.role)

		api.Route("/accounts/{account}", func(acct chi.Router) {
			acct.Get("/", s.account)
			acct.Get("/locks", s.locks)
			acct.Get("/locks/{lock_id}", s.lock)
		})

		api.Get("/journal", s.journal)
		api.Get("/journal/verify", s.verify)
	})
	return r
}

// ==================== Handlers ====================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"config":   s.engine.Config(),
		"treasury": s.engine.Treasury(),
		"version":  s.engine.Version(),
	})
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	ops := s.engine.PausedOperations()
	if ops == nil {
		ops = []pause.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":     s.engine.Paused(),
		"operations": ops,
	})
}

func (s *Server) role(w http.ResponseWriter, r *http.Request) {
	role := access.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", "unknown role "+strconv.Quote(string(role)))
		return
	}
	members := s.engine.Members(role)
	if members == nil {
		members = []types.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role, "members": members})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	account := types.Address(chi.URLParam(r, "account"))
	roles := s.engine.RolesOf(account)
	if roles == nil {
		roles = []access.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":   account,
		"balance":   s.engine.BalanceOf(account),
		"allowance": s.engine.AllowanceOf(account),
		"roles":     roles,
	})
}

func (s *Server) locks(w http.ResponseWriter, r *http.Request) {
	owner := types.Address(chi.URLParam(r, "account"))
	locks := s.engine.ListLocks(owner)
	if locks == nil {
		locks = []lock.Lock{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "locks": locks})
}

func (s *Server) lock(w http.ResponseWriter, r *http.Request) {
	owner := types.Address(chi.URLParam(r, "account"))
	lockID, err := strconv.ParseUint(chi.URLParam(r, "lock_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LOCK_ID", err.Error())
		return
	}
	l, err := s.engine.GetLock(owner, lockID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := journal.ListOpts{Limit: 100}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_AFTER", err.Error())
			return
		}
		opts.AfterSeq = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		opts.Limit = min(limit, maxJournalPage)
	}
	entries, err := s.engine.Journal(r.Context(), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.VerifyJournal(r.Context())
	if err != nil {
		s.logger.Error("escrow journal verification failed", "verified", n, "error", err)
		writeError(w, http.StatusConflict, "JOURNAL_CORRUPT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": n})
}

// ==================== Helpers ====================

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case escrow.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case escrow.IsValidation(err):
		writeError(w, http.StatusBadRequest, "INVALID", err.Error())
	default:
		s.logger.Error("escrow api request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
