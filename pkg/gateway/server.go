// Package gateway exposes registered instruments over an HTTP boundary so
// multiple client processes can drive the same hardware without concurrent
// access corruption. The server enforces single-writer lease discipline;
// the client is a ports.Driver proxy with idempotent-safe retries.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stagehq/stagehand/internal/logging"
	"github.com/stagehq/stagehand/internal/metrics"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
	"github.com/stagehq/stagehand/pkg/registry"
)

// session tracks one client's lease on one instrument.
type session struct {
	lease    ports.Lease
	name     string
	clientID string
	expires  time.Time
}

// Server translates remote calls into driver calls on registered
// instruments, guarding every mutating operation with the lease discipline.
type Server struct {
	registry *registry.Registry
	locker   ports.Locker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	sessions map[string]*session // keyed by lease token
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger configures a logger for gateway events.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics wires prometheus collectors and the gatherer backing /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// NewServer creates a gateway over the given registry and locker.
func NewServer(reg *registry.Registry, locker ports.Locker, opts ...ServerOption) *Server {
	s := &Server{
		registry: reg,
		locker:   locker,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the gateway API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/instruments", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleInfo)
			r.Post("/lock", s.handleLock)
			r.Delete("/lock", s.handleUnlock)
			r.Put("/parameters/{param}", s.handleSetParameter)
			r.Get("/parameters/{param}", s.handleGetParameter)
			r.Post("/trigger", s.handleTrigger)
			r.Get("/read", s.handleRead)
		})
	})

	return r
}

func (s *Server) handleList(w http.ResponseWriter, req *http.Request) {
	names := s.registry.Names()
	infos := make([]instrumentInfo, 0, len(names))
	for _, name := range names {
		h, err := s.registry.Resolve(name)
		if err != nil {
			infos = append(infos, instrumentInfo{Name: name, State: domain.StateFaulted})
			continue
		}
		infos = append(infos, instrumentInfo{Name: name, State: h.State()})
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleInfo(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	h, err := s.registry.Resolve(name)
	if err != nil {
		s.writeError(w, "info", err)
		return
	}
	s.writeJSON(w, http.StatusOK, instrumentInfo{
		Name:       h.Name(),
		State:      h.State(),
		Parameters: h.Driver().Parameters(),
	})
	s.metrics.GatewayRequests.WithLabelValues("info", "ok").Inc()
}

func (s *Server) handleLock(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	var body lockRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := s.registry.Resolve(name); err != nil {
		s.writeError(w, "lock", err)
		return
	}

	ttl := time.Duration(body.TTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lease, err := s.locker.Acquire(req.Context(), name, body.ClientID, ttl)
	if err != nil {
		s.writeError(w, "lock", err)
		return
	}

	sess := &session{
		lease:    lease,
		name:     name,
		clientID: body.ClientID,
		expires:  time.Now().Add(ttl),
	}
	s.mu.Lock()
	s.sessions[lease.Token()] = sess
	s.mu.Unlock()

	// Prune the session when the lease ends, however it ends.
	context.AfterFunc(lease.Context(), func() {
		s.mu.Lock()
		delete(s.sessions, lease.Token())
		s.mu.Unlock()
	})

	s.logger.Info("lease granted", "instrument", name, "client_id", body.ClientID)
	s.metrics.GatewayRequests.WithLabelValues("lock", "ok").Inc()
	s.writeJSON(w, http.StatusOK, lockResponse{Token: lease.Token(), ExpiresAt: sess.expires})
}

func (s *Server) handleUnlock(w http.ResponseWriter, req *http.Request) {
	token := req.Header.Get(TokenHeader)

	s.mu.Lock()
	sess, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if ok {
		if err := sess.lease.Release(req.Context()); err != nil {
			s.logger.Warn("lease release failed", "instrument", sess.name, "err", err)
		}
		s.logger.Info("lease released", "instrument", sess.name, "client_id", sess.clientID)
	}
	// Unlock is idempotent: an unknown or stale token is a no-op.
	s.metrics.GatewayRequests.WithLabelValues("unlock", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetParameter(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	param := chi.URLParam(req, "param")

	var body valueRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := s.guarded(req, name, func(ctx context.Context, driver ports.Driver) error {
		return driver.SetParameter(ctx, param, body.Value)
	})
	if err != nil {
		s.writeError(w, "set_parameter", err)
		return
	}
	s.metrics.GatewayRequests.WithLabelValues("set_parameter", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetParameter(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	param := chi.URLParam(req, "param")

	h, err := s.registry.Resolve(name)
	if err != nil {
		s.writeError(w, "get_parameter", err)
		return
	}
	value, err := h.Driver().GetParameter(req.Context(), param)
	if err != nil {
		s.writeError(w, "get_parameter", err)
		return
	}
	s.metrics.GatewayRequests.WithLabelValues("get_parameter", "ok").Inc()
	s.writeJSON(w, http.StatusOK, valueResponse{Value: value})
}

func (s *Server) handleTrigger(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")

	var body triggerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := s.guarded(req, name, func(ctx context.Context, driver ports.Driver) error {
		return driver.Trigger(ctx, body.Seq)
	})
	if err != nil {
		s.writeError(w, "trigger", err)
		return
	}
	s.metrics.GatewayRequests.WithLabelValues("trigger", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRead(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	seq, err := strconv.ParseUint(req.URL.Query().Get("seq"), 10, 64)
	if err != nil {
		http.Error(w, "invalid seq", http.StatusBadRequest)
		return
	}

	h, err := s.registry.Resolve(name)
	if err != nil {
		s.writeError(w, "read", err)
		return
	}
	values, err := h.Driver().Read(req.Context(), seq)
	if err != nil {
		s.writeError(w, "read", err)
		return
	}
	s.metrics.GatewayRequests.WithLabelValues("read", "ok").Inc()
	s.writeJSON(w, http.StatusOK, readResponse{Seq: seq, Values: values})
}

// guarded runs a mutating driver operation under the caller's lease. The
// operation context is cancelled if the lease expires mid-call, which
// surfaces as a timeout to the original caller.
func (s *Server) guarded(req *http.Request, name string, fn func(ctx context.Context, driver ports.Driver) error) error {
	token := req.Header.Get(TokenHeader)

	s.mu.Lock()
	sess, ok := s.sessions[token]
	s.mu.Unlock()

	if !ok || sess.name != name {
		return fmt.Errorf("%w: no valid lease for %q", domain.ErrLocked, name)
	}
	if sess.lease.Context().Err() != nil {
		return fmt.Errorf("%w: lease on %q expired", domain.ErrTimedOut, name)
	}

	h, err := s.registry.Resolve(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	stop := context.AfterFunc(sess.lease.Context(), cancel)
	defer stop()

	err = fn(ctx, h.Driver())
	if sess.lease.Context().Err() != nil {
		return fmt.Errorf("%w: lease on %q expired mid-operation", domain.ErrTimedOut, name)
	}
	return err
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind, status := kindOf(err)
	s.metrics.GatewayRequests.WithLabelValues(op, kind).Inc()
	s.logger.Warn("request failed", "op", op, "kind", kind, "err", err)
	s.writeJSON(w, status, errorBody{Error: kind, Message: err.Error()})
}
