package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"smart-plug/internal/domain"
)

// PlugService is the control surface the HTTP trigger drives.
type PlugService interface {
	SetPower(ctx context.Context, desired domain.Power) (domain.Outcome, error)
	Status(ctx context.Context) (domain.Device, bool, error)
	TargetID() string
}

type Options struct {
	Addr      string
	AuthToken string
	Limiter   *RateLimiter
	Metrics   http.Handler
	// Timeout bounds one control attempt. Client disconnects do not cancel it.
	Timeout time.Duration
}

type Server struct {
	opts     Options
	service  PlugService
	logger   *slog.Logger
	handler  http.Handler
	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	running bool
}

func NewServer(service PlugService, opts Options, logger *slog.Logger) *Server {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter(30, time.Minute, false)
	}

	s := &Server{
		opts:    opts,
		service: service,
		logger:  logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/plug", s.protect(s.handleStatus)).Methods(http.MethodGet)
	router.HandleFunc("/plug/{power:on|off}", s.protect(s.handleSetPower)).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)(router)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.opts.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP trigger starting", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return s.opts.Limiter.Middleware(s.requireToken(next))
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			if token != s.opts.AuthToken {
				s.logger.Warn("unauthorized plug request", "remote_addr", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

type outcomeResponse struct {
	Device  string `json:"device"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	desired, ok := domain.ParsePower(mux.Vars(r)["power"])
	if !ok {
		http.Error(w, "unknown power state", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.Timeout)
	defer cancel()

	outcome, err := s.service.SetPower(ctx, desired)

	resp := outcomeResponse{
		Device:  s.service.TargetID(),
		Outcome: string(outcome),
		Message: outcome.Message(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	writeJSON(w, outcomeStatus(outcome), resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	device, found, err := s.service.Status(ctx)
	switch {
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"device": s.service.TargetID(),
			"error":  err.Error(),
		})
	case !found:
		writeJSON(w, http.StatusNotFound, map[string]string{
			"device":  s.service.TargetID(),
			"message": domain.OutcomePlugNotFound.Message(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"device": device.ID,
			"name":   device.Name,
			"status": device.Status.String(),
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"device": s.service.TargetID(),
	})
}

func outcomeStatus(o domain.Outcome) int {
	switch o {
	case domain.OutcomePlugNotFound:
		return http.StatusNotFound
	case domain.OutcomeError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
