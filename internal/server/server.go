// Package server exposes captcha issuing and verification over HTTP.
//
// Routes:
//
//	GET  /healthz         build information
//	GET  /captcha         PNG image, challenge id in the X-Captcha-Id header
//	GET  /captcha.json    {"id", "image" (data URI), "expires_at"}
//	POST /captcha/verify  {"id", "answer"} -> {"success", "message"}
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wobblecap/wobblecap/pkg/buildinfo"
	"github.com/wobblecap/wobblecap/pkg/captcha"
	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/issuer"
	"github.com/wobblecap/wobblecap/pkg/observability"
	"github.com/wobblecap/wobblecap/pkg/session"
)

// IDHeader carries the challenge id alongside a raw PNG response.
const IDHeader = "X-Captcha-Id"

// maxBodyBytes bounds verify request bodies.
const maxBodyBytes = 4 << 10

// Verify response messages.
const (
	msgPassed  = "verification passed"
	msgFailed  = "verification failed"
	msgExpired = "challenge expired"
	msgUnknown = "unknown or already used challenge"
)

// Server wires an issuer to HTTP routes.
type Server struct {
	issuer *issuer.Issuer
	store  session.Store
	logger *log.Logger
	router chi.Router
}

// New builds the router. store is used only for periodic cleanup and may be
// the same store the issuer writes to.
func New(iss *issuer.Issuer, store session.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{issuer: iss, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", s.handleHealth)
	r.Get("/captcha", s.handleImage)
	r.Get("/captcha.json", s.handleJSON)
	r.Post("/captcha/verify", s.handleVerify)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RunCleanup removes expired challenges every interval until ctx is done.
func (s *Server) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.store == nil {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.store.Cleanup(ctx); err != nil {
				s.logger.Warn("challenge cleanup failed", "error", err)
			}
		}
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		buildinfo.Info
	}{"ok", buildinfo.Get()})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.issue(w, r)
	if !ok {
		return
	}
	h := w.Header()
	h.Set("Content-Type", captcha.MediaType)
	h.Set("Content-Length", strconv.Itoa(len(ticket.PNG)))
	h.Set("Cache-Control", "no-store")
	h.Set(IDHeader, ticket.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(ticket.PNG)
}

// ChallengeResponse is the body of GET /captcha.json.
type ChallengeResponse struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	ticket, ok := s.issue(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, ChallengeResponse{
		ID:        ticket.ID,
		Image:     ticket.DataURI(),
		ExpiresAt: ticket.ExpiresAt.UTC(),
	})
}

// VerifyRequest is the body of POST /captcha/verify.
type VerifyRequest struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// VerifyResponse reports the outcome of a verification.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid json"))
		return
	}
	if req.ID == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "id is required"))
		return
	}

	ok, err := s.issuer.Verify(r.Context(), req.ID, req.Answer)
	switch {
	case errors.Is(err, errors.ErrCodeExpired):
		writeJSON(w, http.StatusOK, VerifyResponse{Message: msgExpired})
	case errors.Is(err, errors.ErrCodeNotFound):
		writeJSON(w, http.StatusOK, VerifyResponse{Message: msgUnknown})
	case err != nil:
		s.writeError(w, err)
	case ok:
		writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Message: msgPassed})
	default:
		writeJSON(w, http.StatusOK, VerifyResponse{Message: msgFailed})
	}
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request) (*issuer.Ticket, bool) {
	ticket, err := s.issuer.Issue(r.Context())
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	s.logger.Info("issued captcha", "id", ticket.ID)
	return ticket, true
}

// =============================================================================
// Responses
// =============================================================================

// StatusCode maps an error code to an HTTP status.
func StatusCode(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: errors.UserMessage(err),
		Code:  string(errors.GetCode(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, d)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", d)
	})
}

// =============================================================================
// Listener
// =============================================================================

// Options configure ListenAndServe.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CleanupInterval time.Duration
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, opts Options) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           s,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.RunCleanup(cleanupCtx, opts.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(errors.ErrCodeResourceUnavailable, err, "listen on %s", opts.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "shutdown")
	}
	return nil
}
