// Package httpapi serves the OAuth linking flow and health probes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/oauthstate"
)

// Linker runs the provider side of the OAuth flow.
type Linker interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) ([]byte, error)
}

// Handshakes issues and consumes OAuth state and stores the resulting credential.
type Handshakes interface {
	Issue(ctx context.Context, identity string) (string, error)
	Consume(ctx context.Context, token string) (string, error)
	StoreCredential(ctx context.Context, identity string, secret []byte) error
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Server holds the HTTP handlers.
type Server struct {
	linker     Linker
	handshakes Handshakes
	checks     map[string]Check
	logger     *slog.Logger
}

// New creates a Server. checks are run by /readyz. A nil linker disables the /oauth routes.
func New(linker Linker, handshakes Handshakes, checks map[string]Check, logger *slog.Logger) *Server {
	return &Server{linker: linker, handshakes: handshakes, checks: checks, logger: logutil.NoopIfNil(logger)}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.linker != nil {
		r.Route("/oauth", func(r chi.Router) {
			r.Get("/start", s.handleStart)
			r.Get("/callback", s.handleCallback)
		})
	}
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Debug("request",
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("Readiness check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, results)
}

type startResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("user_id")
	if identity == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	state, err := s.handshakes.Issue(r.Context(), identity)
	if err != nil {
		s.logger.Error("Failed to issue OAuth state", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "could not start linking")
		return
	}
	writeJSON(w, http.StatusOK, startResponse{URL: s.linker.AuthURL(state), State: state})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeJSONError(w, http.StatusBadRequest, "authorization_denied", e)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}

	identity, err := s.handshakes.Consume(r.Context(), state)
	if err != nil {
		if errors.Is(err, oauthstate.ErrInvalidState) {
			s.logger.Warn("Rejected OAuth callback with invalid state")
			writeJSONError(w, http.StatusBadRequest, "invalid_state", "link expired or already used, start again")
			return
		}
		s.logger.Error("Failed to consume OAuth state", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "could not complete linking")
		return
	}

	secret, err := s.linker.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("Failed to exchange authorization code", "identity", identity, "error", err)
		writeJSONError(w, http.StatusBadGateway, "exchange_failed", "calendar provider rejected the authorization")
		return
	}
	if err := s.handshakes.StoreCredential(r.Context(), identity, secret); err != nil {
		s.logger.Error("Failed to store credential", "identity", identity, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "could not save credential")
		return
	}

	s.logger.Info("Linked calendar", "identity", identity)
	writeJSON(w, http.StatusOK, map[string]string{"status": "linked", "user_id": identity})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
