package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pi-agent/session-manager/internal/apperr"
	"github.com/pi-agent/session-manager/internal/dispatch"
)

// Version identifies this build in the /health response. There is no
// release pipeline yet, so it's a fixed string rather than one stamped by
// the linker at build time.
const Version = "0.1.0"

// Server wires the dispatcher to HTTP and WebSocket handlers and builds the
// mux that cmd/sessiond hands to http.Serve.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Auth       *Authenticator
	// AllowOrigin is echoed back in Access-Control-Allow-Origin for CORS
	// preflight and actual requests; empty disables CORS headers entirely.
	AllowOrigin string
}

type apiRequest struct {
	Command string          `json:"command"`
	Payload dispatch.Payload `json:"payload"`
}

type apiResponse struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Mux builds the complete HTTP handler: POST /api, GET /ws, and (if staticDir
// is non-empty) a static file fallback for everything else — the same shape
// as a desktop-app backend also serving its own UI bundle.
func (s *Server) Mux(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", s.cors(s.Auth.Middleware(s.handleAPI)))
	mux.HandleFunc("/api/auth-check", s.cors(s.handleAuthCheck))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// handleHealth is an unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
		"mode":    "server",
	})
}

// handleAuthCheck tells a client whether it needs to authenticate and
// whether its current request already would. It never requires auth
// itself — that would make it useless for discovering whether auth is
// needed in the first place.
func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	needsAuth := s.Auth.RequiresAuth(r)
	writeJSON(w, http.StatusOK, map[string]bool{
		"needsAuth":     needsAuth,
		"authenticated": !needsAuth || s.Auth.Allow(r),
	})
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.AllowOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid request body"})
		return
	}

	result, err := s.Dispatcher.Dispatch(r.Context(), req.Command, req.Payload)
	if err != nil {
		status, kind := statusForError(err)
		slog.Debug("dispatch error", "command", req.Command, "error", err)
		writeJSON(w, status, apiResponse{Error: err.Error(), Kind: string(kind)})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{OK: true, Result: result})
}

func statusForError(err error) (int, apperr.Kind) {
	kinds := []apperr.Kind{
		apperr.NotFound, apperr.Invalid, apperr.IO, apperr.Auth,
		apperr.Corruption, apperr.Subprocess, apperr.Unsupported,
	}
	for _, k := range kinds {
		if apperr.Is(err, k) {
			return statusCode(k), k
		}
	}
	return http.StatusInternalServerError, ""
}

func statusCode(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Invalid:
		return http.StatusBadRequest
	case apperr.Auth:
		return http.StatusUnauthorized
	case apperr.Unsupported:
		return http.StatusNotImplemented
	case apperr.Subprocess, apperr.Corruption, apperr.IO:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
