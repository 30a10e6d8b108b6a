package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calai/calai-go/internal/logging"
)

// authStatusResponse is the JSON body returned by GET /api/auth/status.
type authStatusResponse struct {
	// Configured is true when OAuth client credentials are present on disk.
	Configured bool `json:"configured"`
	// Connected is true when a stored token exists.
	Connected bool `json:"connected"`
}

// handleAuthStatus handles GET /api/auth/status. It inspects the auth
// directory without touching the network, so it is safe to poll.
func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		writeJSON(w, http.StatusOK, authStatusResponse{})
		return
	}

	st := s.cfg.Auth.Status()
	writeJSON(w, http.StatusOK, authStatusResponse{
		Configured: st.HasCredentials,
		Connected:  st.HasToken,
	})
}

// handleAuthConnect handles POST /api/auth/connect, a two-step OAuth flow:
// a body without a code returns the authorization URL to visit; a body with
// a code completes the exchange and stores the token.
func (s *Server) handleAuthConnect(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.cfg.Auth == nil {
		http.Error(w, "calendar auth not configured", http.StatusNotImplemented)
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Code == "" {
		url, err := s.cfg.Auth.AuthURL()
		if err != nil {
			log.Error("auth url failed", slog.Any("error", err))
			http.Error(w, "credentials not configured", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, connectResponse{AuthURL: url})
		return
	}

	if err := s.cfg.Auth.Exchange(r.Context(), req.Code); err != nil {
		// The code itself is never logged.
		log.Error("token exchange failed", slog.Any("error", err))
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	log.Info("calendar connected")
	writeJSON(w, http.StatusOK, connectResponse{Connected: true})
}
