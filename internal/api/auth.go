package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/autoglm/autoglm-core/internal/auth"
)

// defaultTokenTTLMinutes is used when the config does not set a TTL.
const defaultTokenTTLMinutes = 720

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin verifies the operator password and returns a JWT token.
// The service has a single operator account; the password hash lives in
// the security config.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if s.security.PasswordHash == "" {
		writeInternalError(w, "operator password not configured")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, s.security.PasswordHash)
	if err != nil {
		writeInternalError(w, "failed to verify credentials")
		return
	}
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.security.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTLMinutes
	}

	signed, err := auth.GenerateToken(s.security.JWT.Secret, time.Duration(ttl)*time.Minute)
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
	})
}
