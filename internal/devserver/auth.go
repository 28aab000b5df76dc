package devserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/askdocs/askdocs-go/internal/token"
)

var errEmailExists = errors.New("email already registered")

const refreshPrefix = "refresh_"

// mintToken issues an unsigned three-part token: base64url header and
// claims, empty signature. Good enough for a development loop where the
// client only decodes expiry claims.
func mintToken(sub string, ttl time.Duration) string {
	now := time.Now().Unix()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, _ := json.Marshal(token.Claims{Sub: sub, Iat: now, Exp: now + int64(ttl.Seconds())})
	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

func (s *Server) sessionReply(user *storedUser) map[string]any {
	return map[string]any{
		"accessToken":  mintToken(user.ID, s.tokenTTL),
		"refreshToken": refreshPrefix + user.ID,
		"user":         user.public(),
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name, email and password are required")
		return
	}

	user, err := s.users.create(r.Context(), body.Name, body.Email, body.Password)
	if errors.Is(err, errEmailExists) {
		writeDetail(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("signup failed")
		writeDetail(w, http.StatusInternalServerError, "signup failed")
		return
	}

	log.Info().Str("userId", user.ID).Str("email", user.Email).Msg("dev user registered")
	writeJSON(w, http.StatusOK, s.sessionReply(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		log.Error().Err(err).Msg("login failed")
		writeDetail(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	writeJSON(w, http.StatusOK, s.sessionReply(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Nothing server-side to revoke in dev mode.
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeDetail(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	userID, ok := strings.CutPrefix(body.RefreshToken, refreshPrefix)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.users.findByID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("refresh failed")
		writeDetail(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "unknown refresh token")
		return
	}

	log.Debug().Str("userId", user.ID).Msg("dev token refreshed")
	writeJSON(w, http.StatusOK, s.sessionReply(user))
}

// requireAuth enforces a Bearer token with unexpired claims, mirroring
// the 401 behavior of the real backend so the client's refresh path can
// be exercised locally.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Missing authentication token")
			return
		}

		claims, err := token.DecodeClaims(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if claims.Expired(time.Now()) {
			writeDetail(w, http.StatusUnauthorized, "Token expired")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
