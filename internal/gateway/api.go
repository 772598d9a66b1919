// ABOUTME: HTTP handlers for login, registration, logout, and the order endpoints
// ABOUTME: Protected routes declare their required permissions when registered

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/login"
	"github.com/2389/authgate/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// CredentialsRequest is the JSON request body for the login and register endpoints.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// RegisterResponse is the JSON response for POST /register.
type RegisterResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// PublicKeyResponse is the JSON response for GET /public/key.
type PublicKeyResponse struct {
	Alg       string `json:"alg"`
	PublicKey string `json:"public_key"` // base64 PKIX DER
}

// routes builds the HTTP handler. Routes under /public are reachable without
// a token unless wrapped with guard.Protect.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /public/loginJwt", g.handleLoginNormal)
	mux.HandleFunc("POST /public/loginAsOrderUser", g.handleLoginOrder)
	mux.HandleFunc("POST /public/logout", g.handleLogout)
	mux.HandleFunc("POST /register", g.handleRegister)

	mux.Handle("GET /public/authorized-order", g.guard.Protect(auth.Require(login.PermissionOrder), g.handleAuthorizedOrder))
	mux.HandleFunc("GET /public/normal-order", g.handleNormalOrder)

	mux.HandleFunc("GET /public/key", g.handlePublicKey)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	return mux
}

// handleLoginNormal handles POST /public/loginJwt.
func (g *Gateway) handleLoginNormal(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeCredentials(w, r)
	if !ok {
		return
	}

	tok, err := g.login.LoginNormal(r.Context(), req.Username, req.Password)
	g.respondLogin(w, tok, err, "login success")
}

// handleLoginOrder handles POST /public/loginAsOrderUser.
func (g *Gateway) handleLoginOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeCredentials(w, r)
	if !ok {
		return
	}

	tok, err := g.login.LoginOrder(r.Context(), req.Username, req.Password)
	g.respondLogin(w, tok, err, "order login success")
}

func (g *Gateway) respondLogin(w http.ResponseWriter, tok *login.Token, err error, message string) {
	if errors.Is(err, login.ErrInvalidCredentials) {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		g.logger.Error("login failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if g.shouldSetCookie() {
		http.SetCookie(w, &http.Cookie{
			Name:     g.guard.Binding().CookieName,
			Value:    tok.Value,
			Path:     "/",
			MaxAge:   int(tok.ExpiresIn / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	g.sendJSON(w, http.StatusOK, LoginResponse{
		Message:   message,
		Token:     tok.Value,
		ExpiresIn: int64(tok.ExpiresIn / time.Second),
	})
}

// handleLogout handles POST /public/logout. Tokens are stateless so nothing
// is revoked; the caller is logged and any session cookie is cleared.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if token := g.guard.Binding().FromRequest(r); token != "" {
		if identity, err := g.verifier.Verify(token); err == nil {
			subject = identity.Username
		}
	}
	g.logger.Info("logout", "username", subject, "remote_addr", r.RemoteAddr)

	if g.shouldSetCookie() {
		http.SetCookie(w, &http.Cookie{
			Name:     g.guard.Binding().CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	g.sendJSON(w, http.StatusOK, map[string]string{"message": "logout success"})
}

// handleRegister handles POST /register. New accounts get the USER role.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := g.login.Register(r.Context(), req.Username, req.Password, nil)
	switch {
	case errors.Is(err, login.ErrInvalidRegistration):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrUsernameExists):
		g.sendJSONError(w, http.StatusConflict, "username already exists")
		return
	case err != nil:
		g.logger.Error("registration failed", "username", req.Username, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("registered user", "username", user.Username)
	g.sendJSON(w, http.StatusCreated, RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
		Roles:    user.Roles,
	})
}

// handleAuthorizedOrder handles GET /public/authorized-order.
// Only reached once the guard has verified the order permission.
func (g *Gateway) handleAuthorizedOrder(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	g.logger.Debug("authorized order", "username", identity.Username)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(AuthorizedOrderMessage))
}

// handleNormalOrder handles GET /public/normal-order.
func (g *Gateway) handleNormalOrder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(NormalOrderMessage))
}

// handlePublicKey handles GET /public/key so other services can verify
// tokens issued by this process.
func (g *Gateway) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "pem" {
		pemBytes, err := g.keys.PublicKeyPEM()
		if err != nil {
			g.logger.Error("encoding public key", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(pemBytes)
		return
	}

	encoded, err := g.keys.PublicKeyBase64()
	if err != nil {
		g.logger.Error("encoding public key", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, PublicKeyResponse{Alg: "ES256", PublicKey: encoded})
}

// handleHealth returns 200 OK if the server is running.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the user store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.CountUsers(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (g *Gateway) shouldSetCookie() bool {
	return g.config.Auth.SetCookie && g.guard.Binding().Mode == auth.BindingCookie
}

// decodeCredentials parses a CredentialsRequest, writing a 400 on failure.
func (g *Gateway) decodeCredentials(w http.ResponseWriter, r *http.Request) (*CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.Username == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return nil, false
	}
	return &req, true
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response with the given status code and message.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
