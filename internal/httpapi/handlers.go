// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/stagepass/stagepass/internal/auth"
	"github.com/stagepass/stagepass/internal/observability"
	"github.com/stagepass/stagepass/pkg/errutil"
)

// TokenHeader carries the session or admin token on authenticated requests.
const TokenHeader = "X-Auth-Token"

// maxBodyBytes bounds request bodies. Auth payloads are tiny.
const maxBodyBytes = 64 * 1024

// Handlers holds the route handlers and their dependencies.
type Handlers struct {
	accounts *auth.Service
	admin    *auth.AdminService
	resets   *auth.PasswordResetService
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandlers creates the route handlers. metrics may be nil.
func NewHandlers(accounts *auth.Service, admin *auth.AdminService, resets *auth.PasswordResetService, metrics *observability.Metrics, logger *slog.Logger) (*Handlers, error) {
	if accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if admin == nil {
		return nil, oops.Errorf("admin service is required")
	}
	if resets == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		accounts: accounts,
		admin:    admin,
		resets:   resets,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Routes builds the API route table.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /me", h.handleMe)

	mux.HandleFunc("POST /admin/login", h.handleAdminLogin)
	mux.HandleFunc("POST /admin/change-password", h.handleAdminChangePassword)

	mux.HandleFunc("POST /password-reset/request", h.handleResetRequest)
	mux.HandleFunc("POST /password-reset/confirm", h.handleResetConfirm)

	return mux
}

// userPayload is the JSON rendering of a user account.
type userPayload struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func renderUser(u *auth.User) userPayload {
	return userPayload{
		ID:          u.ID.String(),
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, "/register", &req) {
		return
	}

	user, token, err := h.accounts.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		IPAddress:   clientIP(r),
	})
	h.recordRegistration(err)
	if err != nil {
		h.respondError(w, r, "/register", err)
		return
	}

	h.respond(w, "/register", http.StatusCreated, map[string]any{
		"user":  renderUser(user),
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, "/login", &req) {
		return
	}

	user, token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	h.recordLogin(err)
	if err != nil {
		h.respondError(w, r, "/login", err)
		return
	}

	h.respond(w, "/login", http.StatusOK, map[string]any{
		"user":  renderUser(user),
		"token": token,
	})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), r.Header.Get(TokenHeader)); err != nil {
		h.respondError(w, r, "/logout", err)
		return
	}
	h.respond(w, "/logout", http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Resolve(r.Context(), r.Header.Get(TokenHeader))
	if err != nil {
		h.respondError(w, r, "/me", err)
		return
	}
	h.respond(w, "/me", http.StatusOK, map[string]any{"user": renderUser(user)})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (h *Handlers) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.decode(w, r, "/admin/login", &req) {
		return
	}

	token, username, err := h.admin.Login(r.Context(), req.Password)
	if err != nil {
		h.respondError(w, r, "/admin/login", err)
		return
	}

	h.respond(w, "/admin/login", http.StatusOK, map[string]any{
		"token":    token,
		"username": username,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handlers) handleAdminChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, "/admin/change-password", &req) {
		return
	}

	err := h.admin.ChangePassword(r.Context(), r.Header.Get(TokenHeader), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.respondError(w, r, "/admin/change-password", err)
		return
	}

	h.respond(w, "/admin/change-password", http.StatusOK, map[string]any{"ok": true})
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

func (h *Handlers) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if !h.decode(w, r, "/password-reset/request", &req) {
		return
	}

	err := h.resets.RequestReset(r.Context(), req.Email)
	h.recordResetRequest(err)
	if err != nil {
		h.respondError(w, r, "/password-reset/request", err)
		return
	}

	// The acknowledgement is identical whether or not the email matched.
	h.respond(w, "/password-reset/request", http.StatusOK, map[string]any{"ok": true})
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handlers) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !h.decode(w, r, "/password-reset/confirm", &req) {
		return
	}

	if err := h.resets.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.respondError(w, r, "/password-reset/confirm", err)
		return
	}

	h.respond(w, "/password-reset/confirm", http.StatusOK, map[string]any{"ok": true})
}

// decode reads the JSON request body into dst. On failure it writes the error
// response and returns false.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, route string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, r, route, oops.Code(auth.CodeInvalidInput).
			With("route", route).
			Wrapf(err, "invalid request body"))
		return false
	}
	return true
}

// respond writes a JSON success response.
func (h *Handlers) respond(w http.ResponseWriter, route string, status int, payload any) {
	h.countRequest(route, status)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Debug("response write failed", "route", route, "error", err)
	}
}

// errorPayload is the JSON error envelope.
type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// respondError maps a service error to an HTTP status and writes the error
// envelope. Unclassified errors are masked as internal errors.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, route string, err error) {
	code := auth.ErrCode(err)
	status := statusForCode(code)

	var payload errorPayload
	payload.Error.Code = code
	payload.Error.Message = err.Error()

	if status >= http.StatusInternalServerError {
		errutil.LogError(h.logger.With("route", route), "request failed", err)
		// Mask internals; the code alone is safe to return. Delivery
		// failures stay readable so operators see the SMTP problem.
		if code != auth.CodeEmailDelivery {
			payload.Error.Message = "internal error"
		}
		if payload.Error.Code == "" {
			payload.Error.Code = "INTERNAL_ERROR"
		}
	}

	h.countRequest(route, status)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(payload); encErr != nil {
		h.logger.Debug("error response write failed", "route", route, "error", encErr)
	}
}

// statusForCode maps service error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case auth.CodeInvalidInput, auth.CodePasswordTooShort:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeTokenMissing, auth.CodeSessionInvalid,
		auth.CodeSessionExpired, auth.CodeResetTokenInvalid:
		return http.StatusUnauthorized
	case auth.CodeAdminUnauthorized:
		return http.StatusForbidden
	case auth.CodeDuplicateAccount:
		return http.StatusConflict
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	case auth.CodeAdminNotConfigured, auth.CodeStorageUnavailable, auth.CodeEmailDelivery:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientIP extracts the originating client address for rate limiting.
// The first X-Forwarded-For entry wins when a proxy sets it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handlers) countRequest(route string, status int) {
	if h.metrics == nil {
		return
	}
	h.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (h *Handlers) recordRegistration(err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.RegistrationsTotal.WithLabelValues(registrationOutcome(err)).Inc()
	if auth.ErrCode(err) == auth.CodeRateLimited {
		h.metrics.RateLimitedTotal.Inc()
	}
}

func registrationOutcome(err error) string {
	switch auth.ErrCode(err) {
	case "":
		if err != nil {
			return "error"
		}
		return "created"
	case auth.CodeRateLimited:
		return "rate_limited"
	case auth.CodeDuplicateAccount:
		return "duplicate"
	case auth.CodeInvalidInput, auth.CodePasswordTooShort:
		return "invalid"
	default:
		return "error"
	}
}

func (h *Handlers) recordLogin(err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch auth.ErrCode(err) {
	case "":
		if err != nil {
			outcome = "error"
		}
	case auth.CodeInvalidCredentials, auth.CodeInvalidInput:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (h *Handlers) recordResetRequest(err error) {
	mailFailed := auth.ErrCode(err) == auth.CodeEmailDelivery
	if mailFailed {
		observability.RecordMailDeliveryFailure()
	}
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case mailFailed:
		outcome = "mail_failed"
	case err != nil:
		outcome = "error"
	}
	h.metrics.ResetRequestsTotal.WithLabelValues(outcome).Inc()
}
