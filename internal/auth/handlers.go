// internal/auth/handlers.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/marketplace-auth/internal/common/utils"
	"github.com/imadgeboyega/marketplace-auth/internal/otp"
)

// Handler holds dependencies for auth endpoints
type Handler struct {
	service Service
}

// NewHandler creates a new auth handler
func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, err := h.service.Login(r.Context(), &req, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	utils.SuccessResponse(w, response, http.StatusOK)
}

// Signup handles POST /signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.SuccessResponse(w, response, http.StatusCreated)
}

// RefreshToken handles POST /refresh-token
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, err := h.service.RefreshToken(r.Context(), req.Token, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	utils.SuccessResponse(w, response, http.StatusOK)
}

// VerifyToken handles POST /verify-token
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	info, err := h.service.VerifyToken(r.Context(), req.Token)
	if errors.Is(err, ErrInvalidToken) {
		utils.ErrorDataResponse(w, "Invalid or expired token", TokenInfo{Valid: false}, http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	utils.SuccessResponse(w, info, http.StatusOK)
}

// ResendOTP handles POST /send-otp
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	utils.MessageResponse(w, "If this email belongs to an unverified account, a verification code has been sent", http.StatusOK)
}

// VerifyOTP handles PATCH /verify-otp
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	response, err := h.service.VerifyOTP(r.Context(), &req, clientInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}

	if response.Reset != nil {
		utils.DataMessageResponse(w, "Code verified. Use the reset token to choose a new password.", response.Reset, http.StatusOK)
		return
	}

	utils.DataMessageResponse(w, "Email verified successfully", response.Auth, http.StatusOK)
}

// ForgotPassword handles PATCH /forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	utils.MessageResponse(w, "If an account exists for this email, a password reset code has been sent", http.StatusOK)
}

// ChangePassword handles PATCH /change-password for signed in users
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.ChangePassword(r.Context(), identity.UserID, &req)
	if errors.Is(err, ErrInvalidCredentials) {
		utils.ErrorResponse(w, "Old password is incorrect", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	utils.MessageResponse(w, "Password changed successfully. Please log in again.", http.StatusOK)
}

// ResetPassword handles PATCH /reset-password. The reset token is read from
// "Authorization: Bearer <token>" or the X-Reset-Token header.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := extractBearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Reset-Token"))
	}
	if token == "" {
		utils.ErrorResponse(w, "Missing reset token", http.StatusUnauthorized)
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			utils.ErrorResponse(w, "Invalid or expired reset token", http.StatusUnauthorized)
			return
		}
		writeError(w, err)
		return
	}

	utils.MessageResponse(w, "Password reset successfully", http.StatusOK)
}

// Promote handles PATCH /promote/{id}
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "promoted", h.service.Promote)
}

// Demote handles PATCH /demote/{id}
func (h *Handler) Demote(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "demoted", h.service.Demote)
}

type roleChangeFunc func(ctx context.Context, actorID, targetID int64) (*User, error)

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, verb string, change roleChangeFunc) {
	identity, ok := GetIdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	targetID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || targetID <= 0 {
		utils.ErrorResponse(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	user, err := change(r.Context(), identity.UserID, targetID)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.DataMessageResponse(w, fmt.Sprintf("User %s to %s", verb, user.Role), user, http.StatusOK)
}

// decodeJSON reads the request body into dst. An empty body leaves dst zero.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps service errors to HTTP responses
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		utils.ErrorResponse(w, "Invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, ErrUserNotVerified):
		utils.ErrorResponse(w, "Account not verified. A new verification code has been sent to your email.", http.StatusForbidden)
	case errors.Is(err, ErrTooManyAttempts):
		utils.ErrorResponse(w, "Too many login attempts. Please try again later.", http.StatusTooManyRequests)
	case errors.Is(err, ErrEmailAlreadyExists):
		utils.ErrorResponse(w, "Email already registered", http.StatusConflict)
	case errors.Is(err, ErrUsernameAlreadyExists):
		utils.ErrorResponse(w, "Username already taken", http.StatusConflict)
	case errors.Is(err, ErrInvalidRole):
		utils.ErrorResponse(w, "Role must be either Seller or Buyer", http.StatusBadRequest)
	case errors.Is(err, otp.ErrOTPInvalid),
		errors.Is(err, otp.ErrOTPExpired),
		errors.Is(err, otp.ErrOTPAlreadyUsed):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, otp.ErrOTPMaxAttempts),
		errors.Is(err, otp.ErrRateLimitExceeded):
		utils.ErrorResponse(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ErrInvalidToken):
		utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
	case errors.Is(err, ErrUserNotFound):
		utils.ErrorResponse(w, "User not found", http.StatusNotFound)
	case errors.Is(err, ErrRoleLimit):
		utils.ErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSelfDemotion),
		errors.Is(err, ErrSamePassword),
		errors.Is(err, ErrInvalidUsername):
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Request failed: %v", err)
		utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}

// clientInfo describes the caller's device for the session record
func clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
