// internal/auth/models.go
// This file contains all data structures used in the authentication system.
// Models are the foundation - they define what data we work with.

package auth

import (
	"time"
)

// Role is the marketplace role of an account
type Role string

const (
	RoleBuyer  Role = "Buyer"
	RoleSeller Role = "Seller"
	RoleAdmin  Role = "Admin"
)

// roleLadder orders roles for promotion and demotion
var roleLadder = []Role{RoleBuyer, RoleSeller, RoleAdmin}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r.rank() >= 0
}

func (r Role) rank() int {
	for i, role := range roleLadder {
		if role == r {
			return i
		}
	}
	return -1
}

// Promoted returns the next role up the ladder
func (r Role) Promoted() (Role, bool) {
	i := r.rank()
	if i < 0 || i == len(roleLadder)-1 {
		return r, false
	}
	return roleLadder[i+1], true
}

// Demoted returns the next role down the ladder
func (r Role) Demoted() (Role, bool) {
	i := r.rank()
	if i <= 0 {
		return r, false
	}
	return roleLadder[i-1], true
}

// User represents a user in our system
// Using SERIAL (int64) for ID instead of UUID for better performance
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Session represents one issued refresh token
// We store sessions in the database so refresh tokens can be rotated and revoked
type Session struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	TokenID   string     `json:"-" db:"token_id"` // jti of the refresh token
	UserAgent *string    `json:"user_agent" db:"user_agent"`
	IPAddress *string    `json:"ip_address" db:"ip_address"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ClientInfo describes the device a session was issued to
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// Identity is the authenticated caller attached to the request context
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// LoginRequest is what the client sends to sign in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupRequest is what the client sends to create an account
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// TokenRequest carries a refresh or access token in the body
type TokenRequest struct {
	Token string `json:"token"`
}

// SendOTPRequest asks for a new verification code
type SendOTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest submits a code sent by email
type VerifyOTPRequest struct {
	OTP   string `json:"otp"`
	Email string `json:"email"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ChangePasswordRequest is sent by a signed in user
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ResetPasswordRequest completes the password reset flow.
// The reset token travels in the Authorization header.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// AuthResponse is what we send back after successful authentication
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// SignupResponse for OTP flow
type SignupResponse struct {
	User                 *User  `json:"user"`
	Message              string `json:"message"`
	RequiresVerification bool   `json:"requires_verification"`
}

// TokenInfo describes a valid access token
type TokenInfo struct {
	Valid     bool      `json:"valid"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetTokenResponse is returned once a password reset code is verified
type ResetTokenResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int    `json:"expires_in"`
}

// VerifyOTPResponse holds whichever result the verified code unlocked
type VerifyOTPResponse struct {
	Auth  *AuthResponse
	Reset *ResetTokenResponse
}
