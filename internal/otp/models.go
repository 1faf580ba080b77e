// internal/otp/models.go

package otp

import (
	"time"
)

// Purpose represents what a verified OTP unlocks
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Valid reports whether p is a known purpose
func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

// OTP represents an OTP record
type OTP struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Code       string     `json:"-" db:"code"`
	Purpose    Purpose    `json:"purpose" db:"purpose"`
	Recipient  string     `json:"recipient" db:"recipient"` // normalized email
	Attempts   int        `json:"attempts" db:"attempts"`
	Verified   bool       `json:"verified" db:"verified"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// SendOTPRequest asks for a new code to be issued and emailed
type SendOTPRequest struct {
	UserID  int64
	Email   string
	Purpose Purpose
}

// VerifyOTPRequest carries a code submitted by a user
type VerifyOTPRequest struct {
	Email string
	Code  string
}

// OTPResponse represents OTP operation response
type OTPResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPConfig holds OTP configuration
type OTPConfig struct {
	Length      int
	Expiry      time.Duration
	MaxAttempts int
	RateLimit   RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// EmailTemplate represents email template data
type EmailTemplate struct {
	To           string
	Subject      string
	TemplateName string
	Data         map[string]interface{}
}
