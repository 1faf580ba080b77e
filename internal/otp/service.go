// internal/otp/service.go

package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"
)

var (
	ErrOTPExpired        = errors.New("OTP has expired")
	ErrOTPInvalid        = errors.New("invalid OTP code")
	ErrOTPMaxAttempts    = errors.New("maximum verification attempts exceeded")
	ErrOTPAlreadyUsed    = errors.New("OTP has already been used")
	ErrRateLimitExceeded = errors.New("rate limit exceeded, please try again later")
	ErrDeliveryFailed    = errors.New("failed to deliver OTP")
)

// Service defines the OTP service interface
type Service interface {
	GenerateOTP(ctx context.Context, req *SendOTPRequest) (*OTPResponse, error)
	VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*OTP, error)
	CleanupExpiredOTPs(ctx context.Context) error
}

// service implements the OTP service
type service struct {
	repo          Repository
	emailProvider EmailProvider
	config        *OTPConfig
	now           func() time.Time
}

// NewService creates a new OTP service
func NewService(repo Repository, emailProvider EmailProvider, config *OTPConfig) Service {
	// Set default config if not provided
	if config == nil {
		config = &OTPConfig{
			Length:      6,
			Expiry:      10 * time.Minute,
			MaxAttempts: 5,
			RateLimit: RateLimitConfig{
				MaxRequests: 3,
				Window:      time.Hour,
			},
		}
	}

	return &service{
		repo:          repo,
		emailProvider: emailProvider,
		config:        config,
		now:           time.Now,
	}
}

// GenerateOTP generates, stores and emails a new OTP
func (s *service) GenerateOTP(ctx context.Context, req *SendOTPRequest) (*OTPResponse, error) {
	if !req.Purpose.Valid() {
		return nil, fmt.Errorf("unsupported OTP purpose: %q", req.Purpose)
	}

	now := s.now()

	// Check rate limit
	count, err := s.repo.CountRecentOTPs(ctx, req.Email, now.Add(-s.config.RateLimit.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count >= s.config.RateLimit.MaxRequests {
		return nil, ErrRateLimitExceeded
	}

	// Only the newest code of a purpose stays usable
	if err := s.repo.InvalidateOTPs(ctx, req.Email, req.Purpose); err != nil {
		log.Printf("Failed to invalidate existing OTPs: %v", err)
	}

	code, err := generateCode(s.config.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP code: %w", err)
	}

	otp := &OTP{
		UserID:    req.UserID,
		Code:      code,
		Purpose:   req.Purpose,
		Recipient: req.Email,
		Attempts:  0,
		Verified:  false,
		ExpiresAt: now.Add(s.config.Expiry),
		CreatedAt: now,
	}

	if err := s.repo.CreateOTP(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to save OTP: %w", err)
	}

	if err := s.sendOTPEmail(ctx, otp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return &OTPResponse{
		Message:   fmt.Sprintf("OTP sent successfully to %s", otp.Recipient),
		ExpiresAt: otp.ExpiresAt,
	}, nil
}

// VerifyOTP checks a submitted code against the newest OTP of the recipient
// and returns the record once it is marked verified
func (s *service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest) (*OTP, error) {
	otp, err := s.repo.GetLatestOTPByRecipient(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrOTPNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if otp.Verified {
		return nil, ErrOTPAlreadyUsed
	}

	if s.now().After(otp.ExpiresAt) {
		return nil, ErrOTPExpired
	}

	if otp.Attempts >= s.config.MaxAttempts {
		return nil, ErrOTPMaxAttempts
	}

	otp.Attempts++
	if err := s.repo.UpdateOTPAttempts(ctx, otp.ID, otp.Attempts); err != nil {
		log.Printf("Failed to update OTP attempts: %v", err)
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(req.Code)) != 1 {
		return nil, ErrOTPInvalid
	}

	if err := s.repo.MarkOTPAsVerified(ctx, otp.ID); err != nil {
		if errors.Is(err, ErrOTPNotFound) {
			// verified by a concurrent request
			return nil, ErrOTPAlreadyUsed
		}
		return nil, fmt.Errorf("failed to mark OTP as verified: %w", err)
	}

	now := s.now()
	otp.Verified = true
	otp.VerifiedAt = &now

	return otp, nil
}

// CleanupExpiredOTPs removes expired OTPs from the database
func (s *service) CleanupExpiredOTPs(ctx context.Context) error {
	return s.repo.DeleteExpiredOTPs(ctx, s.now())
}

// generateCode generates a random numeric code
func generateCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[num.Int64()]
	}

	return string(code), nil
}

// sendOTPEmail sends OTP via email
func (s *service) sendOTPEmail(ctx context.Context, otp *OTP) error {
	if s.emailProvider == nil {
		return errors.New("email provider not configured")
	}

	return s.emailProvider.SendEmail(ctx, &EmailTemplate{
		To:           otp.Recipient,
		Subject:      emailSubject(otp.Purpose),
		TemplateName: templateName(otp.Purpose),
		Data: map[string]interface{}{
			"code":      otp.Code,
			"purpose":   string(otp.Purpose),
			"expiresIn": int(s.config.Expiry.Minutes()),
		},
	})
}

// emailSubject returns the email subject based on OTP purpose
func emailSubject(purpose Purpose) string {
	switch purpose {
	case PurposeEmailVerification:
		return "Verify Your Email Address"
	case PurposePasswordReset:
		return "Password Reset Code"
	default:
		return "Verification Code"
	}
}
