// internal/auth/service.go
// Service layer contains all business logic for authentication.
// Integrated with the standalone OTP service for email codes

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/imadgeboyega/marketplace-auth/internal/common/utils"
	"github.com/imadgeboyega/marketplace-auth/internal/otp"
)

// Common errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotVerified       = errors.New("user not verified")
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTooManyAttempts       = errors.New("too many attempts")
	ErrInvalidRole           = errors.New("invalid role")
	ErrSamePassword          = errors.New("new password must differ from the old password")
	ErrRoleLimit             = errors.New("role cannot be changed further")
	ErrSelfDemotion          = errors.New("admins cannot demote themselves")
	ErrInvalidUsername       = fmt.Errorf("username must be between %d and %d characters", UsernameMinLength, UsernameMaxLength)
)

// Username length bounds, checked before and after trimming
const (
	UsernameMinLength = 3
	UsernameMaxLength = 100
)

// Service interface
type Service interface {
	// Registration and authentication
	Signup(ctx context.Context, req *SignupRequest) (*SignupResponse, error)
	Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*AuthResponse, error)
	ResendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, req *VerifyOTPRequest, client ClientInfo) (*VerifyOTPResponse, error)

	// Token management
	RefreshToken(ctx context.Context, refreshToken string, client ClientInfo) (*AuthResponse, error)
	VerifyToken(ctx context.Context, token string) (*TokenInfo, error)
	Authorize(ctx context.Context, accessToken string) (*Identity, error)

	// Password management
	ForgotPassword(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error
	ResetPassword(ctx context.Context, resetToken string, newPassword string) error

	// Role management
	Promote(ctx context.Context, actorID, targetID int64) (*User, error)
	Demote(ctx context.Context, actorID, targetID int64) (*User, error)

	// User queries
	GetUserByID(ctx context.Context, userID int64) (*User, error)
}

// service implementation
type service struct {
	repo       Repository
	store      TokenStore
	otpService otp.Service
	config     *Config
	now        func() time.Time
}

// Config holds service configuration
type Config struct {
	JWTSecret           string
	JWTIssuer           string
	AccessTokenExpiry   time.Duration
	RefreshTokenExpiry  time.Duration
	ResetTokenExpiry    time.Duration
	BCryptCost          int
	LoginAttemptsMax    int
	LoginAttemptsWindow time.Duration
}

// NewService creates a new auth service
func NewService(repo Repository, store TokenStore, otpService otp.Service, config *Config) Service {
	return &service{
		repo:       repo,
		store:      store,
		otpService: otpService,
		config:     config,
		now:        time.Now,
	}
}

// Signup creates a new user account and sends verification OTP
func (s *service) Signup(ctx context.Context, req *SignupRequest) (*SignupResponse, error) {
	// 1. Only marketplace roles can be chosen at signup
	if req.Role != RoleBuyer && req.Role != RoleSeller {
		return nil, ErrInvalidRole
	}

	// 2. Normalize inputs
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if n := utf8.RuneCountInString(username); n < UsernameMinLength || n > UsernameMaxLength {
		return nil, ErrInvalidUsername
	}

	// 3. Check availability
	if taken, err := s.repo.IsUsernameTaken(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	} else if taken {
		return nil, ErrUsernameAlreadyExists
	}

	if taken, err := s.repo.IsEmailTaken(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	} else if taken {
		return nil, ErrEmailAlreadyExists
	}

	// 4. Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 5. Create user
	now := s.now()
	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         req.Role,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameAlreadyExists) || errors.Is(err, ErrEmailAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	signupsTotal.WithLabelValues(string(user.Role)).Inc()

	// 6. Send verification OTP, a delivery failure does not fail signup
	message := fmt.Sprintf("Verification code sent to %s", user.Email)
	if err := s.sendVerificationOTP(ctx, user); err != nil {
		log.Printf("Failed to send verification OTP to user %d: %v", user.ID, err)
		message = "Account created but the verification code could not be sent. Please use /send-otp."
	}

	return &SignupResponse{
		User:                 user,
		Message:              message,
		RequiresVerification: true,
	}, nil
}

// Login authenticates a user by username and password
func (s *service) Login(ctx context.Context, req *LoginRequest, client ClientInfo) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)

	// 1. Locked out accounts are rejected before the password is checked
	attempts, err := s.store.FailedLogins(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check login attempts: %w", err)
	}
	if attempts >= int64(s.config.LoginAttemptsMax) {
		loginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, ErrTooManyAttempts
	}

	// 2. Find user
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		s.recordFailedLogin(ctx, username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// 3. Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedLogin(ctx, username)
		return nil, ErrInvalidCredentials
	}

	// 4. Clear failed attempts
	if err := s.store.ClearFailedLogins(ctx, username); err != nil {
		log.Printf("Failed to clear login attempts for %s: %v", username, err)
	}

	// 5. Unverified accounts get a fresh code instead of tokens
	if !user.IsVerified {
		if err := s.sendVerificationOTP(ctx, user); err != nil {
			log.Printf("Failed to resend verification OTP to user %d: %v", user.ID, err)
		}
		loginAttemptsTotal.WithLabelValues("unverified").Inc()
		return nil, ErrUserNotVerified
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	return s.createAuthSession(ctx, user, client)
}

// ResendOTP issues a new verification code for an unverified account.
// Unknown and already verified addresses succeed silently.
func (s *service) ResendOTP(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	if user.IsVerified {
		return nil
	}

	if err := s.sendVerificationOTP(ctx, user); err != nil {
		if errors.Is(err, otp.ErrRateLimitExceeded) {
			return err
		}
		log.Printf("Failed to resend verification OTP to user %d: %v", user.ID, err)
	}

	return nil
}

// VerifyOTP checks an emailed code and completes whatever the code was sent for
func (s *service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest, client ClientInfo) (*VerifyOTPResponse, error) {
	verified, err := s.otpService.VerifyOTP(ctx, &otp.VerifyOTPRequest{
		Email: strings.TrimSpace(req.Email),
		Code:  strings.TrimSpace(req.OTP),
	})
	if err != nil {
		otpVerificationsTotal.WithLabelValues("unknown", "failure").Inc()
		return nil, err
	}

	otpVerificationsTotal.WithLabelValues(string(verified.Purpose), "success").Inc()

	user, err := s.repo.GetUserByID(ctx, verified.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find OTP owner: %w", err)
	}

	switch verified.Purpose {
	case otp.PurposeEmailVerification:
		if err := s.repo.VerifyUser(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("failed to verify user: %w", err)
		}
		user.IsVerified = true

		authResp, err := s.createAuthSession(ctx, user, client)
		if err != nil {
			return nil, err
		}
		return &VerifyOTPResponse{Auth: authResp}, nil

	case otp.PurposePasswordReset:
		resetToken, err := generateSecureToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate reset token: %w", err)
		}

		if err := s.store.SaveResetToken(ctx, resetToken, user.ID, s.config.ResetTokenExpiry); err != nil {
			return nil, err
		}

		return &VerifyOTPResponse{Reset: &ResetTokenResponse{
			ResetToken: resetToken,
			ExpiresIn:  int(s.config.ResetTokenExpiry.Seconds()),
		}}, nil

	default:
		return nil, fmt.Errorf("unsupported OTP purpose: %q", verified.Purpose)
	}
}

// RefreshToken rotates a refresh token. A replayed token revokes every
// session of its owner.
func (s *service) RefreshToken(ctx context.Context, refreshToken string, client ClientInfo) (*AuthResponse, error) {
	claims, err := utils.ValidateJWT(refreshToken, s.config.JWTSecret)
	if err != nil || claims.Type != utils.TokenTypeRefresh || claims.ID == "" {
		tokenRefreshTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	session, err := s.repo.GetSessionByTokenID(ctx, claims.ID)
	if errors.Is(err, ErrSessionNotFound) {
		tokenRefreshTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != claims.UserID {
		tokenRefreshTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}

	if session.RevokedAt != nil {
		s.handleTokenReuse(ctx, session.UserID)
		return nil, ErrInvalidToken
	}

	if s.now().After(session.ExpiresAt) {
		tokenRefreshTotal.WithLabelValues("expired").Inc()
		return nil, ErrInvalidToken
	}

	revoked, err := s.repo.RevokeSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// rotated by a concurrent request holding the same token
		s.handleTokenReuse(ctx, session.UserID)
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	tokenRefreshTotal.WithLabelValues("success").Inc()
	return s.createAuthSession(ctx, user, client)
}

func (s *service) handleTokenReuse(ctx context.Context, userID int64) {
	tokenRefreshTotal.WithLabelValues("reuse").Inc()
	log.Printf("Refresh token reuse detected for user %d, revoking all sessions", userID)
	if err := s.repo.RevokeUserSessions(ctx, userID); err != nil {
		log.Printf("Failed to revoke sessions of user %d: %v", userID, err)
	}
}

// VerifyToken reports the claims of a valid access token
func (s *service) VerifyToken(ctx context.Context, token string) (*TokenInfo, error) {
	claims, err := s.parseAccessToken(token)
	if err != nil {
		return nil, err
	}

	return &TokenInfo{
		Valid:     true,
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		Role:      Role(claims.Role),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// Authorize resolves an access token to the caller's current identity.
// The role comes from the database so role changes apply immediately.
func (s *service) Authorize(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}, nil
}

func (s *service) parseAccessToken(token string) (*utils.JWTClaims, error) {
	claims, err := utils.ValidateJWT(token, s.config.JWTSecret)
	if err != nil || claims.Type != utils.TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ForgotPassword emails a password reset code. Only rate limiting is
// reported back so addresses cannot be probed.
func (s *service) ForgotPassword(ctx context.Context, email string) error {
	// 1. Check if user exists (don't reveal this to client)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("Failed to look up %s for password reset: %v", email, err)
		return nil
	}

	// 2. Send OTP for password reset
	_, err = s.otpService.GenerateOTP(ctx, &otp.SendOTPRequest{
		UserID:  user.ID,
		Email:   user.Email,
		Purpose: otp.PurposePasswordReset,
	})
	if errors.Is(err, otp.ErrRateLimitExceeded) {
		return err
	}
	if err != nil {
		log.Printf("Failed to send password reset OTP to user %d: %v", user.ID, err)
	}

	return nil
}

// ChangePassword replaces the password of a signed in user and signs out
// every device
func (s *service) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if req.NewPassword == req.OldPassword {
		return ErrSamePassword
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}

	log.Printf("User %d changed their password", user.ID)
	return nil
}

// ResetPassword completes the password reset
func (s *service) ResetPassword(ctx context.Context, resetToken string, newPassword string) error {
	if resetToken == "" {
		return ErrInvalidToken
	}

	// 1. Look the token up. It is consumed only once the password is stored,
	// so a failed attempt can be retried with the same token.
	userID, err := s.store.ResetTokenUser(ctx, resetToken)
	if errors.Is(err, ErrResetTokenNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	// 2. Get user
	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	// 3. Store the new password and logout all devices
	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	// 4. Burn the token so it works once
	if _, err := s.store.ConsumeResetToken(ctx, resetToken); err != nil && !errors.Is(err, ErrResetTokenNotFound) {
		log.Printf("Failed to consume reset token for user %d: %v", user.ID, err)
	}

	// 5. A successful reset lifts any login lockout
	if err := s.store.ClearFailedLogins(ctx, user.Username); err != nil {
		log.Printf("Failed to clear login attempts for user %d: %v", user.ID, err)
	}

	log.Printf("User %d reset their password", user.ID)
	return nil
}

func (s *service) setPassword(ctx context.Context, userID int64, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(hashedPassword)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.repo.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return nil
}

// Promote moves a user one step up the role ladder
func (s *service) Promote(ctx context.Context, actorID, targetID int64) (*User, error) {
	return s.changeRole(ctx, actorID, targetID, "promote", Role.Promoted)
}

// Demote moves a user one step down the role ladder
func (s *service) Demote(ctx context.Context, actorID, targetID int64) (*User, error) {
	if actorID == targetID {
		return nil, ErrSelfDemotion
	}
	return s.changeRole(ctx, actorID, targetID, "demote", Role.Demoted)
}

func (s *service) changeRole(ctx context.Context, actorID, targetID int64, direction string, next func(Role) (Role, bool)) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	newRole, ok := next(user.Role)
	if !ok {
		return nil, ErrRoleLimit
	}

	if err := s.repo.UpdateRole(ctx, user.ID, newRole); err != nil {
		return nil, fmt.Errorf("failed to %s user: %w", direction, err)
	}

	log.Printf("Admin %d changed role of user %d from %s to %s", actorID, user.ID, user.Role, newRole)
	roleChangesTotal.WithLabelValues(direction).Inc()

	user.Role = newRole
	user.UpdatedAt = s.now()
	return user, nil
}

func (s *service) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// Helper functions

func (s *service) sendVerificationOTP(ctx context.Context, user *User) error {
	_, err := s.otpService.GenerateOTP(ctx, &otp.SendOTPRequest{
		UserID:  user.ID,
		Email:   user.Email,
		Purpose: otp.PurposeEmailVerification,
	})
	return err
}

func (s *service) recordFailedLogin(ctx context.Context, username string) {
	loginAttemptsTotal.WithLabelValues("failure").Inc()
	count, err := s.store.IncrFailedLogins(ctx, username, s.config.LoginAttemptsWindow)
	if err != nil {
		log.Printf("Failed to record login attempt for %s: %v", username, err)
		return
	}
	if count == int64(s.config.LoginAttemptsMax) {
		log.Printf("Login locked for %s after %d failed attempts", username, count)
	}
}

func (s *service) createAuthSession(ctx context.Context, user *User, client ClientInfo) (*AuthResponse, error) {
	now := s.now()

	accessToken, err := s.generateToken(user, utils.TokenTypeAccess, utils.NewTokenID(), now, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	tokenID := utils.NewTokenID()
	refreshToken, err := s.generateToken(user, utils.TokenTypeRefresh, tokenID, now, s.config.RefreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	session := &Session{
		UserID:    user.ID,
		TokenID:   tokenID,
		UserAgent: optional(client.UserAgent),
		IPAddress: optional(client.IPAddress),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.config.AccessTokenExpiry.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *service) generateToken(user *User, tokenType, tokenID string, now time.Time, ttl time.Duration) (string, error) {
	claims := &utils.JWTClaims{
		UserID:    user.ID,
		Type:      tokenType,
		ID:        tokenID,
		ExpiresAt: now.Add(ttl).Unix(),
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		Issuer:    s.config.JWTIssuer,
		Subject:   fmt.Sprintf("%d", user.ID),
	}

	if tokenType == utils.TokenTypeAccess {
		claims.Email = user.Email
		claims.Username = user.Username
		claims.Role = string(user.Role)
	}

	return utils.GenerateJWT(claims, s.config.JWTSecret)
}

func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
