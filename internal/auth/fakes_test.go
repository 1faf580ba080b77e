package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/imadgeboyega/marketplace-auth/internal/otp"
)

// memoryRepository is an in-memory Repository
type memoryRepository struct {
	mu       sync.Mutex
	users    map[int64]*User
	sessions map[int64]*Session
	nextUser int64
	nextSess int64

	updatePasswordErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users:    map[int64]*User{},
		sessions: map[int64]*Session{},
	}
}

func (m *memoryRepository) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, user.Username) {
			return ErrUsernameAlreadyExists
		}
		if strings.EqualFold(u.Email, user.Email) {
			return ErrEmailAlreadyExists
		}
	}
	m.nextUser++
	user.ID = m.nextUser
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *memoryRepository) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *memoryRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memoryRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memoryRepository) update(userID int64, apply func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	apply(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	return m.update(userID, func(u *User) { u.PasswordHash = passwordHash })
}

func (m *memoryRepository) UpdateRole(ctx context.Context, userID int64, role Role) error {
	return m.update(userID, func(u *User) { u.Role = role })
}

func (m *memoryRepository) VerifyUser(ctx context.Context, userID int64) error {
	return m.update(userID, func(u *User) { u.IsVerified = true })
}

func (m *memoryRepository) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *memoryRepository) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := m.GetUserByUsername(ctx, username)
	return err == nil, nil
}

func (m *memoryRepository) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSess++
	session.ID = m.nextSess
	stored := *session
	m.sessions[session.ID] = &stored
	return nil
}

func (m *memoryRepository) GetSessionByTokenID(ctx context.Context, tokenID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenID == tokenID {
			found := *s
			return &found, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memoryRepository) RevokeSession(ctx context.Context, sessionID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	return true, nil
}

func (m *memoryRepository) RevokeUserSessions(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memoryRepository) DeleteStaleSessions(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) || (s.RevokedAt != nil && s.RevokedAt.Before(before)) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepository) liveSessions(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

// memoryTokenStore is an in-memory TokenStore without expiry
type memoryTokenStore struct {
	mu          sync.Mutex
	resetTokens map[string]int64
	failures    map[string]int64
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{
		resetTokens: map[string]int64{},
		failures:    map[string]int64{},
	}
}

func (s *memoryTokenStore) SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTokens[token] = userID
	return nil
}

func (s *memoryTokenStore) ResetTokenUser(ctx context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.resetTokens[token]
	if !ok {
		return 0, ErrResetTokenNotFound
	}
	return userID, nil
}

func (s *memoryTokenStore) ConsumeResetToken(ctx context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.resetTokens[token]
	if !ok {
		return 0, ErrResetTokenNotFound
	}
	delete(s.resetTokens, token)
	return userID, nil
}

func (s *memoryTokenStore) IncrFailedLogins(ctx context.Context, username string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[strings.ToLower(username)]++
	return s.failures[strings.ToLower(username)], nil
}

func (s *memoryTokenStore) FailedLogins(ctx context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[strings.ToLower(username)], nil
}

func (s *memoryTokenStore) ClearFailedLogins(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, strings.ToLower(username))
	return nil
}

func (s *memoryTokenStore) Ping(ctx context.Context) error { return nil }

// sentOTP is a code recorded by fakeOTPService
type sentOTP struct {
	userID  int64
	email   string
	purpose otp.Purpose
	code    string
	used    bool
}

// fakeOTPService issues the fixed code 123456
type fakeOTPService struct {
	mu          sync.Mutex
	sent        []*sentOTP
	generateErr error
}

const fakeCode = "123456"

func (f *fakeOTPService) GenerateOTP(ctx context.Context, req *otp.SendOTPRequest) (*otp.OTPResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	f.sent = append(f.sent, &sentOTP{userID: req.UserID, email: req.Email, purpose: req.Purpose, code: fakeCode})
	return &otp.OTPResponse{ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (f *fakeOTPService) VerifyOTP(ctx context.Context, req *otp.VerifyOTPRequest) (*otp.OTP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		s := f.sent[i]
		if s.email != req.Email {
			continue
		}
		if s.used {
			return nil, otp.ErrOTPAlreadyUsed
		}
		if s.code != req.Code {
			return nil, otp.ErrOTPInvalid
		}
		s.used = true
		return &otp.OTP{UserID: s.userID, Recipient: s.email, Purpose: s.purpose, Verified: true}, nil
	}
	return nil, otp.ErrOTPInvalid
}

func (f *fakeOTPService) CleanupExpiredOTPs(ctx context.Context) error { return nil }

func (f *fakeOTPService) sentTo(email string) []*sentOTP {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*sentOTP
	for _, s := range f.sent {
		if s.email == email {
			out = append(out, s)
		}
	}
	return out
}
