package otp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository is an in-memory Repository
type memoryRepository struct {
	mu     sync.Mutex
	nextID int64
	otps   map[int64]*OTP
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{otps: map[int64]*OTP{}}
}

func (m *memoryRepository) CreateOTP(ctx context.Context, otp *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	otp.ID = m.nextID
	stored := *otp
	m.otps[otp.ID] = &stored
	return nil
}

func (m *memoryRepository) GetLatestOTPByRecipient(ctx context.Context, recipient string) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []*OTP
	for _, o := range m.otps {
		if o.Recipient == recipient {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return nil, ErrOTPNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID > matches[j].ID })
	found := *matches[0]
	return &found, nil
}

func (m *memoryRepository) UpdateOTPAttempts(ctx context.Context, id int64, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[id]
	if !ok {
		return ErrOTPNotFound
	}
	o.Attempts = attempts
	return nil
}

func (m *memoryRepository) MarkOTPAsVerified(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[id]
	if !ok || o.Verified {
		return ErrOTPNotFound
	}
	now := time.Now()
	o.Verified = true
	o.VerifiedAt = &now
	return nil
}

func (m *memoryRepository) InvalidateOTPs(ctx context.Context, recipient string, purpose Purpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, o := range m.otps {
		if o.Recipient == recipient && o.Purpose == purpose && !o.Verified && o.ExpiresAt.After(now) {
			o.ExpiresAt = now
		}
	}
	return nil
}

func (m *memoryRepository) CountRecentOTPs(ctx context.Context, recipient string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, o := range m.otps {
		if o.Recipient == recipient && o.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepository) DeleteExpiredOTPs(ctx context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.otps {
		if o.CreatedAt.Before(before.Add(-24*time.Hour)) && (o.Verified || o.ExpiresAt.Before(before)) {
			delete(m.otps, id)
		}
	}
	return nil
}

func newTestService(t *testing.T) (*service, *memoryRepository, *MockEmailProvider) {
	t.Helper()
	repo := newMemoryRepository()
	mailer := NewMockEmailProvider()
	mailer.Quiet = true
	svc := NewService(repo, mailer, &OTPConfig{
		Length:      6,
		Expiry:      10 * time.Minute,
		MaxAttempts: 3,
		RateLimit:   RateLimitConfig{MaxRequests: 3, Window: time.Hour},
	}).(*service)
	return svc, repo, mailer
}

func send(t *testing.T, svc *service, email string, purpose Purpose) {
	t.Helper()
	_, err := svc.GenerateOTP(context.Background(), &SendOTPRequest{UserID: 1, Email: email, Purpose: purpose})
	require.NoError(t, err)
}

func TestGenerateOTP_SendsCode(t *testing.T) {
	svc, _, mailer := newTestService(t)

	resp, err := svc.GenerateOTP(context.Background(), &SendOTPRequest{
		UserID:  7,
		Email:   "buyer@example.com",
		Purpose: PurposeEmailVerification,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), resp.ExpiresAt, 5*time.Second)

	sent := mailer.SentEmails()
	require.Len(t, sent, 1)
	assert.Equal(t, "buyer@example.com", sent[0].To)
	assert.Equal(t, "Verify Your Email Address", sent[0].Subject)

	code, ok := mailer.LastCode("buyer@example.com")
	require.True(t, ok)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^[0-9]{6}$`, code)
}

func TestGenerateOTP_RateLimit(t *testing.T) {
	svc, _, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		send(t, svc, "buyer@example.com", PurposeEmailVerification)
	}

	_, err := svc.GenerateOTP(context.Background(), &SendOTPRequest{Email: "buyer@example.com", Purpose: PurposeEmailVerification})
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// other recipients are unaffected
	send(t, svc, "seller@example.com", PurposeEmailVerification)
}

func TestGenerateOTP_RejectsUnknownPurpose(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GenerateOTP(context.Background(), &SendOTPRequest{Email: "a@b.com", Purpose: "signin"})
	assert.Error(t, err)
}

func TestGenerateOTP_DeliveryFailure(t *testing.T) {
	svc, _, mailer := newTestService(t)
	mailer.Err = errors.New("smtp down")

	_, err := svc.GenerateOTP(context.Background(), &SendOTPRequest{Email: "a@b.com", Purpose: PurposeEmailVerification})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestVerifyOTP_Success(t *testing.T) {
	svc, _, mailer := newTestService(t)
	send(t, svc, "buyer@example.com", PurposePasswordReset)
	code, _ := mailer.LastCode("buyer@example.com")

	otp, err := svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "buyer@example.com", Code: code})
	require.NoError(t, err)
	assert.Equal(t, PurposePasswordReset, otp.Purpose)
	assert.True(t, otp.Verified)
	assert.NotNil(t, otp.VerifiedAt)

	_, err = svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "buyer@example.com", Code: code})
	assert.ErrorIs(t, err, ErrOTPAlreadyUsed)
}

func TestVerifyOTP_NoCode(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "nobody@example.com", Code: "123456"})
	assert.ErrorIs(t, err, ErrOTPInvalid)
}

func TestVerifyOTP_WrongCodeThenMaxAttempts(t *testing.T) {
	svc, repo, mailer := newTestService(t)
	send(t, svc, "buyer@example.com", PurposeEmailVerification)
	code, _ := mailer.LastCode("buyer@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err := svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "buyer@example.com", Code: wrong})
		assert.ErrorIs(t, err, ErrOTPInvalid)
	}

	// the right code no longer helps once attempts are exhausted
	_, err := svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "buyer@example.com", Code: code})
	assert.ErrorIs(t, err, ErrOTPMaxAttempts)

	latest, err := repo.GetLatestOTPByRecipient(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Attempts)
}

func TestVerifyOTP_Expired(t *testing.T) {
	svc, _, mailer := newTestService(t)
	send(t, svc, "buyer@example.com", PurposeEmailVerification)
	code, _ := mailer.LastCode("buyer@example.com")

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := svc.VerifyOTP(context.Background(), &VerifyOTPRequest{Email: "buyer@example.com", Code: code})
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestGenerateOTP_InvalidatesPreviousCode(t *testing.T) {
	svc, repo, _ := newTestService(t)
	send(t, svc, "buyer@example.com", PurposeEmailVerification)
	send(t, svc, "buyer@example.com", PurposeEmailVerification)

	first := repo.otps[1]
	assert.False(t, first.ExpiresAt.After(time.Now()), "older code is expired")
	assert.True(t, repo.otps[2].ExpiresAt.After(time.Now()))
}

func TestCleanupExpiredOTPs(t *testing.T) {
	svc, repo, _ := newTestService(t)
	send(t, svc, "buyer@example.com", PurposeEmailVerification)

	old := time.Now().Add(-48 * time.Hour)
	repo.otps[1].CreatedAt = old
	repo.otps[1].ExpiresAt = old.Add(10 * time.Minute)

	require.NoError(t, svc.CleanupExpiredOTPs(context.Background()))
	assert.Empty(t, repo.otps)
}
