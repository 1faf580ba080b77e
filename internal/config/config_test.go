package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mock", cfg.EmailProvider)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenExpiry)
	assert.Equal(t, 6, cfg.OTPLength)
	assert.True(t, cfg.MetricsEnabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("OTP_EXPIRY", "5m")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 12, cfg.BCryptCost)
	assert.Equal(t, 5*time.Minute, cfg.OTPExpiry)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoad_BadValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("BCRYPT_COST", "not-a-number")
	t.Setenv("OTP_EXPIRY", "ten minutes")

	cfg := Load()

	assert.Equal(t, 10, cfg.BCryptCost)
	assert.Equal(t, 10*time.Minute, cfg.OTPExpiry)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"default secret in production", func(c *Config) {
			c.Environment = "production"
			c.EmailProvider = "sendgrid"
			c.SendGridAPIKey = "key"
		}, "JWT secret must be changed"},
		{"empty database url", func(c *Config) { c.DatabaseURL = "" }, "database URL is required"},
		{"empty redis url", func(c *Config) { c.RedisURL = "" }, "redis URL is required"},
		{"bcrypt cost too low", func(c *Config) { c.BCryptCost = 2 }, "bcrypt cost"},
		{"otp length too long", func(c *Config) { c.OTPLength = 9 }, "OTP length"},
		{"otp attempts zero", func(c *Config) { c.MaxOTPAttempts = 0 }, "max OTP attempts"},
		{"unknown email provider", func(c *Config) { c.EmailProvider = "pigeon" }, "invalid email provider"},
		{"mock email in production", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "prod-secret"
		}, "mock email provider"},
		{"refresh shorter than access", func(c *Config) { c.RefreshTokenExpiry = time.Minute }, "refresh token expiry"},
		{"non-positive rate limit", func(c *Config) { c.OTPResendMax = 0 }, "rate limiting values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
