// internal/auth/metrics.go

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	signupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Total number of accounts created by role",
		},
		[]string{"role"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Total number of refresh token exchanges by result",
		},
		[]string{"result"},
	)

	otpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verifications_total",
			Help: "Total number of OTP verifications",
		},
		[]string{"purpose", "result"},
	)

	roleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_role_changes_total",
			Help: "Total number of promotions and demotions",
		},
		[]string{"direction"},
	)

	validationRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_validation_rejections_total",
			Help: "Requests rejected by a route's validation chain",
		},
		[]string{"route"},
	)

	authorizationDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_authorization_denials_total",
			Help: "Requests rejected by a route's role gate",
		},
		[]string{"route", "status"},
	)
)
