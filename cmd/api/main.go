// cmd/api/main.go
// Main entry point for the marketplace auth API
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imadgeboyega/marketplace-auth/internal/auth"
	"github.com/imadgeboyega/marketplace-auth/internal/common/database"
	"github.com/imadgeboyega/marketplace-auth/internal/common/utils"
	"github.com/imadgeboyega/marketplace-auth/internal/config"
	"github.com/imadgeboyega/marketplace-auth/internal/otp"
)

// sessions are kept this long after they stop being usable
const sessionRetention = 7 * 24 * time.Hour

var startTime = time.Now()

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("Starting Marketplace Auth API")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file found (%v), using environment variables", err)
	}

	// 2. Load and validate configuration
	log.Println("Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: ", err)
	}
	log.Printf("Configuration loaded (environment: %s)", cfg.Environment)

	// 3. Connect to PostgreSQL
	log.Println("Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL, database.DefaultPostgresConfig())
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL: ", err)
	}
	defer db.Close()

	// 4. Connect to Redis
	log.Println("Step 4: Connecting to Redis...")
	redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()

	// 5. Run database migrations
	log.Println("Step 5: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// 6. Initialize OTP system
	log.Println("Step 6: Initializing OTP system...")
	otpRepo := otp.NewPostgresRepository(sqlx.NewDb(db, "postgres"))
	otpService := otp.NewService(otpRepo, newEmailProvider(cfg), &otp.OTPConfig{
		Length:      cfg.OTPLength,
		Expiry:      cfg.OTPExpiry,
		MaxAttempts: cfg.MaxOTPAttempts,
		RateLimit: otp.RateLimitConfig{
			MaxRequests: cfg.OTPResendMax,
			Window:      cfg.OTPResendWindow,
		},
	})

	// 7. Initialize auth system
	log.Println("Step 7: Initializing authentication system...")
	authRepo := auth.NewPostgresRepository(db)
	authService := auth.NewService(authRepo, auth.NewRedisTokenStore(redisClient), otpService, &auth.Config{
		JWTSecret:           cfg.JWTSecret,
		JWTIssuer:           cfg.JWTIssuer,
		AccessTokenExpiry:   cfg.AccessTokenExpiry,
		RefreshTokenExpiry:  cfg.RefreshTokenExpiry,
		ResetTokenExpiry:    cfg.ResetTokenExpiry,
		BCryptCost:          cfg.BCryptCost,
		LoginAttemptsMax:    cfg.LoginAttemptsMax,
		LoginAttemptsWindow: cfg.LoginAttemptsWindow,
	})
	authHandler := auth.NewHandler(authService)
	authMiddleware := auth.NewMiddleware(authService)

	// 8. Background jobs
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	go runPeriodically(jobsCtx, "otp cleanup", time.Hour, otpService.CleanupExpiredOTPs)
	go runPeriodically(jobsCtx, "session cleanup", time.Hour, func(ctx context.Context) error {
		deleted, err := authRepo.DeleteStaleSessions(ctx, time.Now().Add(-sessionRetention))
		if err == nil && deleted > 0 {
			log.Printf("Deleted %d stale sessions", deleted)
		}
		return err
	})

	// 9. Setup routes
	log.Println("Step 8: Setting up routes...")
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck(db, redisClient)).Methods(http.MethodGet)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	auth.RegisterRoutes(router, authHandler.Routes(), authMiddleware)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.ErrorResponse(w, "Not found", http.StatusNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.ErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	router.Use(recoveryMiddleware)
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(metricsMiddleware)

	// 10. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newServerHandler(router, cfg.CORSAllowedOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exited gracefully")
}

// newEmailProvider picks the OTP mail transport
func newEmailProvider(cfg *config.Config) otp.EmailProvider {
	switch cfg.EmailProvider {
	case "sendgrid":
		log.Println("   Using SendGrid for emails")
		return otp.NewSendGridEmailProvider(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	case "smtp":
		log.Println("   Using SMTP for emails")
		return otp.NewSMTPEmailProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom, cfg.EmailFromName)
	default:
		log.Println("   Using mock email provider (development mode)")
		return otp.NewMockEmailProvider()
	}
}

// runPeriodically calls job every interval until ctx is done
func runPeriodically(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := job(jobCtx); err != nil {
				log.Printf("Failed to run %s: %v", name, err)
			}
			cancel()
		}
	}
}

// healthCheck reports server health along with its dependencies
func healthCheck(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		healthy := true

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}

		response := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startTime).String(),
			"checks":    checks,
		}

		if !healthy {
			response["status"] = "unhealthy"
			utils.ErrorDataResponse(w, "Service unavailable", response, http.StatusServiceUnavailable)
			return
		}
		utils.SuccessResponse(w, response, http.StatusOK)
	}
}
