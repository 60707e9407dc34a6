package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/inkpress/inkpress-backend/internal/monitor"
	"github.com/inkpress/inkpress-backend/internal/repository"
	"github.com/inkpress/inkpress-backend/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

type contextKey string

const adminUserKey contextKey = "admin_user"

// AdminFromContext returns the authenticated admin user, if any.
func AdminFromContext(ctx context.Context) (*repository.AdminUser, bool) {
	u, ok := ctx.Value(adminUserKey).(*repository.AdminUser)
	return u, ok
}

// AuthStore is the repository slice the auth middleware needs.
type AuthStore interface {
	AdminByKeyID(ctx context.Context, keyID string) (*repository.AdminUser, string, error)
	RecordLoginAttempt(ctx context.Context, email, outcome, remoteAddr string) error
}

type Middleware struct {
	authStore AuthStore
	logger    *zap.SugaredLogger
	metrics   MetricsInterface

	// Throttles failed auth attempts process-wide; trips before bcrypt.
	authLimiter *rate.Limiter
}

func NewMiddleware(authStore AuthStore, logger *zap.SugaredLogger, metrics MetricsInterface) *Middleware {
	return &Middleware{
		authStore:   authStore,
		logger:      logger,
		metrics:     metrics,
		authLimiter: rate.NewLimiter(rate.Every(2*time.Second), 10),
	}
}

// CORS middleware
func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// Rate limiting middleware
func (m *Middleware) RateLimit(rpm int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/6) // Allow burst of 1/6th of rpm

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Request logging middleware
func (m *Middleware) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)

			m.logger.Infow("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"size", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
			)

			if m.metrics != nil {
				m.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, ww.Status(), duration)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// Security headers middleware
func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// Recovery middleware with structured logging
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				m.logger.Errorw("Panic recovered",
					"panic", rvr,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Request ID middleware
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Timeout middleware
func (m *Middleware) Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "Request timeout")
	}
}

// AdminAuth authenticates admin API tokens of the form "<keyID>.<secret>"
// carried in the Authorization header. Failed and throttled attempts are
// written to the login ledger the health monitor reads.
func (m *Middleware) AdminAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, secret, ok := parseBearerToken(r)
			if !ok {
				m.recordAttempt(r, "", repository.LoginOutcomeFailed)
				writeUnauthorized(w, "missing or malformed credentials")
				return
			}

			user, tokenHash, err := m.authStore.AdminByKeyID(r.Context(), keyID)
			if err != nil {
				if !m.authLimiter.Allow() {
					m.recordAttempt(r, keyID, repository.LoginOutcomeRateLimited)
					http.Error(w, "Too many failed attempts", http.StatusTooManyRequests)
					return
				}
				m.recordAttempt(r, keyID, repository.LoginOutcomeFailed)
				writeUnauthorized(w, "invalid credentials")
				return
			}

			if user.LockedAt != nil {
				m.recordAttempt(r, user.Email, repository.LoginOutcomeFailed)
				writeUnauthorized(w, "account locked")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(secret)); err != nil {
				if !m.authLimiter.Allow() {
					m.recordAttempt(r, user.Email, repository.LoginOutcomeRateLimited)
					http.Error(w, "Too many failed attempts", http.StatusTooManyRequests)
					return
				}
				m.recordAttempt(r, user.Email, repository.LoginOutcomeFailed)
				writeUnauthorized(w, "invalid credentials")
				return
			}

			if len(allowed) > 0 && !allowed[user.Role] {
				writeForbidden(w, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), adminUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PassiveTriggers embeds the opportunistic scheduler and monitor checks in
// read paths. Both are best effort: any error is swallowed so a scheduler
// fault can never break a page render.
func (m *Middleware) PassiveTriggers(engine *scheduler.Engine, mon *monitor.Monitor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := engine.MaybeRun(r.Context()); err != nil {
				m.logger.Warnw("Passive scheduler tick failed", "error", err)
			}
			if _, err := mon.MaybeRun(r.Context()); err != nil {
				m.logger.Warnw("Passive monitor tick failed", "error", err)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseBearerToken(r *http.Request) (keyID, secret string, ok bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (m *Middleware) recordAttempt(r *http.Request, identity, outcome string) {
	if err := m.authStore.RecordLoginAttempt(r.Context(), identity, outcome, r.RemoteAddr); err != nil {
		m.logger.Errorw("Failed to record login attempt", "error", err)
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusUnauthorized)
}

func writeForbidden(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusForbidden)
}
