package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/http/handlers"
	"github.com/identra/server/internal/middleware"
	"github.com/identra/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	otpHandler *handlers.OTPHandler,
	profileHandler *handlers.ProfileHandler,
	authService *auth.AuthService,
	userRepo repo.UserRepo,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	// IP rate limiters: OTP issuance is the expensive path (outbound
	// email/SMS), verification slightly looser.
	issueLimiter := middleware.NewRateLimiter(10*time.Minute, 10)
	verifyLimiter := middleware.NewRateLimiter(10*time.Minute, 20)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/verify", authHandler.HandleVerify)
		r.With(middleware.OptionalAuth(authService, userRepo)).
			Get("/logout", authHandler.HandleLogout)

		r.With(middleware.Limit(issueLimiter)).Post("/verify-email", otpHandler.HandleIssueEmailOTP)
		r.With(middleware.Limit(issueLimiter)).Post("/verify-phone", otpHandler.HandleIssuePhoneOTP)
		r.With(middleware.Limit(verifyLimiter)).Post("/verify-otp", otpHandler.HandleVerifyOTP)
		r.Post("/register", otpHandler.HandleRegister)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authService, userRepo))
		r.Get("/profile", profileHandler.HandleProfile)
		r.Patch("/profile/picture", profileHandler.HandleUpdatePicture)
		r.Put("/profile/picture", profileHandler.HandleUpdatePicture)
		r.Get("/profile/recent-activity", profileHandler.HandleRecentActivity)
	})

	return r
}
