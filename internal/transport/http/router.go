package http

import (
	"net/http"

	"github.com/firetrack360/identity/internal/application/auth"
	"github.com/firetrack360/identity/internal/config"
	"github.com/firetrack360/identity/internal/transport/http/handler"
	appmiddleware "github.com/firetrack360/identity/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds the services the router exposes.
type Deps struct {
	AuthService auth.Service
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 — applied to the credential-bearing
	// endpoints to slow down brute forcing.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(deps.AuthService)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/register", authH.Register)
			r.Post("/verify-account", authH.VerifyAccount)
			r.Post("/login", authH.Login)
			r.Post("/verify-login", authH.VerifyLogin)
			r.Post("/forget-password", authH.ForgetPassword)
			r.Post("/verify-password-reset", authH.VerifyPasswordReset)
			r.Post("/replace-forgot-password", authH.ReplaceForgotPassword)
			r.Post("/resend-verification-otp", authH.ResendVerificationOtp)
		})
	})

	return r
}
