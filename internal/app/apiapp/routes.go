package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
	rewardsvc "github.com/Test-112k/auraluxx/backend/internal/services/reward"
	"github.com/Test-112k/auraluxx/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService        *authsvc.Service
	EntitlementService *entsvc.Service
	RewardService      *rewardsvc.Service
	Logger             *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	entitlementHandler := handlers.NewEntitlementHandler(deps.EntitlementService)
	rewardHandler := handlers.NewRewardHandler(deps.RewardService)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.With(authMW).Post("/logout", authHandler.Logout)
		r.With(authMW).Post("/logout_all", authHandler.LogoutAll)
	})

	r.With(authMW).Get("/entitlements", entitlementHandler.Get)

	r.Route("/reward", func(r chi.Router) {
		r.Use(authMW)
		r.Post("/start", rewardHandler.Start)
		r.Get("/{id}", rewardHandler.Get)
		r.Post("/{id}/closed", rewardHandler.Closed)
		r.Post("/{id}/blocked", rewardHandler.Blocked)
		r.Post("/{id}/cancel", rewardHandler.Cancel)
	})
}
