// Package front registers the user-facing HTTP routes.
package front

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/errlog"
	handlers "github.com/sheetmind/sheetmind-backend/internal/http/api/front/handlers"
	"github.com/sheetmind/sheetmind-backend/internal/oauth"
	"github.com/sheetmind/sheetmind-backend/internal/plans"
	"github.com/sheetmind/sheetmind-backend/internal/quota"
	"github.com/sheetmind/sheetmind-backend/internal/session"
	"gorm.io/gorm"
)

// Dependencies carries the wired services the front routes consume.
type Dependencies struct {
	Orchestrator *oauth.Orchestrator
	Tokens       oauth.TokenStore
	Sessions     *session.CookieResolver
	Resolver     session.Resolver
	Upstream     *session.UpstreamClient
	Tracker      *quota.Tracker
	Plans        *plans.Resolver
	PriceIDs     plans.PriceIDs
	Errors       *errlog.Recorder
	SessionTTL   time.Duration
	ResetSecret  string
}

// RegisterFrontRoutes registers front routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, deps Dependencies) {
	if r == nil || db == nil {
		return
	}

	classification := session.DefaultClassification()
	classification["/auth/google/initiate"] = session.RoutePublic
	classification["/auth/microsoft/initiate"] = session.RoutePublic
	classification["/internal/usage/reset"] = session.RoutePublic
	classification["/plans"] = session.RoutePublic
	r.Use(session.Guard(deps.Resolver, db, classification))

	authHandler := handlers.NewAuthHandler(
		deps.Orchestrator, deps.Tokens, deps.Sessions, deps.Resolver,
		deps.Upstream, deps.Errors, deps.SessionTTL)
	r.POST("/auth/:provider/initiate", authHandler.Initiate)
	r.GET("/auth/google/callback", authHandler.Callback(oauth.ProviderGoogle))
	r.GET("/auth/microsoft/callback", authHandler.Callback(oauth.ProviderMicrosoft))
	r.GET("/auth/google-permissions-callback", authHandler.Callback(oauth.ProviderGoogle))
	r.GET("/auth/microsoft-permissions-callback", authHandler.Callback(oauth.ProviderMicrosoft))
	r.GET(oauth.HostedCallbackPath, authHandler.HostedCallback)
	r.POST("/auth/store-google-tokens", authHandler.StoreTokens(oauth.ProviderGoogle))
	r.POST("/auth/store-microsoft-tokens", authHandler.StoreTokens(oauth.ProviderMicrosoft))
	r.POST("/auth/refresh-token", authHandler.RefreshToken)
	r.POST("/auth/setup-permissions/skip", authHandler.SkipPermissionsSetup)
	r.GET("/auth/me", authHandler.Me)
	r.GET("/auth/token", authHandler.Token)
	r.POST("/auth/logout", authHandler.Logout)

	usageHandler := handlers.NewUsageHandler(deps.Tracker, deps.ResetSecret)
	r.GET("/usage", usageHandler.Get)
	r.POST("/usage/record", usageHandler.Record)
	r.POST("/internal/usage/reset", usageHandler.Reset)

	billingHandler := handlers.NewBillingHandler(deps.Plans, deps.Errors)
	r.POST("/billing/portal-session", billingHandler.PortalSession)

	planHandler := handlers.NewPlanFrontHandler(deps.PriceIDs, deps.Plans)
	r.GET("/plans", planHandler.List)
	r.GET("/billing/plan", planHandler.Current)
}
