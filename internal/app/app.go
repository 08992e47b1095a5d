// Package app wires configuration, storage, and routes into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/billing"
	"github.com/sheetmind/sheetmind-backend/internal/config"
	"github.com/sheetmind/sheetmind-backend/internal/db"
	"github.com/sheetmind/sheetmind-backend/internal/errlog"
	"github.com/sheetmind/sheetmind-backend/internal/http/api/front"
	"github.com/sheetmind/sheetmind-backend/internal/oauth"
	"github.com/sheetmind/sheetmind-backend/internal/plans"
	"github.com/sheetmind/sheetmind-backend/internal/quota"
	"github.com/sheetmind/sheetmind-backend/internal/session"
	"github.com/sheetmind/sheetmind-backend/internal/tokenstore"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// lockPrefix namespaces the single-flight keys in redis.
const lockPrefix = "sheetmind"

// ConfigExists reports whether the config file is present.
func ConfigExists(configPath string) bool {
	info, errStat := os.Stat(configPath)
	return errStat == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
func Migrate(_ context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// BuildEngine constructs the gin engine with every service wired and
// every route registered.
func BuildEngine(conn *gorm.DB, settings config.Settings) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Registered before the session guard middleware on purpose.
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tokens := tokenstore.NewGormTokenStore(conn)
	orchestrator := oauth.NewOrchestrator(conn, oauth.NewRegistry(), oauth.Config{
		BaseURL: settings.BaseURL,
		Google: oauth.ClientCredentials{
			ClientID:     settings.Google.ClientID,
			ClientSecret: settings.Google.ClientSecret,
		},
		Microsoft: oauth.ClientCredentials{
			ClientID:     settings.Microsoft.ClientID,
			ClientSecret: settings.Microsoft.ClientSecret,
		},
	}, tokens)

	cookieResolver := session.NewCookieResolver(settings.Session.Secret)
	upstream := session.NewUpstreamClient(settings.SessionServiceURL)
	var resolver session.Resolver = cookieResolver
	if settings.SessionServiceURL != "" {
		resolver = session.NewUpstreamResolver(upstream)
	}

	tracker := quota.NewTracker(conn, quota.ResolveFlight(settings.RedisAddr, lockPrefix))

	prices := plans.PriceIDs{Base: settings.Stripe.PriceIDBase, Pro: settings.Stripe.PriceIDPro}
	planResolver := plans.NewResolver(conn, prices, billing.NewStripeClient(settings.Stripe.SecretKey))

	front.RegisterFrontRoutes(engine, conn, front.Dependencies{
		Orchestrator: orchestrator,
		Tokens:       tokens,
		Sessions:     cookieResolver,
		Resolver:     resolver,
		Upstream:     upstream,
		Tracker:      tracker,
		Plans:        planResolver,
		PriceIDs:     prices,
		Errors:       errlog.NewRecorder(conn),
		SessionTTL:   settings.Session.Expiry,
		ResetSecret:  settings.ResetSecret,
	})
	return engine
}

// RunServer boots the HTTP server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	settings, errSettings := config.LoadSettings(configPath)
	if errSettings != nil {
		return errSettings
	}

	engine := BuildEngine(conn, settings)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Infof("starting server with config=%s", configPath)
	select {
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}
