// Package app wires configuration, storage, and HTTP routing into a
// runnable server.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/sssdapp/commerce-api/internal/breach"
	"github.com/sssdapp/commerce-api/internal/config"
	"github.com/sssdapp/commerce-api/internal/db"
	authapi "github.com/sssdapp/commerce-api/internal/http/api/auth"
	"github.com/sssdapp/commerce-api/internal/ratelimit"
	"github.com/sssdapp/commerce-api/internal/session"
	"github.com/sssdapp/commerce-api/internal/tld"
	"github.com/sssdapp/commerce-api/internal/totpenroll"
	"github.com/sssdapp/commerce-api/internal/validate"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
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

// RunServer boots the authentication API server with database-backed
// components.
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

	authCfg, errAuth := config.LoadAuthConfig(configPath)
	if errAuth != nil {
		return errAuth
	}

	tldStore := tld.NewStore()
	tldSyncer := tld.NewSyncer(tldStore, authCfg.TLD.URL, authCfg.TLD.File, authCfg.TLD.RefreshInterval)
	if errLoad := tldSyncer.Load(ctx); errLoad != nil {
		log.WithError(errLoad).Warn("tld allow-list unavailable at startup")
	}
	tldSyncer.Start(ctx)

	breachClient := breach.NewClient(authCfg.Breach.BaseURL, nil, authCfg.Breach.Timeout)
	validator := validate.New(net.DefaultResolver, breachClient, tldStore, authCfg.Breach.FailOpen)

	issuer := session.NewIssuer(conn, authCfg.JWT.Secret, authCfg.JWT.Expiry)
	enroller := totpenroll.NewService(conn, authCfg.AppName, authCfg.QRURLTemplate)
	limiter := ratelimit.NewManager(ratelimit.Config{
		Limit:         authCfg.LoginLimit.Limit,
		Window:        authCfg.LoginLimit.Window,
		RedisAddr:     authCfg.LoginLimit.RedisAddr,
		RedisPassword: authCfg.LoginLimit.RedisPassword,
		RedisDB:       authCfg.LoginLimit.RedisDB,
		RedisPrefix:   authCfg.LoginLimit.RedisPrefix,
	}, nil, nil)

	engine := gin.New()
	engine.Use(gin.Recovery())
	authapi.RegisterAuthRoutes(engine, conn, validator, issuer, enroller, limiter)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errServe != nil && errServe != http.ErrServerClosed {
			return errServe
		}
		return nil
	}
}
