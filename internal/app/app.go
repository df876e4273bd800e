package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stackmelt/passkey-auth/internal/auth"
	"github.com/stackmelt/passkey-auth/internal/config"
	"github.com/stackmelt/passkey-auth/internal/db"
	internalhttp "github.com/stackmelt/passkey-auth/internal/http"
	"github.com/stackmelt/passkey-auth/internal/passkey"
	"github.com/stackmelt/passkey-auth/internal/security"
	"gopkg.in/natefinch/lumberjack.v2"
)

// shutdownTimeout bounds graceful shutdown before the process gives up.
const shutdownTimeout = 10 * time.Second

// Run boots the authentication service and blocks until ctx is cancelled or
// the server fails.
func Run(ctx context.Context, cfg config.Config) error {
	setupLogging(cfg.Logging)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	webAuthn, err := security.NewWebAuthn(cfg.RelyingParty)
	if err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}

	secret := strings.TrimSpace(cfg.Session.Secret)
	if secret == "" {
		// Config validation rejects this in production. Outside it, sessions
		// simply do not survive a restart.
		secret = randomSecret()
		log.Warn("no session secret configured, generated an ephemeral one")
	}

	manager := passkey.NewManager(conn, webAuthn, webAuthn.Config.RPID)
	svc := auth.NewService(conn, manager, secret, cfg.SessionTTL())

	engine := internalhttp.NewRouter(svc, internalhttp.RouterConfig{
		WebOrigin:     cfg.WebOrigin,
		SecureCookies: cfg.IsProduction(),
		SessionSecret: secret,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.WithFields(log.Fields{
		"port": cfg.Server.Port,
		"env":  cfg.Environment,
		"rp":   webAuthn.Config.RPID,
	}).Info("server listening")

	select {
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", errServe)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("shutdown: %w", errShutdown)
		}
	}

	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
	log.Info("shutdown complete")
	return nil
}

// setupLogging configures logrus level and optional rotating file output.
func setupLogging(cfg config.LoggingConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.TrimSpace(cfg.File) != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
