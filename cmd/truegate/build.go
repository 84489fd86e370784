package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akilapilapitiya/TrueGate-sub001/internal/admin"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/audit"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/csrf"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/handlers"
	authmw "github.com/akilapilapitiya/TrueGate-sub001/internal/auth/middleware"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/service"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/store"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/auth/token"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/config"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/mail"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/server"
	"github.com/akilapilapitiya/TrueGate-sub001/internal/shutdown"
)

type app struct {
	server *server.Server
}

// buildApp wires the components together: store, audit trail, token service,
// mail dispatcher, flow controller, and the HTTP surface.
func buildApp(cfg *config.Config, zl *zap.Logger) (*app, error) {
	sd := shutdown.NewManager(zl)

	userStore, err := store.Open(cfg.Database.Path, zl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sd.Register("database", func(ctx context.Context) error { return userStore.Close() })

	auditStore, err := audit.NewStore(userStore.DB())
	if err != nil {
		return nil, fmt.Errorf("init audit store: %w", err)
	}

	recorder := audit.NewRecorder(auditStore, 256, zl)
	sd.Register("audit recorder", func(ctx context.Context) error {
		recorder.Close()
		return nil
	})

	var sender mail.Sender
	if cfg.SMTP.Host != "" {
		sender, err = mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("init mail client: %w", err)
		}
	} else {
		zl.Warn("smtp not configured, outbound email disabled")
		sender = mail.NoopSender{}
	}

	dispatcher := mail.NewDispatcher(sender, 64, zl)
	sd.Register("mail dispatcher", func(ctx context.Context) error {
		dispatcher.Close()
		return nil
	})

	tokens := token.NewService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenExpiry)

	authService := service.NewAuthService(userStore, tokens, recorder, dispatcher, zl, service.Config{
		TokenExpiry:      cfg.Auth.TokenExpiry,
		ResetTTL:         cfg.Auth.ResetTTL,
		VerificationTTL:  cfg.Auth.VerificationTTL,
		LockoutThreshold: cfg.Auth.LockoutThreshold,
		BcryptCost:       cfg.Auth.BcryptCost,
		BaseURL:          cfg.Server.BaseURL,
	})

	guard := csrf.NewGuard(cfg.Auth.CSRFCookieMaxAge, cfg.Server.TLS.Enabled)
	protector := csrf.NewProtector(guard, recorder)
	authMiddleware := authmw.NewAuthMiddleware(tokens, recorder)

	api := admin.NewAPI(
		handlers.NewAuthHandler(authService, guard, zl),
		handlers.NewUserHandler(authService, zl),
		admin.NewSecurityHandler(auditStore, recorder, zl),
		protector,
		authMiddleware,
		cfg.Limits,
		zl,
	)

	sd.Register("rate limiters", func(ctx context.Context) error {
		api.Close()
		return nil
	})

	srv := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TLSEnabled:   cfg.Server.TLS.Enabled,
		CertFile:     cfg.Server.TLS.CertFile,
		KeyFile:      cfg.Server.TLS.KeyFile,
	}, api.Handler(), sd, zl)

	return &app{server: srv}, nil
}
