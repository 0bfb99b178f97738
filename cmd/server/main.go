package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/database"
	"github.com/zaqqye/fiche_backend_v1/internal/logging"
	"github.com/zaqqye/fiche_backend_v1/internal/mailer"
	"github.com/zaqqye/fiche_backend_v1/internal/metrics"
	"github.com/zaqqye/fiche_backend_v1/internal/middleware"
	"github.com/zaqqye/fiche_backend_v1/internal/routes"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/store"
	"github.com/zaqqye/fiche_backend_v1/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	if err := database.SeedAdmin(ctx, st, cfg); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mail := mailer.New(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)

	hub := ws.NewConsoleHub()
	go hub.Run(ctx)

	auth := services.NewAuthService(st, mail, services.AuthConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshJWTSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		ResetTTL:      cfg.ResetTokenTTL,
		PublicURL:     cfg.PublicURL,
	})
	auth.OnAuthStateChange(services.LogAuthEvent)
	auth.OnAuthStateChange(hub.AuthStateChanged)

	fiches := &services.FicheService{
		Store:           st,
		Mailer:          mail,
		Metrics:         m,
		Notifier:        hub,
		PublicURL:       cfg.PublicURL,
		MaxCodeAttempts: cfg.CodeMaxAttempts,
	}
	guardian := &services.GuardianService{Store: st, Metrics: m, Notifier: hub}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	routes.Register(r, routes.Deps{
		Cfg:      cfg,
		Auth:     auth,
		Fiches:   fiches,
		Guardian: guardian,
		Hub:      hub,
		Gatherer: reg,
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"port": port, "store": cfg.StoreDriver}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server exited with error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info("server stopped")
}

// openStore picks the backing store. The memory store loses everything on
// restart and is meant for demos and local work.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data will not survive a restart")
		return store.NewMemory(), nil
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}
