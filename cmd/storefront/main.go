package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/storage"
	"github.com/Skotchmaster/storefront/pkg/apiclient"
	"github.com/Skotchmaster/storefront/pkg/guestcart"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/navigation"
	"github.com/Skotchmaster/storefront/pkg/session"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := logging.IntoContext(context.Background(), logger)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := storage.Open(initCtx, cfg.StorageDriver, cfg.StorageDSN)
	cancel()
	if err != nil {
		log.Fatalf("storage open: %v", err)
	}

	kv := storage.NewGormStore(db)
	tokenStore := tokens.NewStore(kv)
	redirects := navigation.NewRedirectStore(kv)
	nav := navigation.NewHistory(navigation.HomePath)
	cart := guestcart.NewStore(kv)

	teardown := apiclient.NewTeardown(tokenStore, redirects, nav)
	client := apiclient.NewClient(cfg.APIBaseURL, tokenStore, teardown, apiclient.WithTimeout(cfg.HTTPTimeout))

	var publisher events.Publisher = events.Noop{}
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = producer
	}

	sess := session.New(session.Deps{
		API:       client,
		Tokens:    tokenStore,
		GuestCart: cart,
		Redirects: redirects,
		Nav:       nav,
		Events:    publisher,
	})
	go sess.Bootstrap(ctx)

	proxy, err := httpserver.NewBackendProxy(cfg.APIBaseURL, client.Transport())
	if err != nil {
		log.Fatalf("backend proxy: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(httpserver.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		Session:     &httpserver.SessionHTTP{Session: sess, Nav: nav},
		Cart:        &httpserver.CartHTTP{Cart: cart, Session: sess},
		Preferences: &httpserver.PreferencesHTTP{KV: kv},
		Navigation:  &httpserver.NavigationHTTP{Nav: nav},
		Proxy:       proxy,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("storefront_listening", "addr", srv.Addr, "api", cfg.APIBaseURL, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close_failed", "error", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("storefront_stopped")
}
