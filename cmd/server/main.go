package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/lumenmail/campaignd/internal/api"
	"github.com/lumenmail/campaignd/internal/auth"
	"github.com/lumenmail/campaignd/internal/config"
	"github.com/lumenmail/campaignd/internal/mailing"
	"github.com/lumenmail/campaignd/internal/pkg/logger"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
	"github.com/lumenmail/campaignd/internal/tracking"
	"github.com/lumenmail/campaignd/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}
	log := logger.Component("server")

	db, err := openDB(cfg)
	if err != nil {
		log.Error("database connect failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to database")

	var sender worker.ESPSender = worker.DisabledSender{}
	if cfg.SES.Enabled {
		ses, err := worker.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		if err != nil {
			log.Error("ses init failed", "error", err.Error())
			os.Exit(1)
		}
		sender = ses
	}

	signer := tracking.NewSigner(cfg.Tracking.HMACSecret, cfg.Tracking.BaseURL)
	composer := worker.NewComposer(mailing.NewRenderer(), signer,
		cfg.Sending.DefaultFromName, cfg.Sending.DefaultFromEmail)

	store := postgres.NewStore(db)
	handlers := api.NewHandlers(store, composer, sender)
	router := api.SetupRoutes(handlers, auth.NewTokenStore(db), cfg.Auth.Enabled)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // status streams hold the connection open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("admin api listening", "addr", addr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	log.Info("stopped")
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
