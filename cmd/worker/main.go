package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

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
	log := logger.Component("worker")

	db, err := openDB(cfg)
	if err != nil {
		log.Error("database connect failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to database")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Error("bad redis url", "error", err.Error())
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unreachable, falling back to advisory locks", "error", err.Error())
			redisClient = nil
		}
	}

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
	pool := worker.NewSendPool(sender, composer, store.Recipients, cfg.Worker.PoolSize, cfg.Worker.SendRatePerSecond)
	scheduler := worker.NewScheduler(store, pool, redisClient, db,
		cfg.Worker.PollInterval(), cfg.Worker.OutboxInterval(),
		cfg.Worker.ClaimBatchSize, cfg.Worker.QueueChunkSize)

	scheduler.Start()
	log.Info("delivery worker running",
		"pool_size", cfg.Worker.PoolSize,
		"rate_per_second", cfg.Worker.SendRatePerSecond)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	scheduler.Stop()

	sent, failed := pool.Stats()
	log.Info("stopped", "total_sent", sent, "total_failed", failed)
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
