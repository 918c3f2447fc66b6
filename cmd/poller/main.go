package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/logger"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/repo"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{PrepareStmt: true})
	case "", "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// The poller drains the ledger event outbox into Kafka so downstream
// collections automation sees every committed mutation exactly as stored.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("kafka brokers not configured")
	}

	gdb, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	repository := repo.NewRepository(gdb, nil, kw, log)
	if err := repository.Init(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	log.Info("ledger event poller started")
	for range ticker.C {
		ctx := context.Background()
		events, err := repository.PollEvents(ctx, 100)
		if err != nil {
			log.Errorf("poll events: %v", err)
			continue
		}
		for _, evt := range events {
			if err := repository.PublishEvent(ctx, evt); err != nil {
				log.Errorf("publish id=%d: %v", evt.ID, err)
				continue
			}
			if err := repository.MarkEventProcessed(ctx, evt.ID); err != nil {
				log.Errorf("mark processed id=%d: %v", evt.ID, err)
			} else {
				log.Infof("event %d (%s %s) sent", evt.ID, evt.EventType, evt.InvoiceNumber)
			}
		}
	}
}
