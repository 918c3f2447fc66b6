package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/config"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/logger"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/mailer"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/repo"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/service"
	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/szamlazz"
	httptransport "github.com/Alma806-mvk/automated-invoice-creation-agent/internal/transport/http"
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

func main() {
	// .env is optional; real deployments set the environment directly.
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

	gdb, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
	}

	repository := repo.NewRepository(gdb, rdb, nil, log)
	if err := repository.Init(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}
	svc := service.NewLedgerService(repository, log)

	var agent *szamlazz.Client
	if cfg.Szamlazz.Configured() {
		agent = szamlazz.NewClient(cfg.Szamlazz, log)
	} else {
		log.Warn("szamlazz agent not configured, issuing endpoints disabled")
	}

	var mail *mailer.Mailer
	if cfg.SMTP.Configured() {
		mail = mailer.NewMailer(cfg.SMTP, log)
	} else {
		log.Warn("smtp not configured, reminder sending disabled")
	}

	router := httptransport.NewRouter(svc, agent, mail, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("collections server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
