package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/config"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/database"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Open(context.Background(), cfg.DatabaseDriver, cfg.DatabaseURL, true)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := repository.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
