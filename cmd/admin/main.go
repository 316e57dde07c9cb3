package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sparkbridge/server/internal/admincli"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/config"
	"github.com/sparkbridge/server/internal/server/repositories/repomanager"
	"github.com/sparkbridge/server/internal/server/services"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("db migration error: %v", err)
	}

	logger := logging.NewJSON(os.Stderr, "warn")
	app := admincli.NewApp(services.NewAuthService(db, rm, cfg, logger), os.Stdin, os.Stdout)

	if err := app.Run(ctx, config.RemainingArgs(os.Args[1:])); err != nil {
		log.Printf("%v", err)
		db.Close()
		os.Exit(1)
	}

}
