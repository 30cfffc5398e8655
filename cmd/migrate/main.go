// Command migrate applies the embedded database migrations.
//
// Usage:
//
//	migrate [up|up-to <version>|down|status|version]
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/internal/migrate"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, os.Args[1:]); err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, args []string) error {
	var dbCfg config.DatabaseConfig
	if err := env.Parse(&dbCfg); err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dbCfg.DSN())))
	defer sqldb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := sqldb.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to %s:%d: %w", dbCfg.Host, dbCfg.Port, err)
	}

	m, err := migrate.NewMigrator(sqldb, log)
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up":
		return m.Up(ctx)
	case "up-to":
		if len(args) < 2 {
			return fmt.Errorf("up-to requires a version")
		}
		version, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.UpTo(ctx, version)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		version, err := m.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("current database version", zap.Int64("version", version))
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
