// Package main is the entry point for the Thingbooker API server.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/erlendps/thingbooker/domain/bookings"
	"github.com/erlendps/thingbooker/domain/email"
	"github.com/erlendps/thingbooker/domain/groups"
	"github.com/erlendps/thingbooker/domain/health"
	"github.com/erlendps/thingbooker/domain/invites"
	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/notify"
	"github.com/erlendps/thingbooker/domain/scheduler"
	"github.com/erlendps/thingbooker/domain/things"
	"github.com/erlendps/thingbooker/domain/tracing"
	"github.com/erlendps/thingbooker/domain/users"
	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/internal/database"
	"github.com/erlendps/thingbooker/internal/server"
	"github.com/erlendps/thingbooker/internal/storage"
	"github.com/erlendps/thingbooker/pkg/auth"
	"github.com/erlendps/thingbooker/pkg/logger"
)

func main() {
	// .env.local overrides .env; neither overrides the real environment.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure
		logger.Module,
		config.Module,
		database.Module,
		tracing.Module,
		server.Module,
		storage.Module,
		auth.Module,

		// Delivery
		email.Module,
		notify.Module,

		// Domain
		health.Module,
		users.Module,
		memberships.Module,
		invites.Module,
		groups.Module,
		things.Module,
		bookings.Module,

		// Housekeeping
		scheduler.Module,
	).Run()
}
