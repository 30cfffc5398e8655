package bookings

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/things"
	"github.com/erlendps/thingbooker/domain/users"
)

// Module provides the booking lifecycle manager
var Module = fx.Module("bookings",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(r *users.Repository) UserLookup { return r },
		func(s *things.Service) Things { return s },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
