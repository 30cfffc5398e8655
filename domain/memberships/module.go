package memberships

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/users"
)

// Module provides the membership coordinator. An Inviter must be supplied by
// the invites module.
var Module = fx.Module("memberships",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(r *users.Repository) Directory { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
