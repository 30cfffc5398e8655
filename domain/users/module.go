package users

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/pkg/auth"
)

// Module provides the users domain
var Module = fx.Module("users",
	fx.Provide(NewRepository),
	fx.Provide(func(r *Repository) auth.ProfileStore { return r }),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
