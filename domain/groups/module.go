package groups

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/domain/users"
)

var Module = fx.Module("groups",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(s *memberships.Service) MemberSets { return s },
		func(r *users.Repository) UserLookup { return r },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
