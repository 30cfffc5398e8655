package invites

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/memberships"
)

// Module provides the invitation token engine and binds it as the
// membership coordinator's Inviter.
var Module = fx.Module("invites",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		NewService,
		func(s *Service) memberships.Inviter { return s },
		func(s memberships.Store) MemberSets { return s },
		NewAcceptLimiterFromConfig,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
