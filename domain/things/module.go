package things

import (
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/memberships"
	"github.com/erlendps/thingbooker/internal/storage"
)

// Module provides things, their rules and pictures
var Module = fx.Module("things",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(s *memberships.Service) MemberSets { return s },
		func(s *storage.Service) PictureStore { return s },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
