package health

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/domain/email"
	"github.com/erlendps/thingbooker/domain/scheduler"
)

var Module = fx.Module("health",
	fx.Provide(
		func(p *pgxpool.Pool) Pinger { return p },
		func(j *email.JobsService) QueueStats { return j },
		func(s *scheduler.Scheduler) TaskLister { return s },
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
