package notify

import (
	"go.uber.org/fx"
)

// Module provides a Dispatcher that queues notifications as emails
var Module = fx.Module("notify",
	fx.Provide(
		fx.Annotate(NewEmailSender, fx.As(new(Sender))),
		NewDispatcher,
	),
)
