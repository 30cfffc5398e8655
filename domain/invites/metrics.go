package invites

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invitesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thingbooker_invites_issued_total",
		Help: "Invite tokens created, by target type",
	}, []string{"target_type"})

	invitesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thingbooker_invite_accepts_total",
		Help: "Invite accept attempts, by target type and outcome",
	}, []string{"target_type", "outcome"})
)
