package dispute

import "github.com/prometheus/client_golang/prometheus"

// ResolutionsTotal counts resolve attempts by outcome: buyer, seller,
// invalid or not_disputed.
var ResolutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pescrow",
		Name:      "dispute_resolutions_total",
		Help:      "Dispute resolution attempts by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
}
