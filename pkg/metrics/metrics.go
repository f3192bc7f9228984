package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Flow outcome is one of: success, cancelled, denied, state_mismatch,
	// missing_parameter, bind_error, exchange_error, error.
	FlowsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "codegrant_flows_started_total",
		Help: "Total number of authorization code flows started",
	})
	FlowsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codegrant_flows_completed_total",
		Help: "Total number of authorization code flows finished, by outcome",
	}, []string{"outcome"})
	FlowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegrant_flow_duration_seconds",
		Help:    "Duration of authorization code flows from listener start to result",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	// Callback requests seen by the listener; result is one of: code, error,
	// missing_parameter, duplicate, rate_limited.
	CallbackRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codegrant_callback_requests_total",
		Help: "Total number of requests received on the redirect callback path",
	}, []string{"result"})

	TokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codegrant_token_exchanges_total",
		Help: "Total number of token endpoint requests, by grant type and HTTP status",
	}, []string{"grant_type", "status"})
	TokenExchangeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegrant_token_exchange_duration_seconds",
		Help:    "Latency of token endpoint requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"grant_type"})
)

func init() {
	Register(prometheus.DefaultRegisterer)
}

// Register adds every codegrant collector to reg. Registering the same
// collectors twice on one registerer is ignored.
func Register(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		FlowsStarted,
		FlowsCompleted,
		FlowDuration,
		CallbackRequests,
		TokenExchanges,
		TokenExchangeDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
