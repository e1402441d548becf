package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authsvc"

var (
	SignIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "signin_total", Help: "Sign-in attempts by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	SignOuts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "signout_total", Help: "Sign-out requests."},
	)
	SessionLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "session_lookups_total", Help: "Session lookups by result (authenticated, anonymous, error)."},
		[]string{"result"},
	)
	SessionRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "session_refresh_total", Help: "Session expiry extensions written to the store."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SignIns, SignOuts, SessionLookups, SessionRefreshes)
	reg.MustRegister(RateLimitAllowed, RateLimitRejected)
}
