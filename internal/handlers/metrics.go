package handlers

import "github.com/prometheus/client_golang/prometheus"

var rateLimitedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habit_bot",
	Subsystem: "handlers",
	Name:      "rate_limited_total",
	Help:      "Number of inbound events dropped by the rate limiter, labeled by action.",
}, []string{"action"})

func init() {
	prometheus.MustRegister(rateLimitedCounter)
}
