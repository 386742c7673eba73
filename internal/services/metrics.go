package services

import "github.com/prometheus/client_golang/prometheus"

var (
	submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "review",
		Name:      "submissions_total",
		Help:      "Number of proof submissions, labeled by result.",
	}, []string{"result"})

	decisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "review",
		Name:      "decisions_total",
		Help:      "Number of admin decisions applied, labeled by outcome.",
	}, []string{"outcome"})

	reminderCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "scheduler",
		Name:      "reminders_total",
		Help:      "Number of habits processed by the scheduler, labeled by result (sent, skipped, failed).",
	}, []string{"result"})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "habit_bot",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Time spent processing one scheduler tick.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	skippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "scheduler",
		Name:      "ticks_skipped_total",
		Help:      "Number of ticks skipped because the previous tick was still running.",
	})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Number of retried store operations after a transient failure, labeled by operation.",
	}, []string{"op"})

	deliveryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_bot",
		Subsystem: "transport",
		Name:      "messages_total",
		Help:      "Number of outbound messages, labeled by channel (websocket, queued, push).",
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(
		submissionCounter,
		decisionCounter,
		reminderCounter,
		tickDuration,
		skippedTicks,
		retryCounter,
		deliveryCounter,
	)
}
