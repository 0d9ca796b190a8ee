package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts attendance sessions opened by instructors.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "sessions_started_total",
		Help:      "Attendance sessions opened.",
	})

	// SessionsClosed counts sessions leaving the active state, by reason (stopped, expired).
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "sessions_closed_total",
		Help:      "Attendance sessions closed, by reason.",
	}, []string{"reason"})

	// Submissions counts attendance submissions by outcome kind ("ok" on success).
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "attendance_submissions_total",
		Help:      "Attendance code submissions, by outcome.",
	}, []string{"outcome"})

	// CodeAttempts observes how many candidates were drawn per generated code.
	CodeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classroll",
		Name:      "code_generation_attempts",
		Help:      "Candidates drawn before a unique code was reserved.",
		Buckets:   []float64{1, 2, 3, 5, 10},
	})

	// EventsConsumed counts domain events processed by the worker, by type.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classroll",
		Name:      "events_consumed_total",
		Help:      "Domain events consumed by the worker.",
	}, []string{"type"})
)
