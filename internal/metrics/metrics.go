// Package metrics holds the process-wide prometheus instruments. Everything
// registers on the default registry and is served by promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edutrack_checkins_total",
		Help: "Live attendance check-ins by outcome.",
	}, []string{"outcome"})

	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edutrack_sessions_total",
		Help: "Attendance sessions opened and closed.",
	}, []string{"event"})

	sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edutrack_absentee_sweeps_total",
		Help: "Absentee sweep runs completed by the worker.",
	})
)

// CheckinAccepted counts a successful live mark.
func CheckinAccepted() {
	checkins.WithLabelValues("accepted").Inc()
}

// CheckinRejected counts a failed live mark. reason is one of
// "session", "location", "duplicate".
func CheckinRejected(reason string) {
	checkins.WithLabelValues("rejected_" + reason).Inc()
}

// SessionOpened counts a newly created session.
func SessionOpened() {
	sessions.WithLabelValues("opened").Inc()
}

// SessionClosed counts a close that actually flipped the active flag.
func SessionClosed() {
	sessions.WithLabelValues("closed").Inc()
}

// SweepCompleted counts a finished absentee sweep.
func SweepCompleted() {
	sweeps.Inc()
}
