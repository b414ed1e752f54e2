package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joecontact_submissions_total",
		Help: "Contact form submissions by outcome (stored, invalid, rejected_file, error).",
	}, []string{"outcome"})

	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joecontact_validation_failures_total",
		Help: "Field validation failures by field name.",
	}, []string{"field"})

	FilesCheckedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joecontact_files_checked_total",
		Help: "Attachment policy decisions by result (accepted, rejected).",
	}, []string{"result"})

	ThemeChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joecontact_theme_changes_total",
		Help: "Theme preference updates by resulting theme.",
	}, []string{"theme"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "joecontact_rate_limited_total",
		Help: "Requests refused by the per-client rate limiter.",
	})

	MessagesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "joecontact_messages_total",
		Help: "Messages currently stored.",
	})
)
