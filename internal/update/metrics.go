package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "updraft",
		Name:      "verifications_total",
		Help:      "Descriptor verification passes by outcome.",
	}, []string{"result"})

	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "updraft",
		Name:      "updates_total",
		Help:      "Update apply attempts by outcome.",
	}, []string{"result"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "updraft",
		Name:      "rollbacks_total",
		Help:      "Restores from backup after a failed apply.",
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "updraft",
		Name:      "download_bytes_total",
		Help:      "Artifact bytes downloaded.",
	})
)
