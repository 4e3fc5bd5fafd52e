package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "whisprd",
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Bytes received across all model downloads.",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whisprd",
		Subsystem: "download",
		Name:      "outcomes_total",
		Help:      "Terminal download outcomes by result.",
	}, []string{"result"})
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "complete"
	case IsCancelled(err):
		return "cancelled"
	case IsCorrupted(err):
		return "corrupted"
	case IsRedirectError(err):
		return "redirect"
	default:
		return "failed"
	}
}
