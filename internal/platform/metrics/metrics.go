package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_votes_total",
		Help: "Votos recebidos por origem (local ou par) e resultado",
	}, []string{"origin", "status"})

	syncMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_sync_messages_total",
		Help: "Mensagens do protocolo de sincronizacao por tipo e direcao",
	}, []string{"kind", "direction"})

	syncDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_sync_messages_dropped_total",
		Help: "Mensagens descartadas pela sessao por motivo",
	}, []string{"reason"})

	syncHandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_sync_handle_duration_seconds",
		Help:    "Tempo para aplicar um evento de par no armazenamento local",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveVote(origin, status string) {
	votesTotal.WithLabelValues(origin, status).Inc()
}

func ObserveMessage(kind, direction string) {
	syncMessagesTotal.WithLabelValues(kind, direction).Inc()
}

func IncDropped(reason string) {
	syncDroppedTotal.WithLabelValues(reason).Inc()
}

func ObserveHandleDuration(seconds float64) {
	syncHandleDuration.Observe(seconds)
}
