package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CodecFallbacks counts fail-open passthroughs in the message codec.
	// The codec deliberately degrades to plaintext instead of failing a
	// send; this counter keeps that degradation from going unnoticed.
	CodecFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatkit_codec_fallbacks_total",
		Help: "Encrypt/decrypt failures that fell back to passthrough.",
	}, []string{"op"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatkit_messages_sent_total",
		Help: "Messages successfully persisted.",
	})

	SendRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatkit_send_rollbacks_total",
		Help: "Optimistic sends rolled back after a persistence failure.",
	})

	ReconciledReplacements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatkit_reconciled_replacements_total",
		Help: "Provisional messages replaced by their authoritative row.",
	})

	StaleStatusDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatkit_stale_status_dropped_total",
		Help: "Status events ignored because the message was already further along.",
	})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
