package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var (
	// MessagesProcessed counts matched messages by folder and outcome.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_digest_messages_processed_total",
			Help: "Matched messages processed, by folder and status",
		},
		[]string{"folder", "status"},
	)

	// FolderErrors counts folder cycles aborted by mail access errors.
	FolderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_digest_folder_errors_total",
			Help: "Folder checks aborted by a mail access error",
		},
		[]string{"folder"},
	)

	// SummaryRequests counts summarizer outcomes; skipped means the body
	// was too short to send.
	SummaryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_digest_summary_requests_total",
			Help: "Summarization attempts by status",
		},
		[]string{"status"},
	)

	// ChatSends counts chat API calls by kind (text, document) and status.
	ChatSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_digest_chat_sends_total",
			Help: "Chat API sends by kind and status",
		},
		[]string{"kind", "status"},
	)

	// CycleDuration observes one full pass over all folders.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mail_digest_cycle_duration_seconds",
			Help:    "Duration of one poll cycle over all folders",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3m
		},
	)
)

// IncMessage records the outcome of one matched message.
func IncMessage(folder, status string) {
	MessagesProcessed.WithLabelValues(folder, status).Inc()
}

// IncFolderError records an aborted folder check.
func IncFolderError(folder string) {
	FolderErrors.WithLabelValues(folder).Inc()
}

// IncSummary records a summarizer outcome.
func IncSummary(status string) {
	SummaryRequests.WithLabelValues(status).Inc()
}

// IncChatSend records a chat API call.
func IncChatSend(kind, status string) {
	ChatSends.WithLabelValues(kind, status).Inc()
}

// ObserveCycle records the duration of a poll cycle.
func ObserveCycle(d time.Duration) {
	CycleDuration.Observe(d.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
