package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatTurns         prometheus.Counter
	ChatTurnErrors    prometheus.Counter
	StreamChunks      prometheus.Counter
	MessagesPersisted prometheus.Counter
	PersistFailures   prometheus.Counter
	SpeechJobsQueued  prometheus.Counter
	SpeechJobsDone    prometheus.Counter
	SpeechJobsFailed  prometheus.Counter
	Transcriptions    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatTurns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "chat_turns_total",
				Help:      "Total chat turns started",
			}),
			ChatTurnErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "chat_turn_errors_total",
				Help:      "Total chat turns that ended in a stream error",
			}),
			StreamChunks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "stream_chunks_total",
				Help:      "Total streamed response chunks forwarded",
			}),
			MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "messages_persisted_total",
				Help:      "Total chat messages written to the store",
			}),
			PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "persist_failures_total",
				Help:      "Total store writes that failed",
			}),
			SpeechJobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "speech_jobs_enqueued_total",
				Help:      "Total speech synthesis jobs enqueued",
			}),
			SpeechJobsDone: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "speech_jobs_processed_total",
				Help:      "Total speech synthesis jobs completed",
			}),
			SpeechJobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "speech_jobs_failed_total",
				Help:      "Total speech synthesis jobs that failed",
			}),
			Transcriptions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "assist",
				Name:      "transcriptions_total",
				Help:      "Total speech-to-text requests served",
			}),
		}
		prometheus.MustRegister(
			global.ChatTurns,
			global.ChatTurnErrors,
			global.StreamChunks,
			global.MessagesPersisted,
			global.PersistFailures,
			global.SpeechJobsQueued,
			global.SpeechJobsDone,
			global.SpeechJobsFailed,
			global.Transcriptions,
		)
	})
	return global
}
