package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalehSedlah/doctor-assistant/internal/metrics"
	"github.com/SalehSedlah/doctor-assistant/internal/queue"
	"github.com/SalehSedlah/doctor-assistant/internal/speech"
)

// Worker drains the speech queue: each job is synthesized to MP3 and
// cached under its message id so the browser can fetch it for playback.
type Worker struct {
	queue         *queue.SpeechQueue
	synth         *speech.Synthesizer
	cache         *speech.AudioCache
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Queue         *queue.SpeechQueue
	Synthesizer   *speech.Synthesizer
	Cache         *speech.AudioCache
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		queue:         cfg.Queue,
		synth:         cfg.Synthesizer,
		cache:         cfg.Cache,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			err := w.processJob(ctx, msg.Job)
			if err == nil {
				w.metrics.SpeechJobsDone.Inc()
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
				}
				continue
			}

			w.metrics.SpeechJobsFailed.Inc()
			log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("speech job failed")

			if msg.Job.Attempts < w.maxJobRetries {
				msg.Job.Attempts++
				if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
					log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
					continue
				}
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack after re-enqueue")
				}
				continue
			}

			// Playback is best-effort: a terminally failed job is
			// dropped, the chat message itself is already delivered.
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack terminal failed message")
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.SpeechJob) error {
	audio, err := w.synth.Speak(ctx, speech.SpeakRequest{
		Text:         job.Text,
		LanguageCode: job.LanguageCode,
		VoiceName:    job.VoiceName,
	})
	if err != nil {
		return err
	}
	return w.cache.Put(ctx, job.MessageID, audio)
}
