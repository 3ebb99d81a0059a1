package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalehSedlah/doctor-assistant/internal/history"
	"github.com/SalehSedlah/doctor-assistant/internal/metrics"
	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
	"github.com/SalehSedlah/doctor-assistant/internal/queue"
	"github.com/SalehSedlah/doctor-assistant/internal/storage"
)

// ErrRateLimited rejects a turn before any model call is made.
var ErrRateLimited = errors.New("rate limit exceeded")

// MessageStore is the persistence surface a chat turn needs.
type MessageStore interface {
	SaveMessage(ctx context.Context, identityID string, m storage.ChatMessage) (storage.ChatMessage, error)
	History(ctx context.Context, identityID string) ([]storage.ChatMessage, error)
}

// Deduplicator reports whether a client message id is being seen for
// the first time.
type Deduplicator interface {
	MarkFirst(ctx context.Context, identityID, clientID string) (bool, error)
}

// Limiter caps turns per identity.
type Limiter interface {
	Allow(ctx context.Context, identityID string, now time.Time) (bool, int64, time.Time, error)
}

// SpeechEnqueuer schedules audio synthesis for a persisted message.
type SpeechEnqueuer interface {
	Enqueue(ctx context.Context, job queue.SpeechJob) (string, error)
}

// Publisher signals that an identity's persisted history changed.
type Publisher interface {
	Publish(ctx context.Context, identityID string) error
}

type ServiceConfig struct {
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	// SpeechEnabled schedules a synthesis job for every finalized
	// assistant message.
	SpeechEnabled bool
	LanguageCode  string
	VoiceName     string
}

// Service runs a full chat turn: assemble the prompt, persist the user
// message once, stream the model response, persist the finalized
// assistant message, notify live subscribers, and queue audio.
type Service struct {
	cfg      ServiceConfig
	provider providers.Provider
	store    MessageStore
	dedupe   Deduplicator
	limiter  Limiter
	speech   SpeechEnqueuer
	feed     Publisher
	logger   zerolog.Logger
}

func NewService(
	cfg ServiceConfig,
	provider providers.Provider,
	store MessageStore,
	dedupe Deduplicator,
	limiter Limiter,
	speech SpeechEnqueuer,
	feed Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		store:    store,
		dedupe:   dedupe,
		limiter:  limiter,
		speech:   speech,
		feed:     feed,
		logger:   logger,
	}
}

// TurnInput is one user submission.
type TurnInput struct {
	IdentityID string
	// ClientID is the browser-generated id of the optimistic message.
	ClientID     string
	Text         string
	PhotoDataURI string
}

// TurnResult reports what a finished turn produced.
type TurnResult struct {
	UserMessage      storage.ChatMessage
	AssistantMessage storage.ChatMessage
	// StreamErr is set when generation failed mid-stream; the partial
	// text plus a user-facing error suffix is still finalized.
	StreamErr error
}

// Run executes a chat turn, forwarding each streamed chunk to onChunk.
// Persistence failures are logged and recorded in metrics but never
// abort the turn: the conversation continues in memory.
func (s *Service) Run(ctx context.Context, in TurnInput, onChunk func(chunk string)) (TurnResult, error) {
	m := metrics.Global()

	req, err := prompt.Assemble(in.Text, in.PhotoDataURI)
	if err != nil {
		return TurnResult{}, err
	}

	if s.limiter != nil {
		allowed, used, resetAt, err := s.limiter.Allow(ctx, in.IdentityID, time.Now())
		if err != nil {
			s.logger.Error().Err(err).Msg("rate limiter unavailable, allowing turn")
		} else if !allowed {
			s.logger.Warn().
				Str("identity_id", in.IdentityID).
				Int64("used", used).
				Time("reset_at", resetAt).
				Msg("turn rejected by rate limit")
			return TurnResult{}, ErrRateLimited
		}
	}
	m.ChatTurns.Inc()

	res := TurnResult{UserMessage: s.persistUserMessage(ctx, in)}

	stream, err := s.provider.GenerateStream(ctx, providers.Request{
		Model:        s.cfg.Model,
		SystemPrompt: s.cfg.SystemPrompt,
		Parts:        req.Parts,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		// A failure to open the stream finalizes the turn the same way
		// a mid-stream failure does: one persisted assistant message
		// carrying the user-facing error text.
		m.ChatTurnErrors.Inc()
		res.StreamErr = &StreamError{Err: err}
		res.AssistantMessage = s.persistAssistantMessage(ctx, in.IdentityID, UserFacingStreamError(err))
		return res, nil
	}

	consumer := NewConsumer(func(chunk string) {
		m.StreamChunks.Inc()
		if onChunk != nil {
			onChunk(chunk)
		}
	})
	text, streamErr := consumer.Run(ctx, stream)
	if streamErr != nil {
		m.ChatTurnErrors.Inc()
		res.StreamErr = streamErr
		// A canceled turn is abandoned entirely: nothing to finalize.
		if ctx.Err() != nil {
			return res, streamErr
		}
		if text != "" {
			text += "\n"
		}
		text += UserFacingStreamError(errors.Unwrap(streamErr))
	}

	res.AssistantMessage = s.persistAssistantMessage(ctx, in.IdentityID, text)
	return res, nil
}

// persistUserMessage writes the user's message exactly once per client
// id. A duplicate submission or a store failure leaves the in-memory
// message untouched.
func (s *Service) persistUserMessage(ctx context.Context, in TurnInput) storage.ChatMessage {
	m := metrics.Global()
	msg := storage.ChatMessage{
		ClientID:  in.ClientID,
		Role:      storage.RoleUser,
		Text:      in.Text,
		Timestamp: time.Now().UTC(),
	}
	if in.PhotoDataURI != "" {
		uri := in.PhotoDataURI
		msg.ImageURL = &uri
	}

	if s.dedupe != nil && in.ClientID != "" {
		first, err := s.dedupe.MarkFirst(ctx, in.IdentityID, in.ClientID)
		if err != nil {
			s.logger.Error().Err(err).Msg("dedupe check failed, persisting anyway")
		} else if !first {
			s.logger.Debug().Str("client_id", in.ClientID).Msg("duplicate submission, skipping persist")
			return msg
		}
	}

	saved, err := s.store.SaveMessage(ctx, in.IdentityID, msg)
	if err != nil {
		m.PersistFailures.Inc()
		s.logger.Error().Err(err).Str("identity_id", in.IdentityID).Msg("failed to persist user message")
		return msg
	}
	m.MessagesPersisted.Inc()
	s.notify(ctx, in.IdentityID)
	return saved
}

func (s *Service) persistAssistantMessage(ctx context.Context, identityID, text string) storage.ChatMessage {
	m := metrics.Global()
	msg := storage.ChatMessage{
		Role:      storage.RoleAssistant,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	saved, err := s.store.SaveMessage(ctx, identityID, msg)
	if err != nil {
		m.PersistFailures.Inc()
		s.logger.Error().Err(err).Str("identity_id", identityID).Msg("failed to persist assistant message")
		return msg
	}
	m.MessagesPersisted.Inc()
	s.notify(ctx, identityID)

	if s.cfg.SpeechEnabled && s.speech != nil && saved.Text != "" {
		if _, err := s.speech.Enqueue(ctx, queue.SpeechJob{
			IdentityID:   identityID,
			MessageID:    saved.ID,
			Text:         saved.Text,
			LanguageCode: s.cfg.LanguageCode,
			VoiceName:    s.cfg.VoiceName,
		}); err != nil {
			s.logger.Error().Err(err).Int64("message_id", saved.ID).Msg("failed to enqueue speech job")
		} else {
			m.SpeechJobsQueued.Inc()
		}
	}
	return saved
}

func (s *Service) notify(ctx context.Context, identityID string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, identityID); err != nil {
		s.logger.Error().Err(err).Str("identity_id", identityID).Msg("failed to publish history update")
	}
}

// History returns the persisted conversation for an identity.
func (s *Service) History(ctx context.Context, identityID string) ([]storage.ChatMessage, error) {
	msgs, err := s.store.History(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

var _ Publisher = (*history.Feed)(nil)
