package history

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SalehSedlah/doctor-assistant/internal/storage"
)

// Snapshotter loads the full ordered history for an identity.
type Snapshotter interface {
	History(ctx context.Context, identityID string) ([]storage.ChatMessage, error)
}

// Feed turns persisted writes into live full-history snapshots. Every
// persist publishes a notification on the identity's channel; each
// subscriber reloads the complete ordered history and pushes it as one
// snapshot. Subscribing always starts with a fresh snapshot, so the
// feed is restartable.
type Feed struct {
	redis  *redis.Client
	store  Snapshotter
	logger zerolog.Logger
}

func NewFeed(rdb *redis.Client, store Snapshotter, logger zerolog.Logger) *Feed {
	return &Feed{redis: rdb, store: store, logger: logger}
}

func channelFor(identityID string) string {
	return "assist:history:" + identityID
}

// Publish notifies subscribers that the identity's history changed.
func (f *Feed) Publish(ctx context.Context, identityID string) error {
	if err := f.redis.Publish(ctx, channelFor(identityID), "1").Err(); err != nil {
		return fmt.Errorf("publish history update: %w", err)
	}
	return nil
}

// Subscribe returns a channel of full-history snapshots for the
// identity. The channel closes when ctx is canceled. A snapshot that
// fails to load is skipped with a log line; the subscription stays up.
func (f *Feed) Subscribe(ctx context.Context, identityID string) (<-chan []storage.ChatMessage, error) {
	sub := f.redis.Subscribe(ctx, channelFor(identityID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe history: %w", err)
	}

	out := make(chan []storage.ChatMessage, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		f.push(ctx, identityID, out)

		updates := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-updates:
				if !ok {
					return
				}
				f.push(ctx, identityID, out)
			}
		}
	}()
	return out, nil
}

func (f *Feed) push(ctx context.Context, identityID string, out chan<- []storage.ChatMessage) {
	snapshot, err := f.store.History(ctx, identityID)
	if err != nil {
		f.logger.Error().Err(err).Str("identity_id", identityID).Msg("failed to load history snapshot")
		return
	}
	select {
	case <-ctx.Done():
	case out <- snapshot:
	}
}
