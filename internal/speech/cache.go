package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAudioNotReady means synthesis for the message has not completed
// (or the cached audio expired).
var ErrAudioNotReady = errors.New("audio not ready")

// AudioCache holds synthesized MP3 audio, keyed by the persisted
// message id, until the browser fetches it for playback.
type AudioCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewAudioCache(rdb *redis.Client, ttl time.Duration) *AudioCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AudioCache{redis: rdb, ttl: ttl}
}

func audioKey(messageID int64) string {
	return fmt.Sprintf("assist:audio:%d", messageID)
}

func (c *AudioCache) Put(ctx context.Context, messageID int64, audioContent string) error {
	if err := c.redis.Set(ctx, audioKey(messageID), audioContent, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache audio for message %d: %w", messageID, err)
	}
	return nil
}

func (c *AudioCache) Get(ctx context.Context, messageID int64) (string, error) {
	audio, err := c.redis.Get(ctx, audioKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrAudioNotReady
	}
	if err != nil {
		return "", fmt.Errorf("load audio for message %d: %w", messageID, err)
	}
	return audio, nil
}
