package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

// streamErrorPrefix is shown to the user, in the assistant's language,
// when generation fails mid-stream.
const streamErrorPrefix = "عذرًا، حدث خطأ أثناء إنشاء الرد: "

// StreamError reports a failure while consuming a token stream. Partial
// text accumulated before the failure is preserved.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("token stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// UserFacingStreamError renders a stream failure as a message suffix in
// the assistant's language.
func UserFacingStreamError(err error) string {
	return streamErrorPrefix + err.Error()
}

type ConsumerState int

const (
	StateIdle ConsumerState = iota
	StateAwaitingFirstToken
	StateStreaming
	StateFinalized
	StateErrored
)

func (s ConsumerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstToken:
		return "awaiting_first_token"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Consumer drains a token stream, forwarding each non-empty chunk and
// accumulating the full response text. A failed stream still yields the
// partial text via StreamError.
type Consumer struct {
	state   ConsumerState
	onChunk func(chunk string)
}

// NewConsumer builds a consumer. onChunk may be nil when the caller
// only wants the accumulated text.
func NewConsumer(onChunk func(chunk string)) *Consumer {
	return &Consumer{state: StateIdle, onChunk: onChunk}
}

func (c *Consumer) State() ConsumerState { return c.state }

// Run consumes the stream to completion and returns the concatenation
// of every received chunk, in order. The stream is always closed.
func (c *Consumer) Run(ctx context.Context, stream providers.TokenStream) (string, error) {
	defer func() { _ = stream.Close() }()

	c.state = StateAwaitingFirstToken
	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			c.state = StateErrored
			return sb.String(), &StreamError{Partial: sb.String(), Err: err}
		}

		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			c.state = StateFinalized
			return sb.String(), nil
		}
		if err != nil {
			c.state = StateErrored
			return sb.String(), &StreamError{Partial: sb.String(), Err: err}
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		c.state = StateStreaming
		if c.onChunk != nil {
			c.onChunk(chunk)
		}
	}
}
