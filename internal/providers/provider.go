package providers

import (
	"context"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
)

type Request struct {
	Model        string
	SystemPrompt string
	Parts        []prompt.Part
	MaxTokens    int
	Temperature  float64
	// JSONOutput asks the model for a machine-parseable JSON response.
	JSONOutput bool
}

type Response struct {
	Text string
}

// TokenStream is a sequential pull source of response text chunks.
// Next returns io.EOF once the model has finished the response.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	GenerateStream(ctx context.Context, req Request) (TokenStream, error)
}
