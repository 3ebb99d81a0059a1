package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SalehSedlah/doctor-assistant/internal/providers"
	"github.com/SalehSedlah/doctor-assistant/internal/providers/gemini"
	"github.com/SalehSedlah/doctor-assistant/internal/providers/openai_compat"
)

type BuildOptions struct {
	Kind        string
	BaseURL     string
	APIKey      string
	Model       string
	Headers     map[string]string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

func Build(ctx context.Context, opts BuildOptions) (providers.Provider, error) {
	switch opts.Kind {
	case "gemini", "googleai":
		return gemini.New(ctx, gemini.Config{
			APIKey: opts.APIKey,
			Model:  opts.Model,
		})

	case "openai_compat", "openai-compatible", "openai":
		return openai_compat.New(openai_compat.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			Headers:     opts.Headers,
			HTTPClient:  opts.HTTPClient,
			MaxRetries:  opts.MaxRetries,
			BackoffBase: opts.BackoffBase,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
