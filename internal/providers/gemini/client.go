package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/SalehSedlah/doctor-assistant/internal/media"
	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

type Config struct {
	APIKey string
	Model  string
}

type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: c, model: cfg.Model}, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Generate(ctx context.Context, req providers.Request) (providers.Response, error) {
	model, parts, err := c.prepare(req)
	if err != nil {
		return providers.Response{}, err
	}
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return providers.Response{}, fmt.Errorf("gemini generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return providers.Response{}, fmt.Errorf("gemini returned no text content")
	}
	return providers.Response{Text: text}, nil
}

func (c *Client) GenerateStream(ctx context.Context, req providers.Request) (providers.TokenStream, error) {
	model, parts, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	return &tokenStream{iter: model.GenerateContentStream(ctx, parts...)}, nil
}

func (c *Client) prepare(req providers.Request) (*genai.GenerativeModel, []genai.Part, error) {
	name := req.Model
	if name == "" {
		name = c.model
	}
	model := c.client.GenerativeModel(name)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	if req.JSONOutput {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		model.GenerationConfig.Temperature = &temp
	}

	parts, err := toGenaiParts(req.Parts)
	if err != nil {
		return nil, nil, err
	}
	return model, parts, nil
}

func toGenaiParts(parts []prompt.Part) ([]genai.Part, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("prompt has no parts")
	}
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Media != nil {
			mimeType, data, err := media.ParseDataURI(p.Media.URL)
			if err != nil {
				return nil, fmt.Errorf("prompt image: %w", err)
			}
			out = append(out, genai.Blob{MIMEType: mimeType, Data: data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

type tokenStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *tokenStream) Next() (string, error) {
	resp, err := s.iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		return "", fmt.Errorf("gemini stream: %w", err)
	}
	return responseText(resp), nil
}

func (s *tokenStream) Close() error { return nil }
