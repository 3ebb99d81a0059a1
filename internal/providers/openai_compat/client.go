package openai_compat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Generate(ctx context.Context, req providers.Request) (providers.Response, error) {
	body, endpointURL, err := c.buildPayload(req, false)
	if err != nil {
		return providers.Response{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, retry, err := c.callOnce(ctx, endpointURL, body)
		if err == nil {
			return providers.Response{Text: text}, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return providers.Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return providers.Response{}, lastErr
}

// GenerateStream issues a chat completion with stream=true and returns
// a TokenStream over the SSE chunk deltas. No retry is attempted for
// streaming calls; the caller resubmits the turn.
func (c *Client) GenerateStream(ctx context.Context, req providers.Request) (providers.TokenStream, error) {
	body, endpointURL, err := c.buildPayload(req, true)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (c *Client) buildPayload(req providers.Request, stream bool) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	messages := []map[string]any{}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemPrompt})
	}
	content, err := buildUserContent(req.Parts)
	if err != nil {
		return nil, "", err
	}
	messages = append(messages, map[string]any{"role": "user", "content": content})

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if stream {
		payload["stream"] = true
	}
	if req.JSONOutput {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

// buildUserContent maps prompt parts to the chat-completions content
// shape: a bare string for text-only prompts, a typed part array when
// an image is attached (image data URIs ride in image_url parts).
func buildUserContent(parts []prompt.Part) (any, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("prompt has no parts")
	}
	if len(parts) == 1 && parts[0].Media == nil {
		return parts[0].Text, nil
	}
	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		if p.Media != nil {
			out = append(out, map[string]any{
				"type":      "image_url",
				"image_url": map[string]string{"url": p.Media.URL},
			})
			continue
		}
		out = append(out, map[string]any{"type": "text", "text": p.Text})
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (text string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("provider temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	text, err = parseChatCompletions(respBody)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/completions"
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat completion response")
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return "", fmt.Errorf("missing message content in chat completion response")
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		chunk, err := parseStreamChunk([]byte(data))
		if err != nil {
			return "", err
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	s.done = true
	return "", io.EOF
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

func parseStreamChunk(data []byte) (string, error) {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", fmt.Errorf("decode stream chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}
