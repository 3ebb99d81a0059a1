package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type TranscriberConfig struct {
	BaseURL      string
	APIKey       string
	LanguageCode string
	HTTPClient   *http.Client
}

// Transcriber converts recorded speech to text via the Google Cloud
// Speech-to-Text REST API.
type Transcriber struct {
	cfg TranscriberConfig
}

func NewTranscriber(cfg TranscriberConfig) *Transcriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://speech.googleapis.com/v1"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transcriber{cfg: cfg}
}

// Transcribe takes base64-encoded audio and returns the transcript.
// "No speech detected" is a benign outcome: an empty transcript with a
// nil error.
func (t *Transcriber) Transcribe(ctx context.Context, audioContent, languageCode string) (string, error) {
	if strings.TrimSpace(audioContent) == "" {
		return "", fmt.Errorf("audio content is empty")
	}
	body, err := buildRecognizePayload(audioContent, languageCode, t.cfg.LanguageCode)
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimSuffix(t.cfg.BaseURL, "/") + "/speech:recognize?key=" + t.cfg.APIKey

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read recognize response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("stt status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return parseRecognizeResponse(respBody)
}

func buildRecognizePayload(audioContent, languageCode, fallbackLanguage string) ([]byte, error) {
	lang := languageCode
	if lang == "" {
		lang = fallbackLanguage
	}
	payload := map[string]any{
		"config": map[string]any{
			"languageCode":               lang,
			"enableAutomaticPunctuation": true,
		},
		"audio": map[string]string{"content": audioContent},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal recognize payload: %w", err)
	}
	return b, nil
}

func parseRecognizeResponse(body []byte) (string, error) {
	var out struct {
		Results []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}

	// No results means no speech was detected, which is not an error.
	var sb strings.Builder
	for _, r := range out.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		sb.WriteString(r.Alternatives[0].Transcript)
	}
	return strings.TrimSpace(sb.String()), nil
}
