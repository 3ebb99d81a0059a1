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

const (
	DefaultLanguageCode = "ar-XA"
	DefaultVoiceName    = "ar-XA-Wavenet-D"
)

// SynthesisError wraps a text-to-speech failure. It never unwinds the
// chat turn that requested the audio.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

type SynthesizerConfig struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// Synthesizer renders text as MP3 audio via the Google Cloud
// Text-to-Speech REST API.
type Synthesizer struct {
	cfg SynthesizerConfig
}

func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://texttospeech.googleapis.com/v1"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Synthesizer{cfg: cfg}
}

type SpeakRequest struct {
	Text         string
	LanguageCode string
	VoiceName    string
}

// Speak returns the base64-encoded MP3 audio for the given text.
func (s *Synthesizer) Speak(ctx context.Context, req SpeakRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", &SynthesisError{Err: fmt.Errorf("text is empty")}
	}
	body, err := buildSynthesizePayload(req)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	endpoint := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/text:synthesize?key=" + s.cfg.APIKey

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		audio, retry, err := s.callOnce(ctx, endpoint, body)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if !retry || attempt == s.cfg.MaxRetries {
			break
		}
		backoff := s.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return "", &SynthesisError{Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return "", &SynthesisError{Err: lastErr}
}

func buildSynthesizePayload(req SpeakRequest) ([]byte, error) {
	lang := req.LanguageCode
	if lang == "" {
		lang = DefaultLanguageCode
	}
	voice := req.VoiceName
	if voice == "" {
		voice = DefaultVoiceName
	}
	payload := map[string]any{
		"input": map[string]string{"text": req.Text},
		"voice": map[string]string{"languageCode": lang, "name": voice},
		"audioConfig": map[string]string{
			"audioEncoding": "MP3",
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize payload: %w", err)
	}
	return b, nil
}

func (s *Synthesizer) callOnce(ctx context.Context, endpoint string, body []byte) (audio string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("synthesize request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", false, fmt.Errorf("read synthesize response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("tts temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, fmt.Errorf("tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", false, fmt.Errorf("decode synthesize response: %w", err)
	}
	if out.AudioContent == "" {
		return "", false, fmt.Errorf("no audio content in synthesize response")
	}
	return out.AudioContent, false, nil
}
