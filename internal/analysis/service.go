package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

// Service runs the structured, non-chat AI flows: symptom analysis,
// medical image analysis, and report summarization. Each flow asks the
// model for JSON and decodes it into a typed result.
type Service struct {
	provider providers.Provider
	model    string
}

func NewService(provider providers.Provider, model string) *Service {
	return &Service{provider: provider, model: model}
}

// HealthInputAnalysis is the structured result of a symptom
// description.
type HealthInputAnalysis struct {
	Summary        string   `json:"summary"`
	SuggestedTests []string `json:"suggestedTests"`
}

const healthInputSystemPrompt = `You are a medical assistant. Analyze the patient's description of their symptoms.
Respond with a JSON object containing:
- "summary": a concise summary of the described condition
- "suggestedTests": an array of medical tests that could clarify the condition
Respond in the same language the patient used.`

func (s *Service) AnalyzeHealthInput(ctx context.Context, description string) (HealthInputAnalysis, error) {
	if strings.TrimSpace(description) == "" {
		return HealthInputAnalysis{}, prompt.ErrEmptyInput
	}

	resp, err := s.provider.Generate(ctx, providers.Request{
		Model:        s.model,
		SystemPrompt: healthInputSystemPrompt,
		Parts:        []prompt.Part{{Text: description}},
		JSONOutput:   true,
	})
	if err != nil {
		return HealthInputAnalysis{}, fmt.Errorf("analyze health input: %w", err)
	}

	var out HealthInputAnalysis
	if err := decodeModelJSON(resp.Text, &out); err != nil {
		return HealthInputAnalysis{}, fmt.Errorf("analyze health input: %w", err)
	}
	return out, nil
}

// Condition is one possible finding in an analyzed medical image.
type Condition struct {
	Condition   string `json:"condition"`
	Explanation string `json:"explanation"`
}

const imageAnalysisSystemPrompt = `You are a medical assistant. Examine the provided medical image.
Respond with a JSON object containing "potentialConditions": an array of
objects, each with "condition" (the possible finding) and "explanation"
(why the image suggests it). If nothing notable is visible, return an
empty array.`

func (s *Service) AnalyzeImage(ctx context.Context, photoDataURI, note string) ([]Condition, error) {
	if strings.TrimSpace(photoDataURI) == "" {
		return nil, prompt.ErrEmptyInput
	}

	req, err := prompt.Assemble(note, photoDataURI)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Generate(ctx, providers.Request{
		Model:        s.model,
		SystemPrompt: imageAnalysisSystemPrompt,
		Parts:        req.Parts,
		JSONOutput:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}

	var out struct {
		PotentialConditions []Condition `json:"potentialConditions"`
	}
	if err := decodeModelJSON(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	return out.PotentialConditions, nil
}

const summarizeSystemPrompt = `You are a medical assistant. Summarize the provided medical report for a patient.
Use plain language, keep every clinically relevant finding, and respond
with a JSON object containing a single "summary" field in the report's language.`

// SummarizeReport accepts the report as plain text, a document data
// URI, or both.
func (s *Service) SummarizeReport(ctx context.Context, report, reportDataURI string) (string, error) {
	req, err := prompt.Assemble(report, reportDataURI)
	if err != nil {
		return "", err
	}

	resp, err := s.provider.Generate(ctx, providers.Request{
		Model:        s.model,
		SystemPrompt: summarizeSystemPrompt,
		Parts:        req.Parts,
		JSONOutput:   true,
	})
	if err != nil {
		return "", fmt.Errorf("summarize report: %w", err)
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := decodeModelJSON(resp.Text, &out); err != nil {
		return "", fmt.Errorf("summarize report: %w", err)
	}
	return out.Summary, nil
}

// decodeModelJSON tolerates the code fences some models wrap JSON in.
func decodeModelJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}
