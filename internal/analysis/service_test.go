package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
)

type stubProvider struct {
	text   string
	err    error
	gotReq providers.Request
}

func (p *stubProvider) Generate(_ context.Context, req providers.Request) (providers.Response, error) {
	p.gotReq = req
	return providers.Response{Text: p.text}, p.err
}

func (p *stubProvider) GenerateStream(context.Context, providers.Request) (providers.TokenStream, error) {
	return nil, errors.New("not implemented")
}

func TestAnalyzeHealthInput(t *testing.T) {
	p := &stubProvider{text: `{"summary":"tension headache","suggestedTests":["blood pressure","eye exam"]}`}
	svc := NewService(p, "gemini-2.0-flash")

	got, err := svc.AnalyzeHealthInput(context.Background(), "recurring headaches in the afternoon")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Summary != "tension headache" || len(got.SuggestedTests) != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
	if !p.gotReq.JSONOutput {
		t.Fatalf("expected JSON output to be requested")
	}
}

func TestAnalyzeHealthInputRejectsEmpty(t *testing.T) {
	svc := NewService(&stubProvider{}, "m")
	if _, err := svc.AnalyzeHealthInput(context.Background(), "  "); !errors.Is(err, prompt.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestAnalyzeImageStripsCodeFences(t *testing.T) {
	p := &stubProvider{text: "```json\n{\"potentialConditions\":[{\"condition\":\"eczema\",\"explanation\":\"dry patches\"}]}\n```"}
	svc := NewService(p, "m")

	got, err := svc.AnalyzeImage(context.Background(), "data:image/jpeg;base64,AAAA", "")
	if err != nil {
		t.Fatalf("analyze image: %v", err)
	}
	if len(got) != 1 || got[0].Condition != "eczema" {
		t.Fatalf("unexpected conditions %+v", got)
	}
	if p.gotReq.Parts[len(p.gotReq.Parts)-1].Media == nil {
		t.Fatalf("expected image part to be forwarded last")
	}
}

func TestSummarizeReport(t *testing.T) {
	p := &stubProvider{text: `{"summary":"All values within normal range."}`}
	svc := NewService(p, "m")

	got, err := svc.SummarizeReport(context.Background(), "CBC: ...", "")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "All values within normal range." {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestSummarizeReportRejectsEmpty(t *testing.T) {
	svc := NewService(&stubProvider{}, "m")
	if _, err := svc.SummarizeReport(context.Background(), "", ""); !errors.Is(err, prompt.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestDecodeModelJSONRejectsGarbage(t *testing.T) {
	var out struct{}
	if err := decodeModelJSON("not json", &out); err == nil {
		t.Fatalf("expected decode error")
	}
}
