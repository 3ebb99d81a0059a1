package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/providers"
	"github.com/SalehSedlah/doctor-assistant/internal/queue"
	"github.com/SalehSedlah/doctor-assistant/internal/storage"
)

type fakeProvider struct {
	stream *fakeStream
	gotReq providers.Request
}

func (p *fakeProvider) Generate(_ context.Context, req providers.Request) (providers.Response, error) {
	p.gotReq = req
	return providers.Response{Text: "ok"}, nil
}

func (p *fakeProvider) GenerateStream(_ context.Context, req providers.Request) (providers.TokenStream, error) {
	p.gotReq = req
	return p.stream, nil
}

type fakeStore struct {
	saved   []storage.ChatMessage
	nextID  int64
	saveErr error
}

func (s *fakeStore) SaveMessage(_ context.Context, _ string, m storage.ChatMessage) (storage.ChatMessage, error) {
	if s.saveErr != nil {
		return storage.ChatMessage{}, s.saveErr
	}
	s.nextID++
	m.ID = s.nextID
	s.saved = append(s.saved, m)
	return m, nil
}

func (s *fakeStore) History(_ context.Context, _ string) ([]storage.ChatMessage, error) {
	return s.saved, nil
}

type fakeDedupe struct {
	seen map[string]bool
}

func (d *fakeDedupe) MarkFirst(_ context.Context, identityID, clientID string) (bool, error) {
	key := identityID + "/" + clientID
	if d.seen[key] {
		return false, nil
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[key] = true
	return true, nil
}

type fakeLimiter struct{ allowed bool }

func (l *fakeLimiter) Allow(_ context.Context, _ string, now time.Time) (bool, int64, time.Time, error) {
	return l.allowed, 1, now.Add(time.Hour), nil
}

type fakeSpeech struct{ jobs []queue.SpeechJob }

func (f *fakeSpeech) Enqueue(_ context.Context, job queue.SpeechJob) (string, error) {
	f.jobs = append(f.jobs, job)
	return "1-0", nil
}

type fakeFeed struct{ published int }

func (f *fakeFeed) Publish(_ context.Context, _ string) error {
	f.published++
	return nil
}

func newTestService(p providers.Provider, store MessageStore, dedupe Deduplicator, speech SpeechEnqueuer, feed Publisher) *Service {
	return NewService(
		ServiceConfig{SystemPrompt: "You are a medical assistant.", SpeechEnabled: speech != nil},
		p, store, dedupe, &fakeLimiter{allowed: true}, speech, feed, zerolog.Nop(),
	)
}

func TestRunPersistsBothSidesAndQueuesSpeech(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"hello ", "there"}}}
	store := &fakeStore{}
	speech := &fakeSpeech{}
	feed := &fakeFeed{}
	svc := newTestService(provider, store, &fakeDedupe{}, speech, feed)

	var chunks []string
	res, err := svc.Run(context.Background(), TurnInput{
		IdentityID: "id-1",
		ClientID:   "c1",
		Text:       "hi",
	}, func(chunk string) { chunks = append(chunks, chunk) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if strings.Join(chunks, "") != "hello there" {
		t.Fatalf("unexpected streamed text %q", strings.Join(chunks, ""))
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected user and assistant messages persisted, got %d", len(store.saved))
	}
	if store.saved[0].Role != storage.RoleUser || store.saved[1].Role != storage.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", store.saved)
	}
	if res.AssistantMessage.Text != "hello there" {
		t.Fatalf("unexpected assistant text %q", res.AssistantMessage.Text)
	}
	if len(speech.jobs) != 1 || speech.jobs[0].MessageID != res.AssistantMessage.ID {
		t.Fatalf("expected one speech job for the assistant message, got %+v", speech.jobs)
	}
	if feed.published != 2 {
		t.Fatalf("expected a history notification per persist, got %d", feed.published)
	}
	if provider.gotReq.SystemPrompt != "You are a medical assistant." {
		t.Fatalf("system prompt not forwarded")
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	svc := newTestService(&fakeProvider{stream: &fakeStream{}}, &fakeStore{}, nil, nil, nil)

	_, err := svc.Run(context.Background(), TurnInput{IdentityID: "id-1", Text: "   "}, nil)
	if !errors.Is(err, prompt.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRunSkipsPersistForDuplicateClientID(t *testing.T) {
	store := &fakeStore{}
	dedupe := &fakeDedupe{}
	svc := newTestService(&fakeProvider{stream: &fakeStream{chunks: []string{"a"}}}, store, dedupe, nil, nil)

	in := TurnInput{IdentityID: "id-1", ClientID: "c1", Text: "hi"}
	if _, err := svc.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	userSaves := 0
	for _, m := range store.saved {
		if m.Role == storage.RoleUser {
			userSaves++
		}
	}
	if userSaves != 1 {
		t.Fatalf("expected one persisted user message, got %d", userSaves)
	}

	svc2 := newTestService(&fakeProvider{stream: &fakeStream{chunks: []string{"b"}}}, store, dedupe, nil, nil)
	if _, err := svc2.Run(context.Background(), in, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	userSaves = 0
	for _, m := range store.saved {
		if m.Role == storage.RoleUser {
			userSaves++
		}
	}
	if userSaves != 1 {
		t.Fatalf("duplicate client id must not persist again, got %d user saves", userSaves)
	}
}

func TestRunAppendsUserFacingErrorOnStreamFailure(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"partial "}, err: errors.New("connection reset")}}
	store := &fakeStore{}
	svc := newTestService(provider, store, nil, nil, nil)

	res, err := svc.Run(context.Background(), TurnInput{IdentityID: "id-1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("stream failure must not abort the turn: %v", err)
	}
	if res.StreamErr == nil {
		t.Fatalf("expected stream error to be reported")
	}
	want := "partial \n" + UserFacingStreamError(errors.New("connection reset"))
	if res.AssistantMessage.Text != want {
		t.Fatalf("got %q want %q", res.AssistantMessage.Text, want)
	}
}

type failingProvider struct{ err error }

func (p *failingProvider) Generate(context.Context, providers.Request) (providers.Response, error) {
	return providers.Response{}, p.err
}

func (p *failingProvider) GenerateStream(context.Context, providers.Request) (providers.TokenStream, error) {
	return nil, p.err
}

func TestRunStreamOpenFailureStillFinalizesTurn(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&failingProvider{err: errors.New("upstream unavailable")}, store, nil, nil, nil)

	res, err := svc.Run(context.Background(), TurnInput{IdentityID: "id-1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("a failed stream open must not abort the turn: %v", err)
	}
	if res.StreamErr == nil {
		t.Fatalf("expected stream error to be reported")
	}

	assistant := 0
	for _, m := range store.saved {
		if m.Role == storage.RoleAssistant {
			assistant++
			if want := UserFacingStreamError(errors.New("upstream unavailable")); m.Text != want {
				t.Fatalf("got %q want %q", m.Text, want)
			}
		}
	}
	if assistant != 1 {
		t.Fatalf("expected exactly one persisted assistant error message, got %d", assistant)
	}
	if res.AssistantMessage.Text == "" {
		t.Fatalf("finalized assistant message missing from result")
	}
}

func TestRunRateLimited(t *testing.T) {
	svc := NewService(
		ServiceConfig{},
		&fakeProvider{stream: &fakeStream{}}, &fakeStore{}, nil, &fakeLimiter{allowed: false}, nil, nil, zerolog.Nop(),
	)
	_, err := svc.Run(context.Background(), TurnInput{IdentityID: "id-1", Text: "hi"}, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRunPersistFailureDoesNotAbort(t *testing.T) {
	store := &fakeStore{saveErr: &storage.PersistenceError{Op: "save message", Err: errors.New("db down")}}
	svc := newTestService(&fakeProvider{stream: &fakeStream{chunks: []string{"hello"}}}, store, nil, nil, nil)

	res, err := svc.Run(context.Background(), TurnInput{IdentityID: "id-1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("persist failure must not abort the turn: %v", err)
	}
	if res.AssistantMessage.Text != "hello" {
		t.Fatalf("assistant text lost: %q", res.AssistantMessage.Text)
	}
	if res.AssistantMessage.ID != 0 {
		t.Fatalf("unpersisted message must not carry a store id")
	}
}
