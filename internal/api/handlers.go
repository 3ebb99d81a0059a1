package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/SalehSedlah/doctor-assistant/internal/analysis"
	"github.com/SalehSedlah/doctor-assistant/internal/chat"
	"github.com/SalehSedlah/doctor-assistant/internal/history"
	"github.com/SalehSedlah/doctor-assistant/internal/media"
	"github.com/SalehSedlah/doctor-assistant/internal/metrics"
	"github.com/SalehSedlah/doctor-assistant/internal/prompt"
	"github.com/SalehSedlah/doctor-assistant/internal/session"
	"github.com/SalehSedlah/doctor-assistant/internal/speech"
)

// emptyInputMessage is shown when a turn carries neither text nor an
// image, in the assistant's language.
const emptyInputMessage = "الرجاء إدخال رسالة أو إرفاق صورة."

type Handlers struct {
	Sessions    *session.Provider
	Chat        *chat.Service
	Analysis    *analysis.Service
	Feed        *history.Feed
	Transcriber *speech.Transcriber
	Synthesizer *speech.Synthesizer
	AudioCache  *speech.AudioCache
	AutoSubmit  bool
	Logger      zerolog.Logger
}

type ctxKey int

const identityKey ctxKey = 0

func identityFrom(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey).(session.Identity)
	return id, ok
}

// RequireSession authenticates requests by their opaque session token,
// taken from the Authorization header or the X-Session-Token header.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.Header.Get("X-Session-Token")
		}
		if token == "" {
			// EventSource cannot set headers, so SSE endpoints accept
			// the token as a query parameter.
			token = r.URL.Query().Get("token")
		}

		id, err := h.Sessions.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing session token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

type sessionResponse struct {
	IdentityID string `json:"identityId"`
	Token      string `json:"token"`
	Ephemeral  bool   `json:"ephemeral"`
	AutoSubmit bool   `json:"sttAutoSubmit"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, token, regErr := h.Sessions.Establish(r.Context())
	if token == "" {
		h.Logger.Error().Err(regErr).Msg("failed to establish session")
		writeError(w, http.StatusInternalServerError, "failed to establish session")
		return
	}
	if regErr != nil {
		h.Logger.Error().Err(regErr).Msg("identity registration failed, session is ephemeral")
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		IdentityID: id.ID,
		Token:      token,
		Ephemeral:  regErr != nil,
		AutoSubmit: h.AutoSubmit,
	})
}

type chatRequest struct {
	ClientID     string `json:"clientId"`
	Text         string `json:"text"`
	PhotoDataURI string `json:"photoDataUri"`
}

// StreamChat runs one chat turn and streams the response as SSE:
// "chunk" events while the model generates, a "done" event carrying
// both persisted messages, or an "error" event.
func (h *Handlers) StreamChat(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validate before committing to an SSE response: an empty turn is a
	// plain 400, not a stream that immediately errors.
	if _, err := prompt.Assemble(req.Text, req.PhotoDataURI); err != nil {
		writeError(w, http.StatusBadRequest, emptyInputMessage)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The turn's view goes through a Conversation so the done event
	// carries the same collapsed, ordered shape the history stream uses.
	conv := chat.NewConversation()
	pendingKey := "pending-" + req.ClientID

	res, err := h.Chat.Run(r.Context(), chat.TurnInput{
		IdentityID:   id.ID,
		ClientID:     req.ClientID,
		Text:         req.Text,
		PhotoDataURI: req.PhotoDataURI,
	}, func(chunk string) {
		conv.AppendChunk(pendingKey, chunk)
		_ = sse.Event("chunk", map[string]string{"text": chunk})
	})
	if err != nil {
		_ = sse.Event("error", map[string]string{"message": userFacingError(err)})
		return
	}

	conv.Append(res.UserMessage)
	// An error-only turn produces no chunks; make sure the assistant
	// entry exists before finalizing it.
	conv.AppendChunk(pendingKey, "")
	conv.Finalize(pendingKey, res.AssistantMessage.Text)

	_ = sse.Event("done", map[string]any{
		"userMessage":      res.UserMessage,
		"assistantMessage": res.AssistantMessage,
		"messages":         conv.History(),
	})
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	msgs, err := h.Chat.History(r.Context(), id.ID)
	if err != nil {
		h.Logger.Error().Err(err).Str("identity_id", id.ID).Msg("failed to load history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// StreamHistory pushes a full-history snapshot whenever the identity's
// conversation changes. Snapshots pass through a Conversation so
// ordering and optimistic/persisted collapsing match the chat view.
func (h *Handlers) StreamHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshots, err := h.Feed.Subscribe(r.Context(), id.ID)
	if err != nil {
		_ = sse.Event("error", map[string]string{"message": "failed to subscribe to history"})
		return
	}

	conv := chat.NewConversation()
	for snapshot := range snapshots {
		conv.ApplySnapshot(snapshot)
		if err := sse.Event("history", map[string]any{"messages": conv.History()}); err != nil {
			return
		}
	}
}

type speechRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
	VoiceName    string `json:"voiceName"`
}

// Synthesize renders text to MP3 synchronously, for on-demand playback
// of arbitrary text. Finalized assistant messages additionally get
// audio prepared in the background by the worker.
func (h *Handlers) Synthesize(w http.ResponseWriter, r *http.Request) {
	if h.Synthesizer == nil {
		writeError(w, http.StatusServiceUnavailable, "speech playback is disabled")
		return
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := h.Synthesizer.Speak(r.Context(), speech.SpeakRequest{
		Text:         req.Text,
		LanguageCode: req.LanguageCode,
		VoiceName:    req.VoiceName,
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("synthesis failed")
		writeError(w, http.StatusBadGateway, "synthesis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audioContent": audio})
}

// GetSpeech returns the synthesized MP3 audio for a message, base64
// encoded, or 202 while the job is still in flight.
func (h *Handlers) GetSpeech(w http.ResponseWriter, r *http.Request) {
	if h.AudioCache == nil {
		writeError(w, http.StatusServiceUnavailable, "speech playback is disabled")
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil || messageID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	audio, err := h.AudioCache.Get(r.Context(), messageID)
	if errors.Is(err, speech.ErrAudioNotReady) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	if err != nil {
		h.Logger.Error().Err(err).Int64("message_id", messageID).Msg("failed to load audio")
		writeError(w, http.StatusInternalServerError, "failed to load audio")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"audioContent": audio})
}

type transcribeRequest struct {
	AudioContent string `json:"audioContent"`
	LanguageCode string `json:"languageCode"`
}

func (h *Handlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.Transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription is disabled")
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transcript, err := h.Transcriber.Transcribe(r.Context(), req.AudioContent, req.LanguageCode)
	if err != nil {
		h.Logger.Error().Err(err).Msg("transcription failed")
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	metrics.Global().Transcriptions.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"transcript": transcript,
		"autoSubmit": h.AutoSubmit && transcript != "",
	})
}

type captureRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
	FacingMode   string `json:"facingMode"`
}

// NormalizeCapture mirrors front-camera frames so the stored image
// matches the preview the user saw.
func (h *Handlers) NormalizeCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	facing := media.FacingMode(req.FacingMode)
	if facing == "" {
		facing = media.FacingEnvironment
	}

	normalized, err := media.NormalizeFrame(req.PhotoDataURI, facing)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"photoDataUri": normalized})
}

type analyzeRequest struct {
	Description string `json:"description"`
}

func (h *Handlers) AnalyzeHealthInput(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Analysis.AnalyzeHealthInput(r.Context(), req.Description)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type analyzeImageRequest struct {
	PhotoDataURI string `json:"photoDataUri"`
	Note         string `json:"note"`
}

func (h *Handlers) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conditions, err := h.Analysis.AnalyzeImage(r.Context(), req.PhotoDataURI, req.Note)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	if conditions == nil {
		conditions = []analysis.Condition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"potentialConditions": conditions})
}

type summarizeRequest struct {
	Report        string `json:"report"`
	ReportDataURI string `json:"reportDataUri"`
}

func (h *Handlers) SummarizeReport(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.Analysis.SummarizeReport(r.Context(), req.Report, req.ReportDataURI)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (h *Handlers) writeAnalysisError(w http.ResponseWriter, err error) {
	if errors.Is(err, prompt.ErrEmptyInput) {
		writeError(w, http.StatusBadRequest, emptyInputMessage)
		return
	}
	h.Logger.Error().Err(err).Msg("analysis flow failed")
	writeError(w, http.StatusBadGateway, "analysis failed")
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, prompt.ErrEmptyInput):
		return emptyInputMessage
	case errors.Is(err, chat.ErrRateLimited):
		return "rate limit exceeded, try again later"
	default:
		var streamErr *chat.StreamError
		if errors.As(err, &streamErr) {
			return chat.UserFacingStreamError(streamErr.Err)
		}
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
