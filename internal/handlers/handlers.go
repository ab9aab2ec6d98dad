package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"voicenotes/internal/audio"
	"voicenotes/internal/auth"
	"voicenotes/internal/cache"
	"voicenotes/internal/errs"
	"voicenotes/internal/models"
	"voicenotes/internal/notes"
	"voicenotes/internal/prefs"
	"voicenotes/internal/stats"
	"voicenotes/internal/store"
)

// Recorder is the capture resource controlled over the API.
type Recorder interface {
	StartRecording() (string, error)
	StopRecording() (string, error)
}

type Handlers struct {
	store    *store.Store
	cache    *cache.Cache
	auth     *auth.Auth
	notes    *notes.Service
	prefs    *prefs.Store
	recorder Recorder
	player   *audio.Player
	plays    *stats.Plays
	validate *validator.Validate
}

func New(st *store.Store, c *cache.Cache, a *auth.Auth, svc *notes.Service,
	pr *prefs.Store, rec Recorder, pl *audio.Player, plays *stats.Plays) *Handlers {
	return &Handlers{
		store:    st,
		cache:    c,
		auth:     a,
		notes:    svc,
		prefs:    pr,
		recorder: rec,
		player:   pl,
		plays:    plays,
		validate: validator.New(),
	}
}

func (h *Handlers) respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *Handlers) error(w http.ResponseWriter, message string, status int) {
	h.respond(w, map[string]string{"error": message}, status)
}

// failed maps a classified error to an API response.
func (h *Handlers) failed(w http.ResponseWriter, err error) {
	kind := errs.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindMissingCredential:
		status = http.StatusPreconditionFailed
	case errs.KindUnauthorized:
		status = http.StatusBadGateway
	case errs.KindNetworkUnreachable, errs.KindTimeout, errs.KindServerError, errs.KindRateLimited, errs.KindRemoteError:
		status = http.StatusBadGateway
	case errs.KindRecordingStart, errs.KindRecordingStop:
		status = http.StatusConflict
	}
	h.respond(w, map[string]string{"error": err.Error(), "kind": kind.String()}, status)
}

func noteID(r *http.Request, prefix string) (int64, error) {
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	idStr = strings.SplitN(idStr, "/", 2)[0]
	return strconv.ParseInt(idStr, 10, 64)
}

type NoteWithPlays struct {
	*models.Note
	Plays int64 `json:"plays,omitempty"`
}

// Notes

func (h *Handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.store.List(r.Context())
	if err != nil {
		h.error(w, "Failed to list notes", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Note{}
	}
	h.respond(w, list, http.StatusOK)
}

func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	note, ok := h.cache.Get(id)
	if !ok {
		note, err = h.store.Get(r.Context(), id)
		if err != nil {
			h.failed(w, err)
			return
		}
		h.cache.Set(id, note)
	}

	h.respond(w, NoteWithPlays{Note: note, Plays: h.plays.GetPlays(id)}, http.StatusOK)
}

type updateNoteRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (h *Handlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.error(w, "Title is required and capped at 200 characters", http.StatusBadRequest)
		return
	}

	if err := h.notes.UpdateTitle(r.Context(), id, req.Title); err != nil {
		h.failed(w, err)
		return
	}

	note, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.failed(w, err)
		return
	}
	h.respond(w, note, http.StatusOK)
}

func (h *Handlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	if err := h.notes.Delete(r.Context(), id); err != nil {
		h.failed(w, err)
		return
	}
	h.plays.Forget(id)
	h.respond(w, nil, http.StatusNoContent)
}

func (h *Handlers) RetryNote(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	// Detached from the request: the retry keeps running if the client
	// disconnects, exactly like fresh processing.
	go func() {
		if err := h.notes.Retry(context.Background(), id); err != nil {
			log.Printf("Retry of note %d failed: %v", id, err)
		}
	}()

	h.respond(w, map[string]string{"status": string(models.StatusProcessing)}, http.StatusAccepted)
}

func (h *Handlers) NoteAudio(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	note, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.failed(w, err)
		return
	}

	h.plays.RecordPlay(id)
	w.Header().Set("Content-Type", notes.MIMEType(note.AudioPath))
	http.ServeFile(w, r, note.AudioPath)
}

// NoteEvents streams the live note collection as server-sent events. Each
// store mutation pushes a fresh full snapshot.
func (h *Handlers) NoteEvents(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.store.Subscribe(r.Context())
	defer h.store.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-sub:
			if !open {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Recording

func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	path, err := h.recorder.StartRecording()
	if err != nil {
		h.failed(w, err)
		return
	}
	h.respond(w, map[string]string{"audio_path": path}, http.StatusCreated)
}

func (h *Handlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	path, err := h.recorder.StopRecording()
	if err != nil {
		h.failed(w, err)
		return
	}

	// Not the request context: a client gone right after stopping must not
	// orphan the finished recording.
	id, err := h.store.Insert(context.Background(), models.Note{
		AudioPath: path,
		Timestamp: time.Now(),
		Status:    models.StatusProcessing,
	})
	if err != nil {
		h.error(w, "Failed to create note", http.StatusInternalServerError)
		return
	}

	// Processing outlives the request on purpose: the note stays
	// PROCESSING until the provider call resolves, regardless of what the
	// client does.
	go func() {
		if err := h.notes.Process(context.Background(), id); err != nil {
			log.Printf("Processing of note %d failed: %v", id, err)
		}
	}()

	h.respond(w, map[string]interface{}{"id": id, "status": models.StatusProcessing}, http.StatusAccepted)
}

// Playback

func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := noteID(r, "/api/notes/")
	if err != nil {
		h.error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	note, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.failed(w, err)
		return
	}

	if err := h.player.Play(id, note.AudioPath); err != nil {
		h.failed(w, err)
		return
	}
	h.plays.RecordPlay(id)
	h.respond(w, h.player.State(), http.StatusOK)
}

func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.player.Pause(); err != nil {
		h.failed(w, err)
		return
	}
	h.respond(w, h.player.State(), http.StatusOK)
}

func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.player.Resume(); err != nil {
		h.failed(w, err)
		return
	}
	h.respond(w, h.player.State(), http.StatusOK)
}

type seekRequest struct {
	PositionMS int64 `json:"position_ms" validate:"gte=0"`
}

func (h *Handlers) Seek(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.error(w, "Position must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.player.Seek(time.Duration(req.PositionMS) * time.Millisecond); err != nil {
		h.failed(w, err)
		return
	}
	h.respond(w, h.player.State(), http.StatusOK)
}

func (h *Handlers) StopPlayback(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.player.Stop()
	h.respond(w, h.player.State(), http.StatusOK)
}

func (h *Handlers) PlayerState(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.respond(w, h.player.State(), http.StatusOK)
}

// Settings

type settingsResponse struct {
	SelectedProvider    models.Provider `json:"selected_provider"`
	GeminiKeySet        bool            `json:"gemini_key_set"`
	OpenAIKeySet        bool            `json:"openai_key_set"`
	OnboardingCompleted bool            `json:"onboarding_completed"`
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	p := h.prefs.Preferences()
	h.respond(w, settingsResponse{
		SelectedProvider:    p.SelectedProvider,
		GeminiKeySet:        p.GeminiAPIKey != "",
		OpenAIKeySet:        p.OpenAIAPIKey != "",
		OnboardingCompleted: p.OnboardingCompleted,
	}, http.StatusOK)
}

type updateSettingsRequest struct {
	SelectedProvider    *string `json:"selected_provider" validate:"omitempty,oneof=GEMINI OPENAI"`
	GeminiAPIKey        *string `json:"gemini_api_key" validate:"omitempty,max=256"`
	OpenAIAPIKey        *string `json:"openai_api_key" validate:"omitempty,max=256"`
	OnboardingCompleted *bool   `json:"onboarding_completed"`
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r) {
		h.error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.error(w, "Invalid settings", http.StatusBadRequest)
		return
	}

	if req.SelectedProvider != nil {
		if err := h.prefs.SetProvider(models.ParseProvider(*req.SelectedProvider)); err != nil {
			h.error(w, "Failed to save provider", http.StatusInternalServerError)
			return
		}
	}
	if req.GeminiAPIKey != nil {
		if err := h.prefs.SetAPIKey(models.ProviderGemini, *req.GeminiAPIKey); err != nil {
			h.error(w, "Failed to save api key", http.StatusInternalServerError)
			return
		}
	}
	if req.OpenAIAPIKey != nil {
		if err := h.prefs.SetAPIKey(models.ProviderOpenAI, *req.OpenAIAPIKey); err != nil {
			h.error(w, "Failed to save api key", http.StatusInternalServerError)
			return
		}
	}
	if req.OnboardingCompleted != nil {
		if err := h.prefs.SetOnboardingCompleted(*req.OnboardingCompleted); err != nil {
			h.error(w, "Failed to save onboarding flag", http.StatusInternalServerError)
			return
		}
	}

	h.GetSettings(w, r)
}

// Auth

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.error(w, "Missing token", http.StatusBadRequest)
		return
	}

	jwtToken, err := h.auth.ValidateLoginToken(token)
	if err != nil {
		h.error(w, "Invalid or expired login link", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    jwtToken,
		Path:     "/",
		MaxAge:   90 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.respond(w, map[string]string{"token": jwtToken}, http.StatusOK)
}

func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, map[string]bool{"authenticated": auth.IsOwner(r)}, http.StatusOK)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.respond(w, nil, http.StatusNoContent)
}
