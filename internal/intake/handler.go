package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/cardio-intake/internal/http/middleware"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler exposes the wizard to the clinic website over JSON.
type Handler struct {
	sessions *Sessions
	tokens   *httpmiddleware.SessionTokens
	limit    func(http.Handler) http.Handler
	logger   *logging.Logger
}

// NewHandler creates the intake HTTP handler. generateLimit, if non-nil,
// wraps the generate endpoint.
func NewHandler(sessions *Sessions, tokens *httpmiddleware.SessionTokens, generateLimit func(http.Handler) http.Handler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if generateLimit == nil {
		generateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		sessions: sessions,
		tokens:   tokens,
		limit:    generateLimit,
		logger:   logger,
	}
}

// Routes returns a chi router to mount at /intake/sessions.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Open)
	r.Route("/current", func(cur chi.Router) {
		// sendBeacon cannot set headers, so the unload flush may carry its
		// token in the query string.
		cur.With(beaconToken, httpmiddleware.SessionJWT(h.tokens)).Post("/flush", h.Flush)

		cur.Group(func(auth chi.Router) {
			auth.Use(httpmiddleware.SessionJWT(h.tokens))
			auth.Get("/", h.Current)
			auth.Delete("/", h.Cancel)
			auth.Patch("/data", h.UpdateData)
			auth.Post("/next", h.Next)
			auth.Post("/previous", h.Previous)
			auth.Post("/jump", h.Jump)
			auth.Post("/validate", h.Validate)
			auth.Post("/close", h.Close)
			auth.With(h.limit).Post("/generate", h.Generate)
		})
	})
	return r
}

type openResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reference string    `json:"reference"`
	View      View      `json:"view"`
}

type navigateRequest struct {
	Data FormData `json:"data"`
	Step *int     `json:"step,omitempty"`
}

type navigateResponse struct {
	View  View `json:"view"`
	Moved bool `json:"moved"`
}

type validateResponse struct {
	Valid  bool             `json:"valid"`
	Errors ValidationErrors `json:"errors,omitempty"`
}

type alertResponse struct {
	Alert Alert `json:"alert"`
	View  View  `json:"view"`
}

// Open mounts a new wizard and returns its session token.
// POST /intake/sessions
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context(), "")
	if err != nil {
		h.logger.Error("intake: failed to open session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	token, expires, err := h.tokens.Issue(s.ID)
	if err != nil {
		h.logger.Error("intake: failed to issue session token", "error", err)
		s.Controller().Close()
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, openResponse{
		Token:     token,
		ExpiresAt: expires,
		Reference: s.Reference(),
		View:      s.Controller().View(),
	})
}

// Current returns the wizard state.
// GET /intake/sessions/current
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Controller().View())
}

// UpdateData merges the posted fields into the form.
// PATCH /intake/sessions/current/data
func (h *Handler) UpdateData(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch FormData
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, s.Controller().Update(patch))
}

// Next commits the step's fields and advances if allowed.
// POST /intake/sessions/current/next
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(c *Controller, req navigateRequest) (View, bool) {
		return c.Next(req.Data)
	})
}

// Previous commits the step's fields and goes back.
// POST /intake/sessions/current/previous
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(c *Controller, req navigateRequest) (View, bool) {
		return c.Previous(req.Data)
	})
}

// Jump walks to the requested step indicator.
// POST /intake/sessions/current/jump
func (h *Handler) Jump(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(c *Controller, req navigateRequest) (View, bool) {
		target := int(c.Store().Snapshot().CurrentStep)
		if req.Step != nil {
			target = *req.Step
		}
		return c.JumpTo(target, req.Data)
	})
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request, move func(*Controller, navigateRequest) (View, bool)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	view, moved := move(s.Controller(), req)
	writeJSON(w, http.StatusOK, navigateResponse{View: view, Moved: moved})
}

// Validate runs the full form schema.
// POST /intake/sessions/current/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	valid, errs := s.Controller().Validate()
	writeJSON(w, http.StatusOK, validateResponse{Valid: valid, Errors: errs})
}

// Flush saves the draft now. The page calls it on unload.
// POST /intake/sessions/current/flush
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Controller().Store().Flush(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "draft not saved")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate renders the PDF. On success the PDF is the body and the mail
// client link is in X-Intake-Mailto; on failure the alert is returned.
// POST /intake/sessions/current/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctrl := s.Controller()

	_, err := ctrl.Generate(r.Context())
	if errors.Is(err, ErrNotOnCompleteStep) || errors.Is(err, ErrGenerationInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	result := s.Handoff()
	switch {
	case err != nil:
		alert := GenerationFailedAlert
		if result.Alert != nil {
			alert = *result.Alert
		}
		writeJSON(w, http.StatusUnprocessableEntity, alertResponse{Alert: alert, View: ctrl.View()})
		return
	case result.Artifact == nil:
		h.logger.Error("intake: generation finished without an artifact", "session_id", s.ID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	artifact := result.Artifact
	if result.Mail != nil {
		w.Header().Set("X-Intake-Mailto", result.Mail.URL)
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Bytes)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Bytes); err != nil {
		h.logger.Warn("intake: failed to write pdf", "error", err, "session_id", s.ID)
	}
}

// Close dismisses the wizard and keeps the draft for the rest of the
// session.
// POST /intake/sessions/current/close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Controller().Close()
	w.WriteHeader(http.StatusNoContent)
}

// Cancel discards the draft and closes the wizard.
// DELETE /intake/sessions/current
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Controller().Cancel(r.Context()); err != nil {
		h.logger.Warn("intake: cancel could not delete draft", "error", err, "session_id", s.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the caller's session, remounting it from its draft when
// this process no longer holds it.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, ok := httpmiddleware.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session")
		return nil, false
	}
	if s, ok := h.sessions.Get(id); ok {
		return s, true
	}
	s, err := h.sessions.Open(r.Context(), id)
	if err != nil {
		h.logger.Error("intake: failed to resume session", "error", err, "session_id", id)
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return nil, false
	}
	return s, true
}

func beaconToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// decodeBody decodes an optional JSON body; an empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
