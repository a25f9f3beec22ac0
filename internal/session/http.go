package session

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
	httperrors "github.com/gokatarajesh/quiz-live/pkg/http/errors"
)

type channelStatus interface {
	Status(sessionID uuid.UUID) (fanout.Status, bool)
}

// HTTPHandlers provides REST endpoints for session operations.
type HTTPHandlers struct {
	service *Service
	reader  *Reader
	sync    channelStatus
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints. sync may be
// nil, in which case stats carry no channel status.
func NewHTTPHandlers(service *Service, reader *Reader, sync channelStatus, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		reader:  reader,
		sync:    sync,
		logger:  logger.With().Str("component", "session_http").Logger(),
	}
}

// Register mounts the session routes on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.CreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/questions", h.AddQuestion)
	mux.HandleFunc("POST /v1/sessions/{id}/access-code", h.RegenerateAccessCode)
	mux.HandleFunc("GET /session/{id}/state", h.GetState)
	mux.HandleFunc("GET /session/{id}/stats", h.GetStats)
}

type createSessionRequest struct {
	HostID      string        `json:"hostId,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Settings    quiz.Settings `json:"settings"`
}

// sessionResponse includes the host id, so it is only returned to the creator.
type sessionResponse struct {
	SessionView
	HostID string `json:"hostId"`
}

// CreateSession handles POST /v1/sessions
func (h *HTTPHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	var hostID uuid.UUID
	if req.HostID != "" {
		id, err := uuid.Parse(req.HostID)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "Invalid host id", "hostId")
			return
		}
		hostID = id
	}

	sess, err := h.service.CreateSession(r.Context(), CreateRequest{
		HostID:      hostID,
		Title:       req.Title,
		Description: req.Description,
		Settings:    req.Settings,
	})
	if err != nil {
		h.logFailure(err, "create session failed")
		httperrors.RespondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionView: viewOf(sess, 0), HostID: sess.HostID.String()})
}

type addQuestionRequest struct {
	HostID string `json:"hostId"`
	question.Draft
}

// AddQuestion handles POST /v1/sessions/{id}/questions
func (h *HTTPHandlers) AddQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	var req addQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	hostID, err := uuid.Parse(req.HostID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "Host id required", "hostId")
		return
	}

	q, err := h.service.AddQuestion(r.Context(), sessionID, HostActor(hostID), req.Draft)
	if err != nil {
		h.logFailure(err, "add question failed")
		httperrors.RespondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type hostRequest struct {
	HostID string `json:"hostId"`
}

// RegenerateAccessCode handles POST /v1/sessions/{id}/access-code
func (h *HTTPHandlers) RegenerateAccessCode(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	var req hostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	hostID, err := uuid.Parse(req.HostID)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "Host id required", "hostId")
		return
	}

	sess, err := h.service.RegenerateAccessCode(r.Context(), sessionID, HostActor(hostID))
	if err != nil {
		h.logFailure(err, "regenerate access code failed")
		httperrors.RespondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sess.ID.String(), "accessCode": sess.AccessCode})
}

// GetState handles GET /session/{id}/state
func (h *HTTPHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	snap, err := h.reader.Snapshot(r.Context(), sessionID)
	if err != nil {
		h.logFailure(err, "read state failed")
		httperrors.RespondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetStats handles GET /session/{id}/stats
func (h *HTTPHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathSessionID(w, r)
	if !ok {
		return
	}
	stats, err := h.reader.Stats(r.Context(), sessionID)
	if err != nil {
		h.logFailure(err, "read stats failed")
		httperrors.RespondDomainError(w, err)
		return
	}
	resp := statsResponse{Stats: stats}
	if h.sync != nil {
		if st, ok := h.sync.Status(sessionID); ok {
			resp.Sync = &st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// statsResponse adds this instance's upstream channel, when one is open.
type statsResponse struct {
	quiz.Stats
	Sync *fanout.Status `json:"sync,omitempty"`
}

func (h *HTTPHandlers) logFailure(err error, msg string) {
	if quiz.KindOf(err) == quiz.KindTransient {
		h.logger.Error().Err(err).Msg(msg)
	}
}

func pathSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidSessionID, "Invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
