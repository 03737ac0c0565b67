package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goedu/assessment-engine/internal/engine"
	"github.com/goedu/assessment-engine/internal/middleware"
	"github.com/goedu/assessment-engine/internal/model"
	"github.com/goedu/assessment-engine/internal/response"
	"github.com/goedu/assessment-engine/internal/validator"
	"github.com/google/uuid"
)

// SessionHandler drives the assessment session lifecycle over HTTP.
type SessionHandler struct {
	engine *engine.Engine
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(eng *engine.Engine) *SessionHandler {
	return &SessionHandler{engine: eng}
}

// Start godoc
// POST /api/v1/tests/:test_id/start
// Starts a timed session for the authenticated user. A user can hold at most
// one active session; a second start is rejected with 409.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := strconv.ParseInt(c.Param("test_id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snapshot, err := h.engine.StartSession(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": snapshot})
}

// GetActive godoc
// GET /api/v1/sessions/active
// Returns the user's active session snapshot, if any.
func (h *SessionHandler) GetActive(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	snapshot, err := h.engine.ActiveSession(claims.UserID)
	if err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": snapshot})
}

// Get godoc
// GET /api/v1/sessions/:session_id
// Returns a session snapshot. Correctness flags never appear here.
func (h *SessionHandler) Get(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": snapshot})
}

// RecordAnswer godoc
// POST /api/v1/sessions/:session_id/answers
// Records (or overwrites) the answer for one question.
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.engine.RecordAnswer(c.Request.Context(), snapshot.ID, req.QuestionID, req.AnswerID); err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moves the session's current question pointer.
func (h *SessionHandler) Navigate(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.engine.NavigateTo(snapshot.ID, *req.Index); err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Finishes the session and returns the graded result.
func (h *SessionHandler) Submit(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	result, err := h.engine.Submit(c.Request.Context(), snapshot.ID)
	if err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Cancel godoc
// POST /api/v1/sessions/:session_id/cancel
// Abandons the session without grading.
func (h *SessionHandler) Cancel(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	if err := h.engine.Cancel(c.Request.Context(), snapshot.ID); err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetResult godoc
// GET /api/v1/sessions/:session_id/result
// Returns the graded result of a submitted or expired session.
func (h *SessionHandler) GetResult(c *gin.Context) {
	snapshot, ok := h.ownedSession(c)
	if !ok {
		return
	}

	result, err := h.engine.Result(snapshot.ID)
	if err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ownedSession resolves :session_id and enforces that the session belongs to
// the authenticated user. On failure it writes the error response and
// returns ok=false.
func (h *SessionHandler) ownedSession(c *gin.Context) (*model.SessionSnapshot, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	snapshot, err := h.engine.Snapshot(sessionID)
	if err != nil {
		failEngine(c, err)
		return nil, false
	}

	if snapshot.UserID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}

	return snapshot, true
}

// failEngine maps engine sentinel errors onto the HTTP error surface.
func failEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionAlreadyActive)
	case errors.Is(err, engine.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, engine.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, engine.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
	case errors.Is(err, engine.ErrInvalidTestDefinition):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidTestDefinition)
	case errors.Is(err, engine.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	case errors.Is(err, engine.ErrUnknownAnswer):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownAnswer)
	case errors.Is(err, engine.ErrIndexOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrIndexOutOfRange)
	case errors.Is(err, engine.ErrResultNotReady):
		response.Fail(c, http.StatusNotFound, response.ErrResultNotReady)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
