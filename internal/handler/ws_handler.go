package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goedu/assessment-engine/internal/engine"
	"github.com/goedu/assessment-engine/internal/middleware"
	ws "github.com/goedu/assessment-engine/internal/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live assessment session over WebSocket.
type WSHandler struct {
	engine   *engine.Engine
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(eng *engine.Engine, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   eng,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=
// Upgrades to WebSocket for low-latency answer recording, navigation,
// and submit with instant grading.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Ownership before upgrade: refuse to stream another user's session.
	snapshot, err := h.engine.Snapshot(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if snapshot.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Session stream connected")

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, wsLog, sessionID, data)
		case ws.ActionNavigate:
			h.handleNavigate(conn, sessionID, data)
		case ws.ActionSubmit:
			done := h.handleSubmit(conn, wsLog, sessionID)
			if done {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

// handleAnswer records a single answer through the engine.
func (h *WSHandler) handleAnswer(conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID <= 0 || req.AnswerID <= 0 {
		ws.WriteError(conn, "question_id and answer_id are required")
		return
	}

	if err := h.engine.RecordAnswer(context.Background(), sessionID, req.QuestionID, req.AnswerID); err != nil {
		wsLog.Debug().Err(err).Msg("Answer rejected")
		ws.WriteError(conn, err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
}

// handleNavigate moves the session's question pointer.
func (h *WSHandler) handleNavigate(conn *websocket.Conn, sessionID uuid.UUID, data []byte) {
	var req ws.NavigateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, "index is required")
		return
	}

	if err := h.engine.NavigateTo(sessionID, req.Index); err != nil {
		ws.WriteError(conn, err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Status: "moved"})
}

// handleSubmit finishes the session and reports the graded result.
// Returns true when the stream should close (session is now terminal).
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID) bool {
	result, err := h.engine.Submit(context.Background(), sessionID)
	if err != nil {
		ws.WriteError(conn, err.Error())
		return false
	}

	wsLog.Info().
		Int("score", result.Score).
		Int("percentage", result.Percentage).
		Bool("is_passed", result.IsPassed).
		Msg("Session submitted and graded")

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:      ws.EventGraded,
		Status:     "completed",
		Score:      result.Score,
		MaxScore:   result.MaxScore,
		Percentage: result.Percentage,
		IsPassed:   result.IsPassed,
	})
	return true
}
