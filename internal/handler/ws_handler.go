package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// actionTimeout bounds the storage work of a single WebSocket action.
const actionTimeout = 10 * time.Second

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

// Limiter throttles actions per key.
type Limiter interface {
	Allow(key string) bool
}

// WSHandler serves the realtime exam stream: the same operations as the
// HTTP API over one connection.
type WSHandler struct {
	sessions SessionService
	answers  AnswerService
	scoring  ScoringService
	autosave Limiter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. autosave is the same limiter that
// guards the HTTP autosave route.
func NewWSHandler(sessions SessionService, answers AnswerService, scoring ScoringService, autosave Limiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		answers:  answers,
		scoring:  scoring,
		autosave: autosave,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// streamConn is one student's connection to one exam.
type streamConn struct {
	conn      *websocket.Conn
	studentID int
	examID    uuid.UUID
	sessionID uuid.UUID
	log       zerolog.Logger
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Begins or resumes the attempt, sends its state, then serves autosave,
// heartbeat, submit and ping actions until the client disconnects or submits.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	examID, ok := validator.ParamUUID(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	studentID := middleware.StudentID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sc := &streamConn{
		conn:      conn,
		studentID: studentID,
		examID:    examID,
		log: h.log.With().
			Int("student_id", studentID).
			Str("exam_id", examID.String()).
			Logger(),
	}

	state, err := runAction(func(ctx context.Context) (*service.SessionState, error) {
		return h.sessions.BeginOrResume(ctx, studentID, examID)
	})
	if err != nil {
		sc.fail(err)
		return
	}
	sc.sessionID = state.Session.ID
	if err := ws.WriteJSON(conn, ws.EventState, state); err != nil {
		return
	}

	sc.log.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				sc.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(sc, &msg)
		case ws.ActionHeartbeat:
			h.handleHeartbeat(sc, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(sc, &msg) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"),
					time.Now().Add(time.Second))
				return
			}
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.Message{Event: ws.EventPong})
		default:
			sc.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), false)
		}
	}
}

func (h *WSHandler) handleAutosave(sc *streamConn, msg *ws.RequestPayload) {
	if !h.autosave.Allow(middleware.StudentKey(sc.studentID)) {
		_ = ws.WriteError(sc.conn, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded), true)
		return
	}

	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		_ = ws.WriteError(sc.conn, string(response.ErrInvalidID), "invalid q_id format", false)
		return
	}

	rec, err := runAction(func(ctx context.Context) (*model.AnswerRecord, error) {
		return h.answers.SaveAnswer(ctx, sc.studentID, sc.examID, questionID, msg.Answer)
	})
	if err != nil {
		sc.fail(err)
		return
	}
	_ = ws.WriteJSON(sc.conn, ws.EventSaved, rec)
}

func (h *WSHandler) handleHeartbeat(sc *streamConn, msg *ws.RequestPayload) {
	if msg.Seconds == nil || *msg.Seconds < 0 {
		_ = ws.WriteError(sc.conn, string(response.ErrValidation), "seconds must be 0 or greater", false)
		return
	}

	upd, err := runAction(func(ctx context.Context) (*service.TimeUpdate, error) {
		return h.sessions.PersistTimeRemaining(ctx, sc.sessionID, sc.studentID, *msg.Seconds)
	})
	if err != nil {
		sc.fail(err)
		return
	}
	_ = ws.WriteJSON(sc.conn, ws.EventTime, upd)
}

// handleSubmit reports whether the attempt is now finalized.
func (h *WSHandler) handleSubmit(sc *streamConn, msg *ws.RequestPayload) bool {
	answers := answerMap(msg.Answers)
	if len(answers) != len(msg.Answers) {
		_ = ws.WriteError(sc.conn, string(response.ErrValidation), "answers must be keyed by question UUIDs", false)
		return false
	}

	out, err := runAction(func(ctx context.Context) (*service.SubmitOutcome, error) {
		return h.scoring.Submit(ctx, sc.studentID, sc.examID, answers)
	})
	if err != nil {
		sc.fail(err)
		return false
	}
	_ = ws.WriteJSON(sc.conn, ws.EventGraded, out)
	return true
}

// runAction runs fn with a fresh bounded context; the upgrade request's
// context is not tied to the connection lifetime.
func runAction[T any](fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	return fn(ctx)
}

func (sc *streamConn) fail(err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		sc.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = ws.WriteError(sc.conn, string(code), response.GetMessage(code), status == http.StatusServiceUnavailable)
}
