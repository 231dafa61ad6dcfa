package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// SessionService is the attempt lifecycle the handlers drive.
type SessionService interface {
	BeginOrResume(ctx context.Context, studentID int, examID uuid.UUID) (*service.SessionState, error)
	PersistTimeRemaining(ctx context.Context, sessionID uuid.UUID, studentID, seconds int) (*service.TimeUpdate, error)
	GetResult(ctx context.Context, studentID int, examID uuid.UUID) (*model.ExamResult, error)
}

// AnswerService saves single answers.
type AnswerService interface {
	SaveAnswer(ctx context.Context, studentID int, examID, questionID uuid.UUID, raw string) (*model.AnswerRecord, error)
}

// ScoringService finalizes attempts.
type ScoringService interface {
	Submit(ctx context.Context, studentID int, examID uuid.UUID, answers map[uuid.UUID]string) (*service.SubmitOutcome, error)
}

// StudentPortalHandler handles student-facing exam endpoints.
type StudentPortalHandler struct {
	sessions SessionService
	answers  AnswerService
	scoring  ScoringService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessions SessionService, answers AnswerService, scoring ScoringService) *StudentPortalHandler {
	return &StudentPortalHandler{sessions: sessions, answers: answers, scoring: scoring}
}

// BeginOrResume godoc
// POST /api/v1/student/exams/:exam_id/session
// Starts the attempt on first call; later calls return the same session with
// saved answers and the remaining time, so a page reload loses nothing.
func (h *StudentPortalHandler) BeginOrResume(c *gin.Context) {
	examID, ok := validator.ParamUUID(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessions.BeginOrResume(c.Request.Context(), middleware.StudentID(c), examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	status := http.StatusCreated
	if state.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, state)
}

// SaveAnswer godoc
// PUT /api/v1/student/exams/:exam_id/answers/:question_id
// Autosaves one answer. Last write wins.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	examID, ok := validator.ParamUUID(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	questionID, ok := validator.ParamUUID(c, "question_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.answers.SaveAnswer(c.Request.Context(), middleware.StudentID(c), examID, questionID, req.Answer)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": rec.QuestionID,
		"answer":      rec.Answer,
		"updated_at":  rec.UpdatedAt,
	})
}

// PersistTime godoc
// PUT /api/v1/student/sessions/:session_id/time
// Stores the client countdown. Ignored (applied=false) once the attempt is over.
func (h *StudentPortalHandler) PersistTime(c *gin.Context) {
	sessionID, ok := validator.ParamUUID(c, "session_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.PersistTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	upd, err := h.sessions.PersistTimeRemaining(c.Request.Context(), sessionID, middleware.StudentID(c), *req.Seconds)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, upd)
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades and finalizes the attempt. Repeating it returns the first result
// with 409 ALREADY_COMPLETED.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	examID, ok := validator.ParamUUID(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	out, err := h.scoring.Submit(c.Request.Context(), middleware.StudentID(c), examID, answerMap(req.Answers))
	if err != nil {
		failFromErr(c, err)
		return
	}

	if out.AlreadyCompleted {
		response.Conflict(c, response.ErrAlreadyCompleted, out)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	examID, ok := validator.ParamUUID(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.sessions.GetResult(c.Request.Context(), middleware.StudentID(c), examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// answerMap converts validated string keys to question ids. Keys that do not
// parse are dropped; binding rejects them before this point.
func answerMap(in map[string]string) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(in))
	for k, v := range in {
		if id, err := uuid.Parse(k); err == nil {
			out[id] = v
		}
	}
	return out
}
