package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// ExamSessionService owns the attempt lifecycle up to submission.
type ExamSessionService struct {
	store repository.Store
	bank  *QuestionBank
	log   zerolog.Logger
	now   func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(store repository.Store, bank *QuestionBank, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		store: store,
		bank:  bank,
		log:   log.With().Str("component", "exam_session_service").Logger(),
		now:   time.Now,
	}
}

// SessionState is everything a client needs to render (or re-render) an attempt.
type SessionState struct {
	Session              *model.ExamSession         `json:"session"`
	Questions            []model.QuestionForStudent `json:"questions"`
	SavedAnswers         map[uuid.UUID]string       `json:"saved_answers"`
	TimeRemainingSeconds int                        `json:"time_remaining_seconds"`
	Resumed              bool                       `json:"resumed"`
}

// BeginOrResume returns the student's in-progress session for the exam,
// creating it on first entry. A finished attempt yields ErrAlreadyCompleted.
// New attempts require the exam window to be open and the student to be
// enrolled; an attempt already under way may always be resumed.
func (s *ExamSessionService) BeginOrResume(ctx context.Context, studentID int, examID uuid.UUID) (*SessionState, error) {
	repos := s.store.Repos()

	exam, err := repos.Exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}

	if _, err := repos.Results.GetByExamAndStudent(ctx, examID, studentID); err == nil {
		return nil, ErrAlreadyCompleted
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageErr("check result", err)
	}

	sess, err := repos.Sessions.GetByExamAndStudent(ctx, examID, studentID)
	switch {
	case err == nil:
		return s.resume(ctx, exam, sess)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, storageErr("get session", err)
	}

	now := s.now()
	if !exam.IsOpen(now) {
		return nil, ErrExamNotOpen
	}

	enrolled, err := repos.Exams.IsEnrolled(ctx, studentID, exam.CourseID)
	if err != nil {
		return nil, storageErr("check enrollment", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	full := exam.DurationMinutes * 60
	sess = &model.ExamSession{
		ExamID:        examID,
		StudentID:     studentID,
		StartedAt:     now,
		TimeRemaining: &full,
		Status:        model.SessionStatusInProgress,
	}

	if err := repos.Sessions.Create(ctx, sess); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, storageErr("create session", err)
		}
		// Lost the race to a concurrent begin: resume the winner's row.
		existing, fetchErr := repos.Sessions.GetByExamAndStudent(ctx, examID, studentID)
		if fetchErr != nil {
			return nil, storageErr("concurrent begin detected, but fetch failed", fetchErr)
		}
		return s.resume(ctx, exam, existing)
	}

	s.log.Info().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Str("session_id", sess.ID.String()).
		Msg("Exam session started")

	return s.state(ctx, exam, sess, false)
}

func (s *ExamSessionService) resume(ctx context.Context, exam *model.Exam, sess *model.ExamSession) (*SessionState, error) {
	if sess.IsCompleted() {
		return nil, ErrAlreadyCompleted
	}
	return s.state(ctx, exam, sess, true)
}

func (s *ExamSessionService) state(ctx context.Context, exam *model.Exam, sess *model.ExamSession, resumed bool) (*SessionState, error) {
	paper, err := s.bank.Paper(ctx, exam)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}

	saved := map[uuid.UUID]string{}
	if resumed {
		answers, err := s.store.Repos().Answers.ListByAttempt(ctx, sess.ExamID, sess.StudentID)
		if err != nil {
			return nil, storageErr("list answers", err)
		}
		for _, a := range answers {
			saved[a.QuestionID] = a.Answer
		}
	}

	return &SessionState{
		Session:              sess,
		Questions:            paper.Questions,
		SavedAnswers:         saved,
		TimeRemainingSeconds: Remaining(sess, exam, s.now()),
		Resumed:              resumed,
	}, nil
}

// TimeUpdate reports what PersistTimeRemaining stored.
type TimeUpdate struct {
	Applied bool `json:"applied"`
	Seconds int  `json:"seconds"`
}

// PersistTimeRemaining stores the client's countdown for display continuity.
// The value is clamped to the current remaining time, so the stored countdown
// only ever goes down. A completed session is left untouched (Applied=false)
// without error.
func (s *ExamSessionService) PersistTimeRemaining(ctx context.Context, sessionID uuid.UUID, studentID, seconds int) (*TimeUpdate, error) {
	repos := s.store.Repos()

	sess, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, storageErr("get session", err)
	}
	if sess.StudentID != studentID {
		return nil, ErrUnauthorized
	}
	if sess.IsCompleted() {
		return &TimeUpdate{Applied: false}, nil
	}

	exam, err := repos.Exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}

	seconds = min(max(0, seconds), Remaining(sess, exam, s.now()))
	if err := repos.Sessions.UpdateTimeRemaining(ctx, sess.ID, seconds); err != nil {
		return nil, storageErr("update time remaining", err)
	}

	return &TimeUpdate{Applied: true, Seconds: seconds}, nil
}

// GetResult returns the stored result of a finished attempt.
func (s *ExamSessionService) GetResult(ctx context.Context, studentID int, examID uuid.UUID) (*model.ExamResult, error) {
	res, err := s.store.Repos().Results.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, storageErr("get result", err)
	}
	return res, nil
}
