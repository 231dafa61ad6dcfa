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

// ScoringService finalizes attempts: it grades, writes the result and moves
// the session to COMPLETED in one transaction.
type ScoringService struct {
	store repository.Store
	grace time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

// NewScoringService creates a new ScoringService.
func NewScoringService(store repository.Store, grace time.Duration, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		store: store,
		grace: grace,
		log:   log.With().Str("component", "scoring_service").Logger(),
		now:   time.Now,
	}
}

// SubmitOutcome is the result of a submission attempt.
type SubmitOutcome struct {
	Result *model.ExamResult `json:"result"`
	// AlreadyCompleted is set when the attempt had been finalized before;
	// Result is then the earlier, unchanged result.
	AlreadyCompleted bool `json:"already_completed"`
	// NoQuestions flags an exam without questions, graded as 0% / F.
	NoQuestions bool `json:"no_questions"`
	// Late is set when the submission arrived after the deadline plus grace;
	// the autosaved answers were graded instead of the submitted ones.
	Late bool `json:"late"`
}

// Submit grades the submitted raw answers (keyed by question id) and
// finalizes the attempt. Calling it again for a finished attempt returns the
// first result. On any failure nothing is written and the call may be retried.
func (s *ScoringService) Submit(ctx context.Context, studentID int, examID uuid.UUID, answers map[uuid.UUID]string) (*SubmitOutcome, error) {
	if answers == nil {
		answers = map[uuid.UUID]string{}
	}
	return s.finalize(ctx, studentID, examID, answers)
}

// SubmitPersisted finalizes the attempt using its autosaved answers. It is
// what the expiry worker calls when time runs out.
func (s *ScoringService) SubmitPersisted(ctx context.Context, studentID int, examID uuid.UUID) (*SubmitOutcome, error) {
	return s.finalize(ctx, studentID, examID, nil)
}

// finalize runs the submission transaction. A nil answers map means "grade
// what was autosaved".
func (s *ScoringService) finalize(ctx context.Context, studentID int, examID uuid.UUID, answers map[uuid.UUID]string) (*SubmitOutcome, error) {
	exam, err := s.store.Repos().Exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}

	var out *SubmitOutcome
	err = s.store.WithinTx(ctx, func(tx repository.Repos) error {
		out = nil

		sess, err := tx.Sessions.LockByExamAndStudent(ctx, examID, studentID, true)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return storageErr("lock session", err)
		}

		if sess.IsCompleted() {
			prior, err := tx.Results.GetByExamAndStudent(ctx, examID, studentID)
			if err != nil {
				return storageErr("get prior result", err)
			}
			out = &SubmitOutcome{Result: prior, AlreadyCompleted: true}
			return nil
		}

		now := s.now()
		late := answers != nil && Expired(sess, exam, now, s.grace)

		raw := true
		if answers == nil || late {
			raw = false
			answers, err = s.persistedAnswers(ctx, tx, examID, studentID)
			if err != nil {
				return err
			}
		}

		questions, err := tx.Questions.ListByExam(ctx, examID)
		if err != nil {
			return storageErr("list questions", err)
		}

		card := ScoreExam(questions, answers, raw)
		if card.Malformed > 0 {
			s.log.Warn().
				Str("exam_id", examID.String()).
				Int("malformed", card.Malformed).
				Msg("Exam has malformed questions, scoring them as zero")
		}
		for i := range card.Answers {
			card.Answers[i].StudentID = studentID
		}

		if err := tx.Answers.DeleteByAttempt(ctx, examID, studentID); err != nil {
			return storageErr("wipe answers", err)
		}
		if err := tx.Answers.InsertGraded(ctx, card.Answers); err != nil {
			return storageErr("write graded answers", err)
		}

		result := &model.ExamResult{
			ExamID:         examID,
			StudentID:      studentID,
			TotalQuestions: card.TotalQuestions,
			CorrectCount:   card.CorrectCount,
			Score:          card.Awarded,
			TotalMarks:     card.Possible,
			Percentage:     card.Percentage,
			Grade:          card.Grade,
			GPA:            card.GPA,
			Passed:         card.Possible > 0 && card.Percentage >= exam.PassingScore,
			SubmittedAt:    now,
		}
		if err := tx.Results.Upsert(ctx, result); err != nil {
			return storageErr("upsert result", err)
		}

		completed, err := tx.Sessions.Complete(ctx, sess.ID, now)
		if err != nil {
			return storageErr("complete session", err)
		}
		if !completed {
			return fmt.Errorf("session %s completed concurrently: %w", sess.ID, ErrTransient)
		}

		out = &SubmitOutcome{Result: result, NoQuestions: len(questions) == 0, Late: late}
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}

	if !out.AlreadyCompleted {
		s.log.Info().
			Int("student_id", studentID).
			Str("exam_id", examID.String()).
			Int("score", out.Result.Score).
			Int("total", out.Result.TotalMarks).
			Str("grade", out.Result.Grade).
			Bool("late", out.Late).
			Msg("Exam submitted and graded")
	}
	return out, nil
}

func (s *ScoringService) persistedAnswers(ctx context.Context, tx repository.Repos, examID uuid.UUID, studentID int) (map[uuid.UUID]string, error) {
	saved, err := tx.Answers.ListByAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, storageErr("list saved answers", err)
	}
	answers := make(map[uuid.UUID]string, len(saved))
	for _, a := range saved {
		answers[a.QuestionID] = a.Answer
	}
	return answers, nil
}
