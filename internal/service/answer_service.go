package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// AnswerService handles incremental answer autosave.
type AnswerService struct {
	store repository.Store
	grace time.Duration
	now   func() time.Time
}

// NewAnswerService creates a new AnswerService. grace is how long past the
// exam deadline answers are still accepted.
func NewAnswerService(store repository.Store, grace time.Duration) *AnswerService {
	return &AnswerService{store: store, grace: grace, now: time.Now}
}

// SaveAnswer resolves raw to its stored form and upserts it. The session row
// is share-locked for the duration so a concurrent Submit cannot interleave.
func (s *AnswerService) SaveAnswer(ctx context.Context, studentID int, examID, questionID uuid.UUID, raw string) (*model.AnswerRecord, error) {
	exam, err := s.store.Repos().Exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}

	var saved *model.AnswerRecord
	err = s.store.WithinTx(ctx, func(tx repository.Repos) error {
		sess, err := tx.Sessions.LockByExamAndStudent(ctx, examID, studentID, false)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("no session: %w", ErrSessionNotActive)
			}
			return storageErr("lock session", err)
		}
		if sess.IsCompleted() {
			return fmt.Errorf("session completed: %w", ErrSessionNotActive)
		}
		if Expired(sess, exam, s.now(), s.grace) {
			return fmt.Errorf("time is up: %w", ErrSessionNotActive)
		}

		q, err := tx.Questions.GetByID(ctx, examID, questionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrQuestionNotFound
			}
			return storageErr("get question", err)
		}
		if !q.Valid() {
			return fmt.Errorf("question %s: %w", questionID, ErrInvariant)
		}

		rec := &model.AnswerRecord{
			ExamID:     examID,
			StudentID:  studentID,
			QuestionID: questionID,
			Answer:     resolveAnswer(q, raw),
		}
		if err := tx.Answers.Upsert(ctx, rec); err != nil {
			return storageErr("upsert answer", err)
		}
		saved = rec
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}
	return saved, nil
}

// txErr classifies a failure surfaced by WithinTx: domain errors pass
// through, anything else (begin/commit failures) is transient.
func txErr(err error) error {
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvariant) || IsPrecondition(err) {
		return err
	}
	return storageErr("transaction", err)
}
