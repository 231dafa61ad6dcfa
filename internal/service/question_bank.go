package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds one shared paper load from Postgres.
const loadTimeout = 5 * time.Second

// QuestionBank serves the student-facing question set of an exam. Papers are
// cached in Redis; the answer key never leaves Postgres.
type QuestionBank struct {
	store repository.Store
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
	log   zerolog.Logger
}

// NewQuestionBank creates a new QuestionBank.
func NewQuestionBank(store repository.Store, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionBank {
	return &QuestionBank{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "question_bank").Logger(),
	}
}

// Paper returns the exam paper, loading it from Postgres on a cache miss.
// Concurrent misses for the same exam share one database read. A Redis
// outage degrades to reading Postgres directly.
func (b *QuestionBank) Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(exam.ID.String())

	data, err := b.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
		b.log.Warn().Str("exam_id", exam.ID.String()).Msg("Corrupt cached paper, reloading")
	case !errors.Is(err, redis.Nil):
		b.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache read failed")
	}

	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		// Followers share this load, so it must outlive the caller that started it.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return b.load(lctx, exam)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ExamPaper), nil
}

// Prewarm caches the papers of every exam students may currently sit.
func (b *QuestionBank) Prewarm(ctx context.Context) error {
	exams, err := b.store.Repos().Exams.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}

	warmed := 0
	for i := range exams {
		if _, err := b.load(ctx, &exams[i]); err != nil {
			b.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	b.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

func (b *QuestionBank) load(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := b.store.Repos().Questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, storageErr("list questions", err)
	}

	paper := &model.ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: make([]model.QuestionForStudent, 0, len(questions)),
	}
	for i := range questions {
		if !questions[i].Valid() {
			b.log.Warn().
				Str("exam_id", exam.ID.String()).
				Str("question_id", questions[i].ID.String()).
				Msg("Skipping malformed question")
			continue
		}
		paper.Questions = append(paper.Questions, questions[i].ForStudent())
	}

	raw, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}
	if err := b.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), raw, b.ttl).Err(); err != nil {
		b.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache write failed")
	}

	b.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(paper.Questions)).
		Msg("Paper cached")
	return paper, nil
}
