package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

var errConnReset = errors.New("connection reset by peer")

type attemptKey struct {
	examID    uuid.UUID
	studentID int
}

type answerKey struct {
	attemptKey
	questionID uuid.UUID
}

// memStore is an in-memory repository.Store. Transactions are serialized
// by txMu, which stands in for the row locks Postgres would take, and are
// rolled back from a snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	exams       map[uuid.UUID]model.Exam
	enrollments map[[2]int]bool
	questions   map[uuid.UUID][]model.Question
	sessions    map[uuid.UUID]model.ExamSession
	answers     map[answerKey]model.AnswerRecord
	results     map[attemptKey]model.ExamResult

	// fail makes the named operation return errConnReset.
	fail map[string]bool
	// creates counts successful session inserts.
	creates int
}

func newMemStore() *memStore {
	return &memStore{
		exams:       map[uuid.UUID]model.Exam{},
		enrollments: map[[2]int]bool{},
		questions:   map[uuid.UUID][]model.Question{},
		sessions:    map[uuid.UUID]model.ExamSession{},
		answers:     map[answerKey]model.AnswerRecord{},
		results:     map[attemptKey]model.ExamResult{},
		fail:        map[string]bool{},
	}
}

func (m *memStore) Repos() repository.Repos {
	return repository.Repos{
		Exams:     memExams{m},
		Questions: memQuestions{m},
		Sessions:  memSessions{m},
		Answers:   memAnswers{m},
		Results:   memResults{m},
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx repository.Repos) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := m.check("begin"); err != nil {
		return err
	}

	m.mu.Lock()
	sessions := clone(m.sessions)
	answers := clone(m.answers)
	results := clone(m.results)
	m.mu.Unlock()

	if err := fn(m.Repos()); err != nil {
		m.mu.Lock()
		m.sessions, m.answers, m.results = sessions, answers, results
		m.mu.Unlock()
		return err
	}
	return nil
}

func clone[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) check(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[op] {
		return errConnReset
	}
	return nil
}

func (m *memStore) addExam(e model.Exam, questions ...model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = e
	for i := range questions {
		questions[i].ExamID = e.ID
	}
	m.questions[e.ID] = questions
}

func (m *memStore) enroll(studentID, courseID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[[2]int{studentID, courseID}] = true
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func (m *memStore) answersOf(examID uuid.UUID, studentID int) map[uuid.UUID]model.AnswerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]model.AnswerRecord{}
	for k, a := range m.answers {
		if k.examID == examID && k.studentID == studentID {
			out[k.questionID] = a
		}
	}
	return out
}

type memExams struct{ m *memStore }

func (r memExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if err := r.m.check("exams.get"); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r memExams) ListActive(context.Context) ([]model.Exam, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.Exam
	for _, e := range r.m.exams {
		if e.Status == model.ExamStatusActive || e.Status == model.ExamStatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memExams) IsEnrolled(_ context.Context, studentID, courseID int) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.enrollments[[2]int{studentID, courseID}], nil
}

type memQuestions struct{ m *memStore }

func (r memQuestions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.m.check("questions.list"); err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]model.Question(nil), r.m.questions[examID]...), nil
}

func (r memQuestions) GetByID(_ context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, q := range r.m.questions[examID] {
		if q.ID == questionID {
			return &q, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memSessions struct{ m *memStore }

func (r memSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (r memSessions) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sessions {
		if s.ExamID == examID && s.StudentID == studentID {
			return &s, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memSessions) LockByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int, _ bool) (*model.ExamSession, error) {
	return r.GetByExamAndStudent(ctx, examID, studentID)
}

func (r memSessions) Create(_ context.Context, s *model.ExamSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.sessions {
		if existing.ExamID == s.ExamID && existing.StudentID == s.StudentID {
			return pgx.ErrNoRows
		}
	}
	s.ID = uuid.New()
	s.UpdatedAt = time.Now()
	r.m.sessions[s.ID] = *s
	r.m.creates++
	return nil
}

func (r memSessions) UpdateTimeRemaining(_ context.Context, id uuid.UUID, seconds int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.IsCompleted() {
		return nil
	}
	s.TimeRemaining = &seconds
	s.UpdatedAt = time.Now()
	r.m.sessions[id] = s
	return nil
}

func (r memSessions) Complete(_ context.Context, id uuid.UUID, finishedAt time.Time) (bool, error) {
	if err := r.m.check("sessions.complete"); err != nil {
		return false, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.IsCompleted() {
		return false, nil
	}
	s.Status = model.SessionStatusCompleted
	s.FinishedAt = &finishedAt
	r.m.sessions[id] = s
	return true, nil
}

func (r memSessions) ListExpired(_ context.Context, now time.Time, grace time.Duration, limit int) ([]model.ExamSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.ExamSession
	for _, s := range r.m.sessions {
		e := r.m.exams[s.ExamID]
		if s.IsCompleted() || !now.After(s.StartedAt.Add(e.Duration()+grace)) {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memAnswers struct{ m *memStore }

func (r memAnswers) Upsert(_ context.Context, a *model.AnswerRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.UpdatedAt = time.Now()
	r.m.answers[answerKey{attemptKey{a.ExamID, a.StudentID}, a.QuestionID}] = *a
	return nil
}

func (r memAnswers) ListByAttempt(_ context.Context, examID uuid.UUID, studentID int) ([]model.AnswerRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.AnswerRecord
	for k, a := range r.m.answers {
		if k.examID == examID && k.studentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAnswers) DeleteByAttempt(_ context.Context, examID uuid.UUID, studentID int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for k := range r.m.answers {
		if k.examID == examID && k.studentID == studentID {
			delete(r.m.answers, k)
		}
	}
	return nil
}

func (r memAnswers) InsertGraded(_ context.Context, answers []model.AnswerRecord) error {
	if err := r.m.check("answers.insert_graded"); err != nil {
		return err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, a := range answers {
		a.UpdatedAt = time.Now()
		r.m.answers[answerKey{attemptKey{a.ExamID, a.StudentID}, a.QuestionID}] = a
	}
	return nil
}

type memResults struct{ m *memStore }

func (r memResults) Upsert(_ context.Context, res *model.ExamResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := attemptKey{res.ExamID, res.StudentID}
	if prev, ok := r.m.results[key]; ok {
		res.ID = prev.ID
	} else {
		res.ID = uuid.New()
	}
	r.m.results[key] = *res
	return nil
}

func (r memResults) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	res, ok := r.m.results[attemptKey{examID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &res, nil
}
