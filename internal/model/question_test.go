package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionsStringList(t *testing.T) {
	opts, err := ParseOptions(json.RawMessage(`["Paris", "Rome"]`))
	require.NoError(t, err)
	assert.Equal(t, []Option{{Key: "0", Text: "Paris"}, {Key: "1", Text: "Rome"}}, opts)
}

func TestParseOptionsKeyed(t *testing.T) {
	opts, err := ParseOptions(json.RawMessage(`[{"key":"A","text":"Paris"},{"text":"Rome"}]`))
	require.NoError(t, err)
	assert.Equal(t, []Option{{Key: "A", Text: "Paris"}, {Key: "1", Text: "Rome"}}, opts)
}

func TestParseOptionsInvalid(t *testing.T) {
	_, err := ParseOptions(json.RawMessage(`{"a":1}`))
	assert.Error(t, err)
}

func TestMultipleChoiceLookup(t *testing.T) {
	mc := MultipleChoice{Options: []Option{{Key: "A", Text: "Paris"}, {Key: "B", Text: "Rome"}}}

	cases := []struct {
		key  string
		want string
		ok   bool
	}{
		{"A", "Paris", true},
		{"b", "Rome", true},
		{" B ", "Rome", true},
		{"1", "Rome", true},
		{"2", "", false},
		{"-1", "", false},
		{"Z", "", false},
	}
	for _, tc := range cases {
		got, ok := mc.Lookup(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.want, got, tc.key)
	}
}

func TestNewQuestionKind(t *testing.T) {
	k, err := NewQuestionKind(QuestionTypeMultipleChoice, json.RawMessage(`["Paris","Rome"]`))
	require.NoError(t, err)
	assert.Equal(t, QuestionTypeMultipleChoice, k.Type())

	_, err = NewQuestionKind(QuestionTypeMultipleChoice, json.RawMessage(`["Paris","  "]`))
	assert.True(t, errors.Is(err, ErrMalformedQuestion))

	k, err = NewQuestionKind(QuestionTypeTrueFalse, nil)
	require.NoError(t, err)
	assert.Equal(t, TrueFalse{}, k)

	k, err = NewQuestionKind(QuestionTypeShortAnswer, nil)
	require.NoError(t, err)
	assert.Equal(t, ShortAnswer{}, k)

	_, err = NewQuestionKind("essay", nil)
	assert.True(t, errors.Is(err, ErrMalformedQuestion))

	_, err = NewQuestionKind(QuestionTypeMultipleChoice, json.RawMessage(`{"a":1}`))
	assert.True(t, errors.Is(err, ErrMalformedQuestion))
}

func TestKindOfMarksBrokenDataMalformed(t *testing.T) {
	assert.Equal(t, TrueFalse{}, KindOf(QuestionTypeTrueFalse, nil))

	k := KindOf(QuestionTypeMultipleChoice, json.RawMessage(`["only one"]`))
	bad, ok := k.(Malformed)
	require.True(t, ok)
	assert.Equal(t, QuestionTypeMultipleChoice, bad.Type())
	assert.Contains(t, bad.Reason, "at least 2 options")

	q := Question{Kind: KindOf("essay", nil)}
	assert.False(t, q.Valid())
	assert.True(t, (&Question{Kind: ShortAnswer{}}).Valid())
}

func TestForStudentHidesKey(t *testing.T) {
	q := Question{
		ID:            uuid.New(),
		QuestionText:  "Capital of France?",
		Kind:          MultipleChoice{Options: []Option{{Key: "0", Text: "Paris"}, {Key: "1", Text: "Rome"}}},
		CorrectAnswer: "0",
		Points:        2,
	}

	out := q.ForStudent()
	assert.Equal(t, QuestionTypeMultipleChoice, out.QuestionType)
	assert.Len(t, out.Options, 2)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct")
}

func TestExamIsOpen(t *testing.T) {
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	exam := Exam{ScheduledStart: start, ScheduledEnd: start.Add(2 * time.Hour), Status: ExamStatusActive}

	assert.True(t, exam.IsOpen(start))
	assert.True(t, exam.IsOpen(start.Add(2*time.Hour)))
	assert.False(t, exam.IsOpen(start.Add(-time.Second)))
	assert.False(t, exam.IsOpen(start.Add(2*time.Hour+time.Second)))

	exam.Status = ExamStatusPending
	assert.True(t, exam.IsOpen(start.Add(time.Minute)))

	exam.Status = ExamStatusClosed
	assert.False(t, exam.IsOpen(start.Add(time.Minute)))
}
