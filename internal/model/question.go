package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// ErrMalformedQuestion is returned when stored question data breaks its type's invariants.
var ErrMalformedQuestion = errors.New("malformed question")

// QuestionKind is the closed set of question variants. Only the types in this
// file implement it.
type QuestionKind interface {
	Type() QuestionType
	isQuestionKind()
}

// MultipleChoice carries the ordered option list.
type MultipleChoice struct {
	Options []Option
}

// TrueFalse accepts the literals "true" and "false".
type TrueFalse struct{}

// ShortAnswer is free text compared case-insensitively.
type ShortAnswer struct{}

// Malformed stands in for a stored question whose data breaks its type's
// invariants. It is never shown to students and never scores.
type Malformed struct {
	Declared QuestionType
	Reason   string
}

func (MultipleChoice) Type() QuestionType { return QuestionTypeMultipleChoice }
func (TrueFalse) Type() QuestionType      { return QuestionTypeTrueFalse }
func (ShortAnswer) Type() QuestionType    { return QuestionTypeShortAnswer }
func (m Malformed) Type() QuestionType    { return m.Declared }

func (MultipleChoice) isQuestionKind() {}
func (TrueFalse) isQuestionKind()      {}
func (ShortAnswer) isQuestionKind()    {}
func (Malformed) isQuestionKind()      {}

// Option is one multiple-choice option. Key is what clients submit; it
// defaults to the option's 0-based index.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Lookup resolves a submitted key to option text. Keys match exactly first,
// then case-insensitively, then as a 0-based index.
func (m MultipleChoice) Lookup(key string) (string, bool) {
	key = strings.TrimSpace(key)
	for _, o := range m.Options {
		if o.Key == key {
			return o.Text, true
		}
	}
	for _, o := range m.Options {
		if strings.EqualFold(o.Key, key) {
			return o.Text, true
		}
	}
	if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(m.Options) {
		return m.Options[i].Text, true
	}
	return "", false
}

// ParseOptions decodes stored options. Both ["Paris","Rome"] and
// [{"key":"A","text":"Paris"}] are accepted.
func ParseOptions(raw json.RawMessage) ([]Option, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var texts []string
	if err := json.Unmarshal(raw, &texts); err == nil {
		opts := make([]Option, len(texts))
		for i, t := range texts {
			opts[i] = Option{Key: strconv.Itoa(i), Text: t}
		}
		return opts, nil
	}

	var opts []Option
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	for i := range opts {
		if opts[i].Key == "" {
			opts[i].Key = strconv.Itoa(i)
		}
	}
	return opts, nil
}

// NewQuestionKind builds the variant for a stored type string.
func NewQuestionKind(t QuestionType, options json.RawMessage) (QuestionKind, error) {
	switch t {
	case QuestionTypeMultipleChoice:
		opts, err := ParseOptions(options)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedQuestion, err)
		}
		nonEmpty := 0
		for _, o := range opts {
			if strings.TrimSpace(o.Text) != "" {
				nonEmpty++
			}
		}
		if nonEmpty < 2 {
			return nil, fmt.Errorf("%w: multiple choice needs at least 2 options", ErrMalformedQuestion)
		}
		return MultipleChoice{Options: opts}, nil
	case QuestionTypeTrueFalse:
		return TrueFalse{}, nil
	case QuestionTypeShortAnswer:
		return ShortAnswer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrMalformedQuestion, t)
	}
}

// KindOf is NewQuestionKind for stored rows. Broken data yields a Malformed
// kind instead of an error.
func KindOf(t QuestionType, options json.RawMessage) QuestionKind {
	kind, err := NewQuestionKind(t, options)
	if err != nil {
		return Malformed{Declared: t, Reason: err.Error()}
	}
	return kind
}

// Question represents a single exam question with its answer key.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	QuestionText  string       `json:"question_text"`
	Kind          QuestionKind `json:"-"`
	CorrectAnswer string       `json:"-"`
	Points        int          `json:"points"`
	OrderNum      int          `json:"order_num"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []Option     `json:"options,omitempty"`
	Points       int          `json:"points"`
	OrderNum     int          `json:"order_num"`
}

// Valid reports whether the question's stored data is well formed.
func (q *Question) Valid() bool {
	_, bad := q.Kind.(Malformed)
	return !bad
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	out := QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		QuestionType: q.Kind.Type(),
		Points:       q.Points,
		OrderNum:     q.OrderNum,
	}
	if mc, ok := q.Kind.(MultipleChoice); ok {
		out.Options = mc.Options
	}
	return out
}
