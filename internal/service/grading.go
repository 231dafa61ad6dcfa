package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// GradeBand maps a minimum percentage to a letter grade and grade point.
type GradeBand struct {
	MinPercentage float64
	Letter        string
	GPA           float64
}

// GradeScale is ordered from the highest threshold down; the first band whose
// minimum is reached wins. Grade points use the 4.0 scale.
var GradeScale = []GradeBand{
	{MinPercentage: 70, Letter: "A", GPA: 4.0},
	{MinPercentage: 60, Letter: "B", GPA: 3.0},
	{MinPercentage: 50, Letter: "C", GPA: 2.0},
	{MinPercentage: 45, Letter: "D", GPA: 1.0},
	{MinPercentage: 0, Letter: "F", GPA: 0.0},
}

// Grade returns the letter and grade point for a percentage.
func Grade(percentage float64) (string, float64) {
	for _, b := range GradeScale {
		if percentage >= b.MinPercentage {
			return b.Letter, b.GPA
		}
	}
	return "F", 0.0
}

// resolveAnswer converts a raw client value into the stored form.
//   - multiple choice: key or index to option text, raw value when unknown
//   - true/false: "true" when it reads as true, otherwise "false"
//   - short answer and malformed: trimmed
func resolveAnswer(q *model.Question, raw string) string {
	switch k := q.Kind.(type) {
	case model.MultipleChoice:
		if text, ok := k.Lookup(raw); ok {
			return text
		}
		return raw
	case model.TrueFalse:
		if strings.EqualFold(strings.TrimSpace(raw), "true") {
			return "true"
		}
		return "false"
	case model.ShortAnswer, model.Malformed:
		return strings.TrimSpace(raw)
	default:
		panic(fmt.Sprintf("resolveAnswer: unhandled question kind %T", q.Kind))
	}
}

// isCorrect compares a resolved answer against the question's key. Matching
// is exact and case-insensitive; there is no partial credit.
func isCorrect(q *model.Question, resolved string) bool {
	switch k := q.Kind.(type) {
	case model.MultipleChoice:
		want, ok := k.Lookup(q.CorrectAnswer)
		if !ok {
			want = q.CorrectAnswer
		}
		return strings.EqualFold(strings.TrimSpace(resolved), strings.TrimSpace(want))
	case model.TrueFalse:
		return strings.EqualFold(resolved, strings.TrimSpace(q.CorrectAnswer))
	case model.ShortAnswer:
		return strings.EqualFold(strings.TrimSpace(resolved), strings.TrimSpace(q.CorrectAnswer))
	case model.Malformed:
		return false
	default:
		panic(fmt.Sprintf("isCorrect: unhandled question kind %T", q.Kind))
	}
}

// Scorecard is the outcome of grading one attempt.
type Scorecard struct {
	Answers        []model.AnswerRecord
	TotalQuestions int
	CorrectCount   int
	Awarded        int
	Possible       int
	Percentage     float64
	Grade          string
	GPA            float64
	// Malformed counts questions whose stored data is broken; they can
	// never be answered correctly.
	Malformed int
}

// ScoreExam grades answers against the question set. Answers are keyed by
// question id; when raw is true they are resolved first, otherwise they are
// taken as already-resolved autosaved text. Only questions missing from the
// map are unanswered; a present key is always resolved and graded, so a
// blank true/false answer reads as "false" on both submit paths. Unanswered
// and malformed questions score zero but still count toward Possible.
func ScoreExam(questions []model.Question, answers map[uuid.UUID]string, raw bool) Scorecard {
	card := Scorecard{TotalQuestions: len(questions)}

	for i := range questions {
		q := &questions[i]
		card.Possible += q.Points
		if !q.Valid() {
			card.Malformed++
		}

		value, ok := answers[q.ID]
		if !ok {
			continue
		}
		if raw {
			value = resolveAnswer(q, value)
		}

		correct := isCorrect(q, value)
		points := 0
		if correct {
			points = q.Points
			card.CorrectCount++
			card.Awarded += points
		}

		card.Answers = append(card.Answers, model.AnswerRecord{
			ExamID:        q.ExamID,
			QuestionID:    q.ID,
			Answer:        value,
			IsCorrect:     &correct,
			PointsAwarded: &points,
		})
	}

	if card.Possible > 0 {
		card.Percentage = float64(card.Awarded) * 100 / float64(card.Possible)
	}
	card.Grade, card.GPA = Grade(card.Percentage)
	return card
}
