package repository

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// questionRow feeds scanQuestion the columns of one questions row.
type questionRow struct {
	id, examID uuid.UUID
	text       string
	qType      model.QuestionType
	options    json.RawMessage
	correct    string
	points     int
	order      int
}

func (r questionRow) Scan(dest ...any) error {
	if len(dest) != 8 {
		return fmt.Errorf("expected 8 columns, got %d", len(dest))
	}
	*dest[0].(*uuid.UUID) = r.id
	*dest[1].(*uuid.UUID) = r.examID
	*dest[2].(*string) = r.text
	*dest[3].(*model.QuestionType) = r.qType
	*dest[4].(*json.RawMessage) = r.options
	*dest[5].(*string) = r.correct
	*dest[6].(*int) = r.points
	*dest[7].(*int) = r.order
	return nil
}

func TestScanQuestion(t *testing.T) {
	row := questionRow{
		id:      uuid.New(),
		examID:  uuid.New(),
		text:    "Capital of France?",
		qType:   model.QuestionTypeMultipleChoice,
		options: json.RawMessage(`["Paris","Rome"]`),
		correct: "0",
		points:  2,
		order:   1,
	}

	q, err := scanQuestion(row)
	require.NoError(t, err)
	assert.True(t, q.Valid())
	assert.Equal(t, row.id, q.ID)
	assert.Equal(t, 2, q.Points)
	mc, ok := q.Kind.(model.MultipleChoice)
	require.True(t, ok)
	assert.Len(t, mc.Options, 2)
}

func TestScanQuestionKeepsMalformedRows(t *testing.T) {
	cases := []questionRow{
		{id: uuid.New(), qType: model.QuestionTypeMultipleChoice, options: json.RawMessage(`["Paris"]`)},
		{id: uuid.New(), qType: model.QuestionTypeMultipleChoice, options: json.RawMessage(`{"a":1}`)},
		{id: uuid.New(), qType: "essay", options: json.RawMessage(`[]`)},
	}
	for _, row := range cases {
		q, err := scanQuestion(row)
		require.NoError(t, err, string(row.options))
		assert.False(t, q.Valid(), string(row.options))
		assert.Equal(t, row.qType, q.Kind.Type())
	}
}

func TestScanQuestionPropagatesScanErrors(t *testing.T) {
	_, err := scanQuestion(badRow{})
	assert.Error(t, err)
}

type badRow struct{}

func (badRow) Scan(...any) error { return fmt.Errorf("conn closed") }
