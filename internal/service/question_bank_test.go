package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestQuestionBank_CachesPaperWithoutKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paper, err := f.bank.Paper(ctx, &f.exam)
	require.NoError(t, err)
	require.Len(t, paper.Questions, 3)
	assert.Equal(t, f.exam.Title, paper.Title)

	key := config.CacheKey.ExamPaperKey(f.exam.ID.String())
	require.True(t, f.mr.Exists(key))
	raw, err := f.mr.Get(key)
	require.NoError(t, err)
	assert.NotContains(t, raw, "correct")

	var cached model.ExamPaper
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, f.qs[0].ID, cached.Questions[0].ID)
}

func TestQuestionBank_ServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bank.Paper(ctx, &f.exam)
	require.NoError(t, err)

	// The cached copy is served even when Postgres is unavailable.
	f.store.fail["questions.list"] = true
	paper, err := f.bank.Paper(ctx, &f.exam)
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 3)
}

func TestQuestionBank_CorruptEntryIsReloaded(t *testing.T) {
	f := newFixture(t)
	key := config.CacheKey.ExamPaperKey(f.exam.ID.String())
	require.NoError(t, f.mr.Set(key, "{not json"))

	paper, err := f.bank.Paper(context.Background(), &f.exam)
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 3)

	raw, _ := f.mr.Get(key)
	assert.True(t, strings.HasPrefix(raw, "{\""))
}

func TestQuestionBank_RedisDownFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	paper, err := f.bank.Paper(context.Background(), &f.exam)
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 3)
}

func TestQuestionBank_ConcurrentMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			paper, err := f.bank.Paper(ctx, &f.exam)
			if err == nil && len(paper.Questions) != 3 {
				t.Errorf("got %d questions", len(paper.Questions))
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestQuestionBank_Prewarm(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bank.Prewarm(context.Background()))
	assert.True(t, f.mr.Exists(config.CacheKey.ExamPaperKey(f.exam.ID.String())))
}

func TestQuestionBank_SharedLoadOutlivesCanceledCaller(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paper, err := f.bank.Paper(ctx, &f.exam)
	require.NoError(t, err)
	assert.Len(t, paper.Questions, 3)
}
