package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *SolutionArchive {
	t.Helper()
	archive, err := NewSolutionArchive(filepath.Join(t.TempDir(), "nested", "solutions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

func TestSolutionArchiveRoundTrip(t *testing.T) {
	archive := newTestArchive(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, archive.Save(&ArchivedSolution{
		RunID:     "run-1",
		Mode:      "best_pair",
		TokenPair: "F-Y",
		Status:    "completed",
		Score:     "42",
		CreatedAt: now,
		Solution:  []byte(`{"orders":[]}`),
	}))

	rec, err := archive.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "F-Y", rec.TokenPair)
	assert.Equal(t, "42", rec.Score)
	assert.True(t, now.Equal(rec.CreatedAt))
	assert.JSONEq(t, `{"orders":[]}`, string(rec.Solution))

	_, err = archive.Load("missing")
	require.ErrorIs(t, err, ErrSolutionNotFound)
}

func TestSolutionArchiveList(t *testing.T) {
	archive := newTestArchive(t)
	base := time.Now().UTC().Truncate(time.Second)

	for _, rec := range []*ArchivedSolution{
		{RunID: "old", Mode: "token_pair", Status: "completed", Score: "1", CreatedAt: base, Solution: []byte(`{}`)},
		{RunID: "new", Mode: "best_pair", Status: "time-limited", Score: "2", CreatedAt: base.Add(time.Minute), Solution: []byte(`{}`)},
	} {
		require.NoError(t, archive.Save(rec))
	}

	recs, err := archive.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].RunID)
	assert.Equal(t, "old", recs[1].RunID)

	count, err := archive.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSolutionArchiveRejectsMissingRunID(t *testing.T) {
	archive := newTestArchive(t)
	require.Error(t, archive.Save(&ArchivedSolution{Solution: []byte(`{}`)}))
}
