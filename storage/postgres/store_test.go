package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to CLINRAG_TEST_POSTGRES_DSN and resets the tables.
// The database must allow CREATE EXTENSION vector.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CLINRAG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLINRAG_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.pool.Exec(ctx, `DROP TABLE IF EXISTS segments, documents`)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx, 2))
	return s
}

func addDoc(t *testing.T, s *Store, title, body string) *core.Document {
	t.Helper()
	doc, created, err := s.AddDocument(context.Background(), &core.Document{Title: title, Body: body})
	require.NoError(t, err)
	require.True(t, created)
	return doc
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := addDoc(t, s, "Visit", "Patient reports headache.")
	assert.Equal(t, core.StageNotStarted, doc.Stage)

	dup, created, err := s.AddDocument(ctx, &core.Document{Title: "Visit", Body: "Patient reports headache."})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, doc.Id, dup.Id)

	claimed, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, doc.Id, claimed.Id)
	assert.Equal(t, core.StageInProgress, claimed.Stage)
	assert.Equal(t, "w1", claimed.ClaimedBy)

	none, err := s.ClaimNextPending(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.ErrorIs(t, s.Requeue(ctx, doc.Id), storage.ErrInvalidTransition)
	require.NoError(t, s.SetStage(ctx, doc.Id, core.StageFailed))
	require.NoError(t, s.Requeue(ctx, doc.Id))

	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageNotStarted, got.Stage)
	assert.True(t, got.ClaimedAt.IsZero())

	_, err = s.GetDocument(ctx, 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClaimExclusivityUnderContention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const docs, claimers = 8, 24
	for i := range docs {
		addDoc(t, s, fmt.Sprintf("doc %d", i), "body")
	}

	var (
		mu     sync.Mutex
		counts = map[core.ID]int{}
		wg     sync.WaitGroup
	)
	for i := range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := s.ClaimNextPending(ctx, fmt.Sprintf("w%d", i))
			assert.NoError(t, err)
			if doc != nil {
				mu.Lock()
				counts[doc.Id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, counts, docs)
	for id, n := range counts {
		assert.Equal(t, 1, n, "document %d claimed more than once", id)
	}
}

func TestRequeueStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	old := addDoc(t, s, "old", "old")
	fresh := addDoc(t, s, "fresh", "fresh")

	s.now = func() time.Time { return base }
	_, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, err = s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)

	reset, err := s.RequeueStale(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []core.ID{old.Id}, reset)

	got, err := s.GetDocument(ctx, fresh.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageInProgress, got.Stage)
}

func TestSegmentsAndNearestNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")

	stored, err := s.PersistSegments(ctx, doc.Id, []*core.Segment{
		{Index: 0, Text: "x-axis", Context: "c", Vector: []float32{1, 0}},
		{Index: 1, Text: "diagonal", Context: "c", Vector: []float32{1, 1}},
		{Index: 2, Text: "y-axis", Context: "c", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	require.Len(t, stored, 3)

	got, err := s.NearestNeighbors(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x-axis", got[0].Segment.Text)
	assert.Equal(t, "diagonal", got[1].Segment.Text)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)

	require.NoError(t, s.UpdateSegments(ctx, &core.Segment{Id: stored[2].Id, Context: "new", Vector: []float32{1, 0}}))
	page, err := s.ListSegments(ctx, stored[1].Id, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "new", page[0].Context)

	require.NoError(t, s.DeleteDocument(ctx, doc.Id))
	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReprocessedDocumentKeepsOneSegmentSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "Visit", "Patient reports headache.")

	persist := func(texts ...string) {
		segments := make([]*core.Segment, len(texts))
		for i, text := range texts {
			segments[i] = &core.Segment{Index: i, Text: text, Vector: []float32{1, 0}}
		}
		_, err := s.PersistSegments(ctx, doc.Id, segments)
		require.NoError(t, err)
	}

	_, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	persist("first a", "first b")

	reaped, err := s.RequeueStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []core.ID{doc.Id}, reaped)

	_, err = s.ClaimNextPending(ctx, "w2")
	require.NoError(t, err)
	persist("second a", "second b")

	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	segments, err := s.SegmentsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "second a", segments[0].Text)

	// The reaped worker can no longer move the document.
	assert.ErrorIs(t, s.ReleaseClaim(ctx, doc.Id, "w1", core.StageCompleted), storage.ErrClaimLost)
	assert.ErrorIs(t, s.RenewClaim(ctx, doc.Id, "w1"), storage.ErrClaimLost)
	require.NoError(t, s.RenewClaim(ctx, doc.Id, "w2"))
	require.NoError(t, s.ReleaseClaim(ctx, doc.Id, "w2", core.StageCompleted))

	require.NoError(t, s.DeleteDocument(ctx, doc.Id))
	count, err = s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
