package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := OpenMemory(WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func addDoc(t *testing.T, s *Store, title, body string) *core.Document {
	t.Helper()
	doc, created, err := s.AddDocument(context.Background(), &core.Document{Title: title, Body: body})
	require.NoError(t, err)
	require.True(t, created)
	return doc
}

func TestAddAndGetDocument(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	in := &core.Document{Title: "Visit", Body: "Patient reports headache.", Stage: core.StageCompleted}
	doc, created, err := s.AddDocument(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, doc.Id)
	assert.Equal(t, in.Id, doc.Id, "caller's document receives the ID")
	assert.Equal(t, core.StageNotStarted, doc.Stage, "new documents always start not started")
	assert.Equal(t, core.Fingerprint("Visit", "Patient reports headache."), doc.Fingerprint)
	assert.Equal(t, clock.Now(), doc.InsertedAt)

	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Body, got.Body)
	assert.True(t, doc.InsertedAt.Equal(got.InsertedAt))

	_, err = s.GetDocument(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddDocumentDeduplicatesByFingerprint(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := addDoc(t, s, "Visit", "same body")
	dup, created, err := s.AddDocument(ctx, &core.Document{Title: "Visit", Body: "same body"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Id, dup.Id)

	other := addDoc(t, s, "Visit", "different body")
	assert.NotEqual(t, first.Id, other.Id)
}

func TestAddDocumentRejectsEmptyContent(t *testing.T) {
	s, _ := newTestStore(t)

	_, _, err := s.AddDocument(context.Background(), &core.Document{Title: " ", Body: ""})
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, _, err = s.AddDocument(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestListDocumentsByStage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := addDoc(t, s, "a", "a")
	b := addDoc(t, s, "b", "b")
	c := addDoc(t, s, "c", "c")
	require.NoError(t, s.SetStage(ctx, b.Id, core.StageFailed))

	all, err := s.ListDocuments(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []core.ID{a.Id, b.Id, c.Id}, []core.ID{all[0].Id, all[1].Id, all[2].Id})

	pending, err := s.ListDocuments(ctx, core.StageNotStarted)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.Id, pending[0].Id)
	assert.Equal(t, c.Id, pending[1].Id)

	failed, err := s.ListDocuments(ctx, core.StageFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.Id, failed[0].Id)

	_, err = s.ListDocuments(ctx, core.Stage("bogus"))
	assert.ErrorIs(t, err, core.ErrInvalidStage)
}

func TestClaimNextPendingOrderAndEmpty(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	none, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, none)

	a := addDoc(t, s, "a", "a")
	b := addDoc(t, s, "b", "b")

	got, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.Id, got.Id)
	assert.Equal(t, core.StageInProgress, got.Stage)
	assert.Equal(t, "w1", got.ClaimedBy)
	assert.Equal(t, clock.Now(), got.ClaimedAt)

	got, err = s.ClaimNextPending(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.Id, got.Id)

	got, err = s.ClaimNextPending(ctx, "w3")
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := s.GetDocument(ctx, a.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageInProgress, stored.Stage)
}

func TestClaimExclusivityUnderContention(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const docs, claimers = 10, 40
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
			if doc == nil {
				return
			}
			mu.Lock()
			counts[doc.Id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, counts, docs, "every document is claimed")
	for id, n := range counts {
		assert.Equal(t, 1, n, "document %d claimed more than once", id)
	}
	pending, err := s.ListDocuments(ctx, core.StageNotStarted)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSetStageValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")

	assert.ErrorIs(t, s.SetStage(ctx, doc.Id, core.Stage("done")), core.ErrInvalidStage)
	assert.ErrorIs(t, s.SetStage(ctx, 404, core.StageCompleted), storage.ErrNotFound)
	require.NoError(t, s.SetStage(ctx, doc.Id, core.StageCompleted))

	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageCompleted, got.Stage)
}

func TestRequeueOnlyFromFailed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")

	assert.ErrorIs(t, s.Requeue(ctx, doc.Id), storage.ErrInvalidTransition)
	assert.ErrorIs(t, s.Requeue(ctx, 404), storage.ErrNotFound)

	claimed, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, s.SetStage(ctx, doc.Id, core.StageFailed))

	require.NoError(t, s.Requeue(ctx, doc.Id))
	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageNotStarted, got.Stage)
	assert.Empty(t, got.ClaimedBy)

	again, err := s.ClaimNextPending(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, doc.Id, again.Id)
}

func TestRequeueStale(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	old := addDoc(t, s, "old", "old")
	fresh := addDoc(t, s, "fresh", "fresh")
	failed := addDoc(t, s, "failed", "failed")

	_, err := s.ClaimNextPending(ctx, "w1") // old
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = s.ClaimNextPending(ctx, "w1") // fresh
	require.NoError(t, err)
	_, err = s.ClaimNextPending(ctx, "w1") // failed
	require.NoError(t, err)
	require.NoError(t, s.SetStage(ctx, failed.Id, core.StageFailed))

	reset, err := s.RequeueStale(ctx, clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []core.ID{old.Id}, reset)

	got, err := s.GetDocument(ctx, old.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageNotStarted, got.Stage)

	got, err = s.GetDocument(ctx, fresh.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageInProgress, got.Stage)

	got, err = s.GetDocument(ctx, failed.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StageFailed, got.Stage, "failed documents are never requeued automatically")
}

func segmentsFor(texts ...string) []*core.Segment {
	out := make([]*core.Segment, len(texts))
	for i, text := range texts {
		out[i] = &core.Segment{Index: i, Text: text, Context: "ctx", Vector: []float32{1, float32(i)}}
	}
	return out
}

func TestPersistAndReadSegments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")

	stored, err := s.PersistSegments(ctx, doc.Id, segmentsFor("one", "two", "three"))
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, seg := range stored {
		assert.NotZero(t, seg.Id)
		assert.Equal(t, doc.Id, seg.DocumentId)
	}

	got, err := s.SegmentsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "three", got[2].Text)
	assert.Equal(t, []float32{1, 2}, got[2].Vector)

	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPersistSegmentsRequiresDocumentAndVectors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.PersistSegments(ctx, 404, segmentsFor("x"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	doc := addDoc(t, s, "a", "a")
	_, err = s.PersistSegments(ctx, doc.Id, []*core.Segment{{Text: "x"}})
	assert.ErrorIs(t, err, core.ErrEmptyVector)

	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdateSegments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")
	stored, err := s.PersistSegments(ctx, doc.Id, segmentsFor("one"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateSegments(ctx, &core.Segment{Id: stored[0].Id, Context: "new", Vector: []float32{0, 1}}))
	got, err := s.SegmentsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "new", got[0].Context)
	assert.Equal(t, "one", got[0].Text, "text is immutable")
	assert.Equal(t, []float32{0, 1}, got[0].Vector)

	err = s.UpdateSegments(ctx, &core.Segment{Id: 999, Vector: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSegmentsPages(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")
	_, err := s.PersistSegments(ctx, doc.Id, segmentsFor("1", "2", "3", "4", "5"))
	require.NoError(t, err)

	var seen []string
	var after core.ID
	for {
		page, err := s.ListSegments(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 2)
		for _, seg := range page {
			seen = append(seen, seg.Text)
			after = seg.Id
		}
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, seen)

	_, err = s.ListSegments(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestDeleteDocumentCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")
	keep := addDoc(t, s, "b", "b")
	_, err := s.PersistSegments(ctx, doc.Id, segmentsFor("1", "2"))
	require.NoError(t, err)
	_, err = s.PersistSegments(ctx, keep.Id, segmentsFor("3"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, doc.Id))
	_, err = s.GetDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	segs, err := s.SegmentsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Empty(t, segs)
	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err := s.ListDocuments(ctx, core.StageNotStarted)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, keep.Id, pending[0].Id)

	// The fingerprint is free again.
	_, created, err := s.AddDocument(ctx, &core.Document{Title: "a", Body: "a"})
	require.NoError(t, err)
	assert.True(t, created)

	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.Id), storage.ErrNotFound)
}

func TestNearestNeighbors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "a", "a")
	_, err := s.PersistSegments(ctx, doc.Id, []*core.Segment{
		{Index: 0, Text: "x-axis", Vector: []float32{1, 0}},
		{Index: 1, Text: "diagonal", Vector: []float32{1, 1}},
		{Index: 2, Text: "y-axis", Vector: []float32{0, 1}},
		{Index: 3, Text: "x-axis again", Vector: []float32{2, 0}},
	})
	require.NoError(t, err)

	got, err := s.NearestNeighbors(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "x-axis", got[0].Segment.Text, "ties break by segment ID")
	assert.Equal(t, "x-axis again", got[1].Segment.Text)
	assert.Equal(t, "diagonal", got[2].Segment.Text)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)

	none, err := s.NearestNeighbors(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.NearestNeighbors(ctx, nil, 3)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestReprocessAfterReapReplacesSegments(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "Visit", "Patient reports headache.")

	_, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)
	_, err = s.PersistSegments(ctx, doc.Id, segmentsFor("first a", "first b"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	reaped, err := s.RequeueStale(ctx, clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []core.ID{doc.Id}, reaped)

	claimed, err := s.ClaimNextPending(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	_, err = s.PersistSegments(ctx, doc.Id, segmentsFor("second a", "second b"))
	require.NoError(t, err)

	count, err := s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	segs, err := s.SegmentsForDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "second a", segs[0].Text)
	assert.Equal(t, "second b", segs[1].Text)

	neighbours, err := s.NearestNeighbors(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, neighbours, 2)

	require.NoError(t, s.DeleteDocument(ctx, doc.Id))
	count, err = s.CountSegments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClaimFencing(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	doc := addDoc(t, s, "Visit", "Patient reports headache.")

	_, err := s.ClaimNextPending(ctx, "w1")
	require.NoError(t, err)

	t.Run("renew moves the claim time forward", func(t *testing.T) {
		clock.Advance(20 * time.Minute)
		require.NoError(t, s.RenewClaim(ctx, doc.Id, "w1"))

		clock.Advance(20 * time.Minute)
		reaped, err := s.RequeueStale(ctx, clock.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, reaped, "a renewed claim is not stale")
	})

	t.Run("another worker cannot renew or release", func(t *testing.T) {
		assert.ErrorIs(t, s.RenewClaim(ctx, doc.Id, "w2"), storage.ErrClaimLost)
		assert.ErrorIs(t, s.ReleaseClaim(ctx, doc.Id, "w2", core.StageCompleted), storage.ErrClaimLost)
	})

	t.Run("a reaped claim is lost", func(t *testing.T) {
		clock.Advance(time.Hour)
		reaped, err := s.RequeueStale(ctx, clock.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []core.ID{doc.Id}, reaped)

		claimed, err := s.ClaimNextPending(ctx, "w2")
		require.NoError(t, err)
		require.NotNil(t, claimed)

		assert.ErrorIs(t, s.RenewClaim(ctx, doc.Id, "w1"), storage.ErrClaimLost)
		assert.ErrorIs(t, s.ReleaseClaim(ctx, doc.Id, "w1", core.StageCompleted), storage.ErrClaimLost)

		got, err := s.GetDocument(ctx, doc.Id)
		require.NoError(t, err)
		assert.Equal(t, core.StageInProgress, got.Stage)
		assert.Equal(t, "w2", got.ClaimedBy)
	})

	t.Run("the holder releases", func(t *testing.T) {
		require.NoError(t, s.ReleaseClaim(ctx, doc.Id, "w2", core.StageCompleted))
		got, err := s.GetDocument(ctx, doc.Id)
		require.NoError(t, err)
		assert.Equal(t, core.StageCompleted, got.Stage)
		assert.Empty(t, got.ClaimedBy)
		assert.True(t, got.ClaimedAt.IsZero())

		assert.ErrorIs(t, s.ReleaseClaim(ctx, doc.Id, "w2", core.StageFailed), storage.ErrClaimLost)
		assert.ErrorIs(t, s.ReleaseClaim(ctx, 404, "w2", core.StageFailed), storage.ErrNotFound)
		assert.ErrorIs(t, s.ReleaseClaim(ctx, doc.Id, "w2", core.Stage("done")), core.ErrInvalidStage)
	})
}
