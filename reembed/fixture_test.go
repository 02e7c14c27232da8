package reembed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/storage/badger"
	"github.com/stretchr/testify/require"
)

func testPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

// seedSegments stores n segments with a placeholder vector under one document.
func seedSegments(t *testing.T, n int) *badger.Store {
	t.Helper()
	store, err := badger.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	doc, _, err := store.AddDocument(ctx, &core.Document{Title: "Discharge summary", Body: "body"})
	require.NoError(t, err)
	if n == 0 {
		return store
	}

	segments := make([]*core.Segment, n)
	for i := range segments {
		segments[i] = &core.Segment{
			Index:   i,
			Text:    fmt.Sprintf("segment %d", i),
			Context: "context",
			Vector:  []float32{1, 0},
		}
	}
	_, err = store.PersistSegments(ctx, doc.Id, segments)
	require.NoError(t, err)
	return store
}

func magnitude(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return sum
}
