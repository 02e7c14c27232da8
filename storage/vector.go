package storage

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/clinrag/core"
)

// CosineDistance returns 1 - cos(a, b). Vectors of different length or zero
// magnitude are maximally distant.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// CompareCandidates orders candidates by ascending distance, then ascending
// segment ID.
func CompareCandidates(a, b core.Candidate) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.Segment.Id, b.Segment.Id)
}

// TopCandidates sorts candidates with CompareCandidates and truncates to limit.
func TopCandidates(candidates []core.Candidate, limit int) []core.Candidate {
	slices.SortFunc(candidates, CompareCandidates)
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
