package search

import (
	"sort"

	"github.com/Aman-CERP/hybridrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// RRFFusion merges ranked lists with Reciprocal Rank Fusion.
//
// A chunk at 0-based rank r of a list contributes 1/(k + r + 1); its fused
// score is the sum over the lists it appears in.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with smoothing constant k.
// If k <= 0, defaults to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse returns every chunk of lists ordered by fused score descending.
// Equal scores keep first-seen order, scanning the lists in argument order.
// Scores in the input lists are ignored; only ranks matter.
func (f *RRFFusion) Fuse(lists ...[]store.Scored) []store.Scored {
	capacity := 0
	for _, l := range lists {
		capacity += len(l)
	}

	index := make(map[int]int, capacity)
	fused := make([]store.Scored, 0, capacity)
	for _, list := range lists {
		for rank, s := range list {
			contribution := 1.0 / float64(f.K+rank+1)
			if i, ok := index[s.ChunkID]; ok {
				fused[i].Score += contribution
				continue
			}
			index[s.ChunkID] = len(fused)
			fused = append(fused, store.Scored{ChunkID: s.ChunkID, Score: contribution})
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}
