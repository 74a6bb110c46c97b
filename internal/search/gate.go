package search

// Gate reports the best score of ranked results and whether they are low
// confidence: empty, or with a best score below threshold.
func Gate(results []ScoredChunk, threshold float64) (best float64, lowConfidence bool) {
	if len(results) == 0 {
		return 0, true
	}
	best = results[0].Score
	return best, best < threshold
}
