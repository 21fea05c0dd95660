package matching

// Method names which pipeline stage produced a candidate.
type Method string

const (
	MethodEAN  Method = "ean"
	MethodPNK  Method = "pnk"
	MethodName Method = "name"
)

// Candidate is one possible local product for a supplier product.
type Candidate struct {
	ProductID int64
	Score     float64
	Method    Method

	// LengthDiff is |len(normalized supplier name) − len(normalized
	// local name)|, the first tie-break after score.
	LengthDiff int
}

// Better reports whether c should win over other. Ordering is
// deterministic: higher score, then smaller length difference, then
// smaller product id.
func (c Candidate) Better(other Candidate) bool {
	if c.Score != other.Score {
		return c.Score > other.Score
	}
	if c.LengthDiff != other.LengthDiff {
		return c.LengthDiff < other.LengthDiff
	}
	return c.ProductID < other.ProductID
}

// Best picks the winning candidate from a set, or false when none
// clears the threshold.
func Best(candidates []Candidate, minSimilarity float64) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.Score < minSimilarity {
			continue
		}
		if !found || c.Better(best) {
			best = c
			found = true
		}
	}
	return best, found
}
