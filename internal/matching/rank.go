package matching

import "github.com/reelmatch/match-cli/internal/model"

// Rank sorts comparison results best-first: final score descending, ties by
// raw score descending (surfacing the item that would win absent the veto,
// useful for reviewer override), remaining ties by candidate ID for a stable
// total order. Sorts in place and returns the slice.
func Rank(results []model.ComparisonResult) []model.ComparisonResult {
	// Insertion sort is fine for typical batch sizes (<1000).
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && ranksBefore(results[j], results[j-1]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	return results
}

func ranksBefore(a, b model.ComparisonResult) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.RawScore != b.RawScore {
		return a.RawScore > b.RawScore
	}
	return a.CandidateID < b.CandidateID
}
