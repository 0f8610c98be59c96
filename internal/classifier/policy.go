package classifier

import "sort"

// DefaultThreshold is the confidence at which an out-of-scope category refuses a turn.
const DefaultThreshold = 0.60

// Decision is the admit/refuse outcome for one classification.
// When Refused is false, Category is always InDomainCoaching.
type Decision struct {
	Refused    bool     `json:"refused"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// Decide refuses when any out-of-scope category reaches threshold. Candidates
// are examined in descending confidence, so the strongest violation is the one
// reported; equal scores fall back to canonical category order.
func Decide(result Result, threshold float64) Decision {
	candidates := make([]Category, 0, len(categories)-1)
	for _, c := range categories {
		if !c.Admits() {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := result.Scores[candidates[i]], result.Scores[candidates[j]]
		if si != sj {
			return si > sj
		}
		return categoryRank(candidates[i]) < categoryRank(candidates[j])
	})

	for _, c := range candidates {
		if s := result.Scores[c]; s >= threshold {
			return Decision{Refused: true, Category: c, Confidence: s}
		}
	}

	confidence := 1.0
	if s, ok := result.Scores[InDomainCoaching]; ok && len(result.Scores) > 0 {
		confidence = s
	}
	return Decision{Refused: false, Category: InDomainCoaching, Confidence: confidence}
}
