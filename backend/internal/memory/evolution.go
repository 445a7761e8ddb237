package memory

// ============================================================================
// Category Evolution
// ============================================================================

// CategoryState tracks where a category sits in its growth lifecycle
type CategoryState string

const (
	StateEmpty          CategoryState = "empty"
	StateGrowing        CategoryState = "growing"
	StateSplitCandidate CategoryState = "split_candidate"
)

// Evolution is the result of evaluating one category against the size
// thresholds. Detection only: no split or merge is ever executed here,
// and the category itself is never mutated.
type Evolution struct {
	CategoryID     string        `json:"category_id"`
	State          CategoryState `json:"state"`
	FactCount      int           `json:"fact_count"`
	SplitCandidate bool          `json:"split_candidate"`
	MergeCandidate bool          `json:"merge_candidate"`
}

// Evolver flags categories as split or merge candidates based on size
type Evolver struct {
	splitThreshold int
	mergeThreshold int
}

// NewEvolver creates an evolver with the given thresholds
func NewEvolver(splitThreshold, mergeThreshold int) *Evolver {
	return &Evolver{
		splitThreshold: splitThreshold,
		mergeThreshold: mergeThreshold,
	}
}

// Evaluate classifies a single category. The general sink is exempt from
// merge flagging: it must always exist, however small.
func (ev *Evolver) Evaluate(c *Category) Evolution {
	result := Evolution{
		CategoryID: c.ID,
		FactCount:  c.FactCount,
		State:      StateGrowing,
	}

	switch {
	case c.FactCount == 0:
		result.State = StateEmpty
	case c.FactCount >= ev.splitThreshold:
		result.State = StateSplitCandidate
		result.SplitCandidate = true
	}

	if c.Kind != CategoryGeneral && c.FactCount > 0 && c.FactCount < ev.mergeThreshold {
		result.MergeCandidate = true
	}

	return result
}

// EvaluateAll classifies every category for a user
func (ev *Evolver) EvaluateAll(categories []Category) []Evolution {
	results := make([]Evolution, 0, len(categories))
	for i := range categories {
		results = append(results, ev.Evaluate(&categories[i]))
	}
	return results
}
