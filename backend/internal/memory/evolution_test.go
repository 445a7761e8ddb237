package memory

import "testing"

func TestEvolver_SplitCandidate(t *testing.T) {
	ev := NewEvolver(20, 3)

	c := &Category{ID: "c1", Kind: CategoryPrimary, FactCount: 20}
	result := ev.Evaluate(c)

	if !result.SplitCandidate {
		t.Error("Expected split candidate at threshold")
	}
	if result.State != StateSplitCandidate {
		t.Errorf("Expected state %q, got %q", StateSplitCandidate, result.State)
	}
	if result.MergeCandidate {
		t.Error("A split candidate must not also be a merge candidate")
	}
}

func TestEvolver_BelowSplitThreshold(t *testing.T) {
	ev := NewEvolver(20, 3)

	c := &Category{ID: "c1", Kind: CategoryPrimary, FactCount: 19}
	result := ev.Evaluate(c)

	if result.SplitCandidate {
		t.Error("19 facts must not flag a split")
	}
	if result.State != StateGrowing {
		t.Errorf("Expected state %q, got %q", StateGrowing, result.State)
	}
}

func TestEvolver_MergeCandidate(t *testing.T) {
	ev := NewEvolver(20, 3)

	c := &Category{ID: "c1", Kind: CategoryPrimary, FactCount: 2}
	result := ev.Evaluate(c)

	if !result.MergeCandidate {
		t.Error("Expected merge candidate below threshold")
	}

	c.FactCount = 3
	if ev.Evaluate(c).MergeCandidate {
		t.Error("3 facts must not flag a merge")
	}
}

func TestEvolver_GeneralExemptFromMerge(t *testing.T) {
	ev := NewEvolver(20, 3)

	c := &Category{ID: "g", Kind: CategoryGeneral, FactCount: 1}
	if ev.Evaluate(c).MergeCandidate {
		t.Error("The general category must never be a merge candidate")
	}
}

func TestEvolver_EmptyCategory(t *testing.T) {
	ev := NewEvolver(20, 3)

	c := &Category{ID: "c1", Kind: CategoryPrimary, FactCount: 0}
	result := ev.Evaluate(c)

	if result.State != StateEmpty {
		t.Errorf("Expected state %q, got %q", StateEmpty, result.State)
	}
	if result.MergeCandidate {
		t.Error("An empty category is not a merge candidate")
	}
}

func TestEvolver_EvaluateAll(t *testing.T) {
	ev := NewEvolver(20, 3)

	categories := []Category{
		{ID: "a", Kind: CategoryPrimary, FactCount: 25},
		{ID: "b", Kind: CategoryPrimary, FactCount: 1},
		{ID: "g", Kind: CategoryGeneral, FactCount: 1},
	}

	results := ev.EvaluateAll(categories)
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if !results[0].SplitCandidate {
		t.Error("Category 'a' should be a split candidate")
	}
	if !results[1].MergeCandidate {
		t.Error("Category 'b' should be a merge candidate")
	}
	if results[2].MergeCandidate {
		t.Error("Category 'g' should be exempt")
	}
}
