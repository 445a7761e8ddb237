package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"conversai/backend/internal/memory"
	apperrors "conversai/backend/pkg/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureGeneralCategory_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureGeneralCategory(ctx, "u1")
	if err != nil {
		t.Fatalf("EnsureGeneralCategory failed: %v", err)
	}
	if first.Name != memory.GeneralCategoryName {
		t.Errorf("Expected name '%s', got '%s'", memory.GeneralCategoryName, first.Name)
	}
	if first.Kind != memory.CategoryGeneral {
		t.Errorf("Expected general kind, got %q", first.Kind)
	}

	second, err := s.EnsureGeneralCategory(ctx, "u1")
	if err != nil {
		t.Fatalf("Second EnsureGeneralCategory failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected the same category, got %s and %s", first.ID, second.ID)
	}

	categories, err := s.CategoriesByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("CategoriesByUser failed: %v", err)
	}
	if len(categories) != 1 {
		t.Errorf("Expected exactly 1 category, got %d", len(categories))
	}
}

func TestEnsureGeneralCategory_PerUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.EnsureGeneralCategory(ctx, "u1")
	if err != nil {
		t.Fatalf("EnsureGeneralCategory(u1) failed: %v", err)
	}
	b, err := s.EnsureGeneralCategory(ctx, "u2")
	if err != nil {
		t.Fatalf("EnsureGeneralCategory(u2) failed: %v", err)
	}
	if a.ID == b.ID {
		t.Error("Users must not share a general category")
	}
}

func TestAppendFact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	c := &memory.Category{
		ID:        memory.NewID(),
		UserID:    "u1",
		Name:      "Living Situation & Environment",
		Kind:      memory.CategoryPrimary,
		Facts:     []memory.Fact{},
		Themes:    []string{"living"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateCategory(ctx, c); err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}

	fact := memory.Fact{
		ID:         memory.NewID(),
		Type:       memory.EntityPet,
		Payload:    memory.PetPayload{Name: "Max", Species: "cat"},
		Confidence: 0.9,
		Source:     "my cat's name is Max",
		CreatedAt:  now,
	}
	if err := s.AppendFact(ctx, c.ID, fact, []string{"pets", "pet"}); err != nil {
		t.Fatalf("AppendFact failed: %v", err)
	}

	got, err := s.CategoryByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("CategoryByID failed: %v", err)
	}
	if got.FactCount != 1 {
		t.Errorf("Expected fact_count 1, got %d", got.FactCount)
	}
	if len(got.Facts) != got.FactCount {
		t.Errorf("fact_count %d does not match fact list length %d", got.FactCount, len(got.Facts))
	}

	payload, ok := got.Facts[0].Payload.(memory.PetPayload)
	if !ok {
		t.Fatalf("Expected PetPayload, got %T", got.Facts[0].Payload)
	}
	if payload.Name != "Max" {
		t.Errorf("Expected pet name 'Max', got '%s'", payload.Name)
	}

	if !got.HasTheme("pets") || !got.HasTheme("pet") || !got.HasTheme("living") {
		t.Errorf("Expected merged themes, got %v", got.Themes)
	}
}

func TestAppendFact_PreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.EnsureGeneralCategory(ctx, "u1")
	if err != nil {
		t.Fatalf("EnsureGeneralCategory failed: %v", err)
	}

	names := []string{"Holly", "Benny", "Max"}
	for _, name := range names {
		fact := memory.Fact{
			ID:        memory.NewID(),
			Type:      memory.EntityPet,
			Payload:   memory.PetPayload{Name: name, Species: "dog"},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.AppendFact(ctx, c.ID, fact, nil); err != nil {
			t.Fatalf("AppendFact(%s) failed: %v", name, err)
		}
	}

	got, err := s.CategoryByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("CategoryByID failed: %v", err)
	}
	if got.FactCount != 3 {
		t.Fatalf("Expected 3 facts, got %d", got.FactCount)
	}
	for i, name := range names {
		payload := got.Facts[i].Payload.(memory.PetPayload)
		if payload.Name != name {
			t.Errorf("Fact %d: expected '%s', got '%s'", i, name, payload.Name)
		}
	}
}

func TestAppendFact_MissingCategory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.AppendFact(ctx, "nope", memory.Fact{ID: "f1", Type: memory.EntityName, Payload: memory.NamePayload{Name: "X"}}, nil)
	if err != apperrors.ErrCategoryNotFound {
		t.Errorf("Expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureGeneralCategory(ctx, "u1"); err != nil {
		t.Fatalf("EnsureGeneralCategory failed: %v", err)
	}

	got, err := s.CategoryByName(ctx, "u1", memory.GeneralCategoryName)
	if err != nil {
		t.Fatalf("CategoryByName failed: %v", err)
	}
	if got.Kind != memory.CategoryGeneral {
		t.Errorf("Expected general kind, got %q", got.Kind)
	}

	if _, err := s.CategoryByName(ctx, "u1", "No Such Bucket"); err != apperrors.ErrCategoryNotFound {
		t.Errorf("Expected ErrCategoryNotFound, got %v", err)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	emb := memory.CategoryEmbedding{
		CategoryID: "c1",
		UserID:     "u1",
		Vector:     []float32{0.1, 0.2, 0.3},
		Content:    "Category: Living Situation & Environment\nPet: Max is a cat",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.UpsertEmbedding(ctx, emb); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	got, err := s.EmbeddingByCategory(ctx, "c1")
	if err != nil {
		t.Fatalf("EmbeddingByCategory failed: %v", err)
	}
	if len(got.Vector) != 3 {
		t.Errorf("Expected 3-dim vector, got %d", len(got.Vector))
	}
	if got.Content != emb.Content {
		t.Errorf("Content changed: got %q", got.Content)
	}

	// Replacing keeps a single row per category
	emb.Vector = []float32{0.9, 0.9, 0.9}
	if err := s.UpsertEmbedding(ctx, emb); err != nil {
		t.Fatalf("Second UpsertEmbedding failed: %v", err)
	}
	all, err := s.EmbeddingsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("EmbeddingsByUser failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 embedding row, got %d", len(all))
	}
	if all[0].Vector[0] != 0.9 {
		t.Errorf("Expected replaced vector, got %v", all[0].Vector)
	}
}

func TestEmbeddingByCategory_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.EmbeddingByCategory(context.Background(), "missing"); err != apperrors.ErrEmbeddingNotFound {
		t.Errorf("Expected ErrEmbeddingNotFound, got %v", err)
	}
}

func TestSimilarCategories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"pets":   {1, 0, 0},
		"work":   {0, 1, 0},
		"health": {0.7, 0.7, 0},
	}
	for id, v := range vectors {
		err := s.UpsertEmbedding(ctx, memory.CategoryEmbedding{
			CategoryID: id, UserID: "u1", Vector: v, Content: id, CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("UpsertEmbedding(%s) failed: %v", id, err)
		}
	}

	scored, err := s.SimilarCategories(ctx, "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarCategories failed: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(scored))
	}
	if scored[0].CategoryID != "pets" {
		t.Errorf("Expected 'pets' first, got '%s'", scored[0].CategoryID)
	}
	if scored[0].Score < scored[1].Score {
		t.Error("Results are not sorted by score")
	}

	// Other users' embeddings stay invisible
	scored, err = s.SimilarCategories(ctx, "u2", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarCategories(u2) failed: %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("Expected no results for another user, got %d", len(scored))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Profile(ctx, "u1"); err != apperrors.ErrProfileNotFound {
		t.Fatalf("Expected ErrProfileNotFound, got %v", err)
	}

	p := &memory.UserProfile{
		UserID:      "u1",
		Name:        "Clemens",
		Preferences: map[string]string{"hiking": "loves"},
		Facts:       map[string]string{"name": "Name: the user's name is Clemens"},
	}
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	got, err := s.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if got.Name != "Clemens" {
		t.Errorf("Expected name 'Clemens', got '%s'", got.Name)
	}
	if got.Preferences["hiking"] != "loves" {
		t.Errorf("Expected preference carried over, got %v", got.Preferences)
	}

	// Last writer wins
	p.Name = "Clem"
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("Second UpsertProfile failed: %v", err)
	}
	got, err = s.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("Profile after update failed: %v", err)
	}
	if got.Name != "Clem" {
		t.Errorf("Expected updated name 'Clem', got '%s'", got.Name)
	}
}

func TestTopKByScore(t *testing.T) {
	scored := []ScoredCategory{
		{CategoryID: "a", Score: 0.2},
		{CategoryID: "b", Score: 0.9},
		{CategoryID: "c", Score: 0.5},
		{CategoryID: "d", Score: 0.7},
	}

	top := topKByScore(scored, 2)
	if len(top) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(top))
	}
	if top[0].CategoryID != "b" || top[1].CategoryID != "d" {
		t.Errorf("Expected [b d], got [%s %s]", top[0].CategoryID, top[1].CategoryID)
	}

	all := topKByScore(scored, 10)
	if len(all) != 4 {
		t.Errorf("Expected all 4 results when k exceeds input, got %d", len(all))
	}
}
