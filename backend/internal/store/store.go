package store

import (
	"context"

	"conversai/backend/internal/memory"
)

// Store is the persistence boundary of the memory core: category CRUD with
// append-only fact lists, one embedding row per category with a top-K
// similarity primitive, and the denormalized profile cache.
//
// Fact appends are plain read-modify-write with no optimistic concurrency
// check; per-user write serialization is the caller's job (the agent service
// funnels writes through a per-user mutex).
type Store interface {
	// EnsureGeneralCategory returns the user's general fallback category,
	// creating it if this is the user's first contact. Idempotent: exactly
	// one general category exists per user no matter how often it is called.
	EnsureGeneralCategory(ctx context.Context, userID string) (*memory.Category, error)

	// CreateCategory persists a new category
	CreateCategory(ctx context.Context, c *memory.Category) error

	// CategoryByID fetches one category with its full fact list.
	// Returns errors.ErrCategoryNotFound when absent.
	CategoryByID(ctx context.Context, id string) (*memory.Category, error)

	// CategoryByName fetches a user's category by exact display name.
	// Returns errors.ErrCategoryNotFound when absent.
	CategoryByName(ctx context.Context, userID, name string) (*memory.Category, error)

	// CategoriesByUser lists all of a user's categories
	CategoriesByUser(ctx context.Context, userID string) ([]memory.Category, error)

	// AppendFact appends one fact to a category, increments fact_count and
	// folds the given themes into the category's theme tags.
	AppendFact(ctx context.Context, categoryID string, fact memory.Fact, themes []string) error

	// UpsertEmbedding stores or replaces the single embedding row for a
	// category
	UpsertEmbedding(ctx context.Context, emb memory.CategoryEmbedding) error

	// EmbeddingByCategory fetches a category's embedding row.
	// Returns errors.ErrEmbeddingNotFound when absent.
	EmbeddingByCategory(ctx context.Context, categoryID string) (*memory.CategoryEmbedding, error)

	// EmbeddingsByUser lists all embedding rows for a user
	EmbeddingsByUser(ctx context.Context, userID string) ([]memory.CategoryEmbedding, error)

	// SimilarCategories is the vector-similarity top-K primitive: it scores
	// every stored embedding of the user against the query vector by cosine
	// similarity and returns the best k, highest first.
	SimilarCategories(ctx context.Context, userID string, query []float32, k int) ([]ScoredCategory, error)

	// Profile fetches the user's denormalized profile cache.
	// Returns errors.ErrProfileNotFound when the user has none yet.
	Profile(ctx context.Context, userID string) (*memory.UserProfile, error)

	// UpsertProfile stores or replaces the profile cache row
	UpsertProfile(ctx context.Context, p *memory.UserProfile) error

	// Close releases the underlying connection
	Close() error
}

// ScoredCategory pairs a category embedding with its similarity score
type ScoredCategory struct {
	CategoryID string
	Score      float64
	Content    string
}

// topKByScore sorts scored categories by descending score in place and
// truncates to k. Insertion sort is fine for the per-user category counts
// this system sees.
func topKByScore(items []ScoredCategory, k int) []ScoredCategory {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].Score < key.Score {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
	if k > 0 && k < len(items) {
		items = items[:k]
	}
	return items
}
