package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"conversai/backend/internal/memory"
	"conversai/backend/internal/store"
	apperrors "conversai/backend/pkg/errors"
	"conversai/backend/pkg/logger"
)

// Indexer lazily maintains one embedding row per non-empty category. An
// embedding younger than the freshness window is trusted as-is, even when
// facts changed underneath it: the window bounds embedding cost on the hot
// path of the first query after new facts arrive, at the price of bounded
// staleness.
type Indexer struct {
	store     store.Store
	embedder  Embedder
	freshness time.Duration
	logger    *zap.Logger

	// now is swappable for freshness tests
	now func() time.Time
}

// NewIndexer creates a category embedding indexer
func NewIndexer(st store.Store, embedder Embedder, freshness time.Duration) *Indexer {
	return &Indexer{
		store:     st,
		embedder:  embedder,
		freshness: freshness,
		logger:    logger.Get(),
		now:       time.Now,
	}
}

// EnsureFresh walks the user's categories and regenerates any missing or
// stale embedding. Provider failures are isolated per category: the refresh
// skips that category and continues, so retrieval degrades to whatever
// embeddings exist rather than failing the turn.
func (ix *Indexer) EnsureFresh(ctx context.Context, userID string) error {
	categories, err := ix.store.CategoriesByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list categories for refresh: %w", err)
	}

	for i := range categories {
		c := &categories[i]
		if c.FactCount == 0 {
			continue
		}
		if !ix.needsRefresh(ctx, c.ID) {
			continue
		}
		if err := ix.refreshCategory(ctx, c); err != nil {
			ix.logger.Warn("Skipping category embedding refresh",
				zap.String("category_id", c.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RefreshAll regenerates embeddings for every non-empty category of the
// user, ignoring the freshness window. This is the out-of-band maintenance
// path; concurrency bounds the number of in-flight embedding calls.
func (ix *Indexer) RefreshAll(ctx context.Context, userID string, concurrency int) error {
	categories, err := ix.store.CategoriesByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list categories for refresh: %w", err)
	}

	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range categories {
		c := &categories[i]
		if c.FactCount == 0 {
			continue
		}
		g.Go(func() error {
			if err := ix.refreshCategory(gctx, c); err != nil {
				// Per-category failures are logged, not fatal: the rest
				// of the batch still refreshes.
				ix.logger.Warn("Embedding refresh failed",
					zap.String("category_id", c.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// needsRefresh reports whether a category's embedding is missing or has
// aged out of the freshness window
func (ix *Indexer) needsRefresh(ctx context.Context, categoryID string) bool {
	existing, err := ix.store.EmbeddingByCategory(ctx, categoryID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrEmbeddingNotFound) {
			ix.logger.Warn("Failed to read embedding row, regenerating",
				zap.String("category_id", categoryID),
				zap.Error(err),
			)
		}
		return true
	}
	return !existing.Fresh(ix.now(), ix.freshness)
}

// refreshCategory synthesizes the category's content, embeds it, and
// upserts the embedding row keyed by category id
func (ix *Indexer) refreshCategory(ctx context.Context, c *memory.Category) error {
	content := BuildContent(c)

	vector, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return apperrors.NewEmbeddingError("embed category content", err)
	}
	if len(vector) == 0 {
		return apperrors.ErrEmbedderUnavailable
	}

	emb := memory.CategoryEmbedding{
		CategoryID: c.ID,
		UserID:     c.UserID,
		Vector:     vector,
		Content:    content,
		CreatedAt:  ix.now(),
	}
	if err := ix.store.UpsertEmbedding(ctx, emb); err != nil {
		return apperrors.NewStoreError("upsert category embedding", err)
	}

	ix.logger.Debug("Category embedding refreshed",
		zap.String("category_id", c.ID),
		zap.Int("fact_count", c.FactCount),
		zap.Int("content_len", len(content)),
	)
	return nil
}

// BuildContent deterministically synthesizes the text that represents a
// category for embedding: metadata header plus one formatted line per fact
// (the pet family gets its special phrasing via the payload, e.g.
// "Pet: Max is a golden retriever").
func BuildContent(c *memory.Category) string {
	var b strings.Builder
	b.WriteString("Category: ")
	b.WriteString(c.Name)
	b.WriteString("\n")

	if len(c.Themes) > 0 {
		b.WriteString("Themes: ")
		b.WriteString(strings.Join(c.Themes, ", "))
		b.WriteString("\n")
	}

	for _, f := range c.Facts {
		b.WriteString(f.Line())
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
