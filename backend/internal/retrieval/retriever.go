package retrieval

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"conversai/backend/internal/embedding"
	"conversai/backend/internal/memory"
	"conversai/backend/internal/store"
	apperrors "conversai/backend/pkg/errors"
	"conversai/backend/pkg/logger"
)

// Stage names attached to retrieval results
const (
	StageIdentity  = "identity"
	StageKeyword   = "keyword"
	StageEmbedding = "embedding"
	StageFallback  = "fallback"
)

// Retriever runs the staged hybrid lookup: identity profile short-circuit,
// then keyword short-circuit, then embedding similarity, then the general
// category fallback. The first stage that produces results wins; later,
// more approximate stages never run. Every internal failure degrades to the
// next stage rather than erroring the turn.
type Retriever struct {
	store     store.Store
	embedder  embedding.Embedder
	threshold float64
	logger    *zap.Logger
}

// NewRetriever creates a hybrid retriever. threshold is the minimum cosine
// similarity for the embedding stage; it is deliberately low (the default
// is 0.4) because the short-circuit stages already guarantee precision for
// the fact types that matter most, so the embedding stage trades precision
// for recall.
func NewRetriever(st store.Store, embedder embedding.Embedder, threshold float64) *Retriever {
	return &Retriever{
		store:     st,
		embedder:  embedder,
		threshold: threshold,
		logger:    logger.Get(),
	}
}

// identityPhrasings are the query shapes answered straight from the profile
// cache. Measured cosine similarity between "my name is X" and a later
// question about it can land as low as 0.35-0.51, below any workable
// threshold, so identity precision must not depend on embeddings.
var identityPhrasings = []string{
	"who am i",
	"what's my name",
	"what is my name",
	"whats my name",
	"do you know my name",
	"do you remember my name",
	"do you know who i am",
	"what do you call me",
	"say my name",
}

// keywordVocabulary maps high-value query terms to the category theme they
// select. Checked in order.
var keywordVocabulary = []struct {
	term  string
	theme string
}{
	{"pets", "pet"},
	{"pet", "pet"},
	{"cats", "pet"},
	{"cat", "pet"},
	{"dogs", "pet"},
	{"dog", "pet"},
	{"allergies", "health"},
	{"allergic", "health"},
	{"allergy", "health"},
	{"medication", "health"},
	{"health", "health"},
	{"job", "work"},
	{"work", "work"},
	{"career", "work"},
	{"family", "relationships"},
	{"wife", "relationships"},
	{"husband", "relationships"},
	{"birthday", "dates"},
	{"anniversary", "dates"},
	{"favorite", "preferences"},
	{"favourite", "preferences"},
}

// Retrieve returns the ranked category batches for a query, at most limit
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, limit int) ([]memory.CategoryBatch, error) {
	if limit < 1 {
		limit = 1
	}

	if batch, ok := r.identityStage(ctx, userID, query); ok {
		return []memory.CategoryBatch{batch}, nil
	}

	if batches := r.keywordStage(ctx, userID, query, limit); len(batches) > 0 {
		return batches, nil
	}

	if batches := r.embeddingStage(ctx, userID, query, limit); len(batches) > 0 {
		return batches, nil
	}

	return r.fallbackStage(ctx, userID), nil
}

// identityStage answers identity questions directly from the profile cache
// with confidence 1.0, bypassing embedding similarity entirely
func (r *Retriever) identityStage(ctx context.Context, userID, query string) (memory.CategoryBatch, bool) {
	normalized := normalizeQuery(query)

	matched := false
	for _, phrase := range identityPhrasings {
		if strings.Contains(normalized, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return memory.CategoryBatch{}, false
	}

	profile, err := r.store.Profile(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrProfileNotFound) {
			r.logger.Warn("Profile lookup failed during identity stage",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return memory.CategoryBatch{}, false
	}
	if profile.Name == "" {
		return memory.CategoryBatch{}, false
	}

	fact := memory.Fact{
		Type:       memory.EntityName,
		Payload:    memory.NamePayload{Name: profile.Name},
		Confidence: 1.0,
		Source:     "user profile",
		CreatedAt:  profile.UpdatedAt,
	}

	return memory.CategoryBatch{
		CategoryID: "profile",
		Name:       "User Profile",
		Facts:      []memory.Fact{fact},
		Summary:    fact.Line(),
		Confidence: 1.0,
		Stage:      StageIdentity,
	}, true
}

// keywordStage fetches categories matched by name or theme when the query
// carries a high-value domain term. No embedding is consulted, so this
// works before any embedding exists.
func (r *Retriever) keywordStage(ctx context.Context, userID, query string, limit int) []memory.CategoryBatch {
	words := queryWordSet(query)
	if len(words) == 0 {
		return nil
	}

	var themes []string
	for _, entry := range keywordVocabulary {
		if words[entry.term] {
			themes = append(themes, entry.theme)
		}
	}
	if len(themes) == 0 {
		return nil
	}

	categories, err := r.store.CategoriesByUser(ctx, userID)
	if err != nil {
		r.logger.Warn("Category listing failed during keyword stage",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	seen := make(map[string]bool)
	var batches []memory.CategoryBatch
	for _, theme := range themes {
		for i := range categories {
			c := &categories[i]
			if c.FactCount == 0 || seen[c.ID] {
				continue
			}
			if !c.HasTheme(theme) && !strings.Contains(strings.ToLower(c.Name), theme) {
				continue
			}
			seen[c.ID] = true
			batches = append(batches, memory.CategoryBatch{
				CategoryID: c.ID,
				Name:       c.Name,
				Facts:      c.Facts,
				Summary:    embedding.BuildContent(c),
				Confidence: 0.9,
				Stage:      StageKeyword,
			})
			if len(batches) >= limit {
				return batches
			}
		}
	}
	return batches
}

// embeddingStage embeds the query, runs the store's top-K cosine search,
// drops candidates under the similarity threshold, and re-ranks what is
// left by keyword overlap against the serialized category content.
func (r *Retriever) embeddingStage(ctx context.Context, userID, query string, limit int) []memory.CategoryBatch {
	if r.embedder == nil {
		return nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil || len(vector) == 0 {
		if err != nil {
			r.logger.Warn("Query embedding failed, skipping embedding stage",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return nil
	}

	// Over-fetch so the overlap re-rank has candidates to reorder.
	scored, err := r.store.SimilarCategories(ctx, userID, vector, limit*2)
	if err != nil {
		r.logger.Warn("Similarity search failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	words := queryWordSet(query)
	type candidate struct {
		store.ScoredCategory
		rank float64
	}
	var candidates []candidate
	for _, sc := range scored {
		if sc.Score < r.threshold {
			continue
		}
		candidates = append(candidates, candidate{
			ScoredCategory: sc,
			rank:           sc.Score + 0.1*keywordOverlap(words, sc.Content),
		})
	}

	// Insertion sort by descending re-ranked score.
	for i := 1; i < len(candidates); i++ {
		key := candidates[i]
		j := i - 1
		for j >= 0 && candidates[j].rank < key.rank {
			candidates[j+1] = candidates[j]
			j--
		}
		candidates[j+1] = key
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	var batches []memory.CategoryBatch
	for _, cand := range candidates {
		c, err := r.store.CategoryByID(ctx, cand.CategoryID)
		if err != nil {
			r.logger.Warn("Failed to load category for embedding hit",
				zap.String("category_id", cand.CategoryID),
				zap.Error(err),
			)
			continue
		}
		batches = append(batches, memory.CategoryBatch{
			CategoryID: c.ID,
			Name:       c.Name,
			Facts:      c.Facts,
			Summary:    cand.Content,
			Confidence: cand.Score,
			Stage:      StageEmbedding,
		})
	}
	return batches
}

// fallbackStage returns the general category's facts when it has any,
// else an empty result. A miss here is not an error.
func (r *Retriever) fallbackStage(ctx context.Context, userID string) []memory.CategoryBatch {
	c, err := r.store.CategoryByName(ctx, userID, memory.GeneralCategoryName)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCategoryNotFound) {
			r.logger.Warn("General category lookup failed during fallback",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return nil
	}
	if c.FactCount == 0 {
		return nil
	}

	return []memory.CategoryBatch{{
		CategoryID: c.ID,
		Name:       c.Name,
		Facts:      c.Facts,
		Summary:    embedding.BuildContent(c),
		Confidence: memory.GeneralConfidence,
		Stage:      StageFallback,
	}}
}

// normalizeQuery lowercases the query and strips punctuation for phrase
// matching
func normalizeQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return strings.Trim(normalized, ".,!? ")
}

// queryWordSet tokenizes the query into a lowercase word set
func queryWordSet(query string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w != "" {
			words[w] = true
		}
	}
	return words
}

// keywordOverlap is the fraction of substantive query words (longer than
// three characters) that appear in the serialized category content
func keywordOverlap(words map[string]bool, content string) float64 {
	lower := strings.ToLower(content)
	total := 0
	matches := 0
	for w := range words {
		if len(w) <= 3 {
			continue
		}
		total++
		if strings.Contains(lower, w) {
			matches++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}
