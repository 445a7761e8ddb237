package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"conversai/backend/internal/memory"
	apperrors "conversai/backend/pkg/errors"
	"conversai/backend/pkg/logger"
)

// Neo4jStore implements Store on a Neo4j graph. Categories hang off User
// nodes; fact lists, theme tags and embedding vectors are kept as JSON
// string properties so the row shape matches the relational backend.
// Similarity search pulls the user's embeddings and scores them in Go,
// same as the SQLite backend.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore creates a graph-backed store on an existing driver
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// EnsureGeneralCategory returns the user's general category, creating the
// User node and the category on first contact. MERGE makes the bootstrap
// idempotent.
func (s *Neo4jStore) EnsureGeneralCategory(ctx context.Context, userID string) (*memory.Category, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `
		MERGE (u:User {id: $userID})
		MERGE (u)-[:HAS_CATEGORY]->(c:Category {user_id: $userID, kind: 'general'})
		ON CREATE SET
			c.id = $id,
			c.name = $name,
			c.facts = '[]',
			c.themes = '[]',
			c.fact_count = 0,
			c.created_at = $now,
			c.updated_at = $now
		RETURN c.id as id, c.user_id as user_id, c.name as name, c.kind as kind,
			c.facts as facts, c.themes as themes, c.fact_count as fact_count,
			c.parent_id as parent_id, c.created_at as created_at, c.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"id":     memory.NewID(),
		"name":   memory.GeneralCategoryName,
		"now":    now,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure general category: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("fetch general category: %w", err)
		}
		return nil, apperrors.ErrCategoryNotFound
	}

	return categoryFromRecord(result.Record())
}

// CreateCategory persists a new category under its user node
func (s *Neo4jStore) CreateCategory(ctx context.Context, c *memory.Category) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	factsJSON, err := json.Marshal(c.Facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	themesJSON, err := json.Marshal(c.Themes)
	if err != nil {
		return fmt.Errorf("marshal themes: %w", err)
	}

	query := `
		MERGE (u:User {id: $userID})
		CREATE (u)-[:HAS_CATEGORY]->(c:Category {
			id: $id,
			user_id: $userID,
			name: $name,
			kind: $kind,
			facts: $facts,
			themes: $themes,
			fact_count: $factCount,
			parent_id: $parentID,
			created_at: $createdAt,
			updated_at: $updatedAt
		})
	`

	_, err = session.Run(ctx, query, map[string]interface{}{
		"userID":    c.UserID,
		"id":        c.ID,
		"name":      c.Name,
		"kind":      string(c.Kind),
		"facts":     string(factsJSON),
		"themes":    string(themesJSON),
		"factCount": c.FactCount,
		"parentID":  c.ParentID,
		"createdAt": c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// CategoryByID fetches one category with its full fact list
func (s *Neo4jStore) CategoryByID(ctx context.Context, id string) (*memory.Category, error) {
	return s.fetchCategory(ctx, `MATCH (c:Category {id: $p1})`, id, "")
}

// CategoryByName fetches a user's category by exact display name
func (s *Neo4jStore) CategoryByName(ctx context.Context, userID, name string) (*memory.Category, error) {
	return s.fetchCategory(ctx, `MATCH (c:Category {user_id: $p1, name: $p2})`, userID, name)
}

func (s *Neo4jStore) fetchCategory(ctx context.Context, match, p1, p2 string) (*memory.Category, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := match + `
		RETURN c.id as id, c.user_id as user_id, c.name as name, c.kind as kind,
			c.facts as facts, c.themes as themes, c.fact_count as fact_count,
			c.parent_id as parent_id, c.created_at as created_at, c.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"p1": p1, "p2": p2})
	if err != nil {
		return nil, fmt.Errorf("fetch category: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("fetch category record: %w", err)
		}
		return nil, apperrors.ErrCategoryNotFound
	}

	return categoryFromRecord(result.Record())
}

// CategoriesByUser lists all of a user's categories, oldest first
func (s *Neo4jStore) CategoriesByUser(ctx context.Context, userID string) ([]memory.Category, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (c:Category {user_id: $userID})
		RETURN c.id as id, c.user_id as user_id, c.name as name, c.kind as kind,
			c.facts as facts, c.themes as themes, c.fact_count as fact_count,
			c.parent_id as parent_id, c.created_at as created_at, c.updated_at as updated_at
		ORDER BY c.created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var categories []memory.Category
	for result.Next(ctx) {
		c, err := categoryFromRecord(result.Record())
		if err != nil {
			s.logger.Warn("Skipping malformed category node", zap.Error(err))
			continue
		}
		categories = append(categories, *c)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// AppendFact appends one fact to a category and updates fact_count and
// themes. Like the SQLite backend this is read-modify-write with no version
// check: last writer wins.
func (s *Neo4jStore) AppendFact(ctx context.Context, categoryID string, fact memory.Fact, themes []string) error {
	c, err := s.CategoryByID(ctx, categoryID)
	if err != nil {
		return err
	}

	c.Facts = append(c.Facts, fact)
	mergedThemes, _ := memory.MergeThemes(c.Themes, themes)

	factsJSON, err := json.Marshal(c.Facts)
	if err != nil {
		return fmt.Errorf("marshal fact list: %w", err)
	}
	themesJSON, err := json.Marshal(mergedThemes)
	if err != nil {
		return fmt.Errorf("marshal theme list: %w", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (c:Category {id: $id})
		SET c.facts = $facts,
			c.themes = $themes,
			c.fact_count = $factCount,
			c.updated_at = $now
	`

	_, err = session.Run(ctx, query, map[string]interface{}{
		"id":        categoryID,
		"facts":     string(factsJSON),
		"themes":    string(themesJSON),
		"factCount": len(c.Facts),
		"now":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

// UpsertEmbedding stores or replaces the single embedding node for a category
func (s *Neo4jStore) UpsertEmbedding(ctx context.Context, emb memory.CategoryEmbedding) error {
	vectorJSON, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("marshal embedding vector: %w", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (c:Category {id: $categoryID})
		MERGE (c)-[:HAS_EMBEDDING]->(e:CategoryEmbedding {category_id: $categoryID})
		SET e.user_id = $userID,
			e.vector = $vector,
			e.content = $content,
			e.created_at = $createdAt
	`

	_, err = session.Run(ctx, query, map[string]interface{}{
		"categoryID": emb.CategoryID,
		"userID":     emb.UserID,
		"vector":     string(vectorJSON),
		"content":    emb.Content,
		"createdAt":  emb.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// EmbeddingByCategory fetches a category's embedding node
func (s *Neo4jStore) EmbeddingByCategory(ctx context.Context, categoryID string) (*memory.CategoryEmbedding, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:CategoryEmbedding {category_id: $categoryID})
		RETURN e.category_id as category_id, e.user_id as user_id,
			e.vector as vector, e.content as content, e.created_at as created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"categoryID": categoryID})
	if err != nil {
		return nil, fmt.Errorf("fetch embedding: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("fetch embedding record: %w", err)
		}
		return nil, apperrors.ErrEmbeddingNotFound
	}

	return embeddingFromRecord(result.Record())
}

// EmbeddingsByUser lists all embedding nodes for a user
func (s *Neo4jStore) EmbeddingsByUser(ctx context.Context, userID string) ([]memory.CategoryEmbedding, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:CategoryEmbedding {user_id: $userID})
		RETURN e.category_id as category_id, e.user_id as user_id,
			e.vector as vector, e.content as content, e.created_at as created_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	var embeddings []memory.CategoryEmbedding
	for result.Next(ctx) {
		emb, err := embeddingFromRecord(result.Record())
		if err != nil {
			s.logger.Warn("Skipping malformed embedding node", zap.Error(err))
			continue
		}
		embeddings = append(embeddings, *emb)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// SimilarCategories scores all of the user's category embeddings against
// the query vector and returns the top k by cosine similarity
func (s *Neo4jStore) SimilarCategories(ctx context.Context, userID string, query []float32, k int) ([]ScoredCategory, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	embeddings, err := s.EmbeddingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var scored []ScoredCategory
	for _, emb := range embeddings {
		if len(emb.Vector) == 0 {
			continue
		}
		scored = append(scored, ScoredCategory{
			CategoryID: emb.CategoryID,
			Score:      memory.CosineSimilarity(query, emb.Vector),
			Content:    emb.Content,
		})
	}

	return topKByScore(scored, k), nil
}

// Profile fetches the user's denormalized profile node
func (s *Neo4jStore) Profile(ctx context.Context, userID string) (*memory.UserProfile, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (p:UserProfile {user_id: $userID})
		RETURN p.user_id as user_id, p.name as name,
			p.preferences as preferences, p.facts as facts, p.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("fetch profile record: %w", err)
		}
		return nil, apperrors.ErrProfileNotFound
	}

	record := result.Record()
	p := &memory.UserProfile{
		UserID: stringFromRecord(record, "user_id"),
		Name:   stringFromRecord(record, "name"),
	}

	if raw := stringFromRecord(record, "preferences"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Preferences); err != nil {
			return nil, fmt.Errorf("decode profile preferences: %w", err)
		}
	}
	if raw := stringFromRecord(record, "facts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Facts); err != nil {
			return nil, fmt.Errorf("decode profile facts: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, stringFromRecord(record, "updated_at")); err == nil {
		p.UpdatedAt = t
	}

	return p, nil
}

// UpsertProfile stores or replaces the profile node
func (s *Neo4jStore) UpsertProfile(ctx context.Context, p *memory.UserProfile) error {
	preferencesJSON, err := json.Marshal(orEmptyMap(p.Preferences))
	if err != nil {
		return fmt.Errorf("marshal profile preferences: %w", err)
	}
	factsJSON, err := json.Marshal(orEmptyMap(p.Facts))
	if err != nil {
		return fmt.Errorf("marshal profile facts: %w", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $userID})
		MERGE (u)-[:HAS_PROFILE]->(p:UserProfile {user_id: $userID})
		SET p.name = $name,
			p.preferences = $preferences,
			p.facts = $facts,
			p.updated_at = $now
	`

	_, err = session.Run(ctx, query, map[string]interface{}{
		"userID":      p.UserID,
		"name":        p.Name,
		"preferences": string(preferencesJSON),
		"facts":       string(factsJSON),
		"now":         time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// categoryFromRecord builds a Category from a query record
func categoryFromRecord(record *neo4j.Record) (*memory.Category, error) {
	c := &memory.Category{
		ID:        stringFromRecord(record, "id"),
		UserID:    stringFromRecord(record, "user_id"),
		Name:      stringFromRecord(record, "name"),
		Kind:      memory.CategoryKind(stringFromRecord(record, "kind")),
		FactCount: intFromRecord(record, "fact_count"),
		ParentID:  stringFromRecord(record, "parent_id"),
	}

	if raw := stringFromRecord(record, "facts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Facts); err != nil {
			return nil, fmt.Errorf("decode fact list: %w", err)
		}
	}
	if raw := stringFromRecord(record, "themes"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Themes); err != nil {
			return nil, fmt.Errorf("decode theme list: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, stringFromRecord(record, "created_at")); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, stringFromRecord(record, "updated_at")); err == nil {
		c.UpdatedAt = t
	}

	return c, nil
}

// embeddingFromRecord builds a CategoryEmbedding from a query record
func embeddingFromRecord(record *neo4j.Record) (*memory.CategoryEmbedding, error) {
	emb := &memory.CategoryEmbedding{
		CategoryID: stringFromRecord(record, "category_id"),
		UserID:     stringFromRecord(record, "user_id"),
		Content:    stringFromRecord(record, "content"),
	}

	if raw := stringFromRecord(record, "vector"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &emb.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding vector: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, stringFromRecord(record, "created_at")); err == nil {
		emb.CreatedAt = t
	}

	return emb, nil
}

func stringFromRecord(record *neo4j.Record, key string) string {
	if value, ok := record.Get(key); ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

func intFromRecord(record *neo4j.Record, key string) int {
	if value, ok := record.Get(key); ok {
		switch v := value.(type) {
		case int64:
			return int(v)
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}

// Compile-time interface satisfaction check.
var _ Store = (*Neo4jStore)(nil)
