package store

import (
	"context"
	"database/sql"
	"errors"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"conversai/backend/internal/memory"
	apperrors "conversai/backend/pkg/errors"
	"conversai/backend/pkg/logger"
)

// SQLiteStore implements Store on modernc.org/sqlite. Fact lists, theme
// tags, profile maps and embedding vectors live in JSON-valued columns;
// similarity search loads the user's embeddings and computes cosine
// similarity in Go. At the per-user scale this system sees (tens of
// categories), the brute-force scan is faster than the round trip to any
// external vector index.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	facts      TEXT NOT NULL DEFAULT '[]',
	themes     TEXT NOT NULL DEFAULT '[]',
	fact_count INTEGER NOT NULL DEFAULT 0,
	parent_id  TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_categories_user ON categories(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_user_name ON categories(user_id, name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_general ON categories(user_id) WHERE kind = 'general';

CREATE TABLE IF NOT EXISTS category_embeddings (
	category_id TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	vector      TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_embeddings_user ON category_embeddings(user_id);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id     TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT '{}',
	facts       TEXT NOT NULL DEFAULT '{}',
	updated_at  TEXT NOT NULL
);
`

// OpenSQLite opens (and if needed creates) the SQLite database at path and
// applies the schema. WAL mode and a busy timeout are set through the DSN so
// they apply to every pooled connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger.Get()}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureGeneralCategory returns the user's general category, creating it on
// first contact. The partial unique index on (user_id) WHERE kind='general'
// makes the insert race-safe; a concurrent creator just loses the insert and
// both callers read the same row back.
func (s *SQLiteStore) EnsureGeneralCategory(ctx context.Context, userID string) (*memory.Category, error) {
	if c, err := s.generalCategory(ctx, userID); err == nil {
		return c, nil
	} else if !errors.Is(err, apperrors.ErrCategoryNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c := &memory.Category{
		ID:        memory.NewID(),
		UserID:    userID,
		Name:      memory.GeneralCategoryName,
		Kind:      memory.CategoryGeneral,
		Facts:     []memory.Fact{},
		Themes:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO categories
			(id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', '[]', 0, NULL, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert general category: %w", err)
	}

	return s.generalCategory(ctx, userID)
}

func (s *SQLiteStore) generalCategory(ctx context.Context, userID string) (*memory.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at
		FROM categories WHERE user_id = ? AND kind = 'general'`, userID)
	return scanCategory(row)
}

// CreateCategory persists a new category
func (s *SQLiteStore) CreateCategory(ctx context.Context, c *memory.Category) error {
	factsJSON, err := json.Marshal(c.Facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	themesJSON, err := json.Marshal(c.Themes)
	if err != nil {
		return fmt.Errorf("marshal themes: %w", err)
	}

	var parent sql.NullString
	if c.ParentID != "" {
		parent = sql.NullString{String: c.ParentID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO categories
			(id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Kind), string(factsJSON), string(themesJSON),
		c.FactCount, parent,
		c.CreatedAt.UTC().Format(time.RFC3339Nano), c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// CategoryByID fetches one category with its full fact list
func (s *SQLiteStore) CategoryByID(ctx context.Context, id string) (*memory.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at
		FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// CategoryByName fetches a user's category by exact display name
func (s *SQLiteStore) CategoryByName(ctx context.Context, userID, name string) (*memory.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at
		FROM categories WHERE user_id = ? AND name = ?`, userID, name)
	return scanCategory(row)
}

// CategoriesByUser lists all of a user's categories, oldest first
func (s *SQLiteStore) CategoriesByUser(ctx context.Context, userID string) ([]memory.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, kind, facts, themes, fact_count, parent_id, created_at, updated_at
		FROM categories WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []memory.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			s.logger.Warn("Skipping malformed category row", zap.Error(err))
			continue
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// AppendFact appends one fact to a category's ordered fact list, keeping
// fact_count equal to the list length and folding in new theme tags. The
// read and write run inside one transaction, but there is no cross-process
// version check: concurrent writers are last-writer-wins by design.
func (s *SQLiteStore) AppendFact(ctx context.Context, categoryID string, fact memory.Fact, themes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT facts, themes FROM categories WHERE id = ?`, categoryID)

	var factsJSON, themesJSON string
	if err := row.Scan(&factsJSON, &themesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrCategoryNotFound
		}
		return fmt.Errorf("read category for append: %w", err)
	}

	var facts []memory.Fact
	if err := json.Unmarshal([]byte(factsJSON), &facts); err != nil {
		return fmt.Errorf("decode fact list: %w", err)
	}
	var existingThemes []string
	if err := json.Unmarshal([]byte(themesJSON), &existingThemes); err != nil {
		return fmt.Errorf("decode theme list: %w", err)
	}

	facts = append(facts, fact)
	mergedThemes, _ := memory.MergeThemes(existingThemes, themes)

	newFactsJSON, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal fact list: %w", err)
	}
	newThemesJSON, err := json.Marshal(mergedThemes)
	if err != nil {
		return fmt.Errorf("marshal theme list: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE categories
		SET facts = ?, themes = ?, fact_count = ?, updated_at = ?
		WHERE id = ?`,
		string(newFactsJSON), string(newThemesJSON), len(facts),
		time.Now().UTC().Format(time.RFC3339Nano), categoryID,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	return tx.Commit()
}

// UpsertEmbedding stores or replaces the single embedding row for a category
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, emb memory.CategoryEmbedding) error {
	vectorJSON, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("marshal embedding vector: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO category_embeddings
			(category_id, user_id, vector, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		emb.CategoryID, emb.UserID, string(vectorJSON), emb.Content,
		emb.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// EmbeddingByCategory fetches a category's embedding row
func (s *SQLiteStore) EmbeddingByCategory(ctx context.Context, categoryID string) (*memory.CategoryEmbedding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT category_id, user_id, vector, content, created_at
		FROM category_embeddings WHERE category_id = ?`, categoryID)

	emb, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrEmbeddingNotFound
	}
	return emb, err
}

// EmbeddingsByUser lists all embedding rows for a user
func (s *SQLiteStore) EmbeddingsByUser(ctx context.Context, userID string) ([]memory.CategoryEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, user_id, vector, content, created_at
		FROM category_embeddings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []memory.CategoryEmbedding
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			s.logger.Warn("Skipping malformed embedding row", zap.Error(err))
			continue
		}
		embeddings = append(embeddings, *emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

// SimilarCategories scores all of the user's category embeddings against
// the query vector and returns the top k by cosine similarity
func (s *SQLiteStore) SimilarCategories(ctx context.Context, userID string, query []float32, k int) ([]ScoredCategory, error) {
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

// Profile fetches the user's denormalized profile cache
func (s *SQLiteStore) Profile(ctx context.Context, userID string) (*memory.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, preferences, facts, updated_at
		FROM user_profiles WHERE user_id = ?`, userID)

	var (
		p               memory.UserProfile
		preferencesJSON string
		factsJSON       string
		updatedAt       string
	)
	err := row.Scan(&p.UserID, &p.Name, &preferencesJSON, &factsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	if err := json.Unmarshal([]byte(preferencesJSON), &p.Preferences); err != nil {
		return nil, fmt.Errorf("decode profile preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(factsJSON), &p.Facts); err != nil {
		return nil, fmt.Errorf("decode profile facts: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}

	return &p, nil
}

// UpsertProfile stores or replaces the profile cache row
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *memory.UserProfile) error {
	preferencesJSON, err := json.Marshal(orEmptyMap(p.Preferences))
	if err != nil {
		return fmt.Errorf("marshal profile preferences: %w", err)
	}
	factsJSON, err := json.Marshal(orEmptyMap(p.Facts))
	if err != nil {
		return fmt.Errorf("marshal profile facts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_profiles (user_id, name, preferences, facts, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, string(preferencesJSON), string(factsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(row scanner) (*memory.Category, error) {
	var (
		c          memory.Category
		kind       string
		factsJSON  string
		themesJSON string
		parent     sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(&c.ID, &c.UserID, &c.Name, &kind, &factsJSON, &themesJSON,
		&c.FactCount, &parent, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan category: %w", err)
	}

	c.Kind = memory.CategoryKind(kind)
	if err := json.Unmarshal([]byte(factsJSON), &c.Facts); err != nil {
		return nil, fmt.Errorf("decode fact list: %w", err)
	}
	if err := json.Unmarshal([]byte(themesJSON), &c.Themes); err != nil {
		return nil, fmt.Errorf("decode theme list: %w", err)
	}
	if parent.Valid {
		c.ParentID = parent.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		c.UpdatedAt = t
	}

	return &c, nil
}

func scanEmbedding(row scanner) (*memory.CategoryEmbedding, error) {
	var (
		emb        memory.CategoryEmbedding
		vectorJSON string
		createdAt  string
	)

	err := row.Scan(&emb.CategoryID, &emb.UserID, &vectorJSON, &emb.Content, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(vectorJSON), &emb.Vector); err != nil {
		return nil, fmt.Errorf("decode embedding vector: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		emb.CreatedAt = t
	}

	return &emb, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)
