package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Store backend: "sqlite" or "neo4j"
	StoreBackend string

	// SQLite
	SQLitePath string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// OpenAI-compatible embedding provider
	OpenAIBaseURL  string
	OpenAIAPIKey   string
	EmbeddingModel string

	// Memory engine tunables
	Memory MemoryConfig
}

// MemoryConfig groups the tunables of the memory pipeline. It is passed
// explicitly into every engine rather than read from package globals so
// tests can run with tight thresholds.
type MemoryConfig struct {
	// SplitThreshold is the fact count at which a category becomes a
	// split candidate.
	SplitThreshold int

	// MergeThreshold is the fact count below which a non-empty category
	// becomes a merge candidate.
	MergeThreshold int

	// EmbeddingFreshness is how long a category embedding is trusted
	// without regeneration, even if facts changed underneath it.
	EmbeddingFreshness time.Duration

	// SimilarityThreshold is the minimum cosine similarity for a category
	// to count as an embedding-stage retrieval hit. Deliberately low:
	// the short-circuit stages already guarantee precision for the fact
	// types that matter most.
	SimilarityThreshold float64

	// EmbeddingDims is the expected embedding vector length.
	EmbeddingDims int

	// RetrievalLimit caps how many category batches a query returns.
	RetrievalLimit int

	// RecentTurns is how many raw conversation turns the context
	// assembler includes.
	RecentTurns int
}

// DefaultMemoryConfig returns the production defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		SplitThreshold:      20,
		MergeThreshold:      3,
		EmbeddingFreshness:  time.Hour,
		SimilarityThreshold: 0.4,
		EmbeddingDims:       1536,
		RetrievalLimit:      3,
		RecentTurns:         6,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		StoreBackend:   getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "conversai.db"),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", "password"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		Memory: MemoryConfig{
			SplitThreshold:      getEnvInt("MEMORY_SPLIT_THRESHOLD", 20),
			MergeThreshold:      getEnvInt("MEMORY_MERGE_THRESHOLD", 3),
			EmbeddingFreshness:  getEnvDuration("MEMORY_EMBEDDING_FRESHNESS", time.Hour),
			SimilarityThreshold: getEnvFloat("MEMORY_SIMILARITY_THRESHOLD", 0.4),
			EmbeddingDims:       getEnvInt("MEMORY_EMBEDDING_DIMS", 1536),
			RetrievalLimit:      getEnvInt("MEMORY_RETRIEVAL_LIMIT", 3),
			RecentTurns:         getEnvInt("MEMORY_RECENT_TURNS", 6),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case "neo4j":
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required for the neo4j backend")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required for the neo4j backend")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required for the neo4j backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want sqlite or neo4j)", c.StoreBackend)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("EMBEDDING_MODEL is required")
	}
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	// The OpenAI API key is optional: without it the pipeline still runs,
	// retrieval just degrades to the keyword and fallback stages.
	return nil
}

// Validate checks that the memory tunables are internally consistent.
func (m MemoryConfig) Validate() error {
	if m.SplitThreshold <= m.MergeThreshold {
		return fmt.Errorf("MEMORY_SPLIT_THRESHOLD (%d) must be greater than MEMORY_MERGE_THRESHOLD (%d)", m.SplitThreshold, m.MergeThreshold)
	}
	if m.SimilarityThreshold < 0 || m.SimilarityThreshold > 1 {
		return fmt.Errorf("MEMORY_SIMILARITY_THRESHOLD must be in [0,1], got %f", m.SimilarityThreshold)
	}
	if m.EmbeddingDims <= 0 {
		return fmt.Errorf("MEMORY_EMBEDDING_DIMS must be positive")
	}
	if m.RetrievalLimit <= 0 {
		return fmt.Errorf("MEMORY_RETRIEVAL_LIMIT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
