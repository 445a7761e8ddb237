package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"conversai/backend/internal/agent"
	"conversai/backend/internal/embedding"
	"conversai/backend/internal/store"
	"conversai/backend/pkg/config"
	"conversai/backend/pkg/logger"
)

// Out-of-band embedding maintenance. The server refreshes embeddings
// lazily at query time inside the freshness window; this command forces
// a full regeneration for one user, for use after bulk imports or an
// embedding model change.
func main() {
	userID := flag.String("user", "", "user id to refresh embeddings for")
	concurrency := flag.Int("concurrency", 4, "max concurrent embedding requests")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: maintenance -user <id> [-concurrency n] [-timeout d]")
		os.Exit(2)
	}

	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY is required for embedding maintenance")
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	embedder := embedding.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.Memory.EmbeddingDims)
	svc := agent.NewService(st, embedder, cfg.Memory)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := svc.RefreshEmbeddings(ctx, *userID, *concurrency); err != nil {
		log.Fatal("Embedding refresh failed",
			zap.String("user_id", *userID),
			zap.Error(err),
		)
	}

	log.Info("Embedding refresh complete",
		zap.String("user_id", *userID),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
		}
		return store.NewNeo4jStore(driver), nil
	default:
		return store.OpenSQLite(cfg.SQLitePath)
	}
}
