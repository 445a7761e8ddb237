package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"conversai/backend/internal/agent"
	"conversai/backend/internal/store"
	"conversai/backend/pkg/config"
	"conversai/backend/pkg/logger"
)

// Seeds a demo user with a spread of facts across every category bucket,
// for local development against a fresh database. Run with:
//
//	go run scripts/seed.go -user demo
func main() {
	userID := flag.String("user", "demo", "User ID to seed")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	svc := agent.NewService(st, nil, cfg.Memory)
	ctx := context.Background()

	messages := []string{
		"My name is Clemens",
		"I have two cats named Whiskers and Mittens",
		"I live in Berlin",
		"My sister's name is Lena",
		"I work as a software engineer at Acme",
		"I love hiking",
		"I'm allergic to peanuts",
		"My birthday is June 3rd",
		"I'm originally from Tokyo",
	}

	total := 0
	for _, msg := range messages {
		facts := svc.ProcessMessage(ctx, *userID, msg)
		total += len(facts)
	}

	categories, err := svc.Categories(ctx, *userID)
	if err != nil {
		log.Fatal("Failed to list seeded categories", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.String("user_id", *userID),
		zap.Int("facts", total),
		zap.Int("categories", len(categories)),
	)
	for _, c := range categories {
		fmt.Fprintf(os.Stdout, "  %-40s %d facts\n", c.Name, c.FactCount)
	}
}
