package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"conversai/backend/internal/agent"
	"conversai/backend/internal/embedding"
	"conversai/backend/internal/memory"
	"conversai/backend/internal/store"
	"conversai/backend/pkg/config"
	"conversai/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting memory API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize storage backend
	st, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Initialize embedder. Without an API key the embedding stage is
	// disabled and retrieval falls back to the keyword and general stages.
	var embedder embedding.Embedder
	if cfg.OpenAIAPIKey != "" {
		embedder = embedding.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.Memory.EmbeddingDims)
	} else {
		log.Warn("OPENAI_API_KEY not set, embedding retrieval disabled")
	}

	svc := agent.NewService(st, embedder, cfg.Memory)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(svc, log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// openStore selects the storage backend from configuration
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

// newRouter builds the HTTP API around the memory service
func newRouter(svc *agent.Service, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Ingest one user message: extract facts and store them
		api.POST("/memory/:user/message", func(c *gin.Context) {
			userID := c.Param("user")
			ctx := c.Request.Context()

			var req struct {
				Message string `json:"message" binding:"required"`
			}

			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			facts := svc.ProcessMessage(ctx, userID, req.Message)
			lines := make([]string, 0, len(facts))
			for _, f := range facts {
				lines = append(lines, f.Line())
			}

			c.JSON(http.StatusOK, gin.H{
				"stored": len(facts),
				"facts":  lines,
			})
		})

		// Build the assistant context for a query turn
		api.POST("/memory/:user/query", func(c *gin.Context) {
			userID := c.Param("user")
			ctx := c.Request.Context()

			var req struct {
				Query   string        `json:"query" binding:"required"`
				Turns   []memory.Turn `json:"turns"`
				Summary string        `json:"summary"`
				Topics  []string      `json:"topics"`
			}

			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			assembled := svc.BuildContext(ctx, userID, req.Query, req.Turns, req.Summary, req.Topics)
			batches, err := svc.Retrieve(ctx, userID, req.Query)
			if err != nil {
				log.Error("Retrieval failed", zap.Error(err))
				batches = nil
			}

			c.JSON(http.StatusOK, gin.H{
				"context": assembled,
				"batches": batches,
			})
		})

		// List a user's categories
		api.GET("/memory/:user/categories", func(c *gin.Context) {
			userID := c.Param("user")
			ctx := c.Request.Context()

			categories, err := svc.Categories(ctx, userID)
			if err != nil {
				log.Error("Failed to list categories", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list categories"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"categories": categories})
		})

		// Split/merge candidate report
		api.GET("/memory/:user/evolution", func(c *gin.Context) {
			userID := c.Param("user")
			ctx := c.Request.Context()

			evolutions, err := svc.EvaluateEvolution(ctx, userID)
			if err != nil {
				log.Error("Failed to evaluate evolution", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate evolution"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"evolutions": evolutions})
		})
	}

	return router
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
