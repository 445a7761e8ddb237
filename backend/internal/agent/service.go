package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"conversai/backend/internal/embedding"
	"conversai/backend/internal/memory"
	"conversai/backend/internal/retrieval"
	"conversai/backend/internal/store"
	"conversai/backend/pkg/config"
	apperrors "conversai/backend/pkg/errors"
	"conversai/backend/pkg/logger"
)

// Service wires the memory pipeline together: extraction, assignment,
// lazy embedding refresh, hybrid retrieval and context assembly. One
// request-scoped call chain runs per incoming message or query; there is
// no background worker queue.
//
// All category writes for a user are funneled through a per-user mutex.
// The stores themselves are plain read-modify-write, so without the funnel
// two concurrent writers could lose an update; serializing per user is
// cheap because per-user traffic is effectively serial anyway (one person
// typing at a time). Simultaneous multi-device use of the same user id
// still degrades to last-writer-wins across processes.
type Service struct {
	store     store.Store
	extractor *memory.Extractor
	indexer   *embedding.Indexer
	retriever *retrieval.Retriever
	assembler *ContextAssembler
	evolver   *memory.Evolver
	rules     []memory.AssignmentRule
	cfg       config.MemoryConfig
	logger    *zap.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewService creates the memory service. embedder may be nil, in which case
// the embedding stage never runs and retrieval relies on the short-circuit
// and fallback stages.
func NewService(st store.Store, embedder embedding.Embedder, cfg config.MemoryConfig) *Service {
	var indexer *embedding.Indexer
	if embedder != nil {
		indexer = embedding.NewIndexer(st, embedder, cfg.EmbeddingFreshness)
	}

	return &Service{
		store:     st,
		extractor: memory.NewExtractor(),
		indexer:   indexer,
		retriever: retrieval.NewRetriever(st, embedder, cfg.SimilarityThreshold),
		assembler: NewContextAssembler(cfg.RecentTurns),
		evolver:   memory.NewEvolver(cfg.SplitThreshold, cfg.MergeThreshold),
		rules:     memory.DefaultAssignmentRules,
		cfg:       cfg,
		logger:    logger.Get(),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the single-writer mutex for a user
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// ProcessMessage extracts facts from a user message and routes each one
// into a category, updating the profile cache for identity and preference
// facts. Persistence failures abandon that fact's update without retry:
// the fact is lost unless restated, and the turn itself never fails.
// Embedding regeneration is not triggered here; it happens lazily at the
// next query.
func (s *Service) ProcessMessage(ctx context.Context, userID, text string) []memory.Fact {
	entities := s.extractor.Extract(text)
	if len(entities) == 0 {
		return nil
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.EnsureGeneralCategory(ctx, userID); err != nil {
		s.logger.Error("Failed to bootstrap general category, dropping extracted facts",
			zap.String("user_id", userID),
			zap.Int("entities", len(entities)),
			zap.Error(err),
		)
		return nil
	}

	var stored []memory.Fact
	for _, entity := range entities {
		fact, err := s.storeEntity(ctx, userID, entity)
		if err != nil {
			s.logger.Warn("Abandoning fact after persistence failure",
				zap.String("user_id", userID),
				zap.String("type", string(entity.Type)),
				zap.Error(err),
			)
			continue
		}
		stored = append(stored, *fact)
		s.updateProfile(ctx, userID, entity)
	}

	if len(stored) > 0 {
		s.logger.Debug("Stored extracted facts",
			zap.String("user_id", userID),
			zap.Int("count", len(stored)),
		)
	}
	return stored
}

// storeEntity routes one entity through the rule table and appends the
// resulting fact to its target category, creating the bucket on first use
func (s *Service) storeEntity(ctx context.Context, userID string, entity memory.Entity) (*memory.Fact, error) {
	assignment := memory.AssignEntity(entity, s.rules)

	target, err := s.store.CategoryByName(ctx, userID, assignment.Bucket)
	if errors.Is(err, apperrors.ErrCategoryNotFound) && assignment.Matched {
		now := time.Now().UTC()
		target = &memory.Category{
			ID:        memory.NewID(),
			UserID:    userID,
			Name:      assignment.Bucket,
			Kind:      assignment.Kind,
			Facts:     []memory.Fact{},
			Themes:    []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateCategory(ctx, target); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	fact := memory.Fact{
		ID:         memory.NewID(),
		Type:       entity.Type,
		Payload:    entity.Payload,
		Confidence: entity.Confidence,
		Source:     entity.Source,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.store.AppendFact(ctx, target.ID, fact, assignment.Themes); err != nil {
		return nil, err
	}

	s.logger.Debug("Fact assigned",
		zap.String("user_id", userID),
		zap.String("category", target.Name),
		zap.String("type", string(entity.Type)),
		zap.Float64("confidence", assignment.Confidence),
	)
	return &fact, nil
}

// updateProfile maintains the denormalized cache for the facts where O(1)
// exact lookup matters. Last write wins, which doubles as the recency
// preference for restated identity facts.
func (s *Service) updateProfile(ctx context.Context, userID string, entity memory.Entity) {
	var mutate func(p *memory.UserProfile)

	switch payload := entity.Payload.(type) {
	case memory.NamePayload:
		mutate = func(p *memory.UserProfile) { p.Name = payload.Name }
	case memory.PreferencePayload:
		mutate = func(p *memory.UserProfile) {
			if p.Preferences == nil {
				p.Preferences = make(map[string]string)
			}
			p.Preferences[payload.Subject] = payload.Sentiment
		}
	default:
		return
	}

	profile, err := s.store.Profile(ctx, userID)
	if errors.Is(err, apperrors.ErrProfileNotFound) {
		profile = &memory.UserProfile{UserID: userID}
	} else if err != nil {
		s.logger.Warn("Profile read failed, skipping cache update",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}

	mutate(profile)
	if profile.Facts == nil {
		profile.Facts = make(map[string]string)
	}
	profile.Facts[string(entity.Type)] = entity.Payload.Line()
	profile.UpdatedAt = time.Now().UTC()

	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		s.logger.Warn("Profile cache update failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// BuildContext answers a query turn: refresh stale embeddings lazily,
// run the hybrid retrieval stages, and assemble the context block. Every
// failure degrades to less context, never to an error for the caller.
func (s *Service) BuildContext(ctx context.Context, userID, query string, turns []memory.Turn, summary string, topics []string) string {
	if s.indexer != nil {
		if err := s.indexer.EnsureFresh(ctx, userID); err != nil {
			s.logger.Warn("Embedding refresh failed before retrieval",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	batches, err := s.retriever.Retrieve(ctx, userID, query, s.cfg.RetrievalLimit)
	if err != nil {
		s.logger.Warn("Retrieval failed, assembling without memory",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrProfileNotFound) {
			s.logger.Warn("Profile read failed during assembly",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		profile = nil
	}

	return s.assembler.Assemble(AssembleInput{
		Profile: profile,
		Batches: batches,
		Turns:   turns,
		Summary: summary,
		Topics:  topics,
	})
}

// Retrieve exposes the raw hybrid retrieval result
func (s *Service) Retrieve(ctx context.Context, userID, query string) ([]memory.CategoryBatch, error) {
	return s.retriever.Retrieve(ctx, userID, query, s.cfg.RetrievalLimit)
}

// Categories lists a user's categories
func (s *Service) Categories(ctx context.Context, userID string) ([]memory.Category, error) {
	return s.store.CategoriesByUser(ctx, userID)
}

// EvaluateEvolution runs split/merge detection across a user's categories.
// Detection only: nothing is redistributed or deleted.
func (s *Service) EvaluateEvolution(ctx context.Context, userID string) ([]memory.Evolution, error) {
	categories, err := s.store.CategoriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.evolver.EvaluateAll(categories), nil
}

// RefreshEmbeddings force-regenerates the user's category embeddings with
// bounded concurrency. This is the out-of-band maintenance entry point.
func (s *Service) RefreshEmbeddings(ctx context.Context, userID string, concurrency int) error {
	if s.indexer == nil {
		return apperrors.ErrEmbedderUnavailable
	}
	return s.indexer.RefreshAll(ctx, userID, concurrency)
}
