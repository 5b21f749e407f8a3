// Package engine wires the learning components together from a core.Config:
// the memory store, pattern repository, learner, supervisor, behavior
// applier, intelligence reporter and the background task processor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/behavior"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/intelligence"
	"github.com/itsneelabh/gomind-learning/learning"
	"github.com/itsneelabh/gomind-learning/memory"
	"github.com/itsneelabh/gomind-learning/memory/chromemstore"
	"github.com/itsneelabh/gomind-learning/memory/pgstore"
	"github.com/itsneelabh/gomind-learning/memory/sqlitestore"
	"github.com/itsneelabh/gomind-learning/orchestration"
	"github.com/itsneelabh/gomind-learning/patternstore"
	"github.com/itsneelabh/gomind-learning/supervisor"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"golang.org/x/sync/errgroup"

	// Provider factories register themselves with the ai registry.
	_ "github.com/itsneelabh/gomind-learning/ai/providers/anthropic"
	_ "github.com/itsneelabh/gomind-learning/ai/providers/bedrock"
	_ "github.com/itsneelabh/gomind-learning/ai/providers/gemini"
	_ "github.com/itsneelabh/gomind-learning/ai/providers/ollama"
)

// Storage provider names.
const (
	StorageMemory   = "memory"
	StorageChromem  = "chromem"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
)

// Engine owns every learning component and their lifecycle.
type Engine struct {
	config *core.Config
	logger core.Logger

	memory     *memory.Service
	patterns   core.PatternRepository
	learner    *learning.Learner
	supervisor *supervisor.Supervisor
	applier    *behavior.Applier
	reporter   *intelligence.Reporter
	processor  *orchestration.TaskProcessor
	redis      *core.RedisClient

	maintenanceInterval time.Duration
	maintenanceStop     chan struct{}
	maintenanceDone     chan struct{}

	lifecycle sync.Mutex
	closeOnce sync.Once
}

// Option customises how New builds the engine.
type Option func(*options)

type options struct {
	store       memory.VectorStore
	patterns    core.PatternRepository
	embedder    core.Embedder
	generator   core.TextGenerator
	noGenerator bool
	maintenance time.Duration
}

// WithVectorStore uses store instead of the configured vector backend.
func WithVectorStore(store memory.VectorStore) Option {
	return func(o *options) { o.store = store }
}

// WithPatternRepository uses repo instead of the configured pattern backend.
func WithPatternRepository(repo core.PatternRepository) Option {
	return func(o *options) { o.patterns = repo }
}

// WithEmbedder uses embedder instead of the configured AI provider.
func WithEmbedder(embedder core.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithGenerator uses generator instead of the configured AI provider.
// A nil generator disables text generation.
func WithGenerator(generator core.TextGenerator) Option {
	return func(o *options) {
		o.generator = generator
		o.noGenerator = generator == nil
	}
}

// WithMaintenanceInterval makes Start schedule cleanup_memories and
// decay_relevance every interval.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(o *options) { o.maintenance = interval }
}

// New validates cfg and builds every component. A nil cfg uses
// core.DefaultConfig. Close releases what New opened.
func New(ctx context.Context, cfg *core.Config, logger core.Logger, opts ...Option) (e *Engine, err error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e = &Engine{
		config:              cfg,
		logger:              core.ComponentLogger(logger, "learning/engine"),
		maintenanceInterval: o.maintenance,
	}
	defer func() {
		if err != nil {
			_ = e.Close()
			e = nil
		}
	}()

	aiOpts := ai.Options{Resilience: cfg.Resilience, Logger: logger}

	embedder := o.embedder
	if embedder == nil {
		if embedder, err = ai.NewEmbedder(cfg.AI, cfg.Memory.EmbeddingDimension, aiOpts); err != nil {
			return nil, err
		}
	}

	generator := o.generator
	if generator == nil && !o.noGenerator {
		if generator, err = ai.NewGenerator(cfg.AI, aiOpts); err != nil {
			return nil, err
		}
	}

	store := o.store
	if store == nil {
		if store, err = newVectorStore(ctx, cfg, embedder.Dimension(), logger); err != nil {
			return nil, err
		}
	}
	if e.memory, err = memory.NewService(store, embedder, cfg.Memory, memory.WithLogger(logger)); err != nil {
		_ = store.Close()
		return nil, err
	}

	var statusStore core.TaskStatusStore
	e.patterns = o.patterns
	if e.patterns == nil {
		if e.patterns, statusStore, err = e.newPatternRepository(ctx, logger); err != nil {
			return nil, err
		}
	}

	e.reporter = intelligence.NewReporter(cfg.Reporter, logger)

	if e.learner, err = learning.NewLearner(e.memory, generator, cfg.Learning, logger, learning.WithRepository(e.patterns)); err != nil {
		return nil, err
	}
	if e.supervisor, err = supervisor.New(e.patterns, cfg.Supervisor, logger); err != nil {
		return nil, err
	}
	if e.applier, err = behavior.NewApplier(e.patterns, generator, e.reporter, cfg.Behavior, logger); err != nil {
		return nil, err
	}

	processorOpts := []orchestration.ProcessorOption{orchestration.WithLogger(logger)}
	if statusStore != nil {
		processorOpts = append(processorOpts, orchestration.WithStatusStore(statusStore))
	}
	e.processor = orchestration.NewTaskProcessor(cfg.Tasks, processorOpts...)
	if err = e.registerJobs(); err != nil {
		return nil, err
	}

	e.logger.Info("Learning engine ready", map[string]interface{}{
		"vector_store":  storeName(cfg.Storage.VectorProvider, o.store != nil),
		"pattern_store": storeName(cfg.Storage.PatternProvider, o.patterns != nil),
		"ai_provider":   cfg.AI.Provider,
		"generation":    generator != nil,
	})
	return e, nil
}

func newVectorStore(ctx context.Context, cfg *core.Config, dimension int, logger core.Logger) (memory.VectorStore, error) {
	switch strings.ToLower(cfg.Storage.VectorProvider) {
	case "", StorageMemory:
		return memory.NewInMemoryStore(), nil
	case StorageChromem:
		return chromemstore.New(chromemstore.Config{
			Path:      cfg.Storage.ChromemPath,
			Dimension: dimension,
		})
	case StoragePostgres:
		return pgstore.New(ctx, pgstore.Config{
			URL:       cfg.Storage.PostgresURL,
			Dimension: dimension,
			Logger:    logger,
		})
	case StorageSQLite:
		return sqlitestore.New(ctx, cfg.Storage.SQLitePath)
	default:
		return nil, &core.FrameworkError{
			Op:      "engine.New",
			Kind:    "config",
			Message: fmt.Sprintf("unknown vector store %q", cfg.Storage.VectorProvider),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}

func (e *Engine) newPatternRepository(ctx context.Context, logger core.Logger) (core.PatternRepository, core.TaskStatusStore, error) {
	storage := e.config.Storage
	switch strings.ToLower(storage.PatternProvider) {
	case "", StorageMemory:
		return patternstore.NewMemoryRepository(), nil, nil
	case StorageRedis:
		client, err := core.NewRedisClient(ctx, core.RedisClientOptions{
			RedisURL:  storage.RedisURL,
			DB:        -1,
			Namespace: storage.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		e.redis = client
		repo := patternstore.NewRedisRepository(client.Client(), patternstore.RedisRepositoryConfig{
			KeyPrefix: storage.KeyPrefix,
			Logger:    logger,
		})
		status := orchestration.NewRedisTaskStatusStore(client.Client(), &orchestration.RedisTaskStatusStoreConfig{
			KeyPrefix: storage.KeyPrefix,
			TTL:       storage.TaskStatusTTL,
			Logger:    logger,
		})
		return repo, status, nil
	default:
		return nil, nil, &core.FrameworkError{
			Op:      "engine.New",
			Kind:    "config",
			Message: fmt.Sprintf("unknown pattern store %q", storage.PatternProvider),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}

func storeName(configured string, injected bool) string {
	if injected {
		return "custom"
	}
	if configured == "" {
		return StorageMemory
	}
	return configured
}

// Config returns the engine configuration.
func (e *Engine) Config() *core.Config { return e.config }

// Memory returns the memory service.
func (e *Engine) Memory() *memory.Service { return e.memory }

// Patterns returns the pattern repository.
func (e *Engine) Patterns() core.PatternRepository { return e.patterns }

// Learner returns the pattern learner.
func (e *Engine) Learner() *learning.Learner { return e.learner }

// Supervisor returns the proposal supervisor.
func (e *Engine) Supervisor() *supervisor.Supervisor { return e.supervisor }

// Applier returns the behavior applier.
func (e *Engine) Applier() *behavior.Applier { return e.applier }

// Reporter returns the intelligence reporter.
func (e *Engine) Reporter() *intelligence.Reporter { return e.reporter }

// Processor returns the background task processor.
func (e *Engine) Processor() *orchestration.TaskProcessor { return e.processor }

// Start launches the task workers and, when configured, the maintenance
// scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if err := e.processor.Start(ctx, e.config.Tasks.MaxWorkers); err != nil {
		return err
	}
	if e.maintenanceInterval > 0 && e.maintenanceStop == nil {
		e.maintenanceStop = make(chan struct{})
		e.maintenanceDone = make(chan struct{})
		go e.maintenanceLoop(ctx, e.maintenanceStop, e.maintenanceDone)
	}
	return nil
}

// Stop stops the maintenance scheduler and the workers, waiting up to the
// configured stop timeout for in-flight tasks.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.maintenanceStop != nil {
		close(e.maintenanceStop)
		<-e.maintenanceDone
		e.maintenanceStop, e.maintenanceDone = nil, nil
	}
	return e.processor.Stop(e.config.Tasks.StopTimeout)
}

// Close stops the engine and releases stores and connections.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		if e.processor != nil {
			if err := e.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.applier != nil {
			e.applier.Close()
		}
		if e.memory != nil {
			if err := e.memory.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.redis != nil {
			if err := e.redis.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (e *Engine) maintenanceLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, taskType := range []string{TaskCleanupMemories, TaskDecayRelevance, TaskDeprecatePatterns} {
				if _, err := e.processor.SubmitTask(ctx, taskType, nil, core.PriorityLow, nil); err != nil {
					e.logger.Warn("Maintenance task not scheduled", map[string]interface{}{
						"task_type": taskType,
						"error":     err.Error(),
					})
				}
			}
		}
	}
}

// OnConversationEnd queues the analysis of a finished conversation and
// returns the task ID.
func (e *Engine) OnConversationEnd(ctx context.Context, conversationID string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", core.NewValidationError("engine.OnConversationEnd", "conversation ID cannot be empty")
	}
	return e.processor.SubmitTask(ctx, TaskAnalyzeConversation, map[string]interface{}{
		"conversation_id": conversationID,
	}, core.PriorityNormal, nil)
}

// Respond answers message with the best applicable pattern. With no
// applicable pattern the configured default response is returned.
func (e *Engine) Respond(ctx context.Context, message string, appCtx *core.ApplicationContext) (*behavior.ResponseResult, error) {
	ctx, end := telemetry.StartSpan(ctx, "engine.respond", nil)
	defer end()

	found, err := e.applier.FindApplicablePatterns(ctx, message, appCtx)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		telemetry.Counter("learning.engine.responses", "method", behavior.MethodDefault)
		return &behavior.ResponseResult{
			Text:   behavior.AdaptResponse(e.applier.DefaultResponse(), appCtx),
			Method: behavior.MethodDefault,
		}, nil
	}

	best := e.applier.PrioritizePatterns(found)[0]
	return e.applier.ApplyPattern(ctx, best, appCtx)
}

// Status is a point-in-time overview of the engine.
type Status struct {
	Report            *intelligence.IntelligenceReport `json:"report"`
	Tasks             orchestration.ServiceStats       `json:"tasks"`
	PendingProposals  int                              `json:"pending_proposals"`
	ApprovedPatterns  int                              `json:"approved_patterns"`
	CandidatePatterns int                              `json:"candidate_patterns"`
}

// Status gathers the intelligence report, processor stats and repository
// counts concurrently.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	status := &Status{
		Report: e.reporter.GenerateIntelligenceReport(),
		Tasks:  e.processor.GetServiceStats(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pending, err := e.patterns.ListProposals(gctx, core.ProposalPending)
		status.PendingProposals = len(pending)
		return err
	})
	g.Go(func() error {
		approved, err := e.patterns.ListPatterns(gctx, core.PatternStatusApproved)
		status.ApprovedPatterns = len(approved)
		return err
	})
	g.Go(func() error {
		candidates, err := e.patterns.ListPatterns(gctx, core.PatternStatusCandidate)
		status.CandidatePatterns = len(candidates)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return status, nil
}
