package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hollis-labs/ragline/internal/chunker"
	"github.com/hollis-labs/ragline/internal/config"
	"github.com/hollis-labs/ragline/internal/db/postgres"
	"github.com/hollis-labs/ragline/internal/db/redis"
	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/loader"
	"github.com/hollis-labs/ragline/internal/logger"
	"github.com/hollis-labs/ragline/internal/repository/embcache"
	"github.com/hollis-labs/ragline/internal/repository/memory"
	"github.com/hollis-labs/ragline/internal/repository/vector"
	"github.com/hollis-labs/ragline/internal/tokenizer"
	chiTransport "github.com/hollis-labs/ragline/internal/transport/chi"
	"github.com/hollis-labs/ragline/internal/transport/huggingface"
	"github.com/hollis-labs/ragline/internal/transport/openai"
	"github.com/hollis-labs/ragline/internal/usecase/pipeline"
	"github.com/hollis-labs/ragline/internal/usecase/retrieval"
)

// storeBackend is the full store contract both drivers implement.
type storeBackend interface {
	StoreDocument(ctx context.Context, sourcePath, title string, meta domain.Metadata) (string, error)
	StoreChunks(ctx context.Context, documentID string, candidates []domain.ChunkCandidate) ([]string, error)
	StoreEmbeddings(ctx context.Context, records []domain.EmbeddingRecord) ([]string, error)
	Search(
		ctx context.Context, queryVector []float32, model string, topK int,
		filters []domain.Filter, opts domain.SearchOptions,
	) ([]domain.ScoredChunk, error)
	SoftDeleteDocument(ctx context.Context, documentID string) error
	SoftDeleteChunk(ctx context.Context, chunkID string) error
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	ChunksMissingEmbeddings(ctx context.Context, documentID, model string) ([]domain.Chunk, error)
}

// embedder is the provider contract after optional cache decoration.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

type generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	ModelName() string
}

// app is the composition root shared by all commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    storeBackend
	pipeline *pipeline.Service
	health   []chiTransport.Healther
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// buildApp loads config, applies flag overrides, and wires the store,
// providers, chunker, and pipeline.
func buildApp(flags *rootFlags) (*app, error) {
	env := flags.env
	if env == "" {
		env = config.GetEnv()
	}

	cfg, err := config.Load(env)
	if err != nil {
		return nil, err
	}
	if flags.embeddingProvider != "" {
		cfg.Embedding.Provider = flags.embeddingProvider
	}
	if flags.llmProvider != "" {
		cfg.Generation.Provider = flags.llmProvider
	}
	if flags.chunkingStrategy != "" {
		cfg.Chunking.Strategy = flags.chunkingStrategy
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}

	if err := a.buildStore(); err != nil {
		a.Close()
		return nil, err
	}

	emb, err := a.buildEmbedder()
	if err != nil {
		a.Close()
		return nil, err
	}
	gen := a.buildGenerator()

	ch, err := buildChunker(cfg.Chunking)
	if err != nil {
		a.Close()
		return nil, err
	}

	retriever := retrieval.New(a.store, emb)
	a.pipeline = pipeline.New(a.store, loaderFunc(loader.Load), ch, emb, retriever, gen,
		pipeline.Options{
			TopK:            cfg.Retrieval.TopK,
			FailFast:        cfg.Retrieval.FailFast,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
		})
	return a, nil
}

// loaderFunc adapts the loader package function to the pipeline contract.
type loaderFunc func(path string) (*loader.Document, error)

func (f loaderFunc) Load(path string) (*loader.Document, error) { return f(path) }

func (a *app) buildStore() error {
	switch a.cfg.Database.Driver {
	case "memory":
		a.store = memory.NewStore()
		return nil
	case "postgres":
		dbx, err := postgres.Open(a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = dbx.Close() })
		if err := postgres.ApplyMigrations(dbx, a.cfg.Database.Dimensions); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		a.store = vector.New(dbx)
		a.health = append(a.health, pingHealther{dbx.PingContext})
		return nil
	default:
		return fmt.Errorf("unknown database driver %q: %w", a.cfg.Database.Driver, domain.ErrConfiguration)
	}
}

type pingHealther struct {
	ping func(ctx context.Context) error
}

func (p pingHealther) HealthCheck(ctx context.Context) error { return p.ping(ctx) }

func (a *app) buildEmbedder() (embedder, error) {
	provCfg := a.cfg.EmbeddingProvider()

	var base embedder
	switch a.cfg.Embedding.Provider {
	case "openai":
		base = openai.NewEmbedder(openai.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      provCfg.Model,
			Dimensions: provCfg.Dimensions,
		})
	case "huggingface":
		base = huggingface.NewEmbedder(huggingface.Config{
			APIKey:     provCfg.APIKey,
			BaseURL:    provCfg.BaseURL,
			Model:      provCfg.Model,
			Dimensions: provCfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: %w",
			a.cfg.Embedding.Provider, domain.ErrConfiguration)
	}

	if !a.cfg.Cache.Enabled {
		return base, nil
	}

	kv, err := redis.NewStore(redis.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Password: a.cfg.Cache.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect embedding cache: %w", err)
	}
	a.closers = append(a.closers, kv.Close)
	a.health = append(a.health, pingHealther{kv.Ping})

	ttl := time.Duration(a.cfg.Cache.TTLHours) * time.Hour
	return embcache.New(base, kv, ttl), nil
}

func (a *app) buildGenerator() generator {
	provCfg := a.cfg.GenerationProvider()
	cfg := huggingface.Config{
		APIKey:  provCfg.APIKey,
		BaseURL: provCfg.BaseURL,
		Model:   provCfg.Model,
	}
	if a.cfg.Generation.Provider == "openai" {
		return openai.NewGenerator(openai.Config{
			APIKey:  provCfg.APIKey,
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
		})
	}
	return huggingface.NewGenerator(cfg)
}

func buildChunker(cfg config.ChunkingConfig) (pipeline.Chunker, error) {
	switch cfg.Strategy {
	case chunker.StrategyCharacter:
		return chunker.NewCharacter(chunker.Options{Size: cfg.CharSize, Overlap: cfg.CharOverlap})
	case chunker.StrategyToken:
		tok, err := tokenizer.NewTiktoken(cfg.TokenEncoding)
		if err != nil {
			return nil, err
		}
		return chunker.NewToken(tok, chunker.Options{Size: cfg.TokenSize, Overlap: cfg.TokenOverlap})
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q: %w", cfg.Strategy, domain.ErrConfiguration)
	}
}
