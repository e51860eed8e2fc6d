package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/genai"

	errorx "github.com/pdfchat-core/server/internal/core/error"

	"github.com/pdfchat-core/server/internal/agent/graph"
	"github.com/pdfchat-core/server/internal/agent/graph/tools"
	"github.com/pdfchat-core/server/internal/agent/model"
	"github.com/pdfchat-core/server/internal/agent/repo"
	"github.com/pdfchat-core/server/internal/core"
	"github.com/pdfchat-core/server/internal/docstore"
	"github.com/pdfchat-core/server/internal/retrieval"
	"github.com/pdfchat-core/server/internal/server"
	logx "github.com/pdfchat-core/server/pkg/logger"
	pkgredis "github.com/pdfchat-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Logging
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router       model.RouterModelConfig
	Agent        model.AgentModelConfig
	Conversation model.ConversationConfig
	Timeouts     model.TimeoutConfig
	Web          tools.WebSearchConfig

	// Storage
	Docs  docstore.Config
	Index retrieval.IndexConfig

	// HTTP boundary
	HTTP server.Config
}

func main() {
	var (
		message = flag.String("message", "", "answer a single message and exit")
		repl    = flag.Bool("repl", false, "interactive chat on stdin")
		reindex = flag.Bool("reindex", false, "rebuild the retrieval index and exit")
	)
	flag.Parse()

	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{
		Environment: cfg.Environment,
		FilePath:    cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
	})

	docs, err := docstore.New(cfg.Docs)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to open document store")
	}

	index, err := buildIndex(ctx, cfg, docs)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to open retrieval index")
	}

	if *reindex {
		if err := index.Rebuild(ctx); err != nil {
			logx.Fatal().Err(err).Msg("index rebuild failed")
		}
		logx.Info().Msg("index rebuilt")
		return
	}
	if !index.HasDocuments() {
		if err := index.Rebuild(ctx); err != nil {
			logx.Warn().Err(err).Msg("initial index build failed, starting without documents")
		}
	}

	checkpoints, closeRepo, err := buildCheckpointStore(cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise checkpoint store")
	}
	defer closeRepo()

	engine, err := graph.BuildEngine(ctx, graph.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		RouterModel:  cfg.Router,
		AgentModel:   cfg.Agent,
		Conversation: cfg.Conversation,
		Timeouts:     cfg.Timeouts,
		WebSearch:    cfg.Web,
		Repo:         checkpoints,
		Retriever:    retrieval.NewGateway(index, cfg.Index.TopK),
		Docs:         docs,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build conversation engine")
	}

	switch {
	case *message != "":
		runOnce(ctx, engine, *message)
	case *repl:
		runREPL(ctx, engine)
	default:
		serve(ctx, cfg, engine, docs, index)
	}
}

func buildIndex(ctx context.Context, cfg AppConfig, docs *docstore.Store) (*retrieval.Index, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	embedder := retrieval.NewGeminiEmbedder(client, cfg.Index.EmbeddingModel)
	return retrieval.NewIndex(cfg.Index, docs, retrieval.EmbeddingFunc(embedder))
}

func buildCheckpointStore(cfg AppConfig) (model.CheckpointRepository, func(), error) {
	noop := func() {}
	switch cfg.Conversation.CheckpointBackend {
	case "redis":
		if !cfg.Redis.Configured() {
			logx.Warn().Msg("REDIS_URL not set, falling back to in-memory checkpoint store")
			return repo.NewMemoryCheckpointStore(), noop, nil
		}
		ttl, err := time.ParseDuration(cfg.Conversation.TTL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
		}
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, noop, err
		}
		logx.Info().Msg("using redis checkpoint store")
		return repo.NewRedisCheckpointStore(rdb, ttl), func() { _ = rdb.Close() }, nil
	case "memory":
		logx.Info().Msg("using in-memory checkpoint store")
		return repo.NewMemoryCheckpointStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown CHECKPOINTER_BACKEND %q", cfg.Conversation.CheckpointBackend)
	}
}

func runOnce(ctx context.Context, engine *graph.Engine, message string) {
	answer, err := engine.Run(ctx, model.TurnInput{
		ThreadID: uuid.NewString(),
		Message:  message,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("chat turn failed")
	}
	fmt.Println(answer)
}

func runREPL(ctx context.Context, engine *graph.Engine) {
	threadID := uuid.NewString()
	fmt.Printf("thread %s, type a message (ctrl-d to exit)\n", threadID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		answer, err := engine.Run(ctx, model.TurnInput{
			ThreadID: threadID,
			Message:  scanner.Text(),
		})
		if err != nil {
			fmt.Printf("error (%d): %v\n", errorx.StatusOf(err), err)
			continue
		}
		fmt.Println(answer)
	}
}

func serve(ctx context.Context, cfg AppConfig, engine *graph.Engine, docs *docstore.Store, index *retrieval.Index) {
	srv := server.New(cfg.HTTP, engine, docs, index)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logx.Fatal().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
		logx.Info().Msg("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Error().Err(err).Msg("shutdown failed")
		}
	}
}
