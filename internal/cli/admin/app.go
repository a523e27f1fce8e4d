package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/fhirchat/internal/config"
	"github.com/cloo-solutions/fhirchat/internal/database"
	"github.com/cloo-solutions/fhirchat/internal/index"
	"github.com/cloo-solutions/fhirchat/internal/jobs"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/cloo-solutions/fhirchat/internal/openai"
	"github.com/cloo-solutions/fhirchat/internal/repository"
	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/cloo-solutions/fhirchat/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

// snippetIndex is satisfied by both the pgvector repository and the
// in-process index.
type snippetIndex interface {
	service.KnowledgeIndex
	service.SnippetStore
	Delete(ctx context.Context, id string) error
}

type chatLogStore interface {
	service.ChatLogRepository
	jobs.ChatLogExportSource
}

type appOptions struct {
	migrate       bool
	migrationsDir string
}

// app holds the wired pipeline shared by serve, ingest and export-logs.
type app struct {
	cfg          *config.Config
	log          *logging.Logger
	pool         *pgxpool.Pool
	llm          *openai.Client
	classifier   *service.ScopeClassifier
	snippets     snippetIndex
	chatLogs     chatLogStore
	interactions *service.InteractionLogger
	ingest       *service.IngestService
	chat         *service.ChatService
}

func newLogger(cfg *config.Config) *logging.Logger {
	if cfg.Debug {
		return logging.NewConsole(cfg.LogLevel)
	}
	return logging.New(nil, cfg.LogLevel)
}

func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger, opts appOptions) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	a := &app{cfg: cfg, log: log}

	a.llm = openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
	})

	terms := service.DefaultScopeTerms()
	if cfg.ScopeTermsFile != "" {
		loaded, err := config.LoadScopeTerms(cfg.ScopeTermsFile)
		if err != nil {
			return nil, err
		}
		terms = loaded
	}
	classifier, err := service.NewScopeClassifier(terms)
	if err != nil {
		return nil, fmt.Errorf("failed to build scope classifier: %w", err)
	}
	a.classifier = classifier

	if cfg.HasDatabase() {
		if opts.migrate {
			if err := database.RunMigrations(cfg.DatabaseURL, opts.migrationsDir, log.Sub("migrate")); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.pool = pool
		a.snippets = repository.NewSnippetRepository(pool, a.llm)
		a.chatLogs = repository.NewChatLogRepository(pool)
		log.Info().Msg("using postgres stores")
	} else {
		idx, err := index.NewMemoryIndex(a.llm.GenerateEmbedding)
		if err != nil {
			return nil, err
		}
		a.snippets = idx
		a.chatLogs = repository.NewMemoryChatLogStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory stores")
	}

	a.interactions = service.NewInteractionLogger(a.chatLogs, log.Sub("chat_log"))
	a.ingest = service.NewIngestService(a.llm, a.snippets, log.Sub("ingest"))

	generator := service.NewGenerator(a.llm, service.GeneratorConfig{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.GenerationTimeout,
	})
	retriever := service.NewRetriever(a.snippets, cfg.RetrievalTimeout, log.Sub("retriever"))

	a.chat = service.NewChatService(classifier, retriever, generator, a.interactions, service.ChatServiceConfig{
		HistoryTurns:   cfg.HistoryTurns,
		RetrievalLimit: cfg.RetrievalLimit,
	}, log.Sub("chat"))

	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// newLogExporter returns nil when no bucket is configured.
func (a *app) newLogExporter(ctx context.Context) (*jobs.LogExporter, error) {
	if !a.cfg.HasS3() {
		return nil, nil
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        a.cfg.S3Endpoint,
		Region:          a.cfg.S3Region,
		AccessKeyID:     a.cfg.S3AccessKey,
		SecretAccessKey: a.cfg.S3SecretKey,
		Bucket:          a.cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	a.log.Info().Str("bucket", a.cfg.S3Bucket).Msg("S3 bucket ready")

	return jobs.NewLogExporter(a.chatLogs, s3Client, a.log.Sub("export")), nil
}
