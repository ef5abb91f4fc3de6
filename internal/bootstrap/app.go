package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	appsvc "gopherai-docqa/internal/app"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/database"
	"gopherai-docqa/internal/platform/logger"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/storage"
	"gopherai-docqa/internal/worker"
)

// ObjectStore is the object storage surface the service needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type ingestionWorker interface {
	Start(ctx context.Context) error
	Close()
}

type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Objects     ObjectStore
	FileService *appsvc.FileService
	ChatService *appsvc.ChatService

	worker    ingestionWorker
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	a.DB = db
	if err := database.EnableVector(ctx, db); err != nil {
		a.Logger.Warn("vector extension unavailable, embeddings stored as text and searched in memory", "error", err)
	}
	if err := db.AutoMigrate(&model.FileAsset{}, &model.DocumentChunk{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.Redis = redisCli

	objects, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.Objects = objects

	fileRepo := repository.NewFileAssetRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	embeddingHTTP := &http.Client{Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second}
	embeddingAPI := ai.NewOpenAICompatibleClient(ai.ChatConfig{BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey}, embeddingHTTP)
	embedder := rag.NewEmbeddingClient(
		ai.NewEmbedder(embeddingAPI, cfg.Embedding.Model),
		rag.EmbeddingClientConfig{Dimension: cfg.Embedding.Dimension, MaxRetries: cfg.Embedding.MaxRetries},
		a.Logger,
	)

	vision, err := ai.NewVisionExtractor(ai.VisionConfig{
		BaseURL:   cfg.Vision.BaseURL,
		APIKey:    cfg.Vision.APIKey,
		Model:     cfg.Vision.Model,
		MaxTokens: cfg.Vision.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("init vision extractor failed: %w", err)
	}
	visionLog := a.Logger.With("stage", "extract", "extraction_method", ai.MethodImageVision)
	vision.OnError(func(err error) {
		visionLog.Warn("vision extraction failed", "error", err)
	})

	pipeline := rag.NewIngestionPipeline(rag.IngestionDeps{
		Files:     fileRepo,
		Chunks:    chunkRepo,
		Objects:   objects,
		Documents: extract.New(),
		Images:    vision,
		Chunker:   rag.NewChunker(rag.ChunkerConfig{Size: cfg.RAG.ChunkSize, Overlap: cfg.RAG.ChunkOverlap}),
		Embedder:  embedder,
		Logger:    a.Logger,
	})

	fileService := appsvc.NewFileService(appsvc.FileServiceDeps{
		Files:    fileRepo,
		Vectors:  chunkRepo,
		Objects:  objects,
		Locks:    cache.NewFileLock(redisCli, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second),
		Ingester: pipeline,
		Logger:   a.Logger,
	})
	if err := a.initWorker(ctx, fileService); err != nil {
		return err
	}
	a.FileService = fileService

	retriever := rag.NewRetrievalEngine(
		rag.RetrievalConfig{TopK: cfg.RAG.TopK, Threshold: cfg.RAG.SimilarityThreshold},
		a.Logger,
		rag.NewNativeSearch(chunkRepo, time.Minute),
		rag.NewMemorySearch(chunkRepo),
	)
	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey}, &http.Client{})
	orchestrator := rag.NewChatOrchestrator(
		rag.OrchestratorConfig{
			Models:       cfg.LLM.Models,
			MaxTokens:    cfg.LLM.MaxTokens,
			Temperature:  cfg.LLM.Temperature,
			CallTimeout:  time.Duration(cfg.LLM.CallTimeoutSeconds) * time.Second,
			HistoryTurns: cfg.LLM.HistoryTurns,
		},
		embedder,
		retriever,
		rag.NewKeywordMatcher(chunkRepo, cfg.RAG.TopK),
		llm,
		a.Logger,
	)
	a.ChatService = appsvc.NewChatService(
		fileRepo,
		messageRepo,
		cache.NewHistoryCache(redisCli, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second, cfg.LLM.HistoryTurns*2),
		orchestrator,
		cfg.LLM.HistoryTurns,
		a.Logger,
	)
	return nil
}

// initWorker wires the ingestion queue. Tasks go through RabbitMQ when
// configured, otherwise through an in-process pool.
func (a *App) initWorker(ctx context.Context, files *appsvc.FileService) error {
	cfg := a.Config
	switch cfg.Ingestion.Queue {
	case config.QueueRabbitMQ:
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestionQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		files.SetQueue(rabbitmqClient.NewTaskPublisher(conn, cfg.RabbitMQ.IngestionQueue))
		a.worker = worker.NewIngestionConsumer(conn, cfg.RabbitMQ.IngestionQueue, cfg.RabbitMQ.Prefetch, files.RunIngestion, a.Logger)
	default:
		pool := worker.NewPool(cfg.Ingestion.Workers, 0, files.RunIngestion, a.Logger)
		files.SetQueue(pool)
		a.worker = pool
	}

	if err := a.worker.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion worker failed: %w", err)
	}
	return nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	if cfg.Driver == config.StorageGCS {
		return storage.NewGCSStore(ctx, cfg.Bucket)
	}
	return storage.NewLocalStore(cfg.LocalRoot)
}

func (a *App) Close() error {
	var closeErr error
	if a.worker != nil {
		a.worker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if closer, ok := a.Objects.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return closeErr
}
