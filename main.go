package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docforge/features/document"
	"docforge/features/ingest"
	"docforge/internal/adapter/convert"
	"docforge/internal/adapter/gemini"
	wstore "docforge/internal/adapter/weaviate"
	"docforge/internal/config"
	"docforge/internal/domaincfg"
	"docforge/internal/extract"
	"docforge/internal/graph"
	"docforge/internal/index"
	"docforge/internal/logger"
	"docforge/internal/middleware"
	"docforge/internal/queue"
	"docforge/internal/storage"
	"docforge/internal/vector"
	"docforge/internal/worker"
)

func main() {
	slog.SetDefault(logger.NewJSON(os.Stdout))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Domain configuration: malformed entries fail startup, not per-request.
	registry, err := domaincfg.Load(cfg.DomainConfigPath)
	if err != nil {
		slog.Error("failed to load domain config", "error", err, "path", cfg.DomainConfigPath)
		os.Exit(1)
	}
	slog.Info("domain config loaded", "domains", registry.Domains())

	// 3. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 4. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 5. Weaviate Connection & Schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewClientAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vector.EnsureSchema(context.Background(), wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}

	// 6. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// fail 404 until then; pre-create the completion topic over the http api.
	go func() {
		time.Sleep(retryDelay)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", cfg.NSQDHTTP, config.TopicCompletion)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create completion topic", "error", err, "url", url)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			slog.Info("completion topic pre-created successfully")
		}
	}()

	// 7. Adapters
	objectStore, err := storage.NewFSStore(cfg.StorageRoot)
	if err != nil {
		slog.Error("failed to init object store", "error", err)
		os.Exit(1)
	}

	converter := convert.NewClient(cfg.ConvertURL, time.Duration(cfg.ConvertTimeoutSeconds)*time.Second)

	embedder, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	chunkStore := wstore.NewStore(wClient)
	coordinator := index.NewCoordinator(chunkStore)
	dispatcher := queue.NewDispatcher(nsqProducer, cfg.DispatchMaxAttempts)

	// 8. Feature: Document (record store + status queries)
	docRepo := document.NewPostgresRepo(db)
	docHandler := document.NewHandler(docRepo)

	// 9. Feature: Ingest (validator + orchestrator)
	engine := extract.NewEngine(registry)
	validator := ingest.NewValidator(registry, cfg.MaxUploadBytes())
	orchestrator, err := ingest.NewService(
		docRepo, objectStore, converter, engine, embedder, coordinator, dispatcher,
		registry, validator, cfg.IngestionConcurrency,
		ingest.Options{
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
			ConvertTimeout: time.Duration(cfg.ConvertTimeoutSeconds) * time.Second,
			StorageTimeout: time.Duration(cfg.StorageTimeoutSeconds) * time.Second,
			IndexTimeout:   time.Duration(cfg.IndexTimeoutSeconds) * time.Second,
		})
	if err != nil {
		slog.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	defer orchestrator.Release()
	ingestHandler := ingest.NewHandler(orchestrator, cfg.MaxUploadBytes())

	// 10. Background Worker (Completion Consumer)
	graphUpdater := graph.NewPostgresUpdater(db)
	completionConsumer := worker.NewCompletionConsumer(graphUpdater, docRepo, cfg.GraphMaxAttempts)

	consumerCfg := nsq.NewConfig()
	consumerCfg.MaxAttempts = uint16(cfg.GraphMaxAttempts)
	consumer, err := nsq.NewConsumer(config.TopicCompletion, config.ChannelWorker, consumerCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer for completion tasks", "error", err)
	} else {
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return completionConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			slog.Info("NSQ completion consumer connected")
		}
	}

	// 11. Routes
	http.Handle("POST /documents", middleware.CorrelationID(http.HandlerFunc(ingestHandler.Submit)))
	http.Handle("GET /documents", middleware.CorrelationID(http.HandlerFunc(docHandler.List)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(http.HandlerFunc(docHandler.Get)))
	http.Handle("GET /documents/{id}/children", middleware.CorrelationID(http.HandlerFunc(docHandler.Children)))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
