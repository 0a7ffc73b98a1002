package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videoChat/config"
	"videoChat/core"
	"videoChat/processors"
	"videoChat/server"
	"videoChat/storage"
	"videoChat/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	cfg.PrintConfigInstructions()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 存储初始化
	vectors := storage.NewVectorStore(ctx, cfg)
	defer closeQuietly("vector store", vectors.Close)
	slog.Info("Vector store initialized", "backend", vectors.Backend())

	history := storage.NewHistoryStore(ctx, cfg)
	defer closeQuietly("history store", history.Close)

	// 外部服务
	llm := processors.NewOpenAIClient(cfg)
	index := processors.NewContextIndex(vectors, processors.NewOpenAIEmbedder(llm, cfg.EmbeddingModel), cfg.ChunkWords, logger)
	chat := processors.NewRAGChat(index, processors.NewOpenAICompleter(llm, cfg.ChatModel), history, cfg.TopK, cfg.HistoryLimit, logger)
	manager := processors.NewManager(index, chat, history, cfg.UpstreamTimeout, logger)
	if err := manager.Restore(ctx, storage.NewPointerStore(history)); err != nil {
		slog.Warn("Failed to restore context pointer", "error", err)
	}

	youtube, err := processors.NewYouTubeMetadataFetcher(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		slog.Error("Failed to initialize YouTube client", "error", err)
		os.Exit(1)
	}
	metadata := processors.NewCachedMetadataFetcher(youtube, cfg.MetadataCacheTTL, 1000)
	transcripts := processors.NewTranscriptService(processors.NewYouTubeCaptions(cfg.UpstreamTimeout), cfg.TranscriptLang, logger)
	pipeline := processors.NewVideoPipeline(metadata, transcripts, manager, cfg.UpstreamTimeout, logger)

	health := core.NewHealthMonitor(5 * time.Second)
	health.Register("vector_store", func(ctx context.Context) error {
		_, err := vectors.Exists(ctx, processors.KeyPrefix("health-probe"))
		return err
	})
	health.Register("chat_history", func(ctx context.Context) error {
		_, err := history.Recent(ctx, "health-probe", 1)
		return err
	})
	health.Register("openai", func(context.Context) error {
		if !cfg.HasValidAPI() {
			return core.ErrNotConfigured
		}
		return nil
	})
	health.Register("youtube", func(context.Context) error {
		if !cfg.HasYouTubeAPI() {
			return core.ErrNotConfigured
		}
		return nil
	})

	router := server.NewRouter(server.Routes{
		Videos:         server.NewVideoHandlers(pipeline, manager),
		Monitoring:     server.NewMonitoringHandlers(manager, vectors.Backend(), health, metadata),
		Frontend:       web.SPAHandler(),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// No WriteTimeout: ingest runs several upstream calls back to back.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server stopped")
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Error("Failed to close "+name, "error", err)
	}
}
