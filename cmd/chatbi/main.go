package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbi/internal/config"
	"chatbi/internal/handlers"
	"chatbi/internal/history"
	"chatbi/internal/llm"
	"chatbi/internal/logger"
	"chatbi/internal/metadata"
	"chatbi/internal/search"
	"chatbi/internal/server"
	"chatbi/internal/suggest"
	"chatbi/internal/vector"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	mainLogger, err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, "main")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	mainLogger.Info("ChatBI autocomplete service starting", logger.Fields{
		"version": handlers.Version,
		"mode":    cfg.Server.Mode,
	})

	// 关键词索引，向量维度用于knn后备映射
	searchClient := search.NewClient(&cfg.OpenSearch, cfg.Embedding.Dimension)
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := searchClient.EnsureIndex(startupCtx); err != nil {
		mainLogger.WithError(err).Warn("Search index initialization failed, keyword recall may be degraded")
	}
	cancel()

	// 行为历史存储
	redisStore := history.NewRedisStore(&cfg.Redis)
	defer redisStore.Close()
	personalizer := history.NewPersonalizer(redisStore, &cfg.Autocomplete)
	sequences := history.NewSequenceMiner(redisStore)

	// 向量路
	encoder := vector.NewEmbeddingClient(&cfg.Embedding)
	var vectorSource *vector.ChromaSource
	if cfg.VectorDB.Enabled {
		vectorSource, err = vector.NewChromaSource(&cfg.VectorDB)
		if err != nil {
			mainLogger.WithError(err).Warn("Vector store initialization failed, falling back to index knn recall")
			vectorSource = nil
		}
	}

	// LLM扩展
	expander := llm.NewExpander(&cfg.LLM)

	// 融合与前缀补全，向量库不可用时退回索引自身的knn向量路
	var fusion *suggest.Fusion
	knnSource := suggest.NewKNNSource(searchClient)
	if vectorSource != nil {
		fusion = suggest.NewFusion(searchClient, vectorSource, encoder)
	} else {
		fusion = suggest.NewFusion(searchClient, knnSource, encoder)
	}

	var prefixCompleter suggest.PrefixMode
	if cfg.Autocomplete.EnablePrefixPreserving {
		completer, err := suggest.NewPrefixCompleter(searchClient, expander, &cfg.Autocomplete)
		if err != nil {
			mainLogger.WithError(err).Warn("Prefix completer initialization failed, long queries use the regular pipeline")
		} else {
			prefixCompleter = completer
		}
	}

	deps := suggest.EngineDeps{
		Fusion:       fusion,
		Personalizer: personalizer,
		Sequences:    sequences,
		Related:      expander,
		Prefix:       prefixCompleter,
		Indexer:      searchClient,
		Encoder:      encoder,
	}
	if vectorSource != nil {
		deps.VectorIndex = vectorSource
	} else {
		deps.VectorIndex = knnSource
	}
	engine := suggest.NewEngine(deps, &cfg.Autocomplete)

	// 元数据服务
	var metadataHandler *handlers.MetadataHandler
	metadataService, err := metadata.NewService(&cfg.Metadata, engine)
	if err != nil {
		mainLogger.WithError(err).Warn("Metadata service initialization failed, metadata endpoints disabled")
	} else {
		metadataHandler = handlers.NewMetadataHandler(metadataService)
	}

	healthHandler := handlers.NewHealthHandler(map[string]handlers.ComponentChecker{
		"opensearch": searchClient.Ping,
		"redis":      redisStore.Ping,
	})

	srv := server.New(cfg, server.Handlers{
		Autocomplete: handlers.NewAutocompleteHandler(engine),
		Metadata:     metadataHandler,
		Health:       healthHandler,
	})

	go func() {
		if err := srv.Start(); err != nil {
			mainLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutdown signal received")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("Server forced to shutdown")
	}

	mainLogger.Info("Server exited")
}
