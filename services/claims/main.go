// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/claimsgate/services/claims/config"
	"github.com/AleutianAI/claimsgate/services/claims/evaluator"
	"github.com/AleutianAI/claimsgate/services/claims/persistence"
	"github.com/AleutianAI/claimsgate/services/claims/pipeline"
	"github.com/AleutianAI/claimsgate/services/claims/retrieval"
	"github.com/AleutianAI/claimsgate/services/claims/routes"
	"github.com/AleutianAI/claimsgate/services/claims/rules"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
	"github.com/AleutianAI/claimsgate/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "claims-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("claims-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newLLMClient picks the LLM backend from configuration.
func newLLMClient(backend string) (llm.LLMClient, error) {
	switch backend {
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CLAIMS_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("FATAL: could not load configuration: %v", err)
	}

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	// --- Rule configuration store ---
	ruleSource := rules.NewFileRuleSource(cfg.Rules.Dir)
	ruleStore := rules.NewStore(ruleSource)
	if cfg.Rules.Watch {
		watcher, err := rules.NewWatcher(ruleStore, cfg.Rules.Dir)
		if err != nil {
			slog.Warn("Rule directory watcher unavailable, cache invalidation is manual",
				"dir", cfg.Rules.Dir, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// --- Vector store (optional: lightweight mode without it) ---
	var retriever pipeline.ChunkRetriever
	var routeDeps routes.Deps
	if cfg.Weaviate.URL != "" {
		clientConf := vectorstore.DefaultClientConfig()
		clientConf.URL = cfg.Weaviate.URL
		clientConf.AllowStartDegraded = true
		rc, err := vectorstore.NewResilientClient(clientConf)
		if err != nil {
			log.Fatalf("FATAL: could not create the Weaviate client: %v", err)
		}
		defer rc.Close()

		index := vectorstore.NewIndex(rc, logger)
		if err := index.EnsureSchema(context.Background()); err != nil {
			slog.Warn("Could not ensure the vector schema, continuing degraded", "error", err)
		}

		embedder, err := vectorstore.NewOpenAIEmbedder()
		if err != nil {
			log.Fatalf("FATAL: could not create the embeddings client: %v", err)
		}

		retriever = retrieval.NewRetriever(index, embedder, logger)
		routeDeps.Index = index
		routeDeps.Embedder = embedder
	} else {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. " +
			"Running in lightweight mode (deterministic checks only feed the LLM).")
	}

	// --- LLM evaluator ---
	llmClient, err := newLLMClient(cfg.LLM.Backend)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	evalCfg := evaluator.DefaultConfig()
	evalCfg.MaxTokens = cfg.LLM.MaxTokens
	evalCfg.MaxAttempts = cfg.LLM.MaxAttempts
	evalCfg.RequestsPerSecond = cfg.LLM.RequestsPerSecond
	adjudicator, err := evaluator.NewEvaluator(llmClient, evalCfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize the LLM evaluator: %v", err)
	}

	// --- Result persistence ---
	var store persistence.Store
	if cfg.Persistence.InMemory {
		store = persistence.NewMemoryStore()
	} else {
		badgerCfg := persistence.DefaultBadgerConfig()
		badgerCfg.Path = cfg.Persistence.Path
		badgerCfg.Logger = logger
		store, err = persistence.OpenBadger(badgerCfg)
		if err != nil {
			log.Fatalf("Failed to open the result store: %v", err)
		}
	}
	defer store.Close()

	// --- Pipeline ---
	pipeCfg := pipeline.Config{
		Workers:          cfg.Pipeline.Workers,
		TopK:             cfg.Pipeline.TopK,
		RetrievalTimeout: time.Duration(cfg.Pipeline.RetrievalTimeoutSeconds) * time.Second,
		LLMTimeout:       time.Duration(cfg.Pipeline.LLMTimeoutSeconds) * time.Second,
	}
	orc, err := pipeline.NewOrchestrator(pipeCfg, ruleStore, retriever, adjudicator, store, logger)
	if err != nil {
		log.Fatalf("Failed to initialize the pipeline: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("claims-service"))

	routeDeps.RuleStore = ruleStore
	routeDeps.Orchestrator = orc
	routeDeps.ResultStore = store
	routes.SetupRoutes(router, routeDeps)
	log.Println("started up the container")

	log.Println("Starting the claims server on port ", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
