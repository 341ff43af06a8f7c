// ctxfusiond runs the retrieval and fusion pipeline as a standalone
// process for local exercising: seed an in-memory store, run one query
// through the orchestrator, and print the resulting envelope.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/kestrellabs/ctxfusion/internal/config"
	"github.com/kestrellabs/ctxfusion/internal/embed"
	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/obslog"
	"github.com/kestrellabs/ctxfusion/internal/obsmetrics"
	"github.com/kestrellabs/ctxfusion/internal/pipeline"
	"github.com/kestrellabs/ctxfusion/internal/store"
)

func main() {
	// Load environment from .env (or fallback to example.env) before
	// anything else so LOG_PATH/LOG_LEVEL/CONFIG_PATH env overrides are
	// available before the logger and config load.
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	defaultConfig, defaultLogLevel := "config.yaml", "info"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		defaultLogLevel = v
	}
	configPath := flag.String("config", defaultConfig, "path to pipeline config")
	query := flag.String("query", "", "query to retrieve context for")
	sessionID := flag.String("session", "", "session id for conversation-recall scoping")
	logPath := flag.String("log-path", os.Getenv("LOG_PATH"), "log file path (stdout if empty)")
	logLevel := flag.String("log-level", defaultLogLevel, "zerolog level")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: ctxfusiond -query \"...\" [-config config.yaml]")
		os.Exit(2)
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	logger := obslog.New(*logPath, *logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	backend := store.NewMemoryBackend()
	backend.Seed(sampleChunks()...)

	orch := pipeline.New(backend, cfg,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(obsmetrics.NewOtel()),
		pipeline.WithEmbedder(embed.NewDeterministic(256, true, 1)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PipelineSoftCap+5*time.Second)
	defer cancel()

	if err := orch.SelfTest(ctx); err != nil {
		log.Fatal().Err(err).Msg("embeddings backend sanity check failed")
	}

	res, err := orch.Retrieve(ctx, *query, *sessionID)
	switch {
	case errors.Is(err, pipeline.ErrStoreUnavailable), errors.Is(err, pipeline.ErrCancelled):
		log.Fatal().Err(err).Msg("retrieve failed")
	case err != nil:
		// Degraded but non-fatal: the envelope below still reflects best-effort
		// results (e.g. a slow pipeline or a failed query embedding).
		log.Warn().Err(err).Msg("retrieve degraded")
	}

	out, _ := json.MarshalIndent(res.Envelope, "", "  ")
	fmt.Println(string(out))
}

func sampleChunks() []memory.Chunk {
	now := time.Now()
	return []memory.Chunk{
		{
			ID:      "readme-1",
			Content: "Project README: CtxFusion is a memory-aware context retrieval pipeline.",
			Metadata: memory.Metadata{
				SourceKind: memory.SourceRepoFile,
				Repository: "ctxfusion",
				Path:       "README.md",
				Timestamp:  now.Add(-72 * time.Hour),
			},
		},
		{
			ID:      "decision-1",
			Content: "We decided to adopt a bounded exponential decay for temporal weighting.",
			Metadata: memory.Metadata{
				SourceKind: memory.SourceNote,
				Timestamp:  now.Add(-24 * time.Hour),
			},
		},
	}
}
