package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrellabs/ctxfusion/internal/artifact"
	"github.com/kestrellabs/ctxfusion/internal/embed"
	"github.com/kestrellabs/ctxfusion/internal/envelope"
	"github.com/kestrellabs/ctxfusion/internal/fusion"
	"github.com/kestrellabs/ctxfusion/internal/intent"
	"github.com/kestrellabs/ctxfusion/internal/memory"
	"github.com/kestrellabs/ctxfusion/internal/obslog"
	"github.com/kestrellabs/ctxfusion/internal/obsmetrics"
	"github.com/kestrellabs/ctxfusion/internal/provenance"
	"github.com/kestrellabs/ctxfusion/internal/retrieve"
	"github.com/kestrellabs/ctxfusion/internal/store"
	"github.com/kestrellabs/ctxfusion/internal/temporal"
	"github.com/kestrellabs/ctxfusion/internal/util"
)

// Orchestrator is the single entrypoint (C11) sequencing C5 through C9,
// emitting diagnostics, and honoring cancellation and stage budgets.
type Orchestrator struct {
	retriever *retrieve.Retriever
	cfg       Config
	log       obslog.Logger
	metrics   obsmetrics.Metrics
	clock     func() time.Time
	embedder  embed.Backend
	tracer    trace.Tracer
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l obslog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithMetrics sets a custom metrics sink.
func WithMetrics(m obsmetrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithClock overrides time.Now for deterministic tests.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.clock = now } }

// WithEmbedder attaches an embeddings backend. SelfTest runs the pilot-mode
// sanity contract against it, and the retriever uses it to embed knowledge
// queries and recompute similarity for chunks that carry an embedding.
func WithEmbedder(b embed.Backend) Option { return func(o *Orchestrator) { o.embedder = b } }

// New constructs an Orchestrator. cfg is defaulted via ApplyDefaults.
func New(s store.MemoryStore, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.ApplyDefaults()
	o := &Orchestrator{
		cfg:     cfg,
		log:     obslog.Noop{},
		metrics: obsmetrics.Noop{},
		clock:   time.Now,
		tracer:  otel.Tracer("ctxfusion/pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	enf := provenance.NewEnforcer(clockAdapter{o.clock})
	enf.SkewTolerance = cfg.ClockSkewTolerance
	o.retriever = retrieve.NewRetriever(s, enf, o.clock)
	o.retriever.Embedder = o.embedder
	return o
}

type clockAdapter struct{ now func() time.Time }

func (c clockAdapter) Now() time.Time { return c.now() }

// tracedLogger stamps every log line emitted during one Retrieve call with
// the span's trace id, mirroring the logger-with-trace-id attachment
// pattern without pulling tracing concerns into obslog itself.
type tracedLogger struct {
	obslog.Logger
	traceID string
}

func (t *tracedLogger) withTrace(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["trace_id"] = t.traceID
	return out
}

func (t *tracedLogger) Info(msg string, fields map[string]any)  { t.Logger.Info(msg, t.withTrace(fields)) }
func (t *tracedLogger) Error(msg string, fields map[string]any) { t.Logger.Error(msg, t.withTrace(fields)) }
func (t *tracedLogger) Debug(msg string, fields map[string]any) { t.Logger.Debug(msg, t.withTrace(fields)) }
func (t *tracedLogger) Warn(msg string, fields map[string]any)  { t.Logger.Warn(msg, t.withTrace(fields)) }

// SelfTest runs the embeddings-backend sanity contract (§6), fatal only in
// pilot mode.
func (o *Orchestrator) SelfTest(ctx context.Context) error {
	if o.embedder == nil {
		return nil
	}
	if err := embed.SelfTest(ctx, o.embedder, o.cfg.PilotMode); err != nil {
		return ErrSanity
	}
	return nil
}

// Result bundles the final envelope with the orchestrator-view candidate
// list, capped separately per §6's orchestratorViewCount.
type Result struct {
	Envelope         memory.FusionEnvelope
	OrchestratorView []memory.Candidate
}

func minimalEnvelope(rationale string) memory.FusionEnvelope {
	return memory.FusionEnvelope{
		MemoryCards:   nil,
		MemoryWeight:  0.2,
		GeneralWeight: 0.8,
		GKAllowance:   3,
		Rationale:     rationale,
		RoutingHint:   memory.RoutingGeneralFirst,
		HadCandidates: false,
	}
}

// Retrieve runs C5 through C9 for a single query and returns the final
// envelope. sessionID scopes the conversation-recall path.
func (o *Orchestrator) Retrieve(ctx context.Context, query, sessionID string) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Retrieve")
	defer span.End()
	log := o.log
	if sc := span.SpanContext(); sc.HasTraceID() {
		log = &tracedLogger{Logger: o.log, traceID: sc.TraceID().String()}
	}

	stageDurations := map[string]time.Duration{}
	track := func(stage string, start time.Time) {
		d := time.Since(start)
		stageDurations[stage] = d
		o.metrics.ObserveHistogram("pipeline_stage_ms", float64(d.Milliseconds()), map[string]string{"stage": stage})
	}

	if ctx.Err() != nil {
		return Result{Envelope: minimalEnvelope("cancelled")}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	pipelineStart := o.clock()

	t0 := o.clock()
	intentResult := intent.Classify(query)
	track("intent", t0)

	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreCallBudget)
	defer cancel()

	t0 = o.clock()
	var (
		candidates    []memory.Candidate
		retDiag       retrieve.Diagnostics
		err           error
		embedDegraded bool
	)
	if intentResult.Intent == intent.ConversationRecall {
		candidates, retDiag, err = o.retriever.ConversationRecall(storeCtx, sessionID, intentResult.Scope == intent.ScopeGlobal, o.cfg.FinalCoreCount)
	} else {
		candidates, embedDegraded, err = o.retriever.KnowledgeQuery(storeCtx, query, o.cfg.InitialRetrievalCount, o.cfg.SimilarityThreshold)
	}
	track("candidate_retrieval", t0)

	if err != nil {
		log.Error("candidate retrieval failed", map[string]any{"err": err.Error()})
		return Result{Envelope: minimalEnvelope("store unavailable")}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if embedDegraded {
		log.Warn("query embedding failed, falling back to store-provided similarity", nil)
	}

	if ctx.Err() != nil {
		return Result{Envelope: minimalEnvelope("cancelled")}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	now := o.clock()
	hints := temporal.DeriveHints(query)

	if intentResult.Intent != intent.ConversationRecall {
		t0 = o.clock()
		candidates, violations := scoreAndGate(candidates, now, hints, o.cfg)
		for _, v := range violations {
			log.Error("temporal multiplier bounds violation", map[string]any{"candidate": v.CandidateID, "value": v.Value})
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Salience > candidates[j].Salience })
		track("salience", t0)

		t0 = o.clock()
		selected, divDiag := retrieve.Diversify(candidates, o.cfg.FinalCoreCount, o.cfg.quotas())
		track("diversify", t0)

		t0 = o.clock()
		selected = o.expand(storeCtx, selected, now, hints)
		track("expansion", t0)

		candidates = selected
		retDiag = retrieve.Diagnostics{HadCandidates: len(selected) > 0}
		stageDurations["diversity_swaps"] = time.Duration(divDiag.Swaps)
	}

	if ctx.Err() != nil {
		return Result{Envelope: minimalEnvelope("cancelled")}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	orchestratorView := candidates
	if len(orchestratorView) > o.cfg.OrchestratorViewCount {
		orchestratorView = orchestratorView[:o.cfg.OrchestratorViewCount]
	}

	fallbackCount := 0
	for _, c := range candidates {
		if c.Chunk.Metadata.TimestampFallback {
			fallbackCount++
		}
	}
	fallbackPct := 0.0
	if len(candidates) > 0 {
		fallbackPct = float64(fallbackCount) / float64(len(candidates))
	}

	cards := buildCards(candidates, o.cfg.MaxMemoryLength)
	cards = enforceContextBudget(cards, o.cfg.MaxContextLength)

	t0 = o.clock()
	fres := fusion.Compose(cards)
	track("fusion", t0)

	lowConfCount := 0
	for _, c := range cards {
		if c.LowConfidence {
			lowConfCount++
		}
	}

	confBreakdown := envelope.Explain(fres.Coverage, fres.UniqueSources, hints.IsTemporalQuery, 1-fallbackPct)

	cardContents := make([]string, len(cards))
	for i, c := range cards {
		cardContents[i] = c.Content
	}

	diag := memory.Diagnostics{
		Intent:              string(intentResult.Intent),
		Scope:               string(intentResult.Scope),
		CandidateCount:       len(candidates),
		SelectedCount:        len(cards),
		StageDurations:       stageDurations,
		UniqueSources:        fres.UniqueSources,
		SessionsRepresented:  retDiag.SessionsRepresented,
		TimelineSpanMinutes:  retDiag.TimelineSpanMinutes,
		Coverage:             fres.Coverage,
		Homogeneity:          fres.Homogeneity,
		TimestampFallbackPct: fallbackPct,
		TotalTokens:          util.SumTokens(cardContents),
		ConfidenceBreakdown: memory.ConfidenceBreakdown{
			Coverage:          confBreakdown.Coverage,
			UniqueSources:     confBreakdown.UniqueSources,
			TimestampCoverage: confBreakdown.TimestampCoverage,
			IsTemporalQuery:   confBreakdown.IsTemporalQuery,
			Bracket:           string(confBreakdown.Final),
		},
	}

	env := memory.FusionEnvelope{
		MemoryCards:        cards,
		AvgSalience:        fres.AvgSalience,
		MemoryWeight:       fres.MemoryWeight,
		GeneralWeight:      fres.GeneralWeight,
		GKAllowance:        fres.GKAllowance,
		Rationale:          "ok",
		RoutingHint:        fres.RoutingHint,
		HadCandidates:       retDiag.HadCandidates || len(cards) > 0,
		LowConfidenceCount: lowConfCount,
		Diagnostics:        diag,
	}
	if !env.HadCandidates {
		env.Rationale = "no candidates"
	}

	var degraded error
	if elapsed := o.clock().Sub(pipelineStart); elapsed > o.cfg.PipelineSoftCap {
		log.Warn("pipeline exceeded soft cap", map[string]any{"elapsed_ms": elapsed.Milliseconds()})
		degraded = ErrOverloaded
	}
	if embedDegraded {
		degraded = errors.Join(degraded, ErrEmbeddingFailure)
	}

	return Result{Envelope: env, OrchestratorView: orchestratorView}, degraded
}

func scoreAndGate(cands []memory.Candidate, now time.Time, hints temporal.Hints, cfg Config) ([]memory.Candidate, []retrieve.BoundsViolation) {
	scored, violations := retrieve.Score(cands, now, hints, cfg.tuning(), cfg.ProvenancePenalty.Missing, cfg.ProvenancePenalty.Stale)
	gated := retrieve.DynamicGate(scored)
	return gated, violations
}

// expand runs the semantic re-query expansion stage and folds any new
// candidates back into the selection via another diversity pass.
func (o *Orchestrator) expand(ctx context.Context, selected []memory.Candidate, now time.Time, hints temporal.Hints) []memory.Candidate {
	extra, err := retrieve.ExpandSemantic(ctx, o.retriever.Store, selected, o.cfg.ExpansionTopK, o.cfg.ExpansionPerSeed, o.cfg.ExpansionTotal)
	if err != nil || len(extra) == 0 {
		return selected
	}
	extra, _ = retrieve.Score(extra, now, hints, o.cfg.tuning(), o.cfg.ProvenancePenalty.Missing, o.cfg.ProvenancePenalty.Stale)

	pool := make([]memory.Candidate, 0, len(selected)+len(extra))
	pool = append(pool, selected...)
	pool = append(pool, extra...)
	sort.Slice(pool, func(i, j int) bool { return pool[i].Salience > pool[j].Salience })

	merged, _ := retrieve.Diversify(pool, o.cfg.FinalCoreCount, o.cfg.quotas())
	return merged
}

func buildCards(cands []memory.Candidate, maxLen int) []memory.MemoryCard {
	cards := make([]memory.MemoryCard, 0, len(cands))
	for i, c := range cands {
		content := c.Chunk.Content
		if maxLen > 0 && len(content) > maxLen {
			content = content[:maxLen]
		}
		cards = append(cards, memory.MemoryCard{
			Label:         labelFor(i),
			Content:       content,
			Tokens:        util.CountTokens(content),
			Salience:      c.Salience,
			SourceID:      retrieve.StableKey(c),
			LowConfidence: c.LowConfidence,
			Explanation:   c.Explanation,
		})
	}
	return cards
}

func labelFor(i int) string {
	letters := "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return string(letters[i])
	}
	return ""
}

// enforceContextBudget drops whole lowest-salience cards until the total
// character budget is respected. Partial-card truncation is intentionally
// unspecified (§9 open question), so cards are only ever dropped whole.
func enforceContextBudget(cards []memory.MemoryCard, maxContextLength int) []memory.MemoryCard {
	if maxContextLength <= 0 {
		return cards
	}
	total := 0
	for _, c := range cards {
		total += len(c.Content)
	}
	for total > maxContextLength && len(cards) > 0 {
		last := cards[len(cards)-1]
		total -= len(last.Content)
		cards = cards[:len(cards)-1]
	}
	return cards
}

// ArtifactClassify is exposed so callers ingesting conversation summaries
// can reach C3 without importing the artifact package directly.
func ArtifactClassify(summary string) artifact.Result { return artifact.Classify(summary) }

// EnforceAnswer runs C10 against generator output once the caller has made
// the external LLM call sitting between fusion and the answer envelope: it
// strips hedging language and enforces the CONFIDENCE/NEXT_RETRIEVALS
// footer using the diagnostics this query's Retrieve already computed.
func (o *Orchestrator) EnforceAnswer(res Result, query, answerText string) string {
	hints := temporal.DeriveHints(query)
	timestampCoverage := 1 - res.Envelope.Diagnostics.TimestampFallbackPct
	text := envelope.DeHedge(answerText)
	return envelope.EnforceFooter(text, res.Envelope.Diagnostics.Coverage, res.Envelope.Diagnostics.UniqueSources, hints.IsTemporalQuery, timestampCoverage, res.Envelope.MemoryCards, query)
}
