// Package pipeline turns one inbound message into a categorized,
// persisted note. Stage order is fixed: transcription, refinement,
// classification, persistence. The first three stages degrade to
// fallback values by contract and can never fail a run; persistence is
// the only stage whose failure is reported to the user.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"notebot/internal/domain"
	"notebot/internal/metrics"
	"notebot/internal/store"
)

// Input is the material to enrich. When AudioRef is set the source
// text is obtained by transcription; otherwise SourceText is used as-is.
type Input struct {
	SourceText string
	AudioRef   string
}

// Config wires the pipeline's collaborators.
type Config struct {
	Inference domain.Inference
	Store     domain.NoteStore
	Logger    *slog.Logger
}

// Pipeline runs the enrichment sequence. It holds no per-run state and
// is safe for concurrent use.
type Pipeline struct {
	inference domain.Inference
	store     domain.NoteStore
	logger    *slog.Logger
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		inference: cfg.Inference,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
}

// Run executes one enrichment sequence and returns its outcome.
func (p *Pipeline) Run(ctx context.Context, in Input) domain.Outcome {
	source := in.SourceText
	if in.AudioRef != "" {
		// An empty transcription is "no speech recognized", not an
		// abort: the run continues and the empty-body guard below
		// decides its fate.
		source = p.timed(ctx, domain.StageTranscription, in.AudioRef, p.inference.Transcribe)
	}

	body := p.timed(ctx, domain.StageRefinement, source, p.inference.Refine)
	category := p.timed(ctx, domain.StageClassification, body, p.inference.Classify)

	if strings.TrimSpace(body) == "" {
		// Mirrors the store's own empty-body guard, applied here to
		// avoid a wasted network call.
		p.logger.Info("nothing to persist after enrichment")
		metrics.PipelineFailures.Inc()
		return domain.FailedOutcome(domain.StagePersistence, domain.CauseEmptyContent)
	}

	note := domain.Note{
		Body:     body,
		Category: category,
		Title:    store.TruncateTitle(body),
	}

	start := time.Now()
	err := p.store.Save(ctx, note)
	metrics.StageLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.Error("note save failed", "err", err, "category", category)
		metrics.PipelineFailures.Inc()
		return domain.FailedOutcome(domain.StagePersistence, domain.CauseStoreError)
	}

	metrics.NotesSavedTotal.Inc()
	p.logger.Info("note enriched and saved", "category", category, "body_len", len(body))
	return domain.SavedOutcome(category)
}

// timed runs one enrichment stage and records its latency.
func (p *Pipeline) timed(ctx context.Context, stage domain.Stage, input string, fn func(context.Context, string) string) string {
	start := time.Now()
	out := fn(ctx, input)
	elapsed := time.Since(start)
	metrics.StageLatency.Observe(elapsed.Seconds())
	p.logger.Debug("stage complete", "stage", string(stage), "elapsed", elapsed)
	return out
}
