package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

const tracerName = "github.com/kirillkom/script-kb-assistant/internal/core/usecase"

const (
	StageClassify   = "classify"
	StageSearch     = "search"
	StageFuse       = "fuse"
	StageSynthesize = "synthesize"
)

type intentClassifier interface {
	Classify(ctx context.Context, query string) (domain.IntentClassification, error)
}

type searchExecutor interface {
	Execute(ctx context.Context, query string, cls domain.IntentClassification) ([]domain.RankedItem, []domain.RankedItem, error)
}

type answerSynthesizer interface {
	Answer(ctx context.Context, query string, fused []domain.RankedItem, history []domain.ChatMessage) (string, []domain.Citation, error)
	Stream(ctx context.Context, query string, fused []domain.RankedItem, history []domain.ChatMessage) (*AnswerStream, error)
}

// StageObserver receives per-stage timings. Metrics adapters implement it.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

type PipelineOptions struct {
	RRFK         int
	FusedLimit   int
	StageTimeout time.Duration
}

type PipelineOption func(*Pipeline)

func WithTracerProvider(tp trace.TracerProvider) PipelineOption {
	return func(p *Pipeline) { p.tracer = tp.Tracer(tracerName) }
}

func WithStageObserver(o StageObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline runs classify, search, fuse and synthesize strictly in sequence.
type Pipeline struct {
	classifier  intentClassifier
	executor    searchExecutor
	synthesizer answerSynthesizer
	opts        PipelineOptions
	tracer      trace.Tracer
	observer    StageObserver
}

func NewPipeline(
	classifier intentClassifier,
	executor searchExecutor,
	synthesizer answerSynthesizer,
	opts PipelineOptions,
	options ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		classifier:  classifier,
		executor:    executor,
		synthesizer: synthesizer,
		opts:        opts,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Run answers req with a blocking model call.
func (p *Pipeline) Run(ctx context.Context, req domain.QueryRequest, history []domain.ChatMessage) (*domain.PipelineState, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	state, err := p.retrieve(ctx, req, history)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	err = p.stage(ctx, StageSynthesize, true, func(ctx context.Context, span trace.Span) error {
		answer, citations, err := p.synthesizer.Answer(ctx, state.Query, state.FusedResults, state.History)
		if err != nil {
			return err
		}
		state.Answer = answer
		state.Citations = citations
		span.SetAttributes(attribute.Int("rag.citations", len(citations)))
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return state, nil
}

// Stream runs retrieval and starts streaming synthesis. Retrieval errors are returned
// directly; generation errors arrive on the stream. The synthesize stage has no deadline
// so long answers are bounded only by ctx.
func (p *Pipeline) Stream(ctx context.Context, req domain.QueryRequest, history []domain.ChatMessage) (*domain.PipelineState, *AnswerStream, error) {
	spanCtx, span := p.tracer.Start(ctx, "pipeline.stream")
	defer span.End()

	state, err := p.retrieve(spanCtx, req, history)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}

	var stream *AnswerStream
	err = p.stage(spanCtx, StageSynthesize, false, func(_ context.Context, span trace.Span) error {
		var err error
		stream, err = p.synthesizer.Stream(ctx, state.Query, state.FusedResults, state.History)
		if err != nil {
			return err
		}
		state.Citations = stream.Citations
		span.SetAttributes(attribute.Int("rag.citations", len(stream.Citations)))
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}
	return state, stream, nil
}

func (p *Pipeline) retrieve(ctx context.Context, req domain.QueryRequest, history []domain.ChatMessage) (*domain.PipelineState, error) {
	state := &domain.PipelineState{
		Query:     req.Query,
		SessionID: req.SessionID,
		History:   history,
	}

	err := p.stage(ctx, StageClassify, true, func(ctx context.Context, span trace.Span) error {
		cls, err := p.classifier.Classify(ctx, state.Query)
		if err != nil {
			return err
		}
		state.Classification = cls
		span.SetAttributes(attribute.String("rag.query_kind", string(cls.QueryKind)))
		if cls.Filters != nil {
			span.SetAttributes(attribute.String("rag.entity_kind", string(cls.Filters.Kind())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, StageSearch, true, func(ctx context.Context, span trace.Span) error {
		structured, semantic, err := p.executor.Execute(ctx, state.Query, state.Classification)
		if err != nil {
			return err
		}
		state.StructuredResults = structured
		state.SemanticResults = semantic
		span.SetAttributes(
			attribute.Int("rag.structured_results", len(structured)),
			attribute.Int("rag.semantic_results", len(semantic)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, StageFuse, false, func(_ context.Context, span trace.Span) error {
		state.FusedResults = FuseRRF(state.StructuredResults, state.SemanticResults, p.opts.RRFK, p.opts.FusedLimit)
		span.SetAttributes(attribute.Int("rag.fused_results", len(state.FusedResults)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, bounded bool, fn func(context.Context, trace.Span) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if bounded && p.opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.StageTimeout)
		defer cancel()
	}

	started := time.Now()
	err := fn(ctx, span)
	if p.observer != nil {
		p.observer.ObserveStage(name, time.Since(started), err)
	}
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
