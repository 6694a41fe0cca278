package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/metrics"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/observability"
)

// Stage is a step of the analysis pipeline. Stages only move forward.
type Stage int

const (
	StageParseIntent Stage = iota
	StageExpandScenarios
	StageCompute
	StageSynthesize
	StageDone
)

var stageNames = [...]string{"parse_intent", "expand_scenarios", "compute", "synthesize", "done"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// EventCallback is called for streaming analysis events
type EventCallback func(event string, data any) error

// IntentParser produces a structured intent from a raw question
type IntentParser interface {
	Extract(ctx context.Context, query string) (*model.StructuredIntent, error)
}

// Recommender ranks towns over a lookback window
type Recommender interface {
	Recommend(ctx context.Context, lookbackYears int) (*model.RecommendationResult, error)
}

// Valuer prices one scenario, reporting failures inside the result
type Valuer interface {
	Value(ctx context.Context, scenario model.ConcreteScenario) model.ValuationResult
}

// AnalysisRecorder persists finished analyses
type AnalysisRecorder interface {
	LogAnalysis(ctx context.Context, entry *model.AnalysisLog) error
}

// OrchestratorConfig bounds the pipeline's external calls
type OrchestratorConfig struct {
	MaxInFlight int           // concurrent pricing oracle calls
	LLMTimeout  time.Duration // per language model call
}

// Orchestrator runs ParseIntent, ExpandScenarios, Compute and Synthesize
// for one question at a time. It holds no per-request state.
type Orchestrator struct {
	intent      IntentParser
	recommender Recommender
	valuer      Valuer
	llm         LanguageModel
	recorder    AnalysisRecorder
	embedder    Embedder
	cfg         OrchestratorConfig
	log         *zap.Logger
}

// NewOrchestrator wires the pipeline. recorder and embedder may be nil.
func NewOrchestrator(
	intent IntentParser,
	recommender Recommender,
	valuer Valuer,
	llm LanguageModel,
	recorder AnalysisRecorder,
	embedder Embedder,
	cfg OrchestratorConfig,
	log *zap.Logger,
) *Orchestrator {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Orchestrator{
		intent:      intent,
		recommender: recommender,
		valuer:      valuer,
		llm:         llm,
		recorder:    recorder,
		embedder:    embedder,
		cfg:         cfg,
		log:         log,
	}
}

// expansion is the output of ExpandScenarios
type expansion struct {
	intent    *model.StructuredIntent
	scenarios []model.ConcreteScenario
	bundle    *model.ResultBundle // carries the recommendation, if requested
}

// synthesis is the output of Synthesize
type synthesis struct {
	template ResponseTemplate
	answer   string
}

// run tracks the current stage of one analysis
type run struct {
	id      string
	query   string
	stage   Stage
	started time.Time
	emit    EventCallback
}

func (r *run) advance(next Stage) error {
	if next <= r.stage {
		return apperrors.Internal(nil, "pipeline cannot move from %s to %s", r.stage, next)
	}
	r.stage = next
	return nil
}

func (r *run) event(name string, data any) error {
	if r.emit == nil {
		return nil
	}
	return r.emit(name, data)
}

// Analyze answers a question in one call
func (o *Orchestrator) Analyze(ctx context.Context, query string) (*model.AnalyzeResponse, error) {
	return o.analyze(ctx, query, nil)
}

// AnalyzeStream answers a question and reports each stage through callback.
// When the language model supports it the answer is streamed as delta events.
func (o *Orchestrator) AnalyzeStream(ctx context.Context, query string, callback EventCallback) (*model.AnalyzeResponse, error) {
	return o.analyze(ctx, query, callback)
}

func (o *Orchestrator) analyze(ctx context.Context, query string, emit EventCallback) (*model.AnalyzeResponse, error) {
	r := &run{
		id:      uuid.NewString(),
		query:   query,
		stage:   StageParseIntent,
		started: time.Now(),
		emit:    emit,
	}

	ctx, span := observability.Tracer().Start(ctx, "analysis")
	span.SetAttributes(attribute.String("analysis.id", r.id))
	defer span.End()

	resp, intent, bundle, err := o.pipeline(ctx, r)
	took := time.Since(r.started)
	r.stage = StageDone

	outcome := "ok"
	if err != nil {
		appErr := apperrors.As(err)
		err = appErr
		outcome = string(appErr.Kind)
		span.RecordError(appErr)
		span.SetStatus(codes.Error, string(appErr.Kind))
		o.log.Warn("analysis failed",
			zap.String("analysis_id", r.id),
			zap.String("kind", string(appErr.Kind)),
			zap.Error(appErr))
	}
	metrics.AnalysesTotal.WithLabelValues(outcome).Inc()

	o.record(r, intent, bundle, resp, err, took)

	if err != nil {
		return nil, err
	}
	resp.Took = took.Milliseconds()
	return resp, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) (*model.AnalyzeResponse, *model.StructuredIntent, *model.ResultBundle, error) {
	intent, err := timed(ctx, StageParseIntent, func(ctx context.Context) (*model.StructuredIntent, error) {
		return o.parseIntent(ctx, r)
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if err := r.advance(StageExpandScenarios); err != nil {
		return nil, intent, nil, err
	}
	exp, err := timed(ctx, StageExpandScenarios, func(ctx context.Context) (*expansion, error) {
		return o.expandScenarios(ctx, r, intent)
	})
	if err != nil {
		return nil, intent, nil, err
	}

	if err := r.advance(StageCompute); err != nil {
		return nil, intent, exp.bundle, err
	}
	bundle, err := timed(ctx, StageCompute, func(ctx context.Context) (*model.ResultBundle, error) {
		return o.compute(ctx, r, exp)
	})
	if err != nil {
		return nil, intent, bundle, err
	}

	if err := r.advance(StageSynthesize); err != nil {
		return nil, intent, bundle, err
	}
	syn, err := timed(ctx, StageSynthesize, func(ctx context.Context) (*synthesis, error) {
		return o.synthesize(ctx, r, bundle)
	})
	if err != nil {
		return nil, intent, bundle, err
	}

	rounded := bundle.Rounded()
	return &model.AnalyzeResponse{
		AnalysisID: r.id,
		Answer:     syn.answer,
		Template:   syn.template.Name,
		Intent:     intent,
		Bundle:     &rounded,
	}, intent, bundle, nil
}

// timed runs one stage inside a span and records its duration
func timed[T any](ctx context.Context, stage Stage, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := observability.Tracer().Start(ctx, "analysis."+stage.String())
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	metrics.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (o *Orchestrator) parseIntent(ctx context.Context, r *run) (*model.StructuredIntent, error) {
	intent, err := o.intent.Extract(ctx, r.query)
	if err != nil {
		return nil, err
	}
	o.log.Debug("intent parsed",
		zap.String("analysis_id", r.id),
		zap.Bool("needs_recommendation", intent.NeedsRecommendation),
		zap.Bool("needs_prediction", intent.NeedsPrediction),
		zap.Bool("needs_affordability", intent.NeedsAffordability),
		zap.Int("templates", len(intent.PredictionScenarios)))
	if err := r.event("intent", intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// expandScenarios fetches the recommendation first, when requested, because
// "ALL" templates expand over its ranking.
func (o *Orchestrator) expandScenarios(ctx context.Context, r *run, intent *model.StructuredIntent) (*expansion, error) {
	bundle := &model.ResultBundle{}

	if intent.NeedsRecommendation {
		rec, err := o.recommender.Recommend(ctx, intent.LookbackYears)
		if err != nil {
			bundle.Errors = append(bundle.Errors, stageError("recommendation", err))
		} else {
			bundle.Recommendation = rec
		}
	}

	scenarios := Plan(intent, bundle.Recommendation.LocationNames())
	if err := r.event("scenarios", scenarios); err != nil {
		return nil, err
	}

	return &expansion{intent: intent, scenarios: scenarios, bundle: bundle}, nil
}

// compute values every scenario with a bounded number of in-flight oracle
// calls, then derives affordability from each successful valuation. Results
// keep planner order regardless of completion order.
func (o *Orchestrator) compute(ctx context.Context, r *run, exp *expansion) (*model.ResultBundle, error) {
	bundle := exp.bundle

	if len(exp.scenarios) > 0 {
		valuations := make([]model.ValuationResult, len(exp.scenarios))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.MaxInFlight)
		for i, scenario := range exp.scenarios {
			g.Go(func() error {
				valuations[i] = o.valuer.Value(gctx, scenario)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return bundle, apperrors.Internal(err, "valuation fan-out failed")
		}
		bundle.Valuations = valuations
	}

	if exp.intent.NeedsAffordability {
		for i := range bundle.Valuations {
			v := bundle.Valuations[i]
			if !v.OK {
				continue
			}
			a, err := Afford(v.OpenMarketPrice)
			if err != nil {
				bundle.Errors = append(bundle.Errors, stageError("affordability", err))
				continue
			}
			scenario := v.Scenario
			a.Scenario = &scenario
			bundle.Affordability = append(bundle.Affordability, a)
		}
	}

	if err := r.event("bundle", bundle.Rounded()); err != nil {
		return bundle, err
	}
	return bundle, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r *run, bundle *model.ResultBundle) (*synthesis, error) {
	template := SelectTemplate(bundle)
	if err := r.event("template", map[string]any{"name": template.Name, "sections": template.Sections}); err != nil {
		return nil, err
	}

	system, err := synthesisPrompt(template, bundle)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to serialize results")
	}

	if o.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LLMTimeout)
		defer cancel()
	}

	req := CompletionRequest{System: system, User: r.query}

	var answer string
	if streamer, ok := o.llm.(StreamingLanguageModel); ok && r.emit != nil {
		answer, err = streamer.CompleteStream(ctx, req, func(chunk *StreamChunk) error {
			if chunk.Content == "" {
				return nil
			}
			return r.event("delta", map[string]string{"content": chunk.Content})
		})
	} else {
		answer, err = o.llm.Complete(ctx, req)
	}
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("synthesis", "error").Inc()
		return nil, apperrors.FromUpstream(err, "answer synthesis")
	}
	metrics.LLMCallsTotal.WithLabelValues("synthesis", "ok").Inc()

	return &synthesis{template: template, answer: answer}, nil
}

func synthesisPrompt(template ResponseTemplate, bundle *model.ResultBundle) (string, error) {
	data, err := json.MarshalIndent(bundle.Rounded(), "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("You are a friendly Singapore HDB housing advisor. Answer the user's question using only the computed results below; do not invent prices or towns. Prices are in SGD.\n\n")
	sb.WriteString("Response layout: ")
	sb.WriteString(template.Name)
	sb.WriteString("\n")
	sb.WriteString(template.Instructions())
	sb.WriteString("\nComputed results (JSON):\n")
	sb.Write(data)
	return sb.String(), nil
}

func stageError(stage string, err error) model.StageError {
	appErr := apperrors.As(err)
	return model.StageError{Stage: stage, Kind: string(appErr.Kind), Message: appErr.Message}
}

// record writes the analysis log in the background; failures are only logged.
func (o *Orchestrator) record(r *run, intent *model.StructuredIntent, bundle *model.ResultBundle, resp *model.AnalyzeResponse, runErr error, took time.Duration) {
	if o.recorder == nil {
		return
	}

	entry := &model.AnalysisLog{
		AnalysisID:     r.id,
		Query:          r.query,
		Intent:         intent,
		Bundle:         bundle,
		ResponseTimeMs: int(took.Milliseconds()),
		CreatedAt:      time.Now(),
	}
	if resp != nil {
		entry.Template = resp.Template
	}
	if runErr != nil {
		entry.ErrorKind = string(apperrors.KindOf(runErr))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.recordTimeout())
		defer cancel()

		if o.embedder != nil {
			vectors, err := o.embedder.CreateEmbeddings(ctx, []string{r.query})
			if err != nil {
				o.log.Debug("query embedding failed", zap.String("analysis_id", r.id), zap.Error(err))
			} else if len(vectors) == 1 && len(vectors[0]) > 0 {
				vec := pgvector.NewVector(vectors[0])
				entry.QueryEmbedding = &vec
			}
		}

		if err := o.recorder.LogAnalysis(ctx, entry); err != nil {
			o.log.Warn("failed to log analysis", zap.String("analysis_id", r.id), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) recordTimeout() time.Duration {
	if o.cfg.LLMTimeout > 0 {
		return o.cfg.LLMTimeout
	}
	return 30 * time.Second
}
