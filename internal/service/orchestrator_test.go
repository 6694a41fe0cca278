package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

const tampinesIntent = `{
	"reasoning": "price and affordability of one flat",
	"needs_recommendation": false,
	"needs_prediction": true,
	"needs_affordability": true,
	"prediction_scenarios": [{"unit_type": "4 ROOM", "location": "TAMPINES", "floor_levels": ["middle"], "area_sqm": 90}]
}`

type orchestratorDeps struct {
	intentLLM   LanguageModel
	answerLLM   LanguageModel
	recommender Recommender
	valuer      Valuer
	recorder    AnalysisRecorder
	embedder    Embedder
	cfg         OrchestratorConfig
}

func newTestOrchestrator(t *testing.T, d orchestratorDeps) *Orchestrator {
	t.Helper()
	extractor, err := NewIntentExtractor(d.intentLLM, time.Second, zap.NewNop())
	require.NoError(t, err)
	if d.answerLLM == nil {
		d.answerLLM = d.intentLLM
	}
	if d.recommender == nil {
		d.recommender = &fixedRecommender{result: &model.RecommendationResult{}}
	}
	if d.valuer == nil {
		d.valuer = NewValuationService(newTableEncoder(), linearOracle{}, 99, 20, zap.NewNop())
	}
	if d.cfg.MaxInFlight == 0 {
		d.cfg.MaxInFlight = 4
	}
	if d.cfg.LLMTimeout == 0 {
		d.cfg.LLMTimeout = time.Second
	}
	return NewOrchestrator(extractor, d.recommender, d.valuer, d.answerLLM, d.recorder, d.embedder, d.cfg, zap.NewNop())
}

func waitForLog(t *testing.T, store *recordingStore) *model.AnalysisLog {
	t.Helper()
	select {
	case entry := <-store.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("analysis log was not written")
		return nil
	}
}

func TestAnalyze_PriceAndAffordability(t *testing.T) {
	llm := &scriptedLLM{replies: []string{tampinesIntent, "A 4-room flat in Tampines costs about $510,000."}}
	store := newRecordingStore()
	o := newTestOrchestrator(t, orchestratorDeps{
		intentLLM: llm,
		recorder:  store,
		embedder:  fixedEmbedder{vector: []float32{0.1, 0.2, 0.3}},
	})

	query := "How much is a 4 room in Tampines, 90 sqm, mid floor, and what income do I need?"
	resp, err := o.Analyze(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, "Price Analysis + Affordability + Next Steps", resp.Template)
	assert.Equal(t, "A 4-room flat in Tampines costs about $510,000.", resp.Answer)
	assert.NotEmpty(t, resp.AnalysisID)

	require.Len(t, resp.Bundle.Valuations, 1)
	v := resp.Bundle.Valuations[0]
	assert.True(t, v.OK)
	assert.Equal(t, 10, v.Scenario.StoreyRepresentative)
	assert.Equal(t, 510000.0, v.OpenMarketPrice)
	assert.Equal(t, 408000.0, v.SubsidizedPrice)

	require.Len(t, resp.Bundle.Affordability, 1)
	a := resp.Bundle.Affordability[0]
	require.NotNil(t, a.Scenario)
	assert.Equal(t, "TAMPINES", a.Scenario.Location)
	assert.Equal(t, 510000.0, a.Price)
	assert.Equal(t, model.BracketLowMiddle, a.IncomeBracket)
	assert.Nil(t, resp.Bundle.Recommendation)

	require.Equal(t, 2, llm.calls())
	synth := llm.requests[1]
	assert.Equal(t, query, synth.User)
	assert.Contains(t, synth.System, "Price Analysis + Affordability + Next Steps")
	assert.Contains(t, synth.System, `"location": "TAMPINES"`)
	assert.False(t, synth.JSON)

	entry := waitForLog(t, store)
	assert.Equal(t, resp.AnalysisID, entry.AnalysisID)
	assert.Equal(t, query, entry.Query)
	assert.Equal(t, resp.Template, entry.Template)
	assert.Empty(t, entry.ErrorKind)
	require.NotNil(t, entry.QueryEmbedding)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, entry.QueryEmbedding.Slice())
}

func TestAnalyze_RecommendationOnly(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"needs_recommendation": true, "needs_prediction": false, "needs_affordability": false, "lookback_years": 5}`,
		"Consider Yishun and Bedok.",
	}}
	rec := &fixedRecommender{result: &model.RecommendationResult{
		CutoffYear: 2020,
		Locations: []model.LocationStat{
			{Location: "YISHUN", RecentTransactions: 2, AvgPrice: 410000.4},
			{Location: "BEDOK", RecentTransactions: 7, AvgPrice: 455000.6},
		},
	}}
	o := newTestOrchestrator(t, orchestratorDeps{intentLLM: llm, recommender: rec})

	resp, err := o.Analyze(context.Background(), "Which towns have had few launches in the past five years?")
	require.NoError(t, err)

	assert.Equal(t, "Best Locations + Next Steps", resp.Template)
	assert.Equal(t, 1, rec.calls)
	require.NotNil(t, resp.Bundle.Recommendation)
	assert.Equal(t, 5, resp.Bundle.Recommendation.LookbackYears)
	assert.Equal(t, []string{"YISHUN", "BEDOK"}, resp.Bundle.Recommendation.LocationNames())
	assert.Equal(t, 410000.0, resp.Bundle.Recommendation.Locations[0].AvgPrice)
	assert.Empty(t, resp.Bundle.Valuations)
	assert.Empty(t, resp.Bundle.Affordability)
}

func TestAnalyze_AllUsesRecommendedTowns(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"needs_recommendation": true, "needs_prediction": true, "needs_affordability": false,
		  "prediction_scenarios": [{"unit_type": "3 ROOM", "location": "ALL", "floor_levels": ["low"], "area_sqm": 67}]}`,
		"answer",
	}}
	rec := &fixedRecommender{result: &model.RecommendationResult{
		Locations: []model.LocationStat{{Location: "YISHUN"}, {Location: "ATLANTIS"}},
	}}
	o := newTestOrchestrator(t, orchestratorDeps{intentLLM: llm, recommender: rec})

	resp, err := o.Analyze(context.Background(), "Where should I buy a cheap 3 room and what will it cost?")
	require.NoError(t, err)

	assert.Equal(t, "Best Locations + Price Analysis + Next Steps", resp.Template)
	require.Len(t, resp.Bundle.Valuations, 2)
	assert.Equal(t, "YISHUN", resp.Bundle.Valuations[0].Scenario.Location)
	assert.True(t, resp.Bundle.Valuations[0].OK)
	assert.Equal(t, "ATLANTIS", resp.Bundle.Valuations[1].Scenario.Location)
	assert.False(t, resp.Bundle.Valuations[1].OK)
	assert.Equal(t, string(apperrors.KindUnknownCategory), resp.Bundle.Valuations[1].ErrorKind)
}

func TestAnalyze_RecommendationFailureIsRecoverable(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"needs_recommendation": true, "needs_prediction": true, "needs_affordability": false,
		  "prediction_scenarios": [{"unit_type": "4 ROOM", "location": "ALL"}]}`,
		"answer",
	}}
	rec := &fixedRecommender{err: apperrors.SourceUnavailable(nil, "location statistics are unavailable")}
	o := newTestOrchestrator(t, orchestratorDeps{intentLLM: llm, recommender: rec})

	resp, err := o.Analyze(context.Background(), "Where should I buy a 4 room?")
	require.NoError(t, err)

	require.Len(t, resp.Bundle.Errors, 1)
	assert.Equal(t, "recommendation", resp.Bundle.Errors[0].Stage)
	assert.Equal(t, string(apperrors.KindSourceUnavailable), resp.Bundle.Errors[0].Kind)

	require.Len(t, resp.Bundle.Valuations, 1)
	assert.Equal(t, FallbackLocation, resp.Bundle.Valuations[0].Scenario.Location)
	assert.Equal(t, "Price Analysis + Next Steps", resp.Template)
}

func TestAnalyze_IntentFailureSkipsSynthesis(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"reply is not json", "Sorry, I can only talk about the weather."},
		{"reply lacks required booleans", `{"needs_prediction": true, "prediction_scenarios": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedLLM{replies: []string{tt.reply}}
			store := newRecordingStore()
			o := newTestOrchestrator(t, orchestratorDeps{intentLLM: llm, recorder: store})

			resp, err := o.Analyze(context.Background(), "hello")
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, apperrors.KindIntentParse, apperrors.KindOf(err))
			assert.Equal(t, 1, llm.calls(), "no synthesis call after a rejected intent")

			entry := waitForLog(t, store)
			assert.Equal(t, string(apperrors.KindIntentParse), entry.ErrorKind)
			assert.Nil(t, entry.Intent)
			assert.Nil(t, entry.QueryEmbedding)
		})
	}
}

func TestAnalyze_SynthesisTimeout(t *testing.T) {
	o := newTestOrchestrator(t, orchestratorDeps{
		intentLLM: &scriptedLLM{replies: []string{tampinesIntent}},
		answerLLM: &scriptedLLM{block: true},
		cfg:       OrchestratorConfig{LLMTimeout: 20 * time.Millisecond},
	})

	_, err := o.Analyze(context.Background(), "4 room in Tampines?")
	assert.Equal(t, apperrors.KindUpstreamTimeout, apperrors.KindOf(err))
}

// slowValuer finishes later scenarios first and tracks peak concurrency
type slowValuer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (v *slowValuer) Value(ctx context.Context, s model.ConcreteScenario) model.ValuationResult {
	n := v.inFlight.Add(1)
	defer v.inFlight.Add(-1)
	for {
		p := v.peak.Load()
		if n <= p || v.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(25-s.StoreyRepresentative) * time.Millisecond)
	return model.ValuationResult{Scenario: s, OK: true, OpenMarketPrice: float64(s.StoreyRepresentative)}
}

func TestAnalyze_ResultsKeepPlannerOrder(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"needs_recommendation": true, "needs_prediction": true, "needs_affordability": false,
		  "prediction_scenarios": [{"unit_type": "3 ROOM", "location": "ALL", "floor_levels": ["low", "middle", "high"]}]}`,
		"answer",
	}}
	rec := &fixedRecommender{result: &model.RecommendationResult{Locations: []model.LocationStat{
		{Location: "YISHUN"}, {Location: "BEDOK"}, {Location: "BISHAN"}, {Location: "PUNGGOL"}, {Location: "SENGKANG"}, {Location: "TAMPINES"},
	}}}
	valuer := &slowValuer{}
	o := newTestOrchestrator(t, orchestratorDeps{
		intentLLM:   llm,
		recommender: rec,
		valuer:      valuer,
		cfg:         OrchestratorConfig{MaxInFlight: 3},
	})

	resp, err := o.Analyze(context.Background(), "Prices for 3 room flats in the quietest towns")
	require.NoError(t, err)

	want := Plan(&model.StructuredIntent{
		NeedsPrediction: true,
		PredictionScenarios: []model.ScenarioTemplate{{
			UnitType:    "3 ROOM",
			Location:    model.LocationAll,
			FloorLevels: []model.FloorLevel{model.FloorLow, model.FloorMiddle, model.FloorHigh},
			AreaSqm:     defaultAreaSqm,
		}},
	}, []string{"YISHUN", "BEDOK", "BISHAN", "PUNGGOL", "SENGKANG", "TAMPINES"})
	require.Len(t, want, 15)

	require.Len(t, resp.Bundle.Valuations, len(want))
	for i, v := range resp.Bundle.Valuations {
		assert.Equal(t, want[i], v.Scenario, "position %d", i)
	}
	assert.LessOrEqual(t, valuer.peak.Load(), int32(3))
}

func TestAnalyzeStream_EmitsStagesAndDeltas(t *testing.T) {
	answer := &streamingLLM{chunks: []string{"Tampines ", "is ", "affordable."}}
	o := newTestOrchestrator(t, orchestratorDeps{
		intentLLM: &scriptedLLM{replies: []string{tampinesIntent}},
		answerLLM: answer,
	})

	var (
		mu     sync.Mutex
		events []string
		deltas []string
	)
	resp, err := o.AnalyzeStream(context.Background(), "4 room in Tampines?", func(event string, data any) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		if event == "delta" {
			deltas = append(deltas, data.(map[string]string)["content"])
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"intent", "scenarios", "bundle", "template", "delta", "delta", "delta"}, events)
	assert.Equal(t, []string{"Tampines ", "is ", "affordable."}, deltas)
	assert.Equal(t, "Tampines is affordable.", resp.Answer)
}

func TestAnalyze_NonStreamingIgnoresStreamer(t *testing.T) {
	answer := &streamingLLM{scriptedLLM: scriptedLLM{replies: []string{"full reply"}}, chunks: []string{"chunk"}}
	o := newTestOrchestrator(t, orchestratorDeps{
		intentLLM: &scriptedLLM{replies: []string{tampinesIntent}},
		answerLLM: answer,
	})

	resp, err := o.Analyze(context.Background(), "4 room in Tampines?")
	require.NoError(t, err)
	assert.Equal(t, "full reply", resp.Answer)
}

func TestRunAdvance(t *testing.T) {
	r := &run{stage: StageParseIntent}
	require.NoError(t, r.advance(StageExpandScenarios))
	require.NoError(t, r.advance(StageCompute))

	err := r.advance(StageExpandScenarios)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	assert.Equal(t, StageCompute, r.stage)

	assert.Error(t, r.advance(StageCompute))
	assert.Equal(t, "compute", StageCompute.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
