package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/metrics"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/utils"
)

const (
	defaultLookbackYears = 10
	defaultAreaSqm       = 50
	maxLookbackYears     = 100
	intentTemperature    = 0.1
	intentMaxTokens      = 800
)

const intentSystemPrompt = `You are a housing assistant for Singapore HDB flats. Classify the user's question and extract the valuation scenarios it asks about.

Respond ONLY with one JSON object with these fields:
- reasoning: one short sentence explaining your classification (string)
- needs_recommendation: the user wants to know which towns to consider (boolean, required)
- needs_prediction: the user wants a price estimate for a flat (boolean, required)
- needs_affordability: the user asks what income or monthly payment a flat requires (boolean, required)
- prediction_scenarios: array of objects, one per flat the user asks about:
    - unit_type: one of "2 ROOM", "3 ROOM", "4 ROOM", "5 ROOM", "EXECUTIVE"
    - location: HDB town name in upper case, or "ALL" when the user wants prices across the recommended towns
    - floor_levels: array containing any of "low", "middle", "high"
    - area_sqm: floor area in square metres (integer)
- lookback_years: how many years of transactions recommendations should consider (integer, default 10)

Rules:
- The three boolean fields must always be present.
- Omit fields the user did not mention; defaults are applied afterwards.
- A question about affordability of a specific flat also needs a prediction.
- Do not add commentary outside the JSON object.

Examples:
Query: "How much is a 4 room flat in Tampines, around 90 sqm, and what income do I need?"
Response: {"reasoning": "price and affordability of one flat", "needs_recommendation": false, "needs_prediction": true, "needs_affordability": true, "prediction_scenarios": [{"unit_type": "4 ROOM", "location": "TAMPINES", "floor_levels": ["middle"], "area_sqm": 90}]}

Query: "Which towns have been quiet in the last 5 years?"
Response: {"reasoning": "location recommendation only", "needs_recommendation": true, "needs_prediction": false, "needs_affordability": false, "prediction_scenarios": [], "lookback_years": 5}

Query: "Where should I buy a high floor 5 room and what would it cost?"
Response: {"reasoning": "recommend towns then price them", "needs_recommendation": true, "needs_prediction": true, "needs_affordability": false, "prediction_scenarios": [{"unit_type": "5 ROOM", "location": "ALL", "floor_levels": ["high"], "area_sqm": 110}]}

Query: "Compare low and high floor 3 room flats in Ang Mo Kio"
Response: {"reasoning": "two floor bands of one flat type", "needs_recommendation": false, "needs_prediction": true, "needs_affordability": false, "prediction_scenarios": [{"unit_type": "3 ROOM", "location": "ANG MO KIO", "floor_levels": ["low", "high"], "area_sqm": 67}]}`

// lookback and area bounds keep model numbers inside int range and away
// from values the pricing model never saw
var intentSchema = fmt.Sprintf(`{
  "type": "object",
  "required": ["needs_recommendation", "needs_prediction", "needs_affordability"],
  "properties": {
    "reasoning": {"type": ["string", "null"]},
    "needs_recommendation": {"type": "boolean"},
    "needs_prediction": {"type": "boolean"},
    "needs_affordability": {"type": "boolean"},
    "lookback_years": {"type": ["number", "null"], "minimum": 0, "maximum": %d},
    "prediction_scenarios": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "unit_type": {"type": ["string", "null"]},
          "location": {"type": ["string", "null"]},
          "floor_levels": {"type": ["array", "string", "null"]},
          "area_sqm": {"type": ["number", "null"], "minimum": 0, "maximum": %d}
        }
      }
    }
  }
}`, maxLookbackYears, maxAreaSqm)

var intentSchemaLoader = gojsonschema.NewStringLoader(intentSchema)

// IntentExtractor turns a raw question into a StructuredIntent with one
// language model call
type IntentExtractor struct {
	llm     LanguageModel
	schema  *gojsonschema.Schema
	timeout time.Duration
	log     *zap.Logger
}

// NewIntentExtractor creates a new extractor. timeout bounds the model call.
func NewIntentExtractor(llm LanguageModel, timeout time.Duration, log *zap.Logger) (*IntentExtractor, error) {
	schema, err := gojsonschema.NewSchema(intentSchemaLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent schema: %w", err)
	}
	return &IntentExtractor{
		llm:     llm,
		schema:  schema,
		timeout: timeout,
		log:     log,
	}, nil
}

// Extract asks the model to classify query and parses its reply
func (e *IntentExtractor) Extract(ctx context.Context, query string) (*model.StructuredIntent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.InvalidInput("query must not be empty")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	reply, err := e.llm.Complete(ctx, CompletionRequest{
		System:      intentSystemPrompt,
		User:        query,
		Temperature: intentTemperature,
		MaxTokens:   intentMaxTokens,
		JSON:        true,
	})
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("intent", "error").Inc()
		return nil, apperrors.FromUpstream(err, "intent extraction")
	}
	metrics.LLMCallsTotal.WithLabelValues("intent", "ok").Inc()

	intent, err := e.ParseReply(reply)
	if err != nil {
		e.log.Warn("intent reply rejected",
			zap.Error(err),
			zap.String("reply", truncate(reply, 500)))
		return nil, err
	}
	return intent, nil
}

// intentReply mirrors the model's JSON loosely: numbers arrive as floats
// and floor_levels may be a bare string.
type intentReply struct {
	Reasoning           string          `json:"reasoning"`
	NeedsRecommendation bool            `json:"needs_recommendation"`
	NeedsPrediction     bool            `json:"needs_prediction"`
	NeedsAffordability  bool            `json:"needs_affordability"`
	PredictionScenarios []scenarioReply `json:"prediction_scenarios"`
	LookbackYears       *float64        `json:"lookback_years"`
}

type scenarioReply struct {
	UnitType    string      `json:"unit_type"`
	Location    string      `json:"location"`
	FloorLevels floorLevels `json:"floor_levels"`
	AreaSqm     *float64    `json:"area_sqm"`
}

type floorLevels []string

func (f *floorLevels) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*f = floorLevels{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*f = many
	return nil
}

// ParseReply validates a model reply and applies defaults
func (e *IntentExtractor) ParseReply(reply string) (*model.StructuredIntent, error) {
	var doc map[string]any
	if err := utils.ParseAIJSON(reply, &doc); err != nil {
		return nil, apperrors.IntentParse(err, "model reply is not a JSON object")
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, apperrors.IntentParse(err, "failed to validate model reply")
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		appErr := apperrors.IntentParse(nil, "model reply does not match the intent schema")
		appErr.Details = strings.Join(problems, "; ")
		return nil, appErr
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.IntentParse(err, "failed to re-encode model reply")
	}
	var parsed intentReply
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.IntentParse(err, "failed to decode model reply")
	}

	return toIntent(parsed)
}

func toIntent(r intentReply) (*model.StructuredIntent, error) {
	intent := &model.StructuredIntent{
		Reasoning:           r.Reasoning,
		NeedsRecommendation: r.NeedsRecommendation,
		NeedsPrediction:     r.NeedsPrediction,
		NeedsAffordability:  r.NeedsAffordability,
		PredictionScenarios: make([]model.ScenarioTemplate, 0, len(r.PredictionScenarios)),
		LookbackYears:       defaultLookbackYears,
	}
	if r.LookbackYears != nil {
		intent.LookbackYears = int(math.Round(*r.LookbackYears))
	}

	for i, s := range r.PredictionScenarios {
		tmpl := model.ScenarioTemplate{
			UnitType: utils.NormalizeFlatType(s.UnitType),
			Location: utils.NormalizeTown(s.Location),
			AreaSqm:  defaultAreaSqm,
		}
		if tmpl.UnitType == "" {
			tmpl.UnitType = defaultUnitType
		}
		if tmpl.Location == "" {
			tmpl.Location = model.LocationAll
		}
		if s.AreaSqm != nil {
			if area := int(math.Round(*s.AreaSqm)); area > 0 {
				tmpl.AreaSqm = area
			}
		}

		for _, raw := range s.FloorLevels {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			level := model.FloorLevel(strings.ToLower(strings.TrimSpace(raw)))
			if !level.Valid() {
				return nil, apperrors.IntentParse(nil, "scenario %d has unknown floor level %q", i, raw)
			}
			tmpl.FloorLevels = append(tmpl.FloorLevels, level)
		}
		if len(tmpl.FloorLevels) == 0 {
			tmpl.FloorLevels = []model.FloorLevel{model.FloorMiddle}
		}

		intent.PredictionScenarios = append(intent.PredictionScenarios, tmpl)
	}

	return intent, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
