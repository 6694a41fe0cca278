package model

// LocationAll defers location choice to the recommendation shortlist.
const LocationAll = "ALL"

// FloorLevel is a coarse floor band chosen by the user
type FloorLevel string

const (
	FloorLow    FloorLevel = "low"
	FloorMiddle FloorLevel = "middle"
	FloorHigh   FloorLevel = "high"
)

// Valid reports whether the level is one of low, middle or high
func (f FloorLevel) Valid() bool {
	switch f {
	case FloorLow, FloorMiddle, FloorHigh:
		return true
	}
	return false
}

// StructuredIntent is the parsed form of a user's housing question
type StructuredIntent struct {
	Reasoning           string             `json:"reasoning,omitempty"` // diagnostic only
	NeedsRecommendation bool               `json:"needs_recommendation"`
	NeedsPrediction     bool               `json:"needs_prediction"`
	NeedsAffordability  bool               `json:"needs_affordability"`
	PredictionScenarios []ScenarioTemplate `json:"prediction_scenarios"`
	LookbackYears       int                `json:"lookback_years"`
}

// ScenarioTemplate describes one family of valuations requested by the user
type ScenarioTemplate struct {
	UnitType    string       `json:"unit_type"`
	Location    string       `json:"location"` // town name or LocationAll
	FloorLevels []FloorLevel `json:"floor_levels"`
	AreaSqm     int          `json:"area_sqm"`
}
