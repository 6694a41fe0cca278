package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// IncomeBracket labels the household income needed to service a loan
type IncomeBracket string

const (
	BracketLowMiddle IncomeBracket = "Low-Middle"
	BracketMiddle    IncomeBracket = "Middle"
	BracketHigh      IncomeBracket = "High"
)

// ValuationResult is the outcome of pricing one scenario
type ValuationResult struct {
	Scenario        ConcreteScenario `json:"scenario"`
	OpenMarketPrice float64          `json:"open_market_price"`
	SubsidizedPrice float64          `json:"subsidized_price"`
	OK              bool             `json:"ok"`
	Error           string           `json:"error,omitempty"`
	ErrorKind       string           `json:"error_kind,omitempty"`
}

// AffordabilityResult describes what income a price implies
type AffordabilityResult struct {
	Scenario              *ConcreteScenario `json:"scenario,omitempty"`
	Price                 float64           `json:"price"`
	MonthlyPayment        float64           `json:"monthly_payment"`
	RequiredMonthlyIncome float64           `json:"required_monthly_income"`
	IncomeBracket         IncomeBracket     `json:"income_bracket"`
}

// LocationStat is one row of the recommendation ranking
type LocationStat struct {
	Location           string  `json:"location" db:"town"`
	TotalTransactions  int     `json:"total_transactions" db:"total_transactions"`
	RecentTransactions int     `json:"recent_transactions" db:"recent_transactions"`
	AvgPrice           float64 `json:"avg_price" db:"avg_price"`
}

// RecommendationResult is the ranked location shortlist
type RecommendationResult struct {
	LookbackYears int            `json:"lookback_years"`
	CutoffYear    int            `json:"cutoff_year"`
	Locations     []LocationStat `json:"locations"`
}

// LocationNames returns the ranked location names in order
func (r *RecommendationResult) LocationNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Locations))
	for i, l := range r.Locations {
		names[i] = l.Location
	}
	return names
}

// StageError records a recoverable failure inside the bundle
type StageError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ResultBundle accumulates everything computed for one query
type ResultBundle struct {
	Recommendation *RecommendationResult `json:"recommendation,omitempty"`
	Valuations     []ValuationResult     `json:"valuations,omitempty"`
	Affordability  []AffordabilityResult `json:"affordability,omitempty"`
	Errors         []StageError          `json:"errors,omitempty"`
}

// HasRecommendations reports whether the recommendation stage produced a result
func (b *ResultBundle) HasRecommendations() bool {
	return b.Recommendation != nil
}

// HasPredictions reports whether any valuation was attempted. Failed
// valuations count: the narrative has to explain them.
func (b *ResultBundle) HasPredictions() bool {
	return len(b.Valuations) > 0
}

// HasAffordability reports whether any affordability result is present
func (b *ResultBundle) HasAffordability() bool {
	return len(b.Affordability) > 0
}

// Rounded returns a copy with every price rounded to whole dollars, for display.
func (b *ResultBundle) Rounded() ResultBundle {
	out := ResultBundle{Errors: append([]StageError(nil), b.Errors...)}

	if b.Recommendation != nil {
		rec := *b.Recommendation
		rec.Locations = make([]LocationStat, len(b.Recommendation.Locations))
		for i, l := range b.Recommendation.Locations {
			l.AvgPrice = math.Round(l.AvgPrice)
			rec.Locations[i] = l
		}
		out.Recommendation = &rec
	}

	if b.Valuations != nil {
		out.Valuations = make([]ValuationResult, len(b.Valuations))
		for i, v := range b.Valuations {
			v.OpenMarketPrice = math.Round(v.OpenMarketPrice)
			v.SubsidizedPrice = math.Round(v.SubsidizedPrice)
			out.Valuations[i] = v
		}
	}

	if b.Affordability != nil {
		out.Affordability = make([]AffordabilityResult, len(b.Affordability))
		for i, a := range b.Affordability {
			a.Price = math.Round(a.Price)
			a.MonthlyPayment = math.Round(a.MonthlyPayment)
			a.RequiredMonthlyIncome = math.Round(a.RequiredMonthlyIncome)
			out.Affordability[i] = a
		}
	}

	return out
}

// Value implements driver.Valuer interface
func (b ResultBundle) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner interface
func (b *ResultBundle) Scan(value interface{}) error {
	return scanJSON(value, b)
}

// Value implements driver.Valuer interface
func (i StructuredIntent) Value() (driver.Value, error) {
	return json.Marshal(i)
}

// Scan implements sql.Scanner interface
func (i *StructuredIntent) Scan(value interface{}) error {
	return scanJSON(value, i)
}

func scanJSON(value interface{}, target interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, target)
	case string:
		return json.Unmarshal([]byte(v), target)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}
