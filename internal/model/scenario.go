package model

// ConcreteScenario is one fully resolved valuation input
type ConcreteScenario struct {
	UnitType             string     `json:"unit_type"`
	Location             string     `json:"location"`
	FloorLevel           FloorLevel `json:"floor_level"`
	AreaSqm              int        `json:"area_sqm"`
	StoreyRepresentative int        `json:"storey_representative"`
}

// ScenarioKey identifies scenarios that would produce the same valuation
type ScenarioKey struct {
	Location   string
	FloorLevel FloorLevel
	UnitType   string
	AreaSqm    int
}

// Key returns the deduplication key of the scenario
func (s ConcreteScenario) Key() ScenarioKey {
	return ScenarioKey{
		Location:   s.Location,
		FloorLevel: s.FloorLevel,
		UnitType:   s.UnitType,
		AreaSqm:    s.AreaSqm,
	}
}
