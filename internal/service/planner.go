package service

import (
	"strings"

	"github.com/rohanjaggi/hdb-prediction/internal/encoder"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

const (
	// maxAllLocations caps how many recommended towns "ALL" expands to
	maxAllLocations = 5
	// FallbackLocation stands in for "ALL" when no recommendation is available
	FallbackLocation = "ANG MO KIO"
)

const defaultUnitType = "3 ROOM"

// DefaultScenario is priced when a prediction is requested without any scenario
func DefaultScenario() model.ConcreteScenario {
	return model.ConcreteScenario{
		UnitType:             defaultUnitType,
		Location:             FallbackLocation,
		FloorLevel:           model.FloorMiddle,
		AreaSqm:              defaultAreaSqm,
		StoreyRepresentative: 10,
	}
}

// Plan expands an intent into concrete scenarios. Duplicates are dropped,
// keeping the first occurrence, so the result order is deterministic.
// Affordability alone still prices the flats it names, since it needs a price.
func Plan(intent *model.StructuredIntent, recommended []string) []model.ConcreteScenario {
	if intent == nil || (!intent.NeedsPrediction && !intent.NeedsAffordability) {
		return nil
	}
	if len(intent.PredictionScenarios) == 0 {
		if intent.NeedsPrediction {
			return []model.ConcreteScenario{DefaultScenario()}
		}
		return nil
	}

	locationsForAll := recommended
	if len(locationsForAll) > maxAllLocations {
		locationsForAll = locationsForAll[:maxAllLocations]
	}
	if len(locationsForAll) == 0 {
		locationsForAll = []string{FallbackLocation}
	}

	seen := make(map[model.ScenarioKey]struct{})
	var out []model.ConcreteScenario

	for _, tmpl := range intent.PredictionScenarios {
		locations := []string{tmpl.Location}
		if strings.EqualFold(strings.TrimSpace(tmpl.Location), model.LocationAll) {
			locations = locationsForAll
		}

		levels := tmpl.FloorLevels
		if len(levels) == 0 {
			levels = []model.FloorLevel{model.FloorMiddle}
		}

		for _, location := range locations {
			for _, level := range levels {
				storey, ok := encoder.Storey(level)
				if !ok {
					continue
				}
				s := model.ConcreteScenario{
					UnitType:             tmpl.UnitType,
					Location:             location,
					FloorLevel:           level,
					AreaSqm:              tmpl.AreaSqm,
					StoreyRepresentative: storey,
				}
				key := s.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, s)
			}
		}
	}

	return out
}
