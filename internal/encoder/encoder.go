// Package encoder turns human-readable towns and flat types into the
// integer codes the pricing model was trained on.
//
// A Snapshot is built once from the transaction table and never mutated
// afterwards, so concurrent readers need no locking. Reloading means building
// a new Snapshot and swapping the reference.
package encoder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/utils"
)

// Category is one (label, code) pair read from the data source
type Category struct {
	Label string `db:"label"`
	Code  int    `db:"code"`
}

// Source provides the category tables, typically the Postgres repository
type Source interface {
	TownCodes(ctx context.Context) ([]Category, error)
	FlatTypeCodes(ctx context.Context) ([]Category, error)
}

// storeys maps each floor band to the storey used as its representative
var storeys = map[model.FloorLevel]int{
	model.FloorLow:    3,
	model.FloorMiddle: 10,
	model.FloorHigh:   20,
}

// Snapshot is an immutable category lookup table
type Snapshot struct {
	towns     map[string]int
	flatTypes map[string]int
}

// NewSnapshot copies the given tables, upper-casing every label
func NewSnapshot(towns, flatTypes []Category) (*Snapshot, error) {
	t, err := buildTable("town", towns)
	if err != nil {
		return nil, err
	}
	f, err := buildTable("flat type", flatTypes)
	if err != nil {
		return nil, err
	}
	return &Snapshot{towns: t, flatTypes: f}, nil
}

// Load reads both category tables from src
func Load(ctx context.Context, src Source) (*Snapshot, error) {
	towns, err := src.TownCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load town codes: %w", err)
	}
	flatTypes, err := src.FlatTypeCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load flat type codes: %w", err)
	}
	return NewSnapshot(towns, flatTypes)
}

func buildTable(name string, rows []Category) (map[string]int, error) {
	table := make(map[string]int, len(rows))
	for _, row := range rows {
		key := strings.ToUpper(strings.TrimSpace(row.Label))
		if key == "" {
			continue
		}
		if existing, ok := table[key]; ok && existing != row.Code {
			return nil, fmt.Errorf("%s %q has conflicting codes %d and %d", name, key, existing, row.Code)
		}
		table[key] = row.Code
	}
	return table, nil
}

// Encode returns the codes for a town and flat type. Aliases are resolved
// first; an unmatched value fails with UnknownCategory.
func (s *Snapshot) Encode(location, unitType string) (int, int, error) {
	town := utils.NormalizeTown(location)
	locationCode, ok := s.towns[town]
	if !ok {
		return 0, 0, apperrors.UnknownCategory("Unknown town: %s%s", town, s.suggestion(town))
	}

	flatType := utils.NormalizeFlatType(unitType)
	unitTypeCode, ok := s.flatTypes[flatType]
	if !ok {
		return 0, 0, apperrors.UnknownCategory("Unknown flat type: %s", flatType)
	}

	return locationCode, unitTypeCode, nil
}

func (s *Snapshot) suggestion(town string) string {
	var matches []string
	for known := range s.towns {
		if utils.FuzzyMatchTown(town, known) {
			matches = append(matches, known)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(matches, ", "))
}

// Towns returns the known town names, sorted
func (s *Snapshot) Towns() []string { return sortedKeys(s.towns) }

// FlatTypes returns the known flat types, sorted
func (s *Snapshot) FlatTypes() []string { return sortedKeys(s.flatTypes) }

// Storey maps a floor band to its representative storey
func Storey(level model.FloorLevel) (int, bool) {
	storey, ok := storeys[level]
	return storey, ok
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
