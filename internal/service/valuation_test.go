package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
	"github.com/rohanjaggi/hdb-prediction/internal/oracle"
)

type constOracle float64

func (c constOracle) Predict(context.Context, oracle.Features) (float64, error) {
	return float64(c), nil
}

func TestValue_Success(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), linearOracle{}, 99, 20, zap.NewNop())

	scenario := model.ConcreteScenario{
		UnitType: "4 ROOM", Location: "TAMPINES", FloorLevel: model.FloorMiddle,
		AreaSqm: 90, StoreyRepresentative: 10,
	}
	got := svc.Value(context.Background(), scenario)

	require.True(t, got.OK)
	assert.Equal(t, scenario, got.Scenario)
	assert.Equal(t, 510000.0, got.OpenMarketPrice)
	assert.InDelta(t, 408000.0, got.SubsidizedPrice, 1e-6)
	assert.Empty(t, got.ErrorKind)
}

func TestValue_UnknownTown(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), linearOracle{}, 99, 20, zap.NewNop())

	got := svc.Value(context.Background(), model.ConcreteScenario{
		UnitType: "3 ROOM", Location: "ATLANTIS", FloorLevel: model.FloorLow, AreaSqm: 67, StoreyRepresentative: 3,
	})

	assert.False(t, got.OK)
	assert.Equal(t, string(apperrors.KindUnknownCategory), got.ErrorKind)
	assert.Contains(t, got.Error, "ATLANTIS")
	assert.Zero(t, got.OpenMarketPrice)
}

func TestValue_OracleFailure(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), linearOracle{err: errors.New("feature out of range")}, 99, 20, zap.NewNop())

	got := svc.Value(context.Background(), DefaultScenario())
	assert.False(t, got.OK)
	assert.Equal(t, string(apperrors.KindInvalidInput), got.ErrorKind)
}

func TestValue_NonFinitePrice(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), constOracle(math.Inf(1)), 99, 20, zap.NewNop())

	got := svc.Value(context.Background(), DefaultScenario())
	assert.False(t, got.OK)
	assert.Equal(t, string(apperrors.KindInvalidInput), got.ErrorKind)
}

func TestValue_OutOfRangeInputs(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), linearOracle{}, 99, 20, zap.NewNop())

	tests := []struct {
		name    string
		areaSqm int
		storey  int
	}{
		{"zero area", 0, 10},
		{"negative area", math.MinInt64, 10},
		{"huge area", 100000, 10},
		{"zero storey", 90, 0},
		{"storey above any block", 90, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Value(context.Background(), model.ConcreteScenario{
				UnitType: "4 ROOM", Location: "TAMPINES", FloorLevel: model.FloorMiddle,
				AreaSqm: tt.areaSqm, StoreyRepresentative: tt.storey,
			})
			assert.False(t, got.OK)
			assert.Equal(t, string(apperrors.KindInvalidInput), got.ErrorKind)
			assert.Zero(t, got.OpenMarketPrice)
		})
	}

	price, err := svc.PredictProperty(context.Background(), model.PredictRequest{
		StoreyMedian: 5, FloorAreaSqm: maxAreaSqm + 1, Town: "BEDOK", FlatType: "5 ROOM",
	})
	assert.Zero(t, price)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestPredictProperty(t *testing.T) {
	svc := NewValuationService(newTableEncoder(), linearOracle{}, 99, 20, zap.NewNop())

	price, err := svc.PredictProperty(context.Background(), model.PredictRequest{
		StoreyMedian: 5, FloorAreaSqm: 100, Town: "BEDOK", FlatType: "5 ROOM",
	})
	require.NoError(t, err)
	assert.Equal(t, 515000.0, price)

	lease := 120
	_, err = svc.PredictProperty(context.Background(), model.PredictRequest{
		StoreyMedian: 5, FloorAreaSqm: 100, Town: "BEDOK", FlatType: "5 ROOM", RemainingLease: &lease,
	})
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err))
}

func TestBTOPrice(t *testing.T) {
	got, err := BTOPrice(500000, 20)
	require.NoError(t, err)
	assert.InDelta(t, 400000.0, got, 1e-6)

	got, err = BTOPrice(500000, 0)
	require.NoError(t, err)
	assert.Equal(t, 500000.0, got)

	for _, tc := range []struct{ resale, discount float64 }{
		{-1, 20},
		{math.NaN(), 20},
		{500000, -5},
		{500000, 101},
	} {
		_, err := BTOPrice(tc.resale, tc.discount)
		assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err), "resale=%v discount=%v", tc.resale, tc.discount)
	}
}

func TestAfford(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		monthly float64
		income  float64
		bracket model.IncomeBracket
	}{
		{"zero", 0, 0, 0, model.BracketLowMiddle},
		{"exactly low-middle ceiling", 525000, 2100, 7000, model.BracketLowMiddle},
		{"just above low-middle ceiling", 525001, 2100.004, 7000.013333, model.BracketMiddle},
		{"exactly middle ceiling", 1050000, 4200, 14000, model.BracketMiddle},
		{"high", 1200000, 4800, 16000, model.BracketHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Afford(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.price, got.Price)
			assert.InDelta(t, tt.monthly, got.MonthlyPayment, 1e-3)
			assert.InDelta(t, tt.income, got.RequiredMonthlyIncome, 1e-3)
			assert.Equal(t, tt.bracket, got.IncomeBracket)
			assert.Nil(t, got.Scenario)
		})
	}
}

func TestAfford_RejectsBadPrices(t *testing.T) {
	for _, price := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := Afford(price)
		assert.Equal(t, apperrors.KindInvalidInput, apperrors.KindOf(err), "price=%v", price)
	}
}
