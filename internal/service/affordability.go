package service

import (
	"math"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

const (
	// monthlyPaymentRate approximates a 25-year loan repayment per dollar
	monthlyPaymentRate = 0.004
	// maxIncomeShare is the part of monthly income the payment may take
	maxIncomeShare = 0.3

	lowMiddleIncomeCeiling = 7000.0
	middleIncomeCeiling    = 14000.0
)

// Afford derives the monthly payment and required household income for a price.
func Afford(price float64) (model.AffordabilityResult, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return model.AffordabilityResult{}, apperrors.InvalidInput("price must be a finite number")
	}
	if price < 0 {
		return model.AffordabilityResult{}, apperrors.InvalidInput("price must not be negative, got %.2f", price)
	}

	monthly := price * monthlyPaymentRate
	income := monthly / maxIncomeShare

	return model.AffordabilityResult{
		Price:                 price,
		MonthlyPayment:        monthly,
		RequiredMonthlyIncome: income,
		IncomeBracket:         bracketFor(income),
	}, nil
}

func bracketFor(income float64) model.IncomeBracket {
	switch {
	case income <= lowMiddleIncomeCeiling:
		return model.BracketLowMiddle
	case income <= middleIncomeCeiling:
		return model.BracketMiddle
	default:
		return model.BracketHigh
	}
}
