package usecase

import (
	"github.com/DRSN-tech/kaspi-conveyor/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceBreakdown — розничная цена и её составляющие в целых единицах валюты.
type PriceBreakdown struct {
	Cost       int64
	Retail     int64
	Commission int64
	Tax        int64
	Logistics  int64
	Margin     int64
}

// RetailPrice считает розничную цену cost / divisor с округлением половины от нуля.
// Неположительный делитель означает, что наценки нет.
func RetailPrice(cost int64, divisor float64) int64 {
	if divisor <= 0 {
		return cost
	}
	return decimal.NewFromInt(cost).
		Div(decimal.NewFromFloat(divisor)).
		Round(0).
		IntPart()
}

// percentOf возвращает round(amount * pct / 100).
func percentOf(amount int64, pct float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(hundred).
		Round(0).
		IntPart()
}

// CalculatePrice раскладывает розничную цену на комиссию, налог, логистику и маржу.
// Каждый шаг с процентом или делителем округляется отдельно.
func CalculatePrice(cost int64, s domain.Settings) PriceBreakdown {
	retail := RetailPrice(cost, s.RetailDivisor)
	commission := percentOf(retail, s.CommissionPercent)
	tax := percentOf(retail, s.TaxPercent)

	return PriceBreakdown{
		Cost:       cost,
		Retail:     retail,
		Commission: commission,
		Tax:        tax,
		Logistics:  s.LogisticsCost,
		Margin:     retail - cost - commission - tax - s.LogisticsCost,
	}
}
