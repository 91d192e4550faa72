// Package ledger holds the money and hour arithmetic shared by both store
// implementations. All amounts are integer cents.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// RegularHoursPerMonth is the overtime threshold.
	RegularHoursPerMonth = 160
	// CentsPerPoint: one loyalty point per whole currency unit.
	CentsPerPoint = 100
)

var (
	hundred   = decimal.NewFromInt(100)
	secPerHr  = decimal.NewFromInt(3600)
	regularHr = decimal.NewFromInt(RegularHoursPerMonth)
)

type LineProfit struct {
	ProfitPerUnitCents int64
	TotalProfitCents   int64
	MarginPercentage   float64
}

// Profit snapshots the margin of one sale line against the buying price at sale time.
func Profit(unitPriceCents int64, buyingPriceCents int64, qty int) LineProfit {
	perUnit := unitPriceCents - buyingPriceCents
	return LineProfit{
		ProfitPerUnitCents: perUnit,
		TotalProfitCents:   perUnit * int64(qty),
		MarginPercentage:   MarginPercentage(perUnit, unitPriceCents),
	}
}

func MarginPercentage(profitPerUnitCents int64, unitPriceCents int64) float64 {
	if unitPriceCents == 0 {
		return 0
	}
	pct := decimal.NewFromInt(profitPerUnitCents).Mul(hundred).Div(decimal.NewFromInt(unitPriceCents))
	return pct.Round(2).InexactFloat64()
}

func TaxCents(baseCents int64, ratePercent float64) int64 {
	if ratePercent <= 0 || baseCents <= 0 {
		return 0
	}
	tax := decimal.NewFromInt(baseCents).Mul(decimal.NewFromFloat(ratePercent)).Div(hundred)
	return tax.Round(0).IntPart()
}

// Refund returns the proportional refund for qty units of a sale line. The
// return that completes the line refunds whatever is left, so the refunds of a
// line always add up to its total.
func Refund(totalCents int64, soldQty int, returnedQty int, qty int, refundedCents int64) int64 {
	if soldQty <= 0 || qty <= 0 {
		return 0
	}
	if returnedQty+qty >= soldQty {
		return max(totalCents-refundedCents, 0)
	}
	refund := totalCents * int64(qty) / int64(soldQty)
	return min(refund, max(totalCents-refundedCents, 0))
}

// MaxRefund is what returning every remaining unit would refund.
func MaxRefund(totalCents int64, soldQty int, returnedQty int, refundedCents int64) int64 {
	return Refund(totalCents, soldQty, returnedQty, soldQty-returnedQty, refundedCents)
}

// ReverseProfit reduces the recorded profit of a sale line, never below zero.
func ReverseProfit(totalProfitCents int64, profitPerUnitCents int64, qty int) int64 {
	return max(totalProfitCents-profitPerUnitCents*int64(qty), 0)
}

func ReturnStatus(soldQty int, returnedQty int) string {
	switch {
	case returnedQty <= 0:
		return "none"
	case returnedQty >= soldQty:
		return "full"
	default:
		return "partial"
	}
}

// PointsFor converts an amount into whole loyalty points, rounding down.
func PointsFor(amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	return amountCents / CentsPerPoint
}

type PayrollBreakdown struct {
	TotalHours    decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	TotalPayCents int64
}

// Payroll splits worked seconds into regular and overtime hours and prices them.
func Payroll(workedSeconds int64, hourlyRateCents int64, overtimeRateCents int64) PayrollBreakdown {
	total := decimal.NewFromInt(max(workedSeconds, 0)).Div(secPerHr)
	regular := decimal.Min(total, regularHr)
	overtime := total.Sub(regular)
	pay := regular.Mul(decimal.NewFromInt(hourlyRateCents)).
		Add(overtime.Mul(decimal.NewFromInt(overtimeRateCents)))
	return PayrollBreakdown{
		TotalHours:    total,
		RegularHours:  regular,
		OvertimeHours: overtime,
		TotalPayCents: pay.Round(0).IntPart(),
	}
}

// DefaultOvertimeRate is time and a half.
func DefaultOvertimeRate(hourlyRateCents int64) int64 {
	return decimal.NewFromInt(hourlyRateCents).Mul(decimal.NewFromFloat(1.5)).Round(0).IntPart()
}

func Hours(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// MonthRange is the UTC half-open interval of a calendar month.
func MonthRange(month int, year int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func SessionSeconds(login time.Time, logout time.Time) int64 {
	if logout.Before(login) {
		return 0
	}
	return int64(logout.Sub(login) / time.Second)
}

// WeightedCost blends the cost of stock on hand with an incoming delivery.
func WeightedCost(oldCostCents int64, oldQty int, incomingCostCents int64, incomingQty int) int64 {
	if incomingQty <= 0 || incomingCostCents <= 0 {
		return oldCostCents
	}
	if oldQty <= 0 || oldCostCents <= 0 {
		return incomingCostCents
	}
	value := decimal.NewFromInt(oldCostCents * int64(oldQty)).
		Add(decimal.NewFromInt(incomingCostCents * int64(incomingQty)))
	weighted := value.Div(decimal.NewFromInt(int64(oldQty + incomingQty))).Round(0).IntPart()
	return max(weighted, 1)
}
