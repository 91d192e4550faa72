package store

import (
	"fmt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
)

// SnapshotSale fills the derived fields of a sale line from the receipt and
// the product row as it was locked at sale time.
func SnapshotSale(receipt domain.SaleReceipt, line domain.Sale, product domain.Product, id string) domain.Sale {
	profit := ledger.Profit(line.UnitPriceCents, product.BuyingPriceCents, line.Quantity)
	line.ID = id
	line.ReceiptID = receipt.ID
	line.ProductName = product.Name
	line.BuyingPriceAtSaleCents = product.BuyingPriceCents
	line.ProfitPerUnitCents = profit.ProfitPerUnitCents
	line.TotalProfitCents = profit.TotalProfitCents
	line.ProfitMarginPercentage = profit.MarginPercentage
	line.PaymentMethod = receipt.PaymentMethod
	line.AmountPaidCents = receipt.AmountPaidCents
	line.ChangeGivenCents = receipt.ChangeGivenCents
	line.ReturnStatus = domain.ReturnStatusNone
	line.Cashier = receipt.Cashier
	line.CustomerID = receipt.CustomerID
	line.CreatedAt = receipt.CreatedAt
	return line
}

// Eligibility reports what is still returnable on a sale line.
func Eligibility(sale domain.Sale, returnedQty int, refundedCents int64) (*domain.ReturnEligibility, error) {
	remaining := sale.Quantity - returnedQty
	if remaining <= 0 {
		return nil, ErrNoRemainingQuantity
	}
	return &domain.ReturnEligibility{
		SaleID:            sale.ID,
		ProductID:         sale.ProductID,
		SoldQuantity:      sale.Quantity,
		ReturnedQuantity:  returnedQty,
		RemainingQuantity: remaining,
		MaxRefundCents:    ledger.MaxRefund(sale.TotalAmountCents, sale.Quantity, returnedQty, refundedCents),
		ReturnStatus:      sale.ReturnStatus,
	}, nil
}

// ApplyReturn validates ret against the sale line and books it: the refund and
// profit reversal are set on ret, and the sale's profit and return status are
// corrected in place. It returns the quantity still returnable afterwards.
func ApplyReturn(sale *domain.Sale, returnedQty int, refundedCents int64, ret *domain.ProductReturn) (int, error) {
	if ret.QuantityReturned < 1 {
		return 0, Invalid("quantity_returned must be positive")
	}
	remaining := sale.Quantity - returnedQty
	if remaining <= 0 {
		return 0, ErrNoRemainingQuantity
	}
	if ret.QuantityReturned > remaining {
		return 0, fmt.Errorf("%w: %d requested, %d remaining", ErrExceedsRemainingQuantity, ret.QuantityReturned, remaining)
	}

	ret.RefundAmountCents = ledger.Refund(sale.TotalAmountCents, sale.Quantity, returnedQty, ret.QuantityReturned, refundedCents)
	newProfit := ledger.ReverseProfit(sale.TotalProfitCents, sale.ProfitPerUnitCents, ret.QuantityReturned)
	ret.ProfitReversedCents = sale.TotalProfitCents - newProfit
	sale.TotalProfitCents = newProfit
	sale.ReturnStatus = ledger.ReturnStatus(sale.Quantity, returnedQty+ret.QuantityReturned)
	return remaining - ret.QuantityReturned, nil
}

// ApplyPoints moves a balance by a ledger entry. Earn entries must be positive
// and redeem entries negative; a redeem larger than the balance fails with
// ErrInsufficientPoints. Adjustments that would go below zero are clamped.
func ApplyPoints(balance domain.PointsBalance, entry domain.LoyaltyTransaction) (domain.PointsBalance, domain.LoyaltyTransaction, error) {
	switch entry.Type {
	case domain.LoyaltyEarn:
		if entry.Points < 1 {
			return balance, entry, Invalid("earned points must be positive")
		}
		balance.TotalPointsEarned += entry.Points
	case domain.LoyaltyRedeem:
		if entry.Points > -1 {
			return balance, entry, Invalid("redeemed points must be negative")
		}
		if balance.PointsBalance < -entry.Points {
			return balance, entry, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientPoints, balance.PointsBalance, -entry.Points)
		}
		balance.TotalPointsRedeemed += -entry.Points
	case domain.LoyaltyAdjustment:
		if balance.PointsBalance+entry.Points < 0 {
			entry.Points = -balance.PointsBalance
		}
	default:
		return balance, entry, Invalid("unknown loyalty transaction type %q", entry.Type)
	}

	balance.CustomerID = entry.CustomerID
	balance.PointsBalance += entry.Points
	balance.UpdatedAt = entry.CreatedAt
	entry.BalanceAfter = balance.PointsBalance
	return balance, entry, nil
}

// ReturnPointsEntry is the loyalty reversal for a refund, or false when the
// refund is worth no points.
func ReturnPointsEntry(sale domain.Sale, ret domain.ProductReturn) (domain.LoyaltyTransaction, bool) {
	points := ledger.PointsFor(ret.RefundAmountCents)
	if sale.CustomerID == "" || points < 1 {
		return domain.LoyaltyTransaction{}, false
	}
	return domain.LoyaltyTransaction{
		CustomerID:  sale.CustomerID,
		Type:        domain.LoyaltyAdjustment,
		Points:      -points,
		Description: "points reversed for return " + ret.ID,
		SaleID:      sale.ID,
		CreatedBy:   ret.ProcessedBy,
		CreatedAt:   ret.CreatedAt,
	}, true
}

// EarnPointsEntry is the loyalty credit for a receipt, or false when the sale
// has no customer or earns nothing.
func EarnPointsEntry(receipt domain.SaleReceipt) (domain.LoyaltyTransaction, bool) {
	points := ledger.PointsFor(receipt.Summary.TotalCents)
	if receipt.CustomerID == "" || points < 1 {
		return domain.LoyaltyTransaction{}, false
	}
	return domain.LoyaltyTransaction{
		CustomerID:  receipt.CustomerID,
		Type:        domain.LoyaltyEarn,
		Points:      points,
		Description: "points earned on receipt " + receipt.ID,
		SaleID:      receipt.ID,
		CreatedBy:   receipt.Cashier,
		CreatedAt:   receipt.CreatedAt,
	}, true
}
