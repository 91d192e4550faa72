package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// CreateSale validates the client's line math and payment, then hands the
// receipt to the store, which locks stock and snapshots buying prices. A
// repeated idempotency key returns the original receipt with Duplicate set.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)

	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, store.Invalid("unsupported payment method %q", req.PaymentMethod)
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.SaleResponse{}, store.Invalid("tax_rate_percent must be between 0 and 100")
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, store.Invalid("sale has no items")
	}

	if existing, err := s.repo.FindReceiptByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return domain.SaleResponse{Receipt: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SaleResponse{}, err
	}

	lines := make([]domain.Sale, 0, len(req.Items))
	for i, item := range req.Items {
		line, err := normalizeSaleLine(item)
		if err != nil {
			return domain.SaleResponse{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}

	summary := summarize(lines, req.TaxRatePercent)
	change, err := settlePayment(req, summary.TotalCents)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	receipt := domain.SaleReceipt{
		ID:               xid.New("rcpt"),
		IdempotencyKey:   req.IdempotencyKey,
		Cashier:          actor.Username,
		CustomerID:       req.CustomerID,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		TaxRatePercent:   req.TaxRatePercent,
		AmountPaidCents:  req.AmountPaidCents,
		ChangeGivenCents: change,
		Summary:          summary,
		CreatedAt:        s.now(),
		Sales:            lines,
	}

	created, err := s.repo.CreateSale(ctx, receipt)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if created.ID != receipt.ID {
		// Lost a race with a concurrent submission of the same key.
		return domain.SaleResponse{Receipt: *created, Duplicate: true}, nil
	}

	s.invalidateReport(ctx, created.CreatedAt)
	s.logAudit(ctx, "sale_create", "receipt", created.ID, fmt.Sprintf(
		"total=%d,payment=%s,lines=%d,customer=%s,points=%d",
		created.Summary.TotalCents, created.PaymentMethod, created.Summary.LineCount, created.CustomerID, created.PointsEarned,
	))
	return domain.SaleResponse{Receipt: *created}, nil
}

func (s *Service) GetReceipt(ctx context.Context, id string) (domain.SaleReceipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SaleReceipt{}, store.Invalid("receipt id is required")
	}
	receipt, err := s.repo.GetReceipt(ctx, id)
	if err != nil {
		return domain.SaleReceipt{}, err
	}
	return *receipt, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.Invalid("sale id is required")
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// maxLineCents caps one line's pre-discount amount so receipt sums stay far
// from int64 overflow.
const maxLineCents int64 = 1_000_000_000_000

// normalizeSaleLine fills optional amounts and rejects lines whose client-side
// discount or total disagree with unit price times quantity.
func normalizeSaleLine(item domain.SaleLineRequest) (domain.Sale, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" {
		return domain.Sale{}, store.Invalid("product_id is required")
	}
	if item.Quantity < 1 {
		return domain.Sale{}, store.Invalid("quantity must be positive")
	}
	if item.UnitPriceCents < 0 {
		return domain.Sale{}, store.Invalid("unit_price_cents must not be negative")
	}
	if item.OriginalPriceCents == 0 {
		item.OriginalPriceCents = item.UnitPriceCents
	}
	if item.OriginalPriceCents < item.UnitPriceCents {
		return domain.Sale{}, store.Invalid("original_price_cents must not be below unit_price_cents")
	}

	qty := int64(item.Quantity)
	if item.OriginalPriceCents > maxLineCents/qty {
		return domain.Sale{}, store.Invalid("line amount for %s exceeds %d cents", item.ProductID, maxLineCents)
	}
	discount := (item.OriginalPriceCents - item.UnitPriceCents) * qty
	total := item.UnitPriceCents * qty
	if item.DiscountCents != 0 && item.DiscountCents != discount {
		return domain.Sale{}, store.Invalid("discount_cents %d does not match %d", item.DiscountCents, discount)
	}
	if item.TotalAmountCents != 0 && item.TotalAmountCents != total {
		return domain.Sale{}, store.Invalid("total_amount_cents %d does not match %d", item.TotalAmountCents, total)
	}

	return domain.Sale{
		ProductID:           item.ProductID,
		Quantity:            item.Quantity,
		UnitPriceCents:      item.UnitPriceCents,
		OriginalPriceCents:  item.OriginalPriceCents,
		DiscountAmountCents: discount,
		TotalAmountCents:    total,
	}, nil
}

func summarize(lines []domain.Sale, taxRatePercent float64) domain.SaleSummary {
	var summary domain.SaleSummary
	for _, line := range lines {
		summary.SubtotalCents += line.OriginalPriceCents * int64(line.Quantity)
		summary.DiscountCents += line.DiscountAmountCents
		summary.ItemCount += line.Quantity
	}
	summary.LineCount = len(lines)
	base := summary.SubtotalCents - summary.DiscountCents
	summary.TaxCents = ledger.TaxCents(base, taxRatePercent)
	summary.TotalCents = base + summary.TaxCents
	return summary
}

// settlePayment returns the change owed. Cash must cover the total; other
// methods must carry a paid amount and never give change.
func settlePayment(req domain.SaleRequest, totalCents int64) (int64, error) {
	if req.AmountPaidCents < 0 || req.ChangeGivenCents < 0 {
		return 0, store.Invalid("payment amounts must not be negative")
	}
	if req.PaymentMethod == domain.PaymentCash {
		if req.AmountPaidCents < totalCents {
			return 0, store.Invalid("amount_paid_cents %d does not cover total %d", req.AmountPaidCents, totalCents)
		}
		change := req.AmountPaidCents - totalCents
		if req.ChangeGivenCents != 0 && req.ChangeGivenCents != change {
			return 0, store.Invalid("change_given_cents %d does not match %d", req.ChangeGivenCents, change)
		}
		return change, nil
	}

	if req.AmountPaidCents < 1 {
		return 0, store.Invalid("amount_paid_cents is required for %s payments", req.PaymentMethod)
	}
	if req.ChangeGivenCents != 0 {
		return 0, store.Invalid("change is only given for cash payments")
	}
	return 0, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet:
		return true
	default:
		return false
	}
}
