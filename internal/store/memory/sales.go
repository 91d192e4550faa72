package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateSale(_ context.Context, receipt domain.SaleReceipt) (*domain.SaleReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(receipt.Sales) == 0 {
		return nil, store.Invalid("sale has no items")
	}
	if receipt.IdempotencyKey != "" {
		if id, ok := s.receiptIDByIdem[receipt.IdempotencyKey]; ok {
			return s.receiptLocked(id), nil
		}
	}
	if receipt.CustomerID != "" {
		if _, ok := s.customersByID[receipt.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, receipt.CustomerID)
		}
	}

	// Validate the whole batch before touching any counter.
	requested := make(map[string]int, len(receipt.Sales))
	for _, line := range receipt.Sales {
		if line.Quantity < 1 {
			return nil, store.Invalid("quantity must be positive")
		}
		product, exists := s.products[line.ProductID]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
		if product.AvailableQuantity < requested[line.ProductID] {
			return nil, fmt.Errorf("%w: product %s has %d available", store.ErrInsufficientStock, line.ProductID, product.AvailableQuantity)
		}
	}

	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}

	saleIDs := make([]string, 0, len(receipt.Sales))
	for _, line := range receipt.Sales {
		product := s.products[line.ProductID]
		sale := store.SnapshotSale(receipt, line, product, xid.New("sale"))
		product.AvailableQuantity -= line.Quantity
		product.SoldQuantity += line.Quantity
		product.UpdatedAt = receipt.CreatedAt
		s.products[product.ID] = product

		s.salesByID[sale.ID] = sale
		saleIDs = append(saleIDs, sale.ID)
	}

	if entry, ok := store.EarnPointsEntry(receipt); ok {
		applied, err := s.applyPointsLocked(entry)
		if err != nil {
			return nil, err
		}
		receipt.PointsEarned = applied.Transaction.Points
	}

	header := receipt
	header.Sales = nil
	s.receiptsByID[receipt.ID] = header
	s.saleIDsByReceipt[receipt.ID] = saleIDs
	if receipt.IdempotencyKey != "" {
		s.receiptIDByIdem[receipt.IdempotencyKey] = receipt.ID
	}
	return s.receiptLocked(receipt.ID), nil
}

// receiptLocked rebuilds a receipt with the current state of its sale rows.
func (s *Store) receiptLocked(id string) *domain.SaleReceipt {
	header, ok := s.receiptsByID[id]
	if !ok {
		return nil
	}
	ids := s.saleIDsByReceipt[id]
	header.Sales = make([]domain.Sale, 0, len(ids))
	for _, saleID := range ids {
		header.Sales = append(header.Sales, s.salesByID[saleID])
	}
	return &header
}

func (s *Store) FindReceiptByIdempotency(_ context.Context, key string) (*domain.SaleReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.receiptIDByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.receiptLocked(id), nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.SaleReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt := s.receiptLocked(id)
	if receipt == nil {
		return nil, store.ErrNotFound
	}
	return receipt, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) GetReturnEligibility(_ context.Context, saleID string, productID string) (*domain.ReturnEligibility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, err := s.saleLineLocked(saleID, productID)
	if err != nil {
		return nil, err
	}
	returnedQty, refunded := returnedTotals(s.returnsBySale[saleID])
	return store.Eligibility(sale, returnedQty, refunded)
}

func (s *Store) CreateReturn(_ context.Context, ret domain.ProductReturn) (*domain.ReturnResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, err := s.saleLineLocked(ret.SaleID, ret.ProductID)
	if err != nil {
		return nil, err
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	prior := s.returnsBySale[sale.ID]
	returnedQty, refunded := returnedTotals(prior)
	remaining, err := store.ApplyReturn(&sale, returnedQty, refunded, &ret)
	if err != nil {
		return nil, err
	}

	if ret.Restocked {
		product, ok := s.products[sale.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sale.ProductID)
		}
		product.AvailableQuantity += ret.QuantityReturned
		product.SoldQuantity = max(product.SoldQuantity-ret.QuantityReturned, 0)
		product.UpdatedAt = ret.CreatedAt
		s.products[product.ID] = product
	}

	if entry, ok := store.ReturnPointsEntry(sale, ret); ok {
		applied, err := s.applyPointsLocked(entry)
		if err != nil {
			return nil, err
		}
		ret.PointsDeducted = -applied.Transaction.Points
	}

	s.salesByID[sale.ID] = sale
	s.returnsBySale[sale.ID] = append(prior, ret)
	return &domain.ReturnResponse{
		Return:            ret,
		ReturnStatus:      sale.ReturnStatus,
		RemainingQuantity: remaining,
	}, nil
}

func (s *Store) ListReturns(_ context.Context, saleID string) ([]domain.ProductReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.salesByID[saleID]; !ok {
		return nil, store.ErrNotFound
	}
	returns := slices.Clone(s.returnsBySale[saleID])
	if returns == nil {
		returns = []domain.ProductReturn{}
	}
	return returns, nil
}

func (s *Store) saleLineLocked(saleID string, productID string) (domain.Sale, error) {
	sale, ok := s.salesByID[saleID]
	if !ok || (productID != "" && sale.ProductID != productID) {
		return domain.Sale{}, fmt.Errorf("%w: sale %s for product %s", store.ErrNotFound, saleID, productID)
	}
	return sale, nil
}

func returnedTotals(returns []domain.ProductReturn) (int, int64) {
	qty := 0
	refunded := int64(0)
	for _, r := range returns {
		qty += r.QuantityReturned
		refunded += r.RefundAmountCents
	}
	return qty, refunded
}

func (s *Store) GetDailyReport(_ context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		ByPayment: make([]domain.DailyReportPayment, 0, 4),
		ByCashier: make([]domain.DailyReportCashier, 0, 8),
	}
	byPayment := map[string]*domain.DailyReportPayment{}
	byCashier := map[string]*domain.DailyReportCashier{}

	for id, header := range s.receiptsByID {
		if !inRange(header.CreatedAt, from, to) {
			continue
		}
		receipt := s.receiptLocked(id)
		report.Receipts++
		report.GrossSalesCents += receipt.Summary.SubtotalCents
		report.DiscountCents += receipt.Summary.DiscountCents
		report.TaxCents += receipt.Summary.TaxCents
		report.NetRevenueCents += receipt.Summary.TotalCents

		profit := int64(0)
		for _, sale := range receipt.Sales {
			report.SaleLines++
			report.ItemsSold += int64(sale.Quantity)
			profit += sale.TotalProfitCents
		}
		report.ProfitCents += profit

		payment := byPayment[receipt.PaymentMethod]
		if payment == nil {
			payment = &domain.DailyReportPayment{PaymentMethod: receipt.PaymentMethod}
			byPayment[receipt.PaymentMethod] = payment
		}
		payment.Receipts++
		payment.TotalCents += receipt.Summary.TotalCents

		cashier := byCashier[receipt.Cashier]
		if cashier == nil {
			cashier = &domain.DailyReportCashier{Cashier: receipt.Cashier}
			byCashier[receipt.Cashier] = cashier
		}
		cashier.Receipts++
		cashier.TotalCents += receipt.Summary.TotalCents
		cashier.ProfitCents += profit
	}

	for _, returns := range s.returnsBySale {
		for _, r := range returns {
			if inRange(r.CreatedAt, from, to) {
				report.RefundCents += r.RefundAmountCents
			}
		}
	}
	report.NetRevenueCents -= report.RefundCents

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	for _, entry := range byCashier {
		report.ByCashier = append(report.ByCashier, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})
	slices.SortFunc(report.ByCashier, func(a, b domain.DailyReportCashier) int {
		return strings.Compare(a.Cashier, b.Cashier)
	})
	return report, nil
}
