package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.Invalid("supplier name is required")
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.Invalid("supplier_id and items are required")
	}
	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
	}
	for _, item := range po.Items {
		if item.Qty < 1 || item.CostCents < 1 {
			return nil, store.Invalid("purchase order lines need positive qty and cost")
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.PurchaseOrderDraft
	po.Items = slices.Clone(po.Items)

	s.purchaseOrdersByID[po.ID] = po
	return clonePurchaseOrder(po), nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return clonePurchaseOrder(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, *clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

// ReceivePurchaseOrder restocks every line and moves the live buying price to
// the weighted average of stock on hand and the delivery.
func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}
	for _, item := range po.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	for _, item := range po.Items {
		product := s.products[item.ProductID]
		cost := ledger.WeightedCost(product.BuyingPriceCents, product.AvailableQuantity, item.CostCents, item.Qty)
		if cost != product.BuyingPriceCents {
			s.appendPriceHistoryLocked(domain.ProductPriceHistory{
				ProductID:     product.ID,
				PriceType:     domain.PriceTypeBuying,
				OldPriceCents: product.BuyingPriceCents,
				NewPriceCents: cost,
				ChangedBy:     receivedBy,
				ChangedAt:     receivedAt,
			})
		}
		product.BuyingPriceCents = cost
		product.StockQuantity += item.Qty
		product.AvailableQuantity += item.Qty
		product.UpdatedAt = receivedAt
		s.products[product.ID] = product
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	s.purchaseOrdersByID[purchaseOrderID] = po
	return clonePurchaseOrder(po), nil
}

func (s *Store) CancelPurchaseOrder(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}
	po.Status = domain.PurchaseOrderCancelled
	s.purchaseOrdersByID[purchaseOrderID] = po
	return clonePurchaseOrder(po), nil
}

func clonePurchaseOrder(src domain.PurchaseOrder) *domain.PurchaseOrder {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return &dst
}
