package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.Invalid("supplier name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrder{}, store.Invalid("supplier_id and items are required")
	}
	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Qty < 1 || item.CostCents < 1 {
			return domain.PurchaseOrder{}, store.Invalid("each item needs product_id, positive qty and cost")
		}
		items = append(items, item)
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseOrderDraft,
		CreatedBy:  actor.Username,
		CreatedAt:  s.now(),
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_create", "purchase_order", created.ID, fmt.Sprintf("supplier=%s,lines=%d", created.SupplierID, len(created.Items)))
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrderByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.PurchaseOrderDraft, domain.PurchaseOrderReceived, domain.PurchaseOrderCancelled:
	default:
		return nil, store.Invalid("unknown purchase order status %q", status)
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

// ReceivePurchaseOrder restocks a draft order and moves each product's buying
// price to the weighted average cost.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.PurchaseOrder{}, store.Invalid("purchase order id is required")
	}

	po, err := s.repo.ReceivePurchaseOrder(ctx, id, actor.Username, s.now())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	units := 0
	for _, item := range po.Items {
		units += item.Qty
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", po.ID, fmt.Sprintf("lines=%d,units=%d", len(po.Items), units))
	return *po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.PurchaseOrder{}, store.Invalid("purchase order id is required")
	}

	po, err := s.repo.CancelPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_cancel", "purchase_order", po.ID, "")
	return *po, nil
}
