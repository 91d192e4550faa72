package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CheckReturnEligibility(ctx context.Context, saleID string, productID string) (domain.ReturnEligibility, error) {
	saleID = strings.TrimSpace(saleID)
	productID = strings.TrimSpace(productID)
	if saleID == "" || productID == "" {
		return domain.ReturnEligibility{}, store.Invalid("sale_id and product_id are required")
	}
	eligibility, err := s.repo.GetReturnEligibility(ctx, saleID, productID)
	if err != nil {
		return domain.ReturnEligibility{}, err
	}
	return *eligibility, nil
}

// ProcessReturn books a return against one sale line. The refund, profit
// reversal, optional restock and loyalty reversal happen in one store call.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	req.SaleID = strings.TrimSpace(req.SaleID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.SaleID == "" || req.ProductID == "" {
		return domain.ReturnResponse{}, store.Invalid("sale_id and product_id are required")
	}
	if req.QuantityReturned < 1 {
		return domain.ReturnResponse{}, store.Invalid("quantity_returned must be positive")
	}

	resp, err := s.repo.CreateReturn(ctx, domain.ProductReturn{
		ID:               xid.New("ret"),
		SaleID:           req.SaleID,
		ProductID:        req.ProductID,
		QuantityReturned: req.QuantityReturned,
		Reason:           defaultString(req.Reason, "unspecified"),
		Restocked:        req.Restock,
		ProcessedBy:      actor.Username,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.invalidateReport(ctx, resp.Return.CreatedAt)
	s.logAudit(ctx, "sale_return", "sale", req.SaleID, fmt.Sprintf(
		"product=%s,qty=%d,refund=%d,restock=%t,status=%s,points=%d",
		req.ProductID, req.QuantityReturned, resp.Return.RefundAmountCents, req.Restock, resp.ReturnStatus, resp.Return.PointsDeducted,
	))
	return *resp, nil
}

func (s *Service) ListReturns(ctx context.Context, saleID string) ([]domain.ProductReturn, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return nil, store.Invalid("sale id is required")
	}
	return s.repo.ListReturns(ctx, saleID)
}
