package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.Invalid("name is required")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cus"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// GetCustomerPoints returns the balance and the most recent ledger entries.
func (s *Service) GetCustomerPoints(ctx context.Context, customerID string, limit int) (domain.CustomerPoints, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CustomerPoints{}, store.Invalid("customer id is required")
	}
	if limit < 1 {
		limit = 50
	}

	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerPoints{}, err
	}
	balance, err := s.repo.GetPointsBalance(ctx, customerID)
	if err != nil {
		return domain.CustomerPoints{}, err
	}
	entries, err := s.repo.ListLoyaltyTransactions(ctx, customerID, limit)
	if err != nil {
		return domain.CustomerPoints{}, err
	}
	return domain.CustomerPoints{Customer: *customer, Balance: *balance, Transactions: entries}, nil
}

// AddLoyaltyPoints credits points outside a sale. Admin only.
func (s *Service) AddLoyaltyPoints(ctx context.Context, customerID string, req domain.PointsRequest) (domain.PointsResponse, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PointsResponse{}, err
	}
	if req.Points < 1 {
		return domain.PointsResponse{}, store.Invalid("points must be positive")
	}
	return s.applyPoints(ctx, actor, customerID, domain.LoyaltyEarn, req.Points, req)
}

// RedeemLoyaltyPoints debits points; the store rejects a redemption larger
// than the balance under the same lock that moves it.
func (s *Service) RedeemLoyaltyPoints(ctx context.Context, customerID string, req domain.PointsRequest) (domain.PointsResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.PointsResponse{}, err
	}
	if req.Points < 1 {
		return domain.PointsResponse{}, store.Invalid("points must be positive")
	}
	return s.applyPoints(ctx, actor, customerID, domain.LoyaltyRedeem, -req.Points, req)
}

func (s *Service) applyPoints(ctx context.Context, actor domain.Actor, customerID string, kind string, points int64, req domain.PointsRequest) (domain.PointsResponse, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.PointsResponse{}, store.Invalid("customer id is required")
	}

	resp, err := s.repo.ApplyPoints(ctx, domain.LoyaltyTransaction{
		ID:          xid.New("loy"),
		CustomerID:  customerID,
		Type:        kind,
		Points:      points,
		Description: defaultString(req.Description, "manual "+kind),
		SaleID:      strings.TrimSpace(req.SaleID),
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.PointsResponse{}, err
	}
	s.logAudit(ctx, "loyalty_"+kind, "customer", customerID, fmt.Sprintf("points=%d,balance=%d", points, resp.Balance.PointsBalance))
	return *resp, nil
}
