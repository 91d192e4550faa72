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

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.Invalid("customer name is required")
	}
	if customer.Phone != "" {
		for _, existing := range s.customersByID {
			if existing.Phone == customer.Phone {
				return nil, fmt.Errorf("%w: phone %s", store.ErrDuplicate, customer.Phone)
			}
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	s.balances[customer.ID] = domain.PointsBalance{CustomerID: customer.ID, UpdatedAt: customer.CreatedAt}
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetPointsBalance(_ context.Context, customerID string) (*domain.PointsBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &balance, nil
}

func (s *Store) ApplyPoints(_ context.Context, entry domain.LoyaltyTransaction) (*domain.PointsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[entry.CustomerID]; !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, entry.CustomerID)
	}
	return s.applyPointsLocked(entry)
}

func (s *Store) applyPointsLocked(entry domain.LoyaltyTransaction) (*domain.PointsResponse, error) {
	if entry.ID == "" {
		entry.ID = xid.New("loy")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	balance, entry, err := store.ApplyPoints(s.balances[entry.CustomerID], entry)
	if err != nil {
		return nil, err
	}
	s.balances[entry.CustomerID] = balance
	s.loyaltyLog = append(s.loyaltyLog, entry)
	return &domain.PointsResponse{Balance: balance, Transaction: entry}, nil
}

func (s *Store) ListLoyaltyTransactions(_ context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customersByID[customerID]; !ok {
		return nil, store.ErrNotFound
	}
	result := make([]domain.LoyaltyTransaction, 0, 16)
	for _, entry := range s.loyaltyLog {
		if entry.CustomerID == customerID {
			result = append(result, entry)
		}
	}
	slices.Reverse(result)
	return truncate(result, limit), nil
}
