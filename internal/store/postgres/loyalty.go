package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.Invalid("customer name is required")
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: phone %s", store.ErrDuplicate, customer.Phone)
		}
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_points (customer_id, updated_at) VALUES ($1,$2)
	`, customer.ID, customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &customer, nil
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanBalance(row rowScanner) (domain.PointsBalance, error) {
	var b domain.PointsBalance
	err := row.Scan(&b.CustomerID, &b.PointsBalance, &b.TotalPointsEarned, &b.TotalPointsRedeemed, &b.UpdatedAt)
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, err
}

func (s *Store) GetPointsBalance(ctx context.Context, customerID string) (*domain.PointsBalance, error) {
	b, err := scanBalance(s.db.QueryRowContext(ctx, `
		SELECT customer_id, points_balance, total_points_earned, total_points_redeemed, updated_at
		FROM customer_points
		WHERE customer_id = $1
	`, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ApplyPoints(ctx context.Context, entry domain.LoyaltyTransaction) (*domain.PointsResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	resp, err := applyPointsTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return resp, nil
}

// applyPointsTx locks the balance row, so concurrent redemptions serialize and
// the balance never goes negative.
func applyPointsTx(ctx context.Context, tx *sql.Tx, entry domain.LoyaltyTransaction) (*domain.PointsResponse, error) {
	if entry.ID == "" {
		entry.ID = xid.New("loy")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	balance, err := scanBalance(tx.QueryRowContext(ctx, `
		SELECT customer_id, points_balance, total_points_earned, total_points_redeemed, updated_at
		FROM customer_points
		WHERE customer_id = $1
		FOR UPDATE
	`, entry.CustomerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, entry.CustomerID)
		}
		return nil, err
	}

	balance, entry, err = store.ApplyPoints(balance, entry)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customer_points
		SET points_balance = $2, total_points_earned = $3, total_points_redeemed = $4, updated_at = $5
		WHERE customer_id = $1
	`, balance.CustomerID, balance.PointsBalance, balance.TotalPointsEarned, balance.TotalPointsRedeemed, balance.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, type, points, balance_after, description, sale_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CustomerID, entry.Type, entry.Points, entry.BalanceAfter, entry.Description,
		nullIfEmpty(entry.SaleID), entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.PointsResponse{Balance: balance, Transaction: entry}, nil
}

func (s *Store) ListLoyaltyTransactions(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error) {
	if _, err := s.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, type, points, balance_after, description, COALESCE(sale_id,''), created_by, created_at
		FROM loyalty_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LoyaltyTransaction, 0, limit)
	for rows.Next() {
		var e domain.LoyaltyTransaction
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.Type, &e.Points, &e.BalanceAfter, &e.Description,
			&e.SaleID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
