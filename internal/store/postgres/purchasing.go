package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrDuplicate, supplier.ID)
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Phone, &sp.CreatedAt); err != nil {
			return nil, err
		}
		sp.CreatedAt = sp.CreatedAt.UTC()
		suppliers = append(suppliers, sp)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.Invalid("supplier_id and items are required")
	}
	for _, item := range po.Items {
		if item.Qty < 1 || item.CostCents < 1 {
			return nil, store.Invalid("purchase order lines need positive qty and cost")
		}
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.PurchaseOrderDraft

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, po.ID, po.SupplierID, po.Status, po.CreatedBy, po.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
		}
		return nil, err
	}

	for _, item := range po.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, qty, cost_cents)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.ProductID, item.Qty, item.CostCents)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &po, nil
}

type poQueryer interface {
	queryer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	return loadPurchaseOrder(ctx, s.db, purchaseOrderID, false)
}

func loadPurchaseOrder(ctx context.Context, q poQueryer, purchaseOrderID string, lock bool) (*domain.PurchaseOrder, error) {
	query := `
		SELECT id, supplier_id, status, created_by, created_at, received_at, COALESCE(received_by,'')
		FROM purchase_orders
		WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, purchaseOrderID).Scan(
		&po.ID, &po.SupplierID, &po.Status, &po.CreatedBy, &po.CreatedAt, &receivedAt, &po.ReceivedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		po.ReceivedAt = &t
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	po.Items = make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.CostCents); err != nil {
			return nil, err
		}
		po.Items = append(po.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	status = strings.ToLower(strings.TrimSpace(status))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	result := make([]domain.PurchaseOrder, 0, len(ids))
	for _, id := range ids {
		po, err := loadPurchaseOrder(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		result = append(result, *po)
	}
	return result, nil
}

// ReceivePurchaseOrder restocks every line and moves the buying price to the
// weighted average of stock on hand and the delivery, inside one transaction.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := loadPurchaseOrder(ctx, tx, purchaseOrderID, true)
	if err != nil {
		return nil, err
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}

	for _, item := range po.Items {
		var buying int64
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT buying_price_cents, available_quantity
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, item.ProductID).Scan(&buying, &available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
			return nil, err
		}

		cost := ledger.WeightedCost(buying, available, item.CostCents, item.Qty)
		if cost != buying {
			err := insertPriceHistory(ctx, tx, domain.ProductPriceHistory{
				ProductID:     item.ProductID,
				PriceType:     domain.PriceTypeBuying,
				OldPriceCents: buying,
				NewPriceCents: cost,
				ChangedBy:     receivedBy,
				ChangedAt:     receivedAt,
			})
			if err != nil {
				return nil, err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET buying_price_cents = $2,
				stock_quantity = stock_quantity + $3,
				available_quantity = available_quantity + $3,
				updated_at = $4
			WHERE id = $1
		`, item.ProductID, cost, item.Qty, receivedAt)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2, received_at = $3, received_by = $4 WHERE id = $1
	`, po.ID, domain.PurchaseOrderReceived, receivedAt, receivedBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedAt = &receivedAt
	po.ReceivedBy = receivedBy
	return po, nil
}

func (s *Store) CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2 WHERE id = $1 AND status = $3
	`, purchaseOrderID, domain.PurchaseOrderCancelled, domain.PurchaseOrderDraft)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		po, err := s.GetPurchaseOrderByID(ctx, purchaseOrderID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrInvalidState, po.Status)
	}
	return s.GetPurchaseOrderByID(ctx, purchaseOrderID)
}
