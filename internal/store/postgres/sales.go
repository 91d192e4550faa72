package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const saleColumns = `id, receipt_id, product_id, quantity, unit_price_cents, original_price_cents,
	discount_amount_cents, total_amount_cents, buying_price_at_sale_cents, profit_per_unit_cents,
	total_profit_cents, profit_margin_percentage, payment_method, amount_paid_cents, change_given_cents,
	return_status, cashier, COALESCE(customer_id,''), created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.ReceiptID, &sale.ProductID, &sale.Quantity, &sale.UnitPriceCents,
		&sale.OriginalPriceCents, &sale.DiscountAmountCents, &sale.TotalAmountCents, &sale.BuyingPriceAtSaleCents,
		&sale.ProfitPerUnitCents, &sale.TotalProfitCents, &sale.ProfitMarginPercentage, &sale.PaymentMethod,
		&sale.AmountPaidCents, &sale.ChangeGivenCents, &sale.ReturnStatus, &sale.Cashier, &sale.CustomerID,
		&sale.CreatedAt)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

// CreateSale locks every product on the receipt in id order, so two receipts
// sharing products cannot deadlock, and re-checks availability in the UPDATE
// itself.
func (s *Store) CreateSale(ctx context.Context, receipt domain.SaleReceipt) (*domain.SaleReceipt, error) {
	if len(receipt.Sales) == 0 {
		return nil, store.Invalid("sale has no items")
	}
	requested := make(map[string]int, len(receipt.Sales))
	for _, line := range receipt.Sales {
		if line.Quantity < 1 {
			return nil, store.Invalid("quantity must be positive")
		}
		requested[line.ProductID] += line.Quantity
	}
	if receipt.ID == "" {
		receipt.ID = xid.New("rcpt")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if entry, ok := store.EarnPointsEntry(receipt); ok {
		receipt.PointsEarned = entry.Points
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO sale_receipts (
			id, idempotency_key, cashier, customer_id, payment_method, payment_reference,
			tax_rate_percent, amount_paid_cents, change_given_cents, subtotal_cents, discount_cents,
			tax_cents, total_cents, item_count, line_count, points_earned, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, receipt.ID, nullIfEmpty(receipt.IdempotencyKey), receipt.Cashier, nullIfEmpty(receipt.CustomerID),
		receipt.PaymentMethod, nullIfEmpty(receipt.PaymentReference), receipt.TaxRatePercent,
		receipt.AmountPaidCents, receipt.ChangeGivenCents, receipt.Summary.SubtotalCents,
		receipt.Summary.DiscountCents, receipt.Summary.TaxCents, receipt.Summary.TotalCents,
		receipt.Summary.ItemCount, receipt.Summary.LineCount, receipt.PointsEarned, receipt.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, receipt.CustomerID)
		}
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		_ = pgTx.Rollback()
		return s.FindReceiptByIdempotency(ctx, receipt.IdempotencyKey)
	}

	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows, err := pgTx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		if p.AvailableQuantity < requested[id] {
			return nil, fmt.Errorf("%w: product %s has %d available", store.ErrInsufficientStock, id, p.AvailableQuantity)
		}
	}

	sales := make([]domain.Sale, 0, len(receipt.Sales))
	for i, line := range receipt.Sales {
		sale := store.SnapshotSale(receipt, line, products[line.ProductID], xid.New("sale"))
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET available_quantity = available_quantity - $1, sold_quantity = sold_quantity + $1, updated_at = $3
			WHERE id = $2 AND available_quantity >= $1
		`, sale.Quantity, sale.ProductID, receipt.CreatedAt)
		if err != nil {
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, sale.ProductID)
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sales (
				id, receipt_id, line_no, product_id, quantity, unit_price_cents, original_price_cents,
				discount_amount_cents, total_amount_cents, buying_price_at_sale_cents, profit_per_unit_cents,
				total_profit_cents, profit_margin_percentage, payment_method, amount_paid_cents,
				change_given_cents, return_status, cashier, customer_id, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`, sale.ID, sale.ReceiptID, i+1, sale.ProductID, sale.Quantity, sale.UnitPriceCents,
			sale.OriginalPriceCents, sale.DiscountAmountCents, sale.TotalAmountCents, sale.BuyingPriceAtSaleCents,
			sale.ProfitPerUnitCents, sale.TotalProfitCents, sale.ProfitMarginPercentage, sale.PaymentMethod,
			sale.AmountPaidCents, sale.ChangeGivenCents, sale.ReturnStatus, sale.Cashier,
			nullIfEmpty(sale.CustomerID), sale.CreatedAt)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	if entry, ok := store.EarnPointsEntry(receipt); ok {
		if _, err := applyPointsTx(ctx, pgTx, entry); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	receipt.Sales = sales
	return &receipt, nil
}

func (s *Store) FindReceiptByIdempotency(ctx context.Context, key string) (*domain.SaleReceipt, error) {
	return s.findReceipt(ctx, "idempotency_key", key)
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*domain.SaleReceipt, error) {
	return s.findReceipt(ctx, "id", id)
}

func (s *Store) findReceipt(ctx context.Context, column string, value string) (*domain.SaleReceipt, error) {
	var r domain.SaleReceipt
	var idem, customer, reference sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, cashier, customer_id, payment_method, payment_reference,
			tax_rate_percent, amount_paid_cents, change_given_cents, subtotal_cents, discount_cents,
			tax_cents, total_cents, item_count, line_count, points_earned, created_at
		FROM sale_receipts
		WHERE `+column+` = $1
	`, value).Scan(&r.ID, &idem, &r.Cashier, &customer, &r.PaymentMethod, &reference,
		&r.TaxRatePercent, &r.AmountPaidCents, &r.ChangeGivenCents, &r.Summary.SubtotalCents,
		&r.Summary.DiscountCents, &r.Summary.TaxCents, &r.Summary.TotalCents, &r.Summary.ItemCount,
		&r.Summary.LineCount, &r.PointsEarned, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.IdempotencyKey = idem.String
	r.CustomerID = customer.String
	r.PaymentReference = reference.String
	r.CreatedAt = r.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.`+saleColumnsPrefixed()+`, p.name
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE s.receipt_id = $1
		ORDER BY s.line_no
	`, r.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Sales = make([]domain.Sale, 0, r.Summary.LineCount)
	for rows.Next() {
		sale, err := scanSaleWithName(rows)
		if err != nil {
			return nil, err
		}
		r.Sales = append(r.Sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSaleWithName(s.db.QueryRowContext(ctx, `
		SELECT s.`+saleColumnsPrefixed()+`, p.name
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetReturnEligibility(ctx context.Context, saleID string, productID string) (*domain.ReturnEligibility, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 AND product_id = $2`, saleID, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s for product %s", store.ErrNotFound, saleID, productID)
		}
		return nil, err
	}
	returnedQty, refunded, err := returnedTotals(ctx, s.db, saleID)
	if err != nil {
		return nil, err
	}
	return store.Eligibility(sale, returnedQty, refunded)
}

// CreateReturn locks the sale row first, then the product row when
// restocking, matching the order a sale takes product locks in.
func (s *Store) CreateReturn(ctx context.Context, ret domain.ProductReturn) (*domain.ReturnResponse, error) {
	if ret.QuantityReturned < 1 {
		return nil, store.Invalid("quantity_returned must be positive")
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1 AND product_id = $2
		FOR UPDATE
	`, ret.SaleID, ret.ProductID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s for product %s", store.ErrNotFound, ret.SaleID, ret.ProductID)
		}
		return nil, err
	}
	returnedQty, refunded, err := returnedTotals(ctx, pgTx, sale.ID)
	if err != nil {
		return nil, err
	}
	remaining, err := store.ApplyReturn(&sale, returnedQty, refunded, &ret)
	if err != nil {
		return nil, err
	}

	if ret.Restocked {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET available_quantity = available_quantity + $1,
				sold_quantity = GREATEST(sold_quantity - $1, 0),
				updated_at = $3
			WHERE id = $2
		`, ret.QuantityReturned, sale.ProductID, ret.CreatedAt)
		if err != nil {
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, sale.ProductID)
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales SET total_profit_cents = $2, return_status = $3 WHERE id = $1
	`, sale.ID, sale.TotalProfitCents, sale.ReturnStatus)
	if err != nil {
		return nil, err
	}

	if entry, ok := store.ReturnPointsEntry(sale, ret); ok {
		applied, err := applyPointsTx(ctx, pgTx, entry)
		if err != nil {
			return nil, err
		}
		ret.PointsDeducted = -applied.Transaction.Points
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO product_returns (
			id, sale_id, product_id, quantity_returned, refund_amount_cents, reason, restocked,
			profit_reversed_cents, points_deducted, processed_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ret.ID, ret.SaleID, ret.ProductID, ret.QuantityReturned, ret.RefundAmountCents, ret.Reason,
		ret.Restocked, ret.ProfitReversedCents, ret.PointsDeducted, ret.ProcessedBy, ret.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &domain.ReturnResponse{Return: ret, ReturnStatus: sale.ReturnStatus, RemainingQuantity: remaining}, nil
}

func (s *Store) ListReturns(ctx context.Context, saleID string) ([]domain.ProductReturn, error) {
	if _, err := s.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity_returned, refund_amount_cents, reason, restocked,
			profit_reversed_cents, points_deducted, processed_by, created_at
		FROM product_returns
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.ProductReturn, 0, 4)
	for rows.Next() {
		var r domain.ProductReturn
		if err := rows.Scan(&r.ID, &r.SaleID, &r.ProductID, &r.QuantityReturned, &r.RefundAmountCents, &r.Reason,
			&r.Restocked, &r.ProfitReversedCents, &r.PointsDeducted, &r.ProcessedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		returns = append(returns, r)
	}
	return returns, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func returnedTotals(ctx context.Context, q queryer, saleID string) (int, int64, error) {
	var qty int
	var refunded int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_returned),0), COALESCE(SUM(refund_amount_cents),0)
		FROM product_returns
		WHERE sale_id = $1
	`, saleID).Scan(&qty, &refunded)
	return qty, refunded, err
}

func saleColumnsPrefixed() string {
	return `id, s.receipt_id, s.product_id, s.quantity, s.unit_price_cents, s.original_price_cents,
		s.discount_amount_cents, s.total_amount_cents, s.buying_price_at_sale_cents, s.profit_per_unit_cents,
		s.total_profit_cents, s.profit_margin_percentage, s.payment_method, s.amount_paid_cents, s.change_given_cents,
		s.return_status, s.cashier, COALESCE(s.customer_id,''), s.created_at`
}

func scanSaleWithName(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.ReceiptID, &sale.ProductID, &sale.Quantity, &sale.UnitPriceCents,
		&sale.OriginalPriceCents, &sale.DiscountAmountCents, &sale.TotalAmountCents, &sale.BuyingPriceAtSaleCents,
		&sale.ProfitPerUnitCents, &sale.TotalProfitCents, &sale.ProfitMarginPercentage, &sale.PaymentMethod,
		&sale.AmountPaidCents, &sale.ChangeGivenCents, &sale.ReturnStatus, &sale.Cashier, &sale.CustomerID,
		&sale.CreatedAt, &sale.ProductName)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func (s *Store) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		ByPayment: make([]domain.DailyReportPayment, 0, 4),
		ByCashier: make([]domain.DailyReportCashier, 0, 8),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(subtotal_cents),0), COALESCE(SUM(discount_cents),0),
			COALESCE(SUM(tax_cents),0), COALESCE(SUM(total_cents),0)
		FROM sale_receipts
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.Receipts, &report.GrossSalesCents, &report.DiscountCents, &report.TaxCents, &report.NetRevenueCents)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity),0), COALESCE(SUM(total_profit_cents),0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.SaleLines, &report.ItemsSold, &report.ProfitCents)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(refund_amount_cents),0)
		FROM product_returns
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&report.RefundCents)
	if err != nil {
		return report, err
	}
	report.NetRevenueCents -= report.RefundCents

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_cents),0)
		FROM sale_receipts
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return report, err
	}
	for paymentRows.Next() {
		var item domain.DailyReportPayment
		if err := paymentRows.Scan(&item.PaymentMethod, &item.Receipts, &item.TotalCents); err != nil {
			_ = paymentRows.Close()
			return report, err
		}
		report.ByPayment = append(report.ByPayment, item)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return report, err
	}
	_ = paymentRows.Close()

	cashierRows, err := s.db.QueryContext(ctx, `
		SELECT r.cashier, COUNT(*), COALESCE(SUM(r.total_cents),0), COALESCE(SUM(lp.profit),0)
		FROM sale_receipts r
		LEFT JOIN (
			SELECT receipt_id, SUM(total_profit_cents) AS profit FROM sales GROUP BY receipt_id
		) lp ON lp.receipt_id = r.id
		WHERE r.created_at >= $1 AND r.created_at < $2
		GROUP BY r.cashier
		ORDER BY r.cashier
	`, from, to)
	if err != nil {
		return report, err
	}
	defer cashierRows.Close()
	for cashierRows.Next() {
		var item domain.DailyReportCashier
		if err := cashierRows.Scan(&item.Cashier, &item.Receipts, &item.TotalCents, &item.ProfitCents); err != nil {
			return report, err
		}
		report.ByCashier = append(report.ByCashier, item)
	}
	return report, cashierRows.Err()
}
