package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func testReceipt(key string, lines ...domain.Sale) domain.SaleReceipt {
	var total int64
	for _, line := range lines {
		total += line.TotalAmountCents
	}
	return domain.SaleReceipt{
		IdempotencyKey:  key,
		Cashier:         "cashier",
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: total,
		Summary:         domain.SaleSummary{SubtotalCents: total, TotalCents: total, LineCount: len(lines)},
		CreatedAt:       time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC),
		Sales:           lines,
	}
}

func line(productID string, qty int, unit int64) domain.Sale {
	return domain.Sale{
		ProductID:          productID,
		Quantity:           qty,
		UnitPriceCents:     unit,
		OriginalPriceCents: unit,
		TotalAmountCents:   unit * int64(qty),
	}
}

func TestSeededStoreHasCatalogAndUsers(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, products, 8)

	product, err := s.GetProductByBarcode(ctx, "8991001000011")
	require.NoError(t, err)
	assert.Equal(t, "prd-mie-goreng", product.ID)
	assert.Equal(t, product.StockQuantity, product.AvailableQuantity)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestCreateSaleFillsSnapshotAndGroupsRows(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, testReceipt("k-1",
		line("prd-mie-goreng", 2, 3500),
		line("prd-kopi-sachet", 4, 2600),
	))
	require.NoError(t, err)
	require.Len(t, created.Sales, 2)
	assert.Equal(t, created.ID, created.Sales[0].ReceiptID)
	assert.Equal(t, int64(1600), created.Sales[0].TotalProfitCents)
	assert.Equal(t, int64(3600), created.Sales[1].TotalProfitCents)

	again, err := s.FindReceiptByIdempotency(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Len(t, again.Sales, 2)

	mie, err := s.GetProduct(ctx, "prd-mie-goreng")
	require.NoError(t, err)
	assert.Equal(t, 118, mie.AvailableQuantity)
	assert.Equal(t, 2, mie.SoldQuantity)
}

func TestCreateSaleCountsRepeatedProductAgainstStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateSale(ctx, testReceipt("k-2",
		line("prd-roti-tawar", 20, 17800),
		line("prd-roti-tawar", 11, 17800),
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	roti, err := s.GetProduct(ctx, "prd-roti-tawar")
	require.NoError(t, err)
	assert.Equal(t, 30, roti.AvailableQuantity)
}

func TestReturnRefundsAddUpToLineTotal(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, testReceipt("k-3", domain.Sale{
		ProductID: "prd-sabun", Quantity: 3, UnitPriceCents: 3333, OriginalPriceCents: 3333, TotalAmountCents: 10000,
	}))
	require.NoError(t, err)
	saleID := created.Sales[0].ID

	var refunded int64
	for i := 0; i < 3; i++ {
		resp, err := s.CreateReturn(ctx, domain.ProductReturn{SaleID: saleID, ProductID: "prd-sabun", QuantityReturned: 1})
		require.NoError(t, err)
		refunded += resp.Return.RefundAmountCents
	}
	assert.Equal(t, int64(10000), refunded)

	_, err = s.CreateReturn(ctx, domain.ProductReturn{SaleID: saleID, ProductID: "prd-sabun", QuantityReturned: 1})
	require.ErrorIs(t, err, store.ErrNoRemainingQuantity)
}

func TestApplyPointsRejectsOverdraw(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.ApplyPoints(ctx, domain.LoyaltyTransaction{CustomerID: "cus-demo", Type: domain.LoyaltyEarn, Points: 30})
	require.NoError(t, err)
	_, err = s.ApplyPoints(ctx, domain.LoyaltyTransaction{CustomerID: "cus-demo", Type: domain.LoyaltyRedeem, Points: -31})
	require.ErrorIs(t, err, store.ErrInsufficientPoints)

	resp, err := s.ApplyPoints(ctx, domain.LoyaltyTransaction{CustomerID: "cus-demo", Type: domain.LoyaltyAdjustment, Points: -50})
	require.NoError(t, err)
	assert.Equal(t, int64(-30), resp.Transaction.Points)
	assert.Equal(t, int64(0), resp.Balance.PointsBalance)
}

func TestCancelledPurchaseOrderCannotBeReceived(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	supplier, err := s.CreateSupplier(ctx, domain.Supplier{Name: "CV Makmur"})
	require.NoError(t, err)
	po, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		SupplierID: supplier.ID,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prd-gula-1kg", Qty: 5, CostCents: 15000}},
	})
	require.NoError(t, err)

	cancelled, err := s.CancelPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderCancelled, cancelled.Status)

	_, err = s.ReceivePurchaseOrder(ctx, po.ID, "admin", time.Now().UTC())
	require.ErrorIs(t, err, store.ErrInvalidState)
}

func TestStartWorkSessionRejectsUnknownUser(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, _, err := s.StartWorkSession(ctx, domain.WorkSession{UserID: "ghost", LoginTime: time.Now().UTC()})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetActiveWorkSession(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	session, _, err := s.StartWorkSession(ctx, domain.WorkSession{UserID: "cashier", LoginTime: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkSessionActive, session.Status)
}
