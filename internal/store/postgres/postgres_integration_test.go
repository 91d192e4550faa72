package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("RETAILPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSaleAndReturnAdjustInventory(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	receiptID := fmt.Sprintf("rcpt-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_returns WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE receipt_id = $1`, receiptID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_receipts WHERE id = $1`, receiptID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:                productID,
		Name:              "Integration Soap",
		Category:          "household",
		BuyingPriceCents:  3000,
		SellingPriceCents: 5000,
		StockQuantity:     10,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	receipt, err := s.CreateSale(ctx, domain.SaleReceipt{
		ID:               receiptID,
		IdempotencyKey:   receiptID,
		Cashier:          "it",
		PaymentMethod:    domain.PaymentCash,
		AmountPaidCents:  15000,
		Summary:          domain.SaleSummary{SubtotalCents: 15000, TotalCents: 15000, ItemCount: 3, LineCount: 1},
		Sales: []domain.Sale{{
			ProductID:          productID,
			Quantity:           3,
			UnitPriceCents:     5000,
			OriginalPriceCents: 5000,
			TotalAmountCents:   15000,
		}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := receipt.Sales[0].TotalProfitCents; got != 6000 {
		t.Fatalf("expected profit 6000, got %d", got)
	}

	resp, err := s.CreateReturn(ctx, domain.ProductReturn{
		SaleID:           receipt.Sales[0].ID,
		ProductID:        productID,
		QuantityReturned: 1,
		Restocked:        true,
		ProcessedBy:      "it",
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if resp.Return.RefundAmountCents != 5000 || resp.ReturnStatus != domain.ReturnStatusPartial {
		t.Fatalf("unexpected return response: %+v", resp)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.AvailableQuantity != 8 || product.SoldQuantity != 2 {
		t.Fatalf("expected available 8 sold 2, got %d/%d", product.AvailableQuantity, product.SoldQuantity)
	}

	sale, err := s.GetSale(ctx, receipt.Sales[0].ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.TotalProfitCents != 4000 {
		t.Fatalf("expected profit 4000 after return, got %d", sale.TotalProfitCents)
	}

	again, err := s.CreateSale(ctx, domain.SaleReceipt{
		ID:             receiptID + "-retry",
		IdempotencyKey: receiptID,
		Cashier:        "it",
		PaymentMethod:  domain.PaymentCash,
		Sales:          []domain.Sale{{ProductID: productID, Quantity: 1, UnitPriceCents: 5000, TotalAmountCents: 5000}},
	})
	if err != nil {
		t.Fatalf("replay sale: %v", err)
	}
	if again.ID != receiptID {
		t.Fatalf("expected replay to return %s, got %s", receiptID, again.ID)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-race-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_receipts WHERE cashier = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:                productID,
		Name:              "Race Candy",
		BuyingPriceCents:  100,
		SellingPriceCents: 200,
		StockQuantity:     5,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.SaleReceipt{
				Cashier:       productID,
				PaymentMethod: domain.PaymentCash,
				Sales:         []domain.Sale{{ProductID: productID, Quantity: 1, UnitPriceCents: 200, TotalAmountCents: 200}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful sales, got %d", succeeded)
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.AvailableQuantity != 0 {
		t.Fatalf("expected stock to drain to 0, got %d", product.AvailableQuantity)
	}
}
