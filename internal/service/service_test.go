package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: RoleCashier})
}

// createTestProduct adds a product bought at 30.00 and sold at 50.00.
func createTestProduct(t *testing.T, svc *Service, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:              "Test Widget",
		Category:          "testing",
		BuyingPriceCents:  3000,
		SellingPriceCents: 5000,
		InitialStock:      stock,
		MinimumQuantity:   1,
	})
	require.NoError(t, err)
	return product
}

func sellProduct(t *testing.T, svc *Service, productID string, qty int, customerID string) domain.SaleReceipt {
	t.Helper()
	resp, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		CustomerID:      customerID,
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 5000 * int64(qty),
		Items: []domain.SaleLineRequest{
			{ProductID: productID, Quantity: qty, UnitPriceCents: 5000, OriginalPriceCents: 5000},
		},
	})
	require.NoError(t, err)
	require.False(t, resp.Duplicate)
	return resp.Receipt
}

func TestCreateSaleSnapshotsProfitAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)

	receipt := sellProduct(t, svc, product.ID, 3, "")
	require.Len(t, receipt.Sales, 1)

	sale := receipt.Sales[0]
	assert.Equal(t, int64(3000), sale.BuyingPriceAtSaleCents)
	assert.Equal(t, int64(2000), sale.ProfitPerUnitCents)
	assert.Equal(t, int64(6000), sale.TotalProfitCents)
	assert.Equal(t, 40.0, sale.ProfitMarginPercentage)
	assert.Equal(t, domain.ReturnStatusNone, sale.ReturnStatus)
	assert.Equal(t, "cashier", sale.Cashier)
	assert.Equal(t, int64(15000), receipt.Summary.TotalCents)
	assert.Equal(t, int64(0), receipt.ChangeGivenCents)

	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, after.AvailableQuantity)
	assert.Equal(t, 3, after.SoldQuantity)
}

func TestCreateSaleKeepsBuyingPriceSnapshotAfterPriceChange(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	receipt := sellProduct(t, svc, product.ID, 1, "")

	newCost := int64(4500)
	_, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{BuyingPriceCents: &newCost})
	require.NoError(t, err)

	sale, err := svc.GetSale(context.Background(), receipt.Sales[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sale.BuyingPriceAtSaleCents)
	assert.Equal(t, int64(2000), sale.TotalProfitCents)

	history, err := svc.ListProductPriceHistory(context.Background(), product.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.PriceTypeBuying, history[0].PriceType)
	assert.Equal(t, int64(4500), history[0].NewPriceCents)
}

func TestCreateSaleComputesDiscountTaxAndChange(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   domain.PaymentCash,
		TaxRatePercent:  11,
		AmountPaidCents: 20000,
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 2, UnitPriceCents: 4500, OriginalPriceCents: 5000},
		},
	})
	require.NoError(t, err)

	summary := resp.Receipt.Summary
	assert.Equal(t, int64(10000), summary.SubtotalCents)
	assert.Equal(t, int64(1000), summary.DiscountCents)
	assert.Equal(t, int64(990), summary.TaxCents)
	assert.Equal(t, int64(9990), summary.TotalCents)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, 1, summary.LineCount)
	assert.Equal(t, int64(10010), resp.Receipt.ChangeGivenCents)
	assert.Equal(t, int64(3000), resp.Receipt.Sales[0].TotalProfitCents)
}

func TestCreateSaleRejectsInsufficientStockWithoutPartialWrites(t *testing.T) {
	svc := newTestService()
	plenty := createTestProduct(t, svc, 10)
	scarce := createTestProduct(t, svc, 1)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   domain.PaymentCard,
		AmountPaidCents: 25000,
		Items: []domain.SaleLineRequest{
			{ProductID: plenty.ID, Quantity: 3, UnitPriceCents: 5000},
			{ProductID: scarce.ID, Quantity: 2, UnitPriceCents: 5000},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	after, err := svc.GetProduct(context.Background(), plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.AvailableQuantity)
	assert.Equal(t, 0, after.SoldQuantity)
}

func TestCreateSaleRejectsOverflowingLineAmount(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 1,
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 3, UnitPriceCents: math.MaxInt64 / 2},
		},
	})
	require.ErrorIs(t, err, store.ErrValidation)

	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.AvailableQuantity)
	assert.Equal(t, 0, after.SoldQuantity)
}

func TestCreateSalePaymentPolicy(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	items := []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, UnitPriceCents: 5000}}

	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"cash underpaid", domain.SaleRequest{PaymentMethod: domain.PaymentCash, AmountPaidCents: 4999, Items: items}},
		{"card without amount", domain.SaleRequest{PaymentMethod: domain.PaymentCard, Items: items}},
		{"qris with change", domain.SaleRequest{PaymentMethod: domain.PaymentQRIS, AmountPaidCents: 6000, ChangeGivenCents: 1000, Items: items}},
		{"cash wrong change", domain.SaleRequest{PaymentMethod: domain.PaymentCash, AmountPaidCents: 6000, ChangeGivenCents: 500, Items: items}},
		{"unknown method", domain.SaleRequest{PaymentMethod: "cheque", AmountPaidCents: 5000, Items: items}},
		{"line total mismatch", domain.SaleRequest{PaymentMethod: domain.PaymentCash, AmountPaidCents: 5000, Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Quantity: 1, UnitPriceCents: 5000, TotalAmountCents: 4000},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSale(cashierCtx(), tc.req)
			assert.ErrorIs(t, err, store.ErrValidation)
		})
	}

	resp, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{PaymentMethod: domain.PaymentEWallet, AmountPaidCents: 5000, Items: items})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Receipt.ChangeGivenCents)
}

func TestCreateSaleRequiresActor(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 3500,
		Items:           []domain.SaleLineRequest{{ProductID: "prd-mie-goreng", Quantity: 1, UnitPriceCents: 3500}},
	})
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestCreateSaleIdempotencyReturnsOriginalReceipt(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	req := domain.SaleRequest{
		IdempotencyKey:  "idem-receipt-1",
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 10000,
		Items:           []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2, UnitPriceCents: 5000}},
	}

	first, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)
	second, err := svc.CreateSale(cashierCtx(), req)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Receipt.ID, second.Receipt.ID)

	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.AvailableQuantity)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		oversold  int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(cashierCtx(), domain.SaleRequest{
				PaymentMethod:   domain.PaymentCash,
				AmountPaidCents: 5000,
				Items:           []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, UnitPriceCents: 5000}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrInsufficientStock):
				oversold++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 7, oversold)
	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.AvailableQuantity)
}

func TestReturnLifecycle(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	sale := sellProduct(t, svc, product.ID, 3, "").Sales[0]

	eligibility, err := svc.CheckReturnEligibility(context.Background(), sale.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, eligibility.RemainingQuantity)
	assert.Equal(t, int64(15000), eligibility.MaxRefundCents)

	resp, err := svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID, ProductID: product.ID, QuantityReturned: 1, Reason: "damaged", Restock: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), resp.Return.RefundAmountCents)
	assert.Equal(t, int64(2000), resp.Return.ProfitReversedCents)
	assert.Equal(t, domain.ReturnStatusPartial, resp.ReturnStatus)
	assert.Equal(t, 2, resp.RemainingQuantity)

	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.AvailableQuantity)
	assert.Equal(t, 2, after.SoldQuantity)

	updated, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), updated.TotalProfitCents)

	_, err = svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID, ProductID: product.ID, QuantityReturned: 3, Restock: true,
	})
	require.ErrorIs(t, err, store.ErrExceedsRemainingQuantity)

	unchanged, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, unchanged.AvailableQuantity)
	assert.Equal(t, 2, unchanged.SoldQuantity)
	rejected, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), rejected.TotalProfitCents)
	assert.Equal(t, domain.ReturnStatusPartial, rejected.ReturnStatus)
	booked, err := svc.ListReturns(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, booked, 1)

	resp, err = svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID, ProductID: product.ID, QuantityReturned: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), resp.Return.RefundAmountCents)
	assert.Equal(t, domain.ReturnStatusFull, resp.ReturnStatus)

	_, err = svc.CheckReturnEligibility(context.Background(), sale.ID, product.ID)
	require.ErrorIs(t, err, store.ErrNoRemainingQuantity)

	returns, err := svc.ListReturns(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, returns, 2)
	assert.Equal(t, "unspecified", returns[1].Reason)
}

func TestReturnWithoutRestockLeavesInventory(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	sale := sellProduct(t, svc, product.ID, 2, "").Sales[0]

	_, err := svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID, ProductID: product.ID, QuantityReturned: 1,
	})
	require.NoError(t, err)

	after, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.AvailableQuantity)
	assert.Equal(t, 2, after.SoldQuantity)
}

func TestReturnRejectsUnknownSaleLine(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	sale := sellProduct(t, svc, product.ID, 1, "").Sales[0]

	_, err := svc.CheckReturnEligibility(context.Background(), sale.ID, "prd-mie-goreng")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.CheckReturnEligibility(context.Background(), "sale-missing", product.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaleEarnsAndReturnReversesLoyaltyPoints(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	receipt := sellProduct(t, svc, product.ID, 3, "cus-demo")
	assert.Equal(t, int64(150), receipt.PointsEarned)

	_, err := svc.RedeemLoyaltyPoints(cashierCtx(), "cus-demo", domain.PointsRequest{Points: 200})
	require.ErrorIs(t, err, store.ErrInsufficientPoints)

	resp, err := svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: receipt.Sales[0].ID, ProductID: product.ID, QuantityReturned: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), resp.Return.PointsDeducted)

	redeemed, err := svc.RedeemLoyaltyPoints(cashierCtx(), "cus-demo", domain.PointsRequest{Points: 40, Description: "voucher"})
	require.NoError(t, err)
	assert.Equal(t, int64(60), redeemed.Balance.PointsBalance)
	assert.Equal(t, int64(40), redeemed.Balance.TotalPointsRedeemed)
	assert.Equal(t, int64(-40), redeemed.Transaction.Points)

	points, err := svc.GetCustomerPoints(context.Background(), "cus-demo", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(60), points.Balance.PointsBalance)
	assert.Equal(t, int64(150), points.Balance.TotalPointsEarned)
	assert.Len(t, points.Transactions, 3)
}

func TestLoyaltyAddRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.AddLoyaltyPoints(cashierCtx(), "cus-demo", domain.PointsRequest{Points: 10})
	require.ErrorIs(t, err, store.ErrForbidden)

	resp, err := svc.AddLoyaltyPoints(adminCtx(), "cus-demo", domain.PointsRequest{Points: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(10), resp.Balance.PointsBalance)
	assert.Equal(t, domain.LoyaltyEarn, resp.Transaction.Type)

	_, err = svc.AddLoyaltyPoints(adminCtx(), "cus-missing", domain.PointsRequest{Points: 10})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateCustomerStartsWithZeroBalance(t *testing.T) {
	svc := newTestService()
	customer, err := svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)

	points, err := svc.GetCustomerPoints(context.Background(), customer.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), points.Balance.PointsBalance)
	assert.Empty(t, points.Transactions)
}

func TestMonthlyPayrollWithOvertime(t *testing.T) {
	svc := newTestService()
	clock := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	_, err := svc.SetPayrollInfo(adminCtx(), domain.PayrollInfoRequest{UserID: "cashier", Position: "cashier", HourlyRateCents: 1000})
	require.NoError(t, err)

	for _, hours := range []time.Duration{100, 70} {
		_, err = svc.StartWorkSession(context.Background(), "cashier")
		require.NoError(t, err)
		clock = clock.Add(hours * time.Hour)
		closed, err := svc.EndWorkSession(context.Background(), "cashier")
		require.NoError(t, err)
		assert.Equal(t, int64(hours*3600), closed.DurationSeconds)
		clock = clock.Add(2 * time.Hour)
	}

	req := domain.PayrollCalculateRequest{UserID: "cashier", Month: 3, Year: 2025}
	summary, err := svc.CalculateMonthlyPayroll(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, 170.0, summary.TotalHours)
	assert.Equal(t, 160.0, summary.RegularHours)
	assert.Equal(t, 10.0, summary.OvertimeHours)
	assert.Equal(t, int64(1500), summary.OvertimeRateCents)
	assert.Equal(t, int64(175000), summary.TotalPayCents)
	assert.Equal(t, domain.PayrollStatusPending, summary.Status)

	// An open session does not count until it is closed.
	_, err = svc.StartWorkSession(context.Background(), "cashier")
	require.NoError(t, err)
	clock = clock.Add(5 * time.Hour)

	again, err := svc.CalculateMonthlyPayroll(adminCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, again.ID)
	assert.Equal(t, summary.TotalPayCents, again.TotalPayCents)

	approved, err := svc.ApprovePayroll(adminCtx(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayrollStatusApproved, approved.Status)
	assert.Equal(t, "admin", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	_, err = svc.ApprovePayroll(adminCtx(), summary.ID)
	require.ErrorIs(t, err, store.ErrPayrollAlreadyApproved)
	_, err = svc.CalculateMonthlyPayroll(adminCtx(), req)
	require.ErrorIs(t, err, store.ErrPayrollAlreadyApproved)

	list, err := svc.ListPayroll(adminCtx(), 3, 2025)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMonthlyPayrollRequiresPayrollInfo(t *testing.T) {
	svc := newTestService()
	_, err := svc.CalculateMonthlyPayroll(adminCtx(), domain.PayrollCalculateRequest{UserID: "admin", Month: 1, Year: 2025})
	require.ErrorIs(t, err, store.ErrPayrollInfoMissing)

	_, err = svc.CalculateMonthlyPayroll(cashierCtx(), domain.PayrollCalculateRequest{UserID: "cashier", Month: 1, Year: 2025})
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestStartWorkSessionClosesStaleSession(t *testing.T) {
	svc := newTestService()
	clock := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	first, err := svc.StartWorkSession(context.Background(), "cashier")
	require.NoError(t, err)
	assert.Nil(t, first.ClosedSession)

	clock = clock.Add(2 * time.Hour)
	second, err := svc.StartWorkSession(context.Background(), "cashier")
	require.NoError(t, err)
	require.NotNil(t, second.ClosedSession)
	assert.Equal(t, first.Session.ID, second.ClosedSession.ID)
	assert.Equal(t, domain.SessionCloseAutoClose, second.ClosedSession.CloseReason)
	assert.Equal(t, int64(7200), second.ClosedSession.DurationSeconds)

	active, err := svc.GetActiveWorkSession(context.Background(), "cashier")
	require.NoError(t, err)
	assert.Equal(t, second.Session.ID, active.ID)
}

func TestPurchaseOrderReceiveUsesWeightedCost(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	product := createTestProduct(t, svc, 10)

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "PT Sumber"})
	require.NoError(t, err)
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items:      []domain.PurchaseOrderItem{{ProductID: product.ID, Qty: 10, CostCents: 5000}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderDraft, po.Status)

	received, err := svc.ReceivePurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderReceived, received.Status)

	after, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, after.AvailableQuantity)
	assert.Equal(t, 20, after.StockQuantity)
	assert.Equal(t, int64(4000), after.BuyingPriceCents)

	_, err = svc.ReceivePurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, store.ErrInvalidState)
	_, err = svc.CancelPurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, store.ErrInvalidState)
}

func TestInventoryAlerts(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	low, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Aa Low", SellingPriceCents: 1000, InitialStock: 2, MinimumQuantity: 5,
	})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Ab Expiring", SellingPriceCents: 1000, InitialStock: 50, AlertBeforeDays: 3, ExpiryDate: "2025-06-03",
	})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Ac Expired", SellingPriceCents: 1000, InitialStock: 50, ExpiryDate: "2025-05-30",
	})
	require.NoError(t, err)

	resp, err := svc.InventoryAlerts(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", resp.Date)

	byCode := map[string]domain.InventoryAlert{}
	for _, alert := range resp.Alerts {
		if alert.Name[0] == 'A' {
			byCode[alert.Code] = alert
		}
	}
	require.Contains(t, byCode, AlertLowStock)
	require.Contains(t, byCode, AlertExpiringSoon)
	require.Contains(t, byCode, AlertExpired)
	assert.Equal(t, low.ID, byCode[AlertLowStock].ProductID)
	assert.Equal(t, 2, *byCode[AlertExpiringSoon].DaysToExpiry)
	assert.Equal(t, "high", byCode[AlertExpired].Severity)
	assert.Equal(t, "high", resp.Alerts[0].Severity)
}

type countingRepo struct {
	*memory.Store
	mu       sync.Mutex
	reports  int
	ctxErrs  []error
	afterRun func()
}

func (r *countingRepo) GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error) {
	r.mu.Lock()
	r.reports++
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	hook := r.afterRun
	r.afterRun = nil
	r.mu.Unlock()

	report, err := r.Store.GetDailyReport(ctx, from, to)
	if hook != nil {
		hook()
	}
	return report, err
}

func TestDailyReportIsCachedAndInvalidatedBySales(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded()}
	svc := New(repo, cache.NewMemoryReportCache(time.Minute), time.Minute)
	product := createTestProduct(t, svc, 10)
	receipt := sellProduct(t, svc, product.ID, 2, "")
	date := receipt.CreatedAt.Format("2006-01-02")

	report, err := svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Receipts)
	assert.Equal(t, int64(10000), report.NetRevenueCents)
	assert.Equal(t, int64(4000), report.ProfitCents)

	_, err = svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reports)

	_, err = svc.ProcessReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: receipt.Sales[0].ID, ProductID: product.ID, QuantityReturned: 1,
	})
	require.NoError(t, err)

	report, err = svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reports)
	assert.Equal(t, int64(5000), report.RefundCents)
	assert.Equal(t, int64(5000), report.NetRevenueCents)

	_, err = svc.DailyReport(cashierCtx(), date)
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{Name: "Nope", SellingPriceCents: 100})
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestDeactivatedProductCannotBeSold(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	_, err := svc.DeactivateProduct(adminCtx(), product.ID)
	require.NoError(t, err)

	_, err = svc.CreateSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 5000,
		Items:           []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 1, UnitPriceCents: 5000}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMutationsWriteAuditLog(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, 10)
	receipt := sellProduct(t, svc, product.ID, 1, "")

	logs, err := svc.ListAuditLogs(adminCtx(), receipt.CreatedAt.Format("2006-01-02"), 10)
	require.NoError(t, err)

	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	assert.True(t, actions["product_create"])
	assert.True(t, actions["sale_create"])
}

func TestDailyReportBuiltBeforeInvalidationIsNotCached(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded()}
	svc := New(repo, cache.NewMemoryReportCache(time.Minute), time.Minute)
	product := createTestProduct(t, svc, 10)
	receipt := sellProduct(t, svc, product.ID, 1, "")
	date := receipt.CreatedAt.Format("2006-01-02")

	// A sale lands while the first report is being built.
	repo.afterRun = func() {
		sellProduct(t, svc, product.ID, 1, "")
	}
	stale, err := svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Receipts)

	fresh, err := svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reports)
	assert.Equal(t, int64(2), fresh.Receipts)

	_, err = svc.DailyReport(adminCtx(), date)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.reports)
}

func TestDailyReportIgnoresCallerCancellation(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded()}
	svc := New(repo, cache.NoopReportCache{}, time.Minute)

	ctx, cancel := context.WithCancel(adminCtx())
	cancel()
	_, err := svc.DailyReport(ctx, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, repo.ctxErrs, 1)
	assert.NoError(t, repo.ctxErrs[0])
}
