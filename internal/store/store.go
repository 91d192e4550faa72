package store

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductActive(ctx context.Context, id string, active bool) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	IncreaseStock(ctx context.Context, adjustments []domain.StockAdjustment) error

	// CreateSale persists every row of the receipt or none of them. Buying price
	// and profit fields are filled from the locked product rows.
	CreateSale(ctx context.Context, receipt domain.SaleReceipt) (*domain.SaleReceipt, error)
	FindReceiptByIdempotency(ctx context.Context, key string) (*domain.SaleReceipt, error)
	GetReceipt(ctx context.Context, id string) (*domain.SaleReceipt, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)

	GetReturnEligibility(ctx context.Context, saleID string, productID string) (*domain.ReturnEligibility, error)
	CreateReturn(ctx context.Context, ret domain.ProductReturn) (*domain.ReturnResponse, error)
	ListReturns(ctx context.Context, saleID string) ([]domain.ProductReturn, error)

	StartWorkSession(ctx context.Context, session domain.WorkSession) (*domain.WorkSession, *domain.WorkSession, error)
	EndWorkSession(ctx context.Context, userID string, at time.Time) (*domain.WorkSession, error)
	GetActiveWorkSession(ctx context.Context, userID string) (*domain.WorkSession, error)
	ListClosedWorkSessions(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.WorkSession, error)
	UpsertPayrollInfo(ctx context.Context, info domain.PayrollInfo) (*domain.PayrollInfo, error)
	GetPayrollInfo(ctx context.Context, userID string) (*domain.PayrollInfo, error)
	UpsertPayrollSummary(ctx context.Context, summary domain.PayrollSummary) (*domain.PayrollSummary, error)
	ApprovePayrollSummary(ctx context.Context, id string, approver string, at time.Time) (*domain.PayrollSummary, error)
	ListPayrollSummaries(ctx context.Context, month int, year int) ([]domain.PayrollSummary, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetPointsBalance(ctx context.Context, customerID string) (*domain.PointsBalance, error)
	// ApplyPoints appends entry and moves the balance atomically. Redeem entries
	// carry negative points and fail with ErrInsufficientPoints.
	ApplyPoints(ctx context.Context, entry domain.LoyaltyTransaction) (*domain.PointsResponse, error)
	ListLoyaltyTransactions(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)

	GetDailyReport(ctx context.Context, from time.Time, to time.Time) (domain.DailyReport, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
