package domain

import "time"

type Product struct {
	ID                string     `json:"id"`
	Barcode           string     `json:"barcode"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	BuyingPriceCents  int64      `json:"buying_price_cents"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	StockQuantity     int        `json:"stock_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	SoldQuantity      int        `json:"sold_quantity"`
	MinimumQuantity   int        `json:"minimum_quantity"`
	AlertBeforeDays   int        `json:"alert_before_days"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type ProductCreateRequest struct {
	Barcode           string `json:"barcode"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	BuyingPriceCents  int64  `json:"buying_price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	InitialStock      int    `json:"initial_stock"`
	MinimumQuantity   int    `json:"minimum_quantity"`
	AlertBeforeDays   int    `json:"alert_before_days"`
	ExpiryDate        string `json:"expiry_date,omitempty"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	Category          *string `json:"category,omitempty"`
	BuyingPriceCents  *int64  `json:"buying_price_cents,omitempty"`
	SellingPriceCents *int64  `json:"selling_price_cents,omitempty"`
	MinimumQuantity   *int    `json:"minimum_quantity,omitempty"`
	AlertBeforeDays   *int    `json:"alert_before_days,omitempty"`
	ExpiryDate        *string `json:"expiry_date,omitempty"`
}

type RestockRequest struct {
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	PriceType     string    `json:"price_type"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type BarcodeLoginRequest struct {
	Barcode string `json:"barcode"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	Role        string       `json:"role"`
	Username    string       `json:"username"`
	ExpiresAt   string       `json:"expires_at"`
	WorkSession *WorkSession `json:"work_session,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

// SaleLineRequest carries client-side prices; unit price is the post-discount price.
type SaleLineRequest struct {
	ProductID          string `json:"product_id"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	OriginalPriceCents int64  `json:"original_price_cents"`
	DiscountCents      int64  `json:"discount_cents"`
	TotalAmountCents   int64  `json:"total_amount_cents"`
}

type SaleRequest struct {
	IdempotencyKey   string            `json:"idempotency_key"`
	CustomerID       string            `json:"customer_id,omitempty"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	AmountPaidCents  int64             `json:"amount_paid_cents"`
	ChangeGivenCents int64             `json:"change_given_cents"`
	TaxRatePercent   float64           `json:"tax_rate_percent"`
	Items            []SaleLineRequest `json:"items"`
}

type Sale struct {
	ID                     string    `json:"id"`
	ReceiptID              string    `json:"receipt_id"`
	ProductID              string    `json:"product_id"`
	ProductName            string    `json:"product_name"`
	Quantity               int       `json:"quantity"`
	UnitPriceCents         int64     `json:"unit_price_cents"`
	OriginalPriceCents     int64     `json:"original_price_cents"`
	DiscountAmountCents    int64     `json:"discount_amount_cents"`
	TotalAmountCents       int64     `json:"total_amount_cents"`
	BuyingPriceAtSaleCents int64     `json:"buying_price_at_sale_cents"`
	ProfitPerUnitCents     int64     `json:"profit_per_unit_cents"`
	TotalProfitCents       int64     `json:"total_profit_cents"`
	ProfitMarginPercentage float64   `json:"profit_margin_percentage"`
	PaymentMethod          string    `json:"payment_method"`
	AmountPaidCents        int64     `json:"amount_paid_cents"`
	ChangeGivenCents       int64     `json:"change_given_cents"`
	ReturnStatus           string    `json:"return_status"`
	Cashier                string    `json:"cashier"`
	CustomerID             string    `json:"customer_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

type SaleSummary struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
	ItemCount     int   `json:"item_count"`
	LineCount     int   `json:"line_count"`
}

// SaleReceipt groups the sale rows written by one submission.
type SaleReceipt struct {
	ID               string      `json:"id"`
	IdempotencyKey   string      `json:"idempotency_key,omitempty"`
	Cashier          string      `json:"cashier"`
	CustomerID       string      `json:"customer_id,omitempty"`
	PaymentMethod    string      `json:"payment_method"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	TaxRatePercent   float64     `json:"tax_rate_percent"`
	AmountPaidCents  int64       `json:"amount_paid_cents"`
	ChangeGivenCents int64       `json:"change_given_cents"`
	PointsEarned     int64       `json:"points_earned"`
	Summary          SaleSummary `json:"summary"`
	CreatedAt        time.Time   `json:"created_at"`
	Sales            []Sale      `json:"sales"`
}

type SaleResponse struct {
	Receipt   SaleReceipt `json:"receipt"`
	Duplicate bool        `json:"duplicate"`
}

type ReturnEligibility struct {
	SaleID            string `json:"sale_id"`
	ProductID         string `json:"product_id"`
	SoldQuantity      int    `json:"sold_quantity"`
	ReturnedQuantity  int    `json:"returned_quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
	MaxRefundCents    int64  `json:"max_refund_cents"`
	ReturnStatus      string `json:"return_status"`
}

type ReturnRequest struct {
	SaleID           string `json:"sale_id"`
	ProductID        string `json:"product_id"`
	QuantityReturned int    `json:"quantity_returned"`
	Reason           string `json:"reason"`
	Restock          bool   `json:"restock"`
	ManagerPIN       string `json:"manager_pin,omitempty"`
}

type ProductReturn struct {
	ID                  string    `json:"id"`
	SaleID              string    `json:"sale_id"`
	ProductID           string    `json:"product_id"`
	QuantityReturned    int       `json:"quantity_returned"`
	RefundAmountCents   int64     `json:"refund_amount_cents"`
	Reason              string    `json:"reason"`
	Restocked           bool      `json:"restocked"`
	ProfitReversedCents int64     `json:"profit_reversed_cents"`
	PointsDeducted      int64     `json:"points_deducted"`
	ProcessedBy         string    `json:"processed_by"`
	CreatedAt           time.Time `json:"created_at"`
}

type ReturnResponse struct {
	Return            ProductReturn `json:"return"`
	ReturnStatus      string        `json:"return_status"`
	RemainingQuantity int           `json:"remaining_quantity"`
}

type WorkSession struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	LoginTime       time.Time  `json:"login_time"`
	LogoutTime      *time.Time `json:"logout_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	CloseReason     string     `json:"close_reason,omitempty"`
}

type WorkSessionResponse struct {
	Session       WorkSession  `json:"session"`
	ClosedSession *WorkSession `json:"closed_session,omitempty"`
}

type PayrollInfo struct {
	UserID            string    `json:"user_id"`
	Position          string    `json:"position"`
	HourlyRateCents   int64     `json:"hourly_rate_cents"`
	OvertimeRateCents int64     `json:"overtime_rate_cents"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type PayrollInfoRequest struct {
	UserID            string `json:"user_id"`
	Position          string `json:"position"`
	HourlyRateCents   int64  `json:"hourly_rate_cents"`
	OvertimeRateCents int64  `json:"overtime_rate_cents"`
}

type PayrollCalculateRequest struct {
	UserID string `json:"user_id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
}

type PayrollSummary struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Month             int        `json:"month"`
	Year              int        `json:"year"`
	SessionCount      int        `json:"session_count"`
	TotalHours        float64    `json:"total_hours"`
	RegularHours      float64    `json:"regular_hours"`
	OvertimeHours     float64    `json:"overtime_hours"`
	HourlyRateCents   int64      `json:"hourly_rate_cents"`
	OvertimeRateCents int64      `json:"overtime_rate_cents"`
	TotalPayCents     int64      `json:"total_pay_cents"`
	Status            string     `json:"status"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	CalculatedAt      time.Time  `json:"calculated_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type PointsBalance struct {
	CustomerID          string    `json:"customer_id"`
	PointsBalance       int64     `json:"points_balance"`
	TotalPointsEarned   int64     `json:"total_points_earned"`
	TotalPointsRedeemed int64     `json:"total_points_redeemed"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// LoyaltyTransaction is append-only; Points is signed.
type LoyaltyTransaction struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	Type         string    `json:"type"`
	Points       int64     `json:"points"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	SaleID       string    `json:"sale_id,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type PointsRequest struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
	SaleID      string `json:"sale_id,omitempty"`
}

type PointsResponse struct {
	Balance     PointsBalance      `json:"balance"`
	Transaction LoyaltyTransaction `json:"transaction"`
}

type CustomerPoints struct {
	Customer     Customer             `json:"customer"`
	Balance      PointsBalance        `json:"balance"`
	Transactions []LoyaltyTransaction `json:"transactions"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseOrderItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderItem `json:"items"`
}

type InventoryAlert struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Code              string `json:"code"`
	Severity          string `json:"severity"`
	Description       string `json:"description"`
	AvailableQuantity int    `json:"available_quantity"`
	MinimumQuantity   int    `json:"minimum_quantity"`
	ExpiryDate        string `json:"expiry_date,omitempty"`
	DaysToExpiry      *int   `json:"days_to_expiry,omitempty"`
}

type InventoryAlertResponse struct {
	Date   string           `json:"date"`
	Alerts []InventoryAlert `json:"alerts"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Barcode  string `json:"barcode"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Barcode   string    `json:"barcode,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Barcode   string
	Active    bool
	CreatedAt time.Time
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Receipts      int64  `json:"receipts"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReportCashier struct {
	Cashier     string `json:"cashier"`
	Receipts    int64  `json:"receipts"`
	TotalCents  int64  `json:"total_cents"`
	ProfitCents int64  `json:"profit_cents"`
}

type DailyReport struct {
	Date            string               `json:"date"`
	Receipts        int64                `json:"receipts"`
	SaleLines       int64                `json:"sale_lines"`
	ItemsSold       int64                `json:"items_sold"`
	GrossSalesCents int64                `json:"gross_sales_cents"`
	DiscountCents   int64                `json:"discount_cents"`
	TaxCents        int64                `json:"tax_cents"`
	ProfitCents     int64                `json:"profit_cents"`
	RefundCents     int64                `json:"refund_cents"`
	NetRevenueCents int64                `json:"net_revenue_cents"`
	ByPayment       []DailyReportPayment `json:"by_payment"`
	ByCashier       []DailyReportCashier `json:"by_cashier"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentQRIS    = "qris"
	PaymentEWallet = "ewallet"
)

const (
	ReturnStatusNone    = "none"
	ReturnStatusPartial = "partial"
	ReturnStatusFull    = "full"
)

const (
	WorkSessionActive = "active"
	WorkSessionClosed = "closed"
)

const (
	SessionCloseLogout    = "logout"
	SessionCloseAutoClose = "auto_close"
)

const (
	PayrollStatusPending  = "pending"
	PayrollStatusApproved = "approved"
)

const (
	LoyaltyEarn       = "earn"
	LoyaltyRedeem     = "redeem"
	LoyaltyAdjustment = "adjustment"
)

const (
	PurchaseOrderDraft     = "draft"
	PurchaseOrderReceived  = "received"
	PurchaseOrderCancelled = "cancelled"
)

const (
	PriceTypeBuying  = "buying"
	PriceTypeSelling = "selling"
)
