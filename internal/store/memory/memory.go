package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// Store keeps everything in maps behind one RWMutex. Every mutating method
// holds the write lock for its whole body, which is what makes a sale or a
// return all-or-nothing here.
type Store struct {
	mu                  sync.RWMutex
	products            map[string]domain.Product
	productIDByBarcode  map[string]string
	priceHistory        map[string][]domain.ProductPriceHistory
	receiptsByID        map[string]domain.SaleReceipt
	receiptIDByIdem     map[string]string
	saleIDsByReceipt    map[string][]string
	salesByID           map[string]domain.Sale
	returnsBySale       map[string][]domain.ProductReturn
	sessionsByID        map[string]domain.WorkSession
	activeSessionByUser map[string]string
	payrollInfo         map[string]domain.PayrollInfo
	payrollByID         map[string]domain.PayrollSummary
	payrollIDByPeriod   map[string]string
	customersByID       map[string]domain.Customer
	balances            map[string]domain.PointsBalance
	loyaltyLog          []domain.LoyaltyTransaction
	suppliersByID       map[string]domain.Supplier
	purchaseOrdersByID  map[string]domain.PurchaseOrder
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD when set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		barcode  string
	}{
		{"admin", adminPwd, "admin", "EMP-0001"},
		{"cashier", cashierPwd, "cashier", "EMP-0002"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Barcode:   u.barcode,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty catalog with the seed accounts.
func New() *Store {
	return &Store{
		products:            make(map[string]domain.Product),
		productIDByBarcode:  make(map[string]string),
		priceHistory:        make(map[string][]domain.ProductPriceHistory),
		receiptsByID:        make(map[string]domain.SaleReceipt),
		receiptIDByIdem:     make(map[string]string),
		saleIDsByReceipt:    make(map[string][]string),
		salesByID:           make(map[string]domain.Sale),
		returnsBySale:       make(map[string][]domain.ProductReturn),
		sessionsByID:        make(map[string]domain.WorkSession),
		activeSessionByUser: make(map[string]string),
		payrollInfo:         make(map[string]domain.PayrollInfo),
		payrollByID:         make(map[string]domain.PayrollSummary),
		payrollIDByPeriod:   make(map[string]string),
		customersByID:       make(map[string]domain.Customer),
		balances:            make(map[string]domain.PointsBalance),
		loyaltyLog:          make([]domain.LoyaltyTransaction, 0, 64),
		suppliersByID:       make(map[string]domain.Supplier),
		purchaseOrdersByID:  make(map[string]domain.PurchaseOrder),
		auditLogs:           make([]domain.AuditLog, 0, 128),
		usersByUsername:     seedUsers(),
	}
}

// NewSeeded adds a small demo catalog, one loyalty customer and the cashier's
// payroll rate on top of New.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{ID: "prd-mie-goreng", Barcode: "8991001000011", Name: "Mie Goreng Instan", Category: "grocery", BuyingPriceCents: 2700, SellingPriceCents: 3500, StockQuantity: 120, MinimumQuantity: 24},
		{ID: "prd-telur-10", Barcode: "8991001000028", Name: "Telur 10 Butir", Category: "grocery", BuyingPriceCents: 23000, SellingPriceCents: 26500, StockQuantity: 40, MinimumQuantity: 10, AlertBeforeDays: 5},
		{ID: "prd-susu-uht", Barcode: "8991001000035", Name: "Susu UHT 1L", Category: "dairy", BuyingPriceCents: 13600, SellingPriceCents: 18900, StockQuantity: 60, MinimumQuantity: 12, AlertBeforeDays: 14},
		{ID: "prd-roti-tawar", Barcode: "8991001000042", Name: "Roti Tawar", Category: "bakery", BuyingPriceCents: 12500, SellingPriceCents: 17800, StockQuantity: 30, MinimumQuantity: 8, AlertBeforeDays: 2},
		{ID: "prd-kopi-sachet", Barcode: "8991001000059", Name: "Kopi Sachet", Category: "beverage", BuyingPriceCents: 1700, SellingPriceCents: 2600, StockQuantity: 200, MinimumQuantity: 50},
		{ID: "prd-gula-1kg", Barcode: "8991001000066", Name: "Gula 1kg", Category: "grocery", BuyingPriceCents: 15300, SellingPriceCents: 17400, StockQuantity: 50, MinimumQuantity: 10},
		{ID: "prd-air-600", Barcode: "8991001000073", Name: "Air Mineral 600ml", Category: "beverage", BuyingPriceCents: 3200, SellingPriceCents: 3900, StockQuantity: 240, MinimumQuantity: 48},
		{ID: "prd-sabun", Barcode: "8991001000080", Name: "Sabun Mandi", Category: "household", BuyingPriceCents: 5000, SellingPriceCents: 7400, StockQuantity: 36, MinimumQuantity: 6},
	} {
		p.AvailableQuantity = p.StockQuantity
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productIDByBarcode[p.Barcode] = p.ID
	}
	s.customersByID["cus-demo"] = domain.Customer{ID: "cus-demo", Name: "Pelanggan Demo", Phone: "081200000000", CreatedAt: now}
	s.balances["cus-demo"] = domain.PointsBalance{CustomerID: "cus-demo", UpdatedAt: now}
	s.payrollInfo["cashier"] = domain.PayrollInfo{UserID: "cashier", Position: "cashier", HourlyRateCents: 2500000, OvertimeRateCents: 3750000, UpdatedAt: now}
	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.StockQuantity < 0 {
		return nil, store.Invalid("stock_quantity must not be negative")
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s", store.ErrDuplicate, product.ID)
	}
	if product.Barcode != "" {
		if _, exists := s.productIDByBarcode[product.Barcode]; exists {
			return nil, fmt.Errorf("%w: barcode %s", store.ErrDuplicate, product.Barcode)
		}
	}

	now := time.Now().UTC()
	product.AvailableQuantity = product.StockQuantity
	product.SoldQuantity = 0
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	if product.Barcode != "" {
		s.productIDByBarcode[product.Barcode] = product.ID
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productIDByBarcode[barcode]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	return &product, nil
}

// UpdateProduct replaces the descriptive and price fields. Stock counters are
// owned by sales, returns and restocks and are never taken from the argument.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	current.Name = product.Name
	current.Category = product.Category
	current.BuyingPriceCents = product.BuyingPriceCents
	current.SellingPriceCents = product.SellingPriceCents
	current.MinimumQuantity = product.MinimumQuantity
	current.AlertBeforeDays = product.AlertBeforeDays
	current.ExpiryDate = product.ExpiryDate
	current.UpdatedAt = time.Now().UTC()
	s.products[current.ID] = current
	updated := current
	return &updated, nil
}

func (s *Store) SetProductActive(_ context.Context, id string, active bool) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Active = active
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return &product, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendPriceHistoryLocked(entry)
	return nil
}

func (s *Store) appendPriceHistoryLocked(entry domain.ProductPriceHistory) {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.priceHistory[productID])
	if result == nil {
		return []domain.ProductPriceHistory{}, nil
	}
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		return newestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) IncreaseStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, adj := range adjustments {
		if _, exists := s.products[adj.ProductID]; !exists {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, adj.ProductID)
		}
	}
	now := time.Now().UTC()
	for _, adj := range adjustments {
		if adj.Qty < 1 {
			continue
		}
		product := s.products[adj.ProductID]
		product.StockQuantity += adj.Qty
		product.AvailableQuantity += adj.Qty
		product.UpdatedAt = now
		s.products[adj.ProductID] = product
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if inRange(entry.CreatedAt, from, to) {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s", store.ErrDuplicate, username)
	}
	if user.Barcode != "" {
		for _, existing := range s.usersByUsername {
			if existing.Barcode == user.Barcode {
				return fmt.Errorf("%w: barcode %s", store.ErrDuplicate, user.Barcode)
			}
		}
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("username and password are required")
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func validateProduct(p domain.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return store.Invalid("name is required")
	case p.SellingPriceCents < 1:
		return store.Invalid("selling_price_cents must be positive")
	case p.BuyingPriceCents < 0:
		return store.Invalid("buying_price_cents must not be negative")
	case p.MinimumQuantity < 0 || p.AlertBeforeDays < 0:
		return store.Invalid("minimum_quantity and alert_before_days must not be negative")
	}
	return nil
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return strings.Compare(bID, aID)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
