package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// ListProducts hides deactivated products from everyone but admins.
func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	if includeInactive {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
	}
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.Invalid("product id is required")
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.Invalid("barcode is required")
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.Active {
		return domain.Product{}, fmt.Errorf("%w: product %s is inactive", store.ErrNotFound, product.ID)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if req.Name == "" {
		return domain.Product{}, store.Invalid("name is required")
	}
	if req.SellingPriceCents < 1 || req.BuyingPriceCents < 0 {
		return domain.Product{}, store.Invalid("selling price must be positive and buying price not negative")
	}
	if req.InitialStock < 0 || req.MinimumQuantity < 0 || req.AlertBeforeDays < 0 {
		return domain.Product{}, store.Invalid("stock, minimum quantity and alert days must not be negative")
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prd"),
		Barcode:           req.Barcode,
		Name:              req.Name,
		Category:          req.Category,
		BuyingPriceCents:  req.BuyingPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		StockQuantity:     req.InitialStock,
		MinimumQuantity:   req.MinimumQuantity,
		AlertBeforeDays:   req.AlertBeforeDays,
		ExpiryDate:        expiry,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,buy=%d,sell=%d,stock=%d", created.Name, created.BuyingPriceCents, created.SellingPriceCents, created.StockQuantity))
	return *created, nil
}

// UpdateProduct applies the non-nil fields. Price edits are recorded in the
// price history; stock counters are never touched here.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.BuyingPriceCents != nil {
		if *req.BuyingPriceCents < 0 {
			return domain.Product{}, store.Invalid("buying_price_cents must not be negative")
		}
		updated.BuyingPriceCents = *req.BuyingPriceCents
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 1 {
			return domain.Product{}, store.Invalid("selling_price_cents must be positive")
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.MinimumQuantity != nil {
		if *req.MinimumQuantity < 0 {
			return domain.Product{}, store.Invalid("minimum_quantity must not be negative")
		}
		updated.MinimumQuantity = *req.MinimumQuantity
	}
	if req.AlertBeforeDays != nil {
		if *req.AlertBeforeDays < 0 {
			return domain.Product{}, store.Invalid("alert_before_days must not be negative")
		}
		updated.AlertBeforeDays = *req.AlertBeforeDays
	}
	if req.ExpiryDate != nil {
		expiry, err := parseExpiry(*req.ExpiryDate)
		if err != nil {
			return domain.Product{}, err
		}
		updated.ExpiryDate = expiry
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	for _, change := range []struct {
		priceType string
		old       int64
		new       int64
	}{
		{domain.PriceTypeBuying, existing.BuyingPriceCents, saved.BuyingPriceCents},
		{domain.PriceTypeSelling, existing.SellingPriceCents, saved.SellingPriceCents},
	} {
		if change.old == change.new {
			continue
		}
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			ProductID:     saved.ID,
			PriceType:     change.priceType,
			OldPriceCents: change.old,
			NewPriceCents: change.new,
			ChangedBy:     actor.Username,
			ChangedAt:     now,
		}); err != nil {
			log.Printf("[service] WARN: failed to record %s price history product=%s: %v", change.priceType, saved.ID, err)
		}
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("buy=%d,sell=%d,min=%d", saved.BuyingPriceCents, saved.SellingPriceCents, saved.MinimumQuantity))
	return *saved, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.Invalid("product id is required")
	}

	saved, err := s.repo.SetProductActive(ctx, id, false)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_deactivate", "product", saved.ID, "")
	return *saved, nil
}

func (s *Service) RestockProduct(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Quantity < 1 {
		return domain.Product{}, store.Invalid("quantity must be positive")
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.repo.IncreaseStock(ctx, []domain.StockAdjustment{{ProductID: product.ID, Qty: req.Quantity}}); err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_restock", "product", product.ID, fmt.Sprintf("qty=%d,notes=%s", req.Quantity, strings.TrimSpace(req.Notes)))
	return s.GetProduct(ctx, product.ID)
}

func (s *Service) ListProductPriceHistory(ctx context.Context, id string, limit int) ([]domain.ProductPriceHistory, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.Invalid("product id is required")
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, id, limit)
}

func parseExpiry(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil, store.Invalid("expiry_date must be YYYY-MM-DD")
	}
	return &day, nil
}
