package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"retailpos/backend/internal/domain"
)

const (
	AlertOutOfStock   = "out_of_stock"
	AlertLowStock     = "low_stock"
	AlertExpired      = "expired"
	AlertExpiringSoon = "expiring_soon"
)

// InventoryAlerts flags active products at or below their minimum quantity and
// products inside their expiry warning window as of date (today when empty).
func (s *Service) InventoryAlerts(ctx context.Context, date string) (domain.InventoryAlertResponse, error) {
	today := startOfDay(s.now())
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return domain.InventoryAlertResponse{}, err
		}
		today = day
	}

	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return domain.InventoryAlertResponse{}, err
	}

	alerts := make([]domain.InventoryAlert, 0, 16)
	for _, product := range products {
		if product.AvailableQuantity <= 0 {
			alerts = append(alerts, stockAlert(product, AlertOutOfStock, "high",
				fmt.Sprintf("%s is out of stock.", product.Name)))
		} else if product.AvailableQuantity <= product.MinimumQuantity {
			alerts = append(alerts, stockAlert(product, AlertLowStock, "medium",
				fmt.Sprintf("%s has %d left, minimum is %d.", product.Name, product.AvailableQuantity, product.MinimumQuantity)))
		}

		if product.ExpiryDate == nil {
			continue
		}
		expiry := startOfDay(*product.ExpiryDate)
		days := int(expiry.Sub(today).Hours() / 24)
		switch {
		case days < 0:
			alerts = append(alerts, expiryAlert(product, AlertExpired, "high", days,
				fmt.Sprintf("%s expired %d day(s) ago.", product.Name, -days)))
		case days <= product.AlertBeforeDays:
			alerts = append(alerts, expiryAlert(product, AlertExpiringSoon, "medium", days,
				fmt.Sprintf("%s expires in %d day(s).", product.Name, days)))
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity == alerts[j].Severity {
			if alerts[i].Name == alerts[j].Name {
				return alerts[i].Code < alerts[j].Code
			}
			return alerts[i].Name < alerts[j].Name
		}
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})

	return domain.InventoryAlertResponse{
		Date:   today.Format(reportDateLayout),
		Alerts: alerts,
	}, nil
}

func stockAlert(product domain.Product, code string, severity string, description string) domain.InventoryAlert {
	return domain.InventoryAlert{
		ProductID:         product.ID,
		Name:              product.Name,
		Code:              code,
		Severity:          severity,
		Description:       description,
		AvailableQuantity: product.AvailableQuantity,
		MinimumQuantity:   product.MinimumQuantity,
	}
}

func expiryAlert(product domain.Product, code string, severity string, days int, description string) domain.InventoryAlert {
	alert := stockAlert(product, code, severity, description)
	alert.ExpiryDate = product.ExpiryDate.UTC().Format(reportDateLayout)
	alert.DaysToExpiry = &days
	return alert
}

func severityRank(severity string) int {
	switch severity {
	case "high":
		return 1
	case "medium":
		return 2
	default:
		return 3
	}
}
