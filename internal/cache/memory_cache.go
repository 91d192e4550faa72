package cache

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"retailpos/backend/internal/domain"
)

// reportDays bounds how many distinct days the in-process cache keeps.
const reportDays = 64

type entry struct {
	report    domain.DailyReport
	expiresAt time.Time
}

// MemoryReportCache is the in-process fallback used when Redis is not configured.
// Entries expire after the TTL given to Set, and never later than maxTTL.
type MemoryReportCache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

func NewMemoryReportCache(maxTTL time.Duration) *MemoryReportCache {
	return &MemoryReportCache{
		lru: expirable.NewLRU[string, entry](reportDays, nil, maxTTL),
		now: time.Now,
	}
}

func (c *MemoryReportCache) Get(_ context.Context, key string) (*domain.DailyReport, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	report := cloneReport(e.report)
	return &report, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, value *domain.DailyReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.lru.Add(key, entry{report: cloneReport(*value), expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *MemoryReportCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	return nil
}

func cloneReport(report domain.DailyReport) domain.DailyReport {
	report.ByPayment = slices.Clone(report.ByPayment)
	report.ByCashier = slices.Clone(report.ByCashier)
	return report
}
