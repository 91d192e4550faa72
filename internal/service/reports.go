package service

import (
	"context"
	"log"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
)

const reportDateLayout = "2006-01-02"

// DailyReport aggregates one UTC day. Results are cached for a short TTL and
// concurrent misses for the same day share a single store query.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailyReport{}, err
	}

	from := startOfDay(s.now())
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return domain.DailyReport{}, err
		}
		from = day
	}
	key := from.Format(reportDateLayout)

	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	// Waiters share one fill; it ignores the first caller's cancellation.
	fillCtx := context.WithoutCancel(ctx)
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		gen := s.reportGeneration(key)
		report, err := s.repo.GetDailyReport(fillCtx, from, from.Add(24*time.Hour))
		if err != nil {
			return nil, err
		}
		report.Date = key
		s.storeReport(fillCtx, key, gen, &report)
		return report, nil
	})
	if err != nil {
		return domain.DailyReport{}, err
	}
	return value.(domain.DailyReport), nil
}

func (s *Service) reportGeneration(key string) uint64 {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	return s.reportGen[key]
}

// storeReport caches a freshly built report unless the day was invalidated
// after the build started.
func (s *Service) storeReport(ctx context.Context, key string, gen uint64, report *domain.DailyReport) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	if s.reportGen[key] != gen {
		return
	}
	if err := s.reports.Set(ctx, key, report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
	}
}

func (s *Service) invalidateReport(ctx context.Context, at time.Time) {
	key := startOfDay(at).Format(reportDateLayout)

	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.reportGen[key]++
	s.group.Forget(key)
	if err := s.reports.Delete(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache invalidation failed key=%s: %v", key, err)
	}
}
