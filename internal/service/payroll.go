package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// StartWorkSession opens a session for userID at the current time. A session
// the user never closed is force-closed first and reported in the response.
func (s *Service) StartWorkSession(ctx context.Context, userID string) (domain.WorkSessionResponse, error) {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == "" {
		return domain.WorkSessionResponse{}, store.Invalid("user_id is required")
	}

	session, closed, err := s.repo.StartWorkSession(ctx, domain.WorkSession{
		ID:        xid.New("ws"),
		UserID:    userID,
		LoginTime: s.now(),
	})
	if err != nil {
		return domain.WorkSessionResponse{}, err
	}
	if closed != nil {
		log.Printf("[service] WARN: auto-closed stale work session id=%s user=%s duration=%ds", closed.ID, userID, closed.DurationSeconds)
	}

	s.logAudit(ctx, "work_session_start", "work_session", session.ID, "user="+userID)
	return domain.WorkSessionResponse{Session: *session, ClosedSession: closed}, nil
}

func (s *Service) EndWorkSession(ctx context.Context, userID string) (domain.WorkSession, error) {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == "" {
		return domain.WorkSession{}, store.Invalid("user_id is required")
	}

	session, err := s.repo.EndWorkSession(ctx, userID, s.now())
	if err != nil {
		return domain.WorkSession{}, err
	}
	s.logAudit(ctx, "work_session_end", "work_session", session.ID, fmt.Sprintf("user=%s,duration=%d", userID, session.DurationSeconds))
	return *session, nil
}

func (s *Service) GetActiveWorkSession(ctx context.Context, userID string) (domain.WorkSession, error) {
	userID = strings.ToLower(strings.TrimSpace(userID))
	if userID == "" {
		return domain.WorkSession{}, store.Invalid("user_id is required")
	}
	session, err := s.repo.GetActiveWorkSession(ctx, userID)
	if err != nil {
		return domain.WorkSession{}, err
	}
	return *session, nil
}

// SetPayrollInfo stores a user's rates. The overtime rate defaults to one and
// a half times the hourly rate.
func (s *Service) SetPayrollInfo(ctx context.Context, req domain.PayrollInfoRequest) (domain.PayrollInfo, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PayrollInfo{}, err
	}

	req.UserID = strings.ToLower(strings.TrimSpace(req.UserID))
	if req.UserID == "" {
		return domain.PayrollInfo{}, store.Invalid("user_id is required")
	}
	if req.HourlyRateCents < 1 {
		return domain.PayrollInfo{}, store.Invalid("hourly_rate_cents must be positive")
	}
	if req.OvertimeRateCents < 0 {
		return domain.PayrollInfo{}, store.Invalid("overtime_rate_cents must not be negative")
	}
	if req.OvertimeRateCents == 0 {
		req.OvertimeRateCents = ledger.DefaultOvertimeRate(req.HourlyRateCents)
	}

	saved, err := s.repo.UpsertPayrollInfo(ctx, domain.PayrollInfo{
		UserID:            req.UserID,
		Position:          strings.TrimSpace(req.Position),
		HourlyRateCents:   req.HourlyRateCents,
		OvertimeRateCents: req.OvertimeRateCents,
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return domain.PayrollInfo{}, err
	}
	s.logAudit(ctx, "payroll_info_set", "user", saved.UserID, fmt.Sprintf("hourly=%d,overtime=%d", saved.HourlyRateCents, saved.OvertimeRateCents))
	return *saved, nil
}

func (s *Service) GetPayrollInfo(ctx context.Context, userID string) (domain.PayrollInfo, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PayrollInfo{}, err
	}
	info, err := s.repo.GetPayrollInfo(ctx, strings.ToLower(strings.TrimSpace(userID)))
	if err != nil {
		return domain.PayrollInfo{}, err
	}
	return *info, nil
}

// CalculateMonthlyPayroll sums the closed sessions that started in the month
// and upserts the summary for (user, month, year). Running it again replaces
// the pending summary; an approved one is left alone.
func (s *Service) CalculateMonthlyPayroll(ctx context.Context, req domain.PayrollCalculateRequest) (domain.PayrollSummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PayrollSummary{}, err
	}

	req.UserID = strings.ToLower(strings.TrimSpace(req.UserID))
	if req.UserID == "" {
		return domain.PayrollSummary{}, store.Invalid("user_id is required")
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 || req.Year > 9999 {
		return domain.PayrollSummary{}, store.Invalid("month must be 1-12 and year four digits")
	}

	info, err := s.repo.GetPayrollInfo(ctx, req.UserID)
	if err != nil {
		return domain.PayrollSummary{}, err
	}

	from, to := ledger.MonthRange(req.Month, req.Year)
	sessions, err := s.repo.ListClosedWorkSessions(ctx, req.UserID, from, to)
	if err != nil {
		return domain.PayrollSummary{}, err
	}
	var worked int64
	for _, session := range sessions {
		worked += session.DurationSeconds
	}

	pay := ledger.Payroll(worked, info.HourlyRateCents, info.OvertimeRateCents)
	saved, err := s.repo.UpsertPayrollSummary(ctx, domain.PayrollSummary{
		ID:                xid.New("pay"),
		UserID:            req.UserID,
		Month:             req.Month,
		Year:              req.Year,
		SessionCount:      len(sessions),
		TotalHours:        ledger.Hours(pay.TotalHours),
		RegularHours:      ledger.Hours(pay.RegularHours),
		OvertimeHours:     ledger.Hours(pay.OvertimeHours),
		HourlyRateCents:   info.HourlyRateCents,
		OvertimeRateCents: info.OvertimeRateCents,
		TotalPayCents:     pay.TotalPayCents,
		Status:            domain.PayrollStatusPending,
		CalculatedAt:      s.now(),
	})
	if err != nil {
		return domain.PayrollSummary{}, err
	}

	s.logAudit(ctx, "payroll_calculate", "payroll", saved.ID, fmt.Sprintf("user=%s,period=%04d-%02d,hours=%.2f,pay=%d", saved.UserID, saved.Year, saved.Month, saved.TotalHours, saved.TotalPayCents))
	return *saved, nil
}

func (s *Service) ApprovePayroll(ctx context.Context, summaryID string) (domain.PayrollSummary, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PayrollSummary{}, err
	}
	summaryID = strings.TrimSpace(summaryID)
	if summaryID == "" {
		return domain.PayrollSummary{}, store.Invalid("payroll id is required")
	}

	saved, err := s.repo.ApprovePayrollSummary(ctx, summaryID, actor.Username, s.now())
	if err != nil {
		return domain.PayrollSummary{}, err
	}
	s.logAudit(ctx, "payroll_approve", "payroll", saved.ID, fmt.Sprintf("user=%s,pay=%d", saved.UserID, saved.TotalPayCents))
	return *saved, nil
}

func (s *Service) ListPayroll(ctx context.Context, month int, year int) ([]domain.PayrollSummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if month < 0 || month > 12 {
		return nil, store.Invalid("month must be 1-12")
	}
	return s.repo.ListPayrollSummaries(ctx, month, year)
}
