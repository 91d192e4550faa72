package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// StartWorkSession opens a session for the user. A session still active from
// an earlier login is closed at the new login time and returned second.
func (s *Store) StartWorkSession(_ context.Context, session domain.WorkSession) (*domain.WorkSession, *domain.WorkSession, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return nil, nil, store.Invalid("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[session.UserID]; !ok {
		return nil, nil, fmt.Errorf("%w: user %s", store.ErrNotFound, session.UserID)
	}
	if session.ID == "" {
		session.ID = xid.New("ws")
	}
	if session.LoginTime.IsZero() {
		session.LoginTime = time.Now().UTC()
	}

	var closed *domain.WorkSession
	if staleID, ok := s.activeSessionByUser[session.UserID]; ok {
		stale := closeSession(s.sessionsByID[staleID], session.LoginTime, domain.SessionCloseAutoClose)
		s.sessionsByID[staleID] = stale
		closed = &stale
	}

	session.Status = domain.WorkSessionActive
	session.LogoutTime = nil
	session.DurationSeconds = 0
	session.CloseReason = ""
	s.sessionsByID[session.ID] = session
	s.activeSessionByUser[session.UserID] = session.ID
	return &session, closed, nil
}

func (s *Store) EndWorkSession(_ context.Context, userID string, at time.Time) (*domain.WorkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.activeSessionByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	session := closeSession(s.sessionsByID[id], at, domain.SessionCloseLogout)
	s.sessionsByID[id] = session
	delete(s.activeSessionByUser, userID)
	return &session, nil
}

func closeSession(session domain.WorkSession, at time.Time, reason string) domain.WorkSession {
	session.Status = domain.WorkSessionClosed
	session.LogoutTime = &at
	session.DurationSeconds = ledger.SessionSeconds(session.LoginTime, at)
	session.CloseReason = reason
	return session
}

func (s *Store) GetActiveWorkSession(_ context.Context, userID string) (*domain.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeSessionByUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[id]
	return &session, nil
}

func (s *Store) ListClosedWorkSessions(_ context.Context, userID string, from time.Time, to time.Time) ([]domain.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.WorkSession, 0, 32)
	for _, session := range s.sessionsByID {
		if session.UserID != userID || session.Status != domain.WorkSessionClosed {
			continue
		}
		if inRange(session.LoginTime, from, to) {
			result = append(result, session)
		}
	}
	slices.SortFunc(result, func(a, b domain.WorkSession) int {
		return a.LoginTime.Compare(b.LoginTime)
	})
	return result, nil
}

func (s *Store) UpsertPayrollInfo(_ context.Context, info domain.PayrollInfo) (*domain.PayrollInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[info.UserID]; !ok {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, info.UserID)
	}
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now().UTC()
	}
	s.payrollInfo[info.UserID] = info
	return &info, nil
}

func (s *Store) GetPayrollInfo(_ context.Context, userID string) (*domain.PayrollInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.payrollInfo[userID]
	if !ok {
		return nil, store.ErrPayrollInfoMissing
	}
	return &info, nil
}

func (s *Store) UpsertPayrollSummary(_ context.Context, summary domain.PayrollSummary) (*domain.PayrollSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := payrollPeriodKey(summary.UserID, summary.Month, summary.Year)
	if id, ok := s.payrollIDByPeriod[key]; ok {
		existing := s.payrollByID[id]
		if existing.Status == domain.PayrollStatusApproved {
			return nil, store.ErrPayrollAlreadyApproved
		}
		summary.ID = id
	} else if summary.ID == "" {
		summary.ID = xid.New("pay")
	}
	if summary.CalculatedAt.IsZero() {
		summary.CalculatedAt = time.Now().UTC()
	}
	summary.Status = domain.PayrollStatusPending
	summary.ApprovedBy = ""
	summary.ApprovedAt = nil

	s.payrollByID[summary.ID] = summary
	s.payrollIDByPeriod[key] = summary.ID
	return &summary, nil
}

func (s *Store) ApprovePayrollSummary(_ context.Context, id string, approver string, at time.Time) (*domain.PayrollSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.payrollByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if summary.Status != domain.PayrollStatusPending {
		return nil, store.ErrPayrollAlreadyApproved
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	summary.Status = domain.PayrollStatusApproved
	summary.ApprovedBy = approver
	summary.ApprovedAt = &at
	s.payrollByID[id] = summary
	return &summary, nil
}

func (s *Store) ListPayrollSummaries(_ context.Context, month int, year int) ([]domain.PayrollSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PayrollSummary, 0, len(s.payrollByID))
	for _, summary := range s.payrollByID {
		if (month == 0 || summary.Month == month) && (year == 0 || summary.Year == year) {
			result = append(result, summary)
		}
	}
	slices.SortFunc(result, func(a, b domain.PayrollSummary) int {
		if c := (b.Year*100 + b.Month) - (a.Year*100 + a.Month); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return result, nil
}

func payrollPeriodKey(userID string, month int, year int) string {
	return fmt.Sprintf("%s::%04d-%02d", userID, year, month)
}
