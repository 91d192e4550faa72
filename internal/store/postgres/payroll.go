package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

const sessionColumns = `id, user_id, status, login_time, logout_time, duration_seconds, COALESCE(close_reason,'')`

func scanSession(row rowScanner) (domain.WorkSession, error) {
	var ws domain.WorkSession
	var logout sql.NullTime
	if err := row.Scan(&ws.ID, &ws.UserID, &ws.Status, &ws.LoginTime, &logout, &ws.DurationSeconds, &ws.CloseReason); err != nil {
		return ws, err
	}
	ws.LoginTime = ws.LoginTime.UTC()
	if logout.Valid {
		t := logout.Time.UTC()
		ws.LogoutTime = &t
	}
	return ws, nil
}

// StartWorkSession closes any session the user left open before inserting the
// new one; the partial unique index guarantees a single active row per user.
func (s *Store) StartWorkSession(ctx context.Context, session domain.WorkSession) (*domain.WorkSession, *domain.WorkSession, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return nil, nil, store.Invalid("user_id is required")
	}
	if session.ID == "" {
		session.ID = xid.New("ws")
	}
	if session.LoginTime.IsZero() {
		session.LoginTime = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var closed *domain.WorkSession
	stale, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM work_sessions
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE
	`, session.UserID))
	switch {
	case err == nil:
		ended, err := closeSessionTx(ctx, tx, stale, session.LoginTime, domain.SessionCloseAutoClose)
		if err != nil {
			return nil, nil, err
		}
		closed = &ended
	case !errors.Is(err, sql.ErrNoRows):
		return nil, nil, err
	}

	session.Status = domain.WorkSessionActive
	session.LogoutTime = nil
	session.DurationSeconds = 0
	session.CloseReason = ""
	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_sessions (id, user_id, status, login_time, duration_seconds)
		VALUES ($1,$2,$3,$4,0)
	`, session.ID, session.UserID, session.Status, session.LoginTime)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, nil, fmt.Errorf("%w: user %s", store.ErrNotFound, session.UserID)
		}
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: user %s already has an active session", store.ErrConflict, session.UserID)
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &session, closed, nil
}

func (s *Store) EndWorkSession(ctx context.Context, userID string, at time.Time) (*domain.WorkSession, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	active, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM work_sessions
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ended, err := closeSessionTx(ctx, tx, active, at, domain.SessionCloseLogout)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ended, nil
}

func closeSessionTx(ctx context.Context, tx *sql.Tx, session domain.WorkSession, at time.Time, reason string) (domain.WorkSession, error) {
	session.Status = domain.WorkSessionClosed
	session.LogoutTime = &at
	session.DurationSeconds = ledger.SessionSeconds(session.LoginTime, at)
	session.CloseReason = reason
	_, err := tx.ExecContext(ctx, `
		UPDATE work_sessions
		SET status = $2, logout_time = $3, duration_seconds = $4, close_reason = $5
		WHERE id = $1
	`, session.ID, session.Status, at, session.DurationSeconds, reason)
	return session, err
}

func (s *Store) GetActiveWorkSession(ctx context.Context, userID string) (*domain.WorkSession, error) {
	ws, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM work_sessions
		WHERE user_id = $1 AND status = 'active'
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (s *Store) ListClosedWorkSessions(ctx context.Context, userID string, from time.Time, to time.Time) ([]domain.WorkSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM work_sessions
		WHERE user_id = $1 AND status = 'closed' AND login_time >= $2 AND login_time < $3
		ORDER BY login_time
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.WorkSession, 0, 32)
	for rows.Next() {
		ws, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ws)
	}
	return sessions, rows.Err()
}

func (s *Store) UpsertPayrollInfo(ctx context.Context, info domain.PayrollInfo) (*domain.PayrollInfo, error) {
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_info (user_id, position, hourly_rate_cents, overtime_rate_cents, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE
		SET position = EXCLUDED.position,
			hourly_rate_cents = EXCLUDED.hourly_rate_cents,
			overtime_rate_cents = EXCLUDED.overtime_rate_cents,
			updated_at = EXCLUDED.updated_at
	`, info.UserID, info.Position, info.HourlyRateCents, info.OvertimeRateCents, info.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, info.UserID)
		}
		return nil, err
	}
	return &info, nil
}

func (s *Store) GetPayrollInfo(ctx context.Context, userID string) (*domain.PayrollInfo, error) {
	var info domain.PayrollInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, position, hourly_rate_cents, overtime_rate_cents, updated_at
		FROM payroll_info
		WHERE user_id = $1
	`, userID).Scan(&info.UserID, &info.Position, &info.HourlyRateCents, &info.OvertimeRateCents, &info.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPayrollInfoMissing
		}
		return nil, err
	}
	info.UpdatedAt = info.UpdatedAt.UTC()
	return &info, nil
}

const payrollColumns = `id, user_id, month, year, session_count, total_hours, regular_hours, overtime_hours,
	hourly_rate_cents, overtime_rate_cents, total_pay_cents, status, COALESCE(approved_by,''), approved_at, calculated_at`

func scanPayroll(row rowScanner) (domain.PayrollSummary, error) {
	var p domain.PayrollSummary
	var approvedAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Month, &p.Year, &p.SessionCount, &p.TotalHours, &p.RegularHours,
		&p.OvertimeHours, &p.HourlyRateCents, &p.OvertimeRateCents, &p.TotalPayCents, &p.Status,
		&p.ApprovedBy, &approvedAt, &p.CalculatedAt)
	if err != nil {
		return p, err
	}
	p.CalculatedAt = p.CalculatedAt.UTC()
	if approvedAt.Valid {
		t := approvedAt.Time.UTC()
		p.ApprovedAt = &t
	}
	return p, nil
}

// UpsertPayrollSummary replaces a pending summary for the period in place. The
// conditional DO UPDATE returns no row when the period is already approved.
func (s *Store) UpsertPayrollSummary(ctx context.Context, summary domain.PayrollSummary) (*domain.PayrollSummary, error) {
	if summary.ID == "" {
		summary.ID = xid.New("pay")
	}
	if summary.CalculatedAt.IsZero() {
		summary.CalculatedAt = time.Now().UTC()
	}
	saved, err := scanPayroll(s.db.QueryRowContext(ctx, `
		INSERT INTO payroll_summaries (
			id, user_id, month, year, session_count, total_hours, regular_hours, overtime_hours,
			hourly_rate_cents, overtime_rate_cents, total_pay_cents, status, calculated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'pending',$12)
		ON CONFLICT (user_id, month, year) DO UPDATE
		SET session_count = EXCLUDED.session_count,
			total_hours = EXCLUDED.total_hours,
			regular_hours = EXCLUDED.regular_hours,
			overtime_hours = EXCLUDED.overtime_hours,
			hourly_rate_cents = EXCLUDED.hourly_rate_cents,
			overtime_rate_cents = EXCLUDED.overtime_rate_cents,
			total_pay_cents = EXCLUDED.total_pay_cents,
			calculated_at = EXCLUDED.calculated_at
		WHERE payroll_summaries.status = 'pending'
		RETURNING `+payrollColumns,
		summary.ID, summary.UserID, summary.Month, summary.Year, summary.SessionCount, summary.TotalHours,
		summary.RegularHours, summary.OvertimeHours, summary.HourlyRateCents, summary.OvertimeRateCents,
		summary.TotalPayCents, summary.CalculatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPayrollAlreadyApproved
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, summary.UserID)
		}
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ApprovePayrollSummary(ctx context.Context, id string, approver string, at time.Time) (*domain.PayrollSummary, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	saved, err := scanPayroll(s.db.QueryRowContext(ctx, `
		UPDATE payroll_summaries
		SET status = 'approved', approved_by = $2, approved_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+payrollColumns, id, approver, at))
	if err == nil {
		return &saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payroll_summaries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrPayrollAlreadyApproved
}

func (s *Store) ListPayrollSummaries(ctx context.Context, month int, year int) ([]domain.PayrollSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+payrollColumns+`
		FROM payroll_summaries
		WHERE ($1 = 0 OR month = $1) AND ($2 = 0 OR year = $2)
		ORDER BY year DESC, month DESC, user_id
	`, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.PayrollSummary, 0, 16)
	for rows.Next() {
		p, err := scanPayroll(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, p)
	}
	return summaries, rows.Err()
}
