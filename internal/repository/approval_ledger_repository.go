package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/errors"
)

// ApprovalLedgerRepository appends and reads the immutable approval log.
// The table has a delete-prevention trigger, so Append is the only
// mutation exposed. The newest entry per request is the authoritative
// "whose turn is it" pointer; no cached assignee field exists anywhere.
type ApprovalLedgerRepository struct {
	db *database.DB
}

// NewApprovalLedgerRepository creates a new ApprovalLedgerRepository.
func NewApprovalLedgerRepository(db *database.DB) *ApprovalLedgerRepository {
	return &ApprovalLedgerRepository{db: db}
}

// Append inserts one ledger entry. IDs are UUIDv7 so insertion order is
// preserved even for entries sharing an action_date timestamp.
func (r *ApprovalLedgerRepository) Append(ctx context.Context, entry *ApprovalLogEntry) error {
	id, err := uuid.NewV7()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to generate ledger entry id")
	}
	entry.ID = id.String()

	query := `
		INSERT INTO approval_log
		    (id, request_id, approver_id, action, approval_level, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING action_date
	`

	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.ApproverID,
		entry.Action,
		entry.ApprovalLevel,
		entry.Notes,
	).Scan(&entry.ActionDate)
}

// LatestStep returns the most recent entry for a request, ties broken by
// insertion order. Returns nil when the chain has not started.
func (r *ApprovalLedgerRepository) LatestStep(ctx context.Context, requestID string) (*ApprovalLogEntry, error) {
	query := `
		SELECT id, request_id, approver_id, action, approval_level, action_date, notes
		FROM approval_log
		WHERE request_id = $1
		ORDER BY action_date DESC, id DESC
		LIMIT 1
	`

	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, requestID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// History returns the full trail for a request, oldest first.
func (r *ApprovalLedgerRepository) History(ctx context.Context, requestID string) ([]*ApprovalLogEntry, error) {
	query := `
		SELECT id, request_id, approver_id, action, approval_level, action_date, notes
		FROM approval_log
		WHERE request_id = $1
		ORDER BY action_date ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval history")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// PendingForApprover returns the latest entry of every request currently
// waiting on the given approver: requests still pending whose newest
// ledger row is a Forwarded entry assigned to them.
func (r *ApprovalLedgerRepository) PendingForApprover(ctx context.Context, approverID string) ([]*ApprovalLogEntry, error) {
	query := `
		SELECT e.id, e.request_id, e.approver_id, e.action, e.approval_level, e.action_date, e.notes
		FROM (
			SELECT DISTINCT ON (request_id)
			       id, request_id, approver_id, action, approval_level, action_date, notes
			FROM approval_log
			ORDER BY request_id, action_date DESC, id DESC
		) e
		JOIN purchase_requests pr ON pr.id = e.request_id
		WHERE e.action = 'forwarded'
		  AND e.approver_id = $1
		  AND pr.status = 'pending_approval'
		ORDER BY e.action_date ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type entryScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalLedgerRepository) scanEntry(sc entryScanner) (*ApprovalLogEntry, error) {
	entry := &ApprovalLogEntry{}
	err := sc.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.ApproverID,
		&entry.Action,
		&entry.ApprovalLevel,
		&entry.ActionDate,
		&entry.Notes,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ApprovalLedgerRepository) scanRows(rows pgx.Rows) ([]*ApprovalLogEntry, error) {
	var entries []*ApprovalLogEntry
	for rows.Next() {
		entry := &ApprovalLogEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.ApproverID,
			&entry.Action,
			&entry.ApprovalLevel,
			&entry.ActionDate,
			&entry.Notes,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan ledger entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
