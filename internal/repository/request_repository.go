package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/errors"
)

// RequestRepository handles purchase request data operations.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request and its lines in one transaction. The
// estimated total is the sum of line amounts.
func (r *RequestRepository) Create(ctx context.Context, request *PurchaseRequest) error {
	return r.db.InTransaction(ctx, func(ctx context.Context) error {
		id, err := uuid.NewV7()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to generate request id")
		}
		request.ID = id.String()

		var total int64
		for _, line := range request.Lines {
			total += line.LineAmount
		}
		request.EstimatedTotal = total

		query := `
			INSERT INTO purchase_requests
			    (id, requester_id, title, justification, status, currency, estimated_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`

		err = r.db.QueryRow(ctx, query,
			request.ID,
			request.RequesterID,
			request.Title,
			request.Justification,
			request.Status,
			request.Currency,
			request.EstimatedTotal,
		).Scan(&request.CreatedAt, &request.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase request")
		}

		lineQuery := `
			INSERT INTO purchase_request_lines
			    (request_id, line_number, product_id, name, description,
			     quantity, unit_price, line_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`

		for _, line := range request.Lines {
			line.RequestID = request.ID
			err := r.db.QueryRow(ctx, lineQuery,
				line.RequestID,
				line.LineNumber,
				line.ProductID,
				line.Name,
				line.Description,
				line.Quantity,
				line.UnitPrice,
				line.LineAmount,
			).Scan(&line.ID, &line.CreatedAt, &line.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request line")
			}
		}

		return nil
	})
}

// GetByID retrieves a request with all its lines.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*PurchaseRequest, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate retrieves a request with its lines, locking the request
// row so concurrent workflow transitions on it serialize. Must run inside
// a transaction.
func (r *RequestRepository) GetForUpdate(ctx context.Context, id string) (*PurchaseRequest, error) {
	return r.get(ctx, id, true)
}

func (r *RequestRepository) get(ctx context.Context, id string, forUpdate bool) (*PurchaseRequest, error) {
	query := `
		SELECT id, requester_id, title, justification, status, currency,
		       estimated_total, submitted_at, created_at, updated_at
		FROM purchase_requests
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	request := &PurchaseRequest{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&request.ID,
		&request.RequesterID,
		&request.Title,
		&request.Justification,
		&request.Status,
		&request.Currency,
		&request.EstimatedTotal,
		&request.SubmittedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrCodeRequestNotFound, "purchase request not found").
			WithParams(map[string]interface{}{"request_id": id})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase request")
	}

	lines, err := r.GetLines(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	request.Lines = lines

	return request, nil
}

// GetLines retrieves all lines for a request.
func (r *RequestRepository) GetLines(ctx context.Context, requestID string) ([]*RequestLine, error) {
	query := `
		SELECT id, request_id, line_number, product_id, name, description,
		       quantity, unit_price, line_amount, created_at, updated_at
		FROM purchase_request_lines
		WHERE request_id = $1
		ORDER BY line_number
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request lines")
	}
	defer rows.Close()

	lines := make([]*RequestLine, 0)
	for rows.Next() {
		line := &RequestLine{}
		err := rows.Scan(
			&line.ID,
			&line.RequestID,
			&line.LineNumber,
			&line.ProductID,
			&line.Name,
			&line.Description,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineAmount,
			&line.CreatedAt,
			&line.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request line")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// List retrieves requests with filtering and pagination. Lines are not
// loaded for list views.
func (r *RequestRepository) List(ctx context.Context, requesterID *string, status *RequestStatus, limit, offset int) ([]*PurchaseRequest, int64, error) {
	query := `
		SELECT id, requester_id, title, justification, status, currency,
		       estimated_total, submitted_at, created_at, updated_at
		FROM purchase_requests
		WHERE TRUE
	`
	countQuery := `SELECT COUNT(*) FROM purchase_requests WHERE TRUE`

	args := []interface{}{}
	argCount := 1

	if requesterID != nil {
		clause := fmt.Sprintf(" AND requester_id = $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *requesterID)
		argCount++
	}
	if status != nil {
		clause := fmt.Sprintf(" AND status = $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *status)
		argCount++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count purchase requests")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list purchase requests")
	}
	defer rows.Close()

	requests := make([]*PurchaseRequest, 0)
	for rows.Next() {
		request := &PurchaseRequest{}
		err := rows.Scan(
			&request.ID,
			&request.RequesterID,
			&request.Title,
			&request.Justification,
			&request.Status,
			&request.Currency,
			&request.EstimatedTotal,
			&request.SubmittedAt,
			&request.CreatedAt,
			&request.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase request")
		}
		requests = append(requests, request)
	}

	return requests, total, nil
}

// UpdateStatus moves a request from one status to another. The expected
// current status is part of the WHERE clause, so a concurrent transition
// that already advanced the row makes this fail with CONFLICT instead of
// silently double-applying.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, from, to RequestStatus) error {
	query := `
		UPDATE purchase_requests
		SET status       = $3,
		    submitted_at = CASE WHEN $3 = 'pending_approval' THEN NOW() ELSE submitted_at END,
		    updated_at   = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, from, to).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("purchase request is no longer in status '%s'", from))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request status")
	}
	return nil
}

// Delete removes a draft request. Submitted requests are immutable
// history and can never be deleted.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM purchase_requests
		WHERE id = $1 AND status = 'draft'
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete purchase request")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeConflict, "only draft requests can be deleted")
	}
	return nil
}
