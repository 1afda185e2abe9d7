package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/errors"
)

// PurchaseOrderRepository handles purchase order data operations.
// Order creation happens inside the final Approve transaction; the UNIQUE
// constraint on request_id guarantees at most one order per request.
type PurchaseOrderRepository struct {
	db *database.DB
}

// NewPurchaseOrderRepository creates a new PurchaseOrderRepository.
func NewPurchaseOrderRepository(db *database.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db}
}

// CreateFromRequest converts an approved request into a purchase order,
// copying every request line 1:1. The order starts awaiting the
// supplier's response.
func (r *PurchaseOrderRepository) CreateFromRequest(ctx context.Context, request *PurchaseRequest) (*PurchaseOrder, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to generate order id")
	}

	order := &PurchaseOrder{
		ID:          id.String(),
		RequestID:   request.ID,
		Status:      OrderStatusAwaitingSupplier,
		Currency:    request.Currency,
		TotalAmount: request.EstimatedTotal,
	}

	query := `
		INSERT INTO purchase_orders
		    (id, request_id, status, currency, total_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING issued_at, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		order.ID,
		order.RequestID,
		order.Status,
		order.Currency,
		order.TotalAmount,
	).Scan(&order.IssuedAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create purchase order")
	}

	lineQuery := `
		INSERT INTO purchase_order_lines
		    (order_id, line_number, product_id, name, description,
		     quantity, unit_price, line_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	for _, reqLine := range request.Lines {
		line := &OrderLine{
			OrderID:     order.ID,
			LineNumber:  reqLine.LineNumber,
			ProductID:   reqLine.ProductID,
			Name:        reqLine.Name,
			Description: reqLine.Description,
			Quantity:    reqLine.Quantity,
			UnitPrice:   reqLine.UnitPrice,
			LineAmount:  reqLine.LineAmount,
		}
		err := r.db.QueryRow(ctx, lineQuery,
			line.OrderID,
			line.LineNumber,
			line.ProductID,
			line.Name,
			line.Description,
			line.Quantity,
			line.UnitPrice,
			line.LineAmount,
		).Scan(&line.ID, &line.CreatedAt, &line.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create order line")
		}
		order.Lines = append(order.Lines, line)
	}

	return order, nil
}

// GetByID retrieves an order with all its lines.
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	query := `
		SELECT id, request_id, supplier_id, status, currency, total_amount,
		       issued_at, responded_at, response_notes, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1
	`

	order, err := r.scanOrder(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("purchase_order", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase order")
	}

	lines, err := r.GetLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

// GetByRequestID returns the order created for a request, or NOT_FOUND
// when the request has not been converted yet.
func (r *PurchaseOrderRepository) GetByRequestID(ctx context.Context, requestID string) (*PurchaseOrder, error) {
	query := `
		SELECT id, request_id, supplier_id, status, currency, total_amount,
		       issued_at, responded_at, response_notes, created_at, updated_at
		FROM purchase_orders
		WHERE request_id = $1
	`

	order, err := r.scanOrder(r.db.QueryRow(ctx, query, requestID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("purchase_order for request", requestID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get purchase order")
	}

	lines, err := r.GetLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

// GetLines retrieves all lines for an order.
func (r *PurchaseOrderRepository) GetLines(ctx context.Context, orderID string) ([]*OrderLine, error) {
	query := `
		SELECT id, order_id, line_number, product_id, name, description,
		       quantity, unit_price, line_amount, created_at, updated_at
		FROM purchase_order_lines
		WHERE order_id = $1
		ORDER BY line_number
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order lines")
	}
	defer rows.Close()

	lines := make([]*OrderLine, 0)
	for rows.Next() {
		line := &OrderLine{}
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
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
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order line")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// List retrieves orders with optional status filtering and pagination.
func (r *PurchaseOrderRepository) List(ctx context.Context, status *OrderStatus, limit, offset int) ([]*PurchaseOrder, int64, error) {
	query := `
		SELECT id, request_id, supplier_id, status, currency, total_amount,
		       issued_at, responded_at, response_notes, created_at, updated_at
		FROM purchase_orders
		WHERE TRUE
	`
	countQuery := `SELECT COUNT(*) FROM purchase_orders WHERE TRUE`

	args := []interface{}{}
	argCount := 1

	if status != nil {
		clause := fmt.Sprintf(" AND status = $%d", argCount)
		query += clause
		countQuery += clause
		args = append(args, *status)
		argCount++
	}

	query += " ORDER BY issued_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count purchase orders")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list purchase orders")
	}
	defer rows.Close()

	orders := make([]*PurchaseOrder, 0)
	for rows.Next() {
		order := &PurchaseOrder{}
		err := rows.Scan(
			&order.ID,
			&order.RequestID,
			&order.SupplierID,
			&order.Status,
			&order.Currency,
			&order.TotalAmount,
			&order.IssuedAt,
			&order.RespondedAt,
			&order.ResponseNotes,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan purchase order")
		}
		orders = append(orders, order)
	}

	return orders, total, nil
}

// RecordResponse stores the supplier's accept/reject decision. Only
// orders still awaiting the supplier can be responded to.
func (r *PurchaseOrderRepository) RecordResponse(ctx context.Context, id string, status OrderStatus, supplierID string, notes *string) error {
	query := `
		UPDATE purchase_orders
		SET status         = $2,
		    supplier_id    = $3,
		    responded_at   = NOW(),
		    response_notes = $4,
		    updated_at     = NOW()
		WHERE id = $1
		  AND status = 'awaiting_supplier'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, supplierID, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "order not found or no longer awaiting supplier")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record supplier response")
	}
	return nil
}

type orderScanner interface {
	Scan(dest ...any) error
}

func (r *PurchaseOrderRepository) scanOrder(row orderScanner) (*PurchaseOrder, error) {
	order := &PurchaseOrder{}
	err := row.Scan(
		&order.ID,
		&order.RequestID,
		&order.SupplierID,
		&order.Status,
		&order.Currency,
		&order.TotalAmount,
		&order.IssuedAt,
		&order.RespondedAt,
		&order.ResponseNotes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}
