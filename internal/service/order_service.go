package service

import (
	"context"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/repository"
)

// OrderService handles the supplier side of purchase orders: reading
// issued orders and recording the supplier's accept or reject decision.
type OrderService struct {
	db          *database.DB
	orderRepo   *repository.PurchaseOrderRepository
	requestRepo *repository.RequestRepository
	notifier    Notifier
	log         *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db *database.DB,
	orderRepo *repository.PurchaseOrderRepository,
	requestRepo *repository.RequestRepository,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		db:          db,
		orderRepo:   orderRepo,
		requestRepo: requestRepo,
		log:         log,
	}
}

// SetNotifier wires the event publisher. The service works without one.
func (s *OrderService) SetNotifier(n Notifier) {
	s.notifier = n
}

// GetOrder retrieves an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// GetOrderForRequest retrieves the order created for a request
func (s *OrderService) GetOrderForRequest(ctx context.Context, requestID string) (*repository.PurchaseOrder, error) {
	return s.orderRepo.GetByRequestID(ctx, requestID)
}

// ListOrders lists orders with filtering and pagination
func (s *OrderService) ListOrders(ctx context.Context, status *repository.OrderStatus, page, pageSize int) ([]*repository.PurchaseOrder, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.orderRepo.List(ctx, status, pageSize, offset)
}

// AcceptOrder records the supplier's acceptance. The order and the
// originating request move forward together.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID, supplierID string, notes *string) (*repository.PurchaseOrder, error) {
	var order *repository.PurchaseOrder

	err := s.db.InTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		if err := s.orderRepo.RecordResponse(ctx, orderID, repository.OrderStatusAccepted, supplierID, notes); err != nil {
			return err
		}
		if err := s.requestRepo.UpdateStatus(ctx, existing.RequestID, repository.RequestStatusAwaitingSupplier, repository.RequestStatusOrdered); err != nil {
			return err
		}

		order, err = s.orderRepo.GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("supplier_id", supplierID).
		Msg("Purchase order accepted by supplier")

	s.notifyRequester(ctx, "order_accepted", order.RequestID, supplierID, orderID)

	return order, nil
}

// RejectOrder records the supplier's rejection. The request stays
// awaiting a supplier so the order can be re-issued elsewhere.
func (s *OrderService) RejectOrder(ctx context.Context, orderID, supplierID string, notes *string) (*repository.PurchaseOrder, error) {
	if err := s.orderRepo.RecordResponse(ctx, orderID, repository.OrderStatusRejected, supplierID, notes); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("supplier_id", supplierID).
		Msg("Purchase order rejected by supplier")

	s.notifyRequester(ctx, "order_rejected", order.RequestID, supplierID, orderID)

	return order, nil
}

// notifyRequester tells the requester about a supplier decision.
func (s *OrderService) notifyRequester(ctx context.Context, eventType, requestID, supplierID, orderID string) {
	if s.notifier == nil {
		return
	}
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return
	}
	s.notifier.PublishRequestEvent(ctx, eventType, requestID, supplierID, []string{request.RequesterID}, map[string]interface{}{
		"order_id": orderID,
	})
}
