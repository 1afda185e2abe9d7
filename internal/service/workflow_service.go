package service

import (
	"context"

	"github.com/procural/be-procurement/internal/errors"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/repository"
)

// TxRunner executes a function inside a database transaction. Every
// store call made with the context passed to fn joins that transaction.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RequestStore is the purchase request persistence used by the engine.
type RequestStore interface {
	GetForUpdate(ctx context.Context, id string) (*repository.PurchaseRequest, error)
	GetByID(ctx context.Context, id string) (*repository.PurchaseRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to repository.RequestStatus) error
}

// RuleCatalog resolves the approval chain applying to an amount.
type RuleCatalog interface {
	ResolveChain(ctx context.Context, amount int64) (repository.ApprovalChain, error)
}

// ApproverDirectory resolves the user who must approve at a given role,
// scoped to the requester's department.
type ApproverDirectory interface {
	FindApprover(ctx context.Context, requesterID string, role repository.Role) (*repository.User, error)
}

// ApprovalLedger is the append-only audit trail. The newest entry per
// request carries the current assignee and level.
type ApprovalLedger interface {
	Append(ctx context.Context, entry *repository.ApprovalLogEntry) error
	LatestStep(ctx context.Context, requestID string) (*repository.ApprovalLogEntry, error)
	History(ctx context.Context, requestID string) ([]*repository.ApprovalLogEntry, error)
	PendingForApprover(ctx context.Context, approverID string) ([]*repository.ApprovalLogEntry, error)
}

// OrderCreator converts a fully approved request into a purchase order.
type OrderCreator interface {
	CreateFromRequest(ctx context.Context, request *repository.PurchaseRequest) (*repository.PurchaseOrder, error)
}

// Notifier publishes workflow events. Implementations must be non-fatal;
// the engine never checks for errors here.
type Notifier interface {
	PublishRequestEvent(ctx context.Context, eventType, requestID, actorID string, recipients []string, payload map[string]interface{})
}

const rejectedWithoutComment = "rejected without comment"

// WorkflowService drives purchase requests through the approval chain.
// Every transition runs in a single transaction: the ledger entry, the
// request status change and (on completion) the purchase order commit or
// roll back together.
type WorkflowService struct {
	tx        TxRunner
	requests  RequestStore
	rules     RuleCatalog
	directory ApproverDirectory
	ledger    ApprovalLedger
	orders    OrderCreator
	notifier  Notifier
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	tx TxRunner,
	requests RequestStore,
	rules RuleCatalog,
	directory ApproverDirectory,
	ledger ApprovalLedger,
	orders OrderCreator,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		tx:        tx,
		requests:  requests,
		rules:     rules,
		directory: directory,
		ledger:    ledger,
		orders:    orders,
		log:       log,
	}
}

// SetNotifier wires the event publisher. The engine works without one.
func (s *WorkflowService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SubmitResult reports where a freshly submitted request landed.
type SubmitResult struct {
	ApproverID    string
	ApprovalLevel int
}

// ApproveResult reports the outcome of one approval.
type ApproveResult struct {
	Complete       bool
	NextApproverID string
	NextLevel      int
	OrderID        string
}

// Submit moves a draft request into the approval chain. The chain is
// resolved from the request total, the first-level approver is assigned
// and a forwarded entry starts the ledger. Fails without side effects
// when no rule covers the amount or no approver can be found.
func (s *WorkflowService) Submit(ctx context.Context, requestID, callerID string) (*SubmitResult, error) {
	result := &SubmitResult{}

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		request, err := s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if request.RequesterID != callerID {
			return errors.New(errors.ErrCodeUnauthorized, "only the requester can submit a request")
		}
		if request.Status != repository.RequestStatusDraft {
			return errors.New(errors.ErrCodeConflict, "request has already been submitted")
		}

		chain, err := s.rules.ResolveChain(ctx, request.EstimatedTotal)
		if err != nil {
			return err
		}
		first := chain.First()

		approver, err := s.directory.FindApprover(ctx, request.RequesterID, first.RequiredRole)
		if err != nil {
			return err
		}

		note := "submitted for approval"
		entry := &repository.ApprovalLogEntry{
			RequestID:     requestID,
			ApproverID:    approver.ID,
			Action:        repository.ActionForwarded,
			ApprovalLevel: first.ApprovalLevel,
			Notes:         &note,
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return err
		}

		if err := s.requests.UpdateStatus(ctx, requestID, repository.RequestStatusDraft, repository.RequestStatusPendingApproval); err != nil {
			return err
		}

		result.ApproverID = approver.ID
		result.ApprovalLevel = first.ApprovalLevel
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("approver_id", result.ApproverID).
		Int("approval_level", result.ApprovalLevel).
		Msg("Request submitted for approval")

	s.notify(ctx, "approval_required", requestID, callerID, []string{result.ApproverID}, map[string]interface{}{
		"approval_level": result.ApprovalLevel,
	})

	return result, nil
}

// Approve records the current assignee's approval. When a higher level
// exists the request is forwarded there; when the approved level was the
// last one the request completes and a purchase order is created in the
// same transaction.
func (s *WorkflowService) Approve(ctx context.Context, requestID, callerID string, notes *string) (*ApproveResult, error) {
	result := &ApproveResult{}
	var requesterID string

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		request, last, err := s.currentStep(ctx, requestID, callerID)
		if err != nil {
			return err
		}
		requesterID = request.RequesterID

		chain, err := s.rules.ResolveChain(ctx, request.EstimatedTotal)
		if err != nil {
			return err
		}
		if chain.At(last.ApprovalLevel) == nil {
			return errors.New(errors.ErrCodeCurrentRuleMissing, "the rule for the pending approval level no longer exists")
		}

		approved := &repository.ApprovalLogEntry{
			RequestID:     requestID,
			ApproverID:    callerID,
			Action:        repository.ActionApproved,
			ApprovalLevel: last.ApprovalLevel,
			Notes:         notes,
		}
		if err := s.ledger.Append(ctx, approved); err != nil {
			return err
		}

		next := chain.Next(last.ApprovalLevel)
		if next == nil {
			return s.complete(ctx, request, result)
		}

		approver, err := s.directory.FindApprover(ctx, request.RequesterID, next.RequiredRole)
		if err != nil {
			return err
		}
		forwarded := &repository.ApprovalLogEntry{
			RequestID:     requestID,
			ApproverID:    approver.ID,
			Action:        repository.ActionForwarded,
			ApprovalLevel: next.ApprovalLevel,
		}
		if err := s.ledger.Append(ctx, forwarded); err != nil {
			return err
		}

		result.NextApproverID = approver.ID
		result.NextLevel = next.ApprovalLevel
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Complete {
		s.log.Info().
			Str("request_id", requestID).
			Str("order_id", result.OrderID).
			Msg("Request fully approved, purchase order created")
		s.notify(ctx, "request_approved", requestID, callerID, []string{requesterID}, map[string]interface{}{
			"order_id": result.OrderID,
		})
	} else {
		s.log.Info().
			Str("request_id", requestID).
			Str("next_approver_id", result.NextApproverID).
			Int("next_level", result.NextLevel).
			Msg("Request approved, forwarded to next level")
		s.notify(ctx, "approval_required", requestID, callerID, []string{result.NextApproverID}, map[string]interface{}{
			"approval_level": result.NextLevel,
		})
	}

	return result, nil
}

// Reject terminates the chain at the current level. The request moves to
// rejected; no order is ever created. A blank reason is recorded with a
// placeholder note so the ledger always explains the outcome.
func (s *WorkflowService) Reject(ctx context.Context, requestID, callerID string, notes *string) error {
	var requesterID string

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		request, last, err := s.currentStep(ctx, requestID, callerID)
		if err != nil {
			return err
		}
		requesterID = request.RequesterID

		if notes == nil || *notes == "" {
			placeholder := rejectedWithoutComment
			notes = &placeholder
		}
		rejected := &repository.ApprovalLogEntry{
			RequestID:     requestID,
			ApproverID:    callerID,
			Action:        repository.ActionRejected,
			ApprovalLevel: last.ApprovalLevel,
			Notes:         notes,
		}
		if err := s.ledger.Append(ctx, rejected); err != nil {
			return err
		}

		return s.requests.UpdateStatus(ctx, requestID, repository.RequestStatusPendingApproval, repository.RequestStatusRejected)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("approver_id", callerID).
		Msg("Request rejected")

	s.notify(ctx, "request_rejected", requestID, callerID, []string{requesterID}, map[string]interface{}{
		"notes": *notes,
	})

	return nil
}

// History returns the full audit trail for a request in chronological
// order. The request must exist.
func (s *WorkflowService) History(ctx context.Context, requestID string) ([]*repository.ApprovalLogEntry, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, requestID)
}

// PendingApprovals lists the forwarded steps currently waiting on the
// given approver.
func (s *WorkflowService) PendingApprovals(ctx context.Context, approverID string) ([]*repository.ApprovalLogEntry, error) {
	return s.ledger.PendingForApprover(ctx, approverID)
}

// currentStep loads the request under lock and validates that callerID
// holds the pending assignment. Shared by Approve and Reject.
func (s *WorkflowService) currentStep(ctx context.Context, requestID, callerID string) (*repository.PurchaseRequest, *repository.ApprovalLogEntry, error) {
	request, err := s.requests.GetForUpdate(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	last, err := s.ledger.LatestStep(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if last == nil {
		return nil, nil, errors.New(errors.ErrCodeChainNotStarted, "request has not been submitted for approval")
	}
	if request.Status != repository.RequestStatusPendingApproval {
		return nil, nil, errors.New(errors.ErrCodeConflict, "approval chain has already concluded")
	}
	if last.Action != repository.ActionForwarded {
		return nil, nil, errors.New(errors.ErrCodeConflict, "no approval step is pending")
	}
	if last.ApproverID != callerID {
		return nil, nil, errors.New(errors.ErrCodeNotAssignedToCaller, "the pending approval step is assigned to another user")
	}

	return request, last, nil
}

// complete finishes the chain: the request becomes approved, the order
// is created from it and the request moves on to awaiting the supplier.
func (s *WorkflowService) complete(ctx context.Context, request *repository.PurchaseRequest, result *ApproveResult) error {
	if err := s.requests.UpdateStatus(ctx, request.ID, repository.RequestStatusPendingApproval, repository.RequestStatusApproved); err != nil {
		return err
	}

	order, err := s.orders.CreateFromRequest(ctx, request)
	if err != nil {
		return err
	}

	if err := s.requests.UpdateStatus(ctx, request.ID, repository.RequestStatusApproved, repository.RequestStatusAwaitingSupplier); err != nil {
		return err
	}

	result.Complete = true
	result.OrderID = order.ID
	return nil
}

func (s *WorkflowService) notify(ctx context.Context, eventType, requestID, actorID string, recipients []string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishRequestEvent(ctx, eventType, requestID, actorID, recipients, payload)
}
