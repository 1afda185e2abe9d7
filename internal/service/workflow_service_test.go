package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procural/be-procurement/internal/errors"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/repository"
)

// fakeEnv is an in-memory implementation of every store the engine
// depends on. InTransaction snapshots the state and restores it when the
// callback fails, mirroring a database rollback.
type fakeEnv struct {
	requests map[string]*repository.PurchaseRequest
	rules    []*repository.ApprovalRule
	users    []*repository.User
	entries  []*repository.ApprovalLogEntry
	orders   []*repository.PurchaseOrder
	seq      int
}

func (e *fakeEnv) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := e.clone()
	if err := fn(ctx); err != nil {
		e.requests = snapshot.requests
		e.entries = snapshot.entries
		e.orders = snapshot.orders
		e.seq = snapshot.seq
		return err
	}
	return nil
}

func (e *fakeEnv) clone() *fakeEnv {
	c := &fakeEnv{
		requests: make(map[string]*repository.PurchaseRequest, len(e.requests)),
		entries:  append([]*repository.ApprovalLogEntry(nil), e.entries...),
		orders:   append([]*repository.PurchaseOrder(nil), e.orders...),
		seq:      e.seq,
	}
	for id, req := range e.requests {
		copied := *req
		c.requests[id] = &copied
	}
	return c
}

func (e *fakeEnv) GetForUpdate(ctx context.Context, id string) (*repository.PurchaseRequest, error) {
	return e.GetByID(ctx, id)
}

func (e *fakeEnv) GetByID(_ context.Context, id string) (*repository.PurchaseRequest, error) {
	req, ok := e.requests[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRequestNotFound, "purchase request not found")
	}
	return req, nil
}

func (e *fakeEnv) UpdateStatus(_ context.Context, id string, from, to repository.RequestStatus) error {
	req, ok := e.requests[id]
	if !ok || req.Status != from {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("purchase request is no longer in status '%s'", from))
	}
	req.Status = to
	return nil
}

func (e *fakeEnv) ResolveChain(_ context.Context, amount int64) (repository.ApprovalChain, error) {
	var chain repository.ApprovalChain
	for _, rule := range e.rules {
		if rule.IsActive && rule.Matches(amount) {
			chain = append(chain, rule)
		}
	}
	if len(chain) == 0 {
		return nil, errors.New(errors.ErrCodeNoApplicableRule, "no approval rule covers the amount")
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].ApprovalLevel < chain[j].ApprovalLevel })
	return chain, nil
}

func (e *fakeEnv) FindApprover(_ context.Context, requesterID string, role repository.Role) (*repository.User, error) {
	var requester *repository.User
	for _, u := range e.users {
		if u.ID == requesterID {
			requester = u
			break
		}
	}
	if requester == nil {
		return nil, errors.New(errors.ErrCodeRequesterMissing, "requester not found")
	}
	if requester.DepartmentID == nil {
		return nil, errors.New(errors.ErrCodeRequesterHasNoDepartment, "requester has no department")
	}

	var approver *repository.User
	for _, u := range e.users {
		if u.Role != role || !u.IsActive {
			continue
		}
		if u.DepartmentID == nil || *u.DepartmentID != *requester.DepartmentID {
			continue
		}
		if approver == nil || u.ID < approver.ID {
			approver = u
		}
	}
	if approver == nil {
		return nil, errors.New(errors.ErrCodeNoApproverForRole, "no approver found for role")
	}
	return approver, nil
}

func (e *fakeEnv) Append(_ context.Context, entry *repository.ApprovalLogEntry) error {
	e.seq++
	copied := *entry
	copied.ID = fmt.Sprintf("entry-%03d", e.seq)
	copied.ActionDate = time.Now()
	e.entries = append(e.entries, &copied)
	return nil
}

func (e *fakeEnv) LatestStep(_ context.Context, requestID string) (*repository.ApprovalLogEntry, error) {
	for i := len(e.entries) - 1; i >= 0; i-- {
		if e.entries[i].RequestID == requestID {
			return e.entries[i], nil
		}
	}
	return nil, nil
}

func (e *fakeEnv) History(_ context.Context, requestID string) ([]*repository.ApprovalLogEntry, error) {
	var history []*repository.ApprovalLogEntry
	for _, entry := range e.entries {
		if entry.RequestID == requestID {
			history = append(history, entry)
		}
	}
	return history, nil
}

func (e *fakeEnv) PendingForApprover(_ context.Context, approverID string) ([]*repository.ApprovalLogEntry, error) {
	var pending []*repository.ApprovalLogEntry
	for id, req := range e.requests {
		if req.Status != repository.RequestStatusPendingApproval {
			continue
		}
		last, _ := e.LatestStep(context.Background(), id)
		if last != nil && last.Action == repository.ActionForwarded && last.ApproverID == approverID {
			pending = append(pending, last)
		}
	}
	return pending, nil
}

func (e *fakeEnv) CreateFromRequest(_ context.Context, request *repository.PurchaseRequest) (*repository.PurchaseOrder, error) {
	for _, existing := range e.orders {
		if existing.RequestID == request.ID {
			return nil, errors.New(errors.ErrCodeConflict, "an order already exists for the request")
		}
	}
	e.seq++
	order := &repository.PurchaseOrder{
		ID:          fmt.Sprintf("order-%03d", e.seq),
		RequestID:   request.ID,
		Status:      repository.OrderStatusAwaitingSupplier,
		Currency:    request.Currency,
		TotalAmount: request.EstimatedTotal,
		IssuedAt:    time.Now(),
	}
	for _, line := range request.Lines {
		order.Lines = append(order.Lines, &repository.OrderLine{
			OrderID:    order.ID,
			LineNumber: line.LineNumber,
			ProductID:  line.ProductID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			LineAmount: line.LineAmount,
		})
	}
	e.orders = append(e.orders, order)
	return order, nil
}

func strPtr(s string) *string { return &s }

// newEnv builds a department with a buyer, a manager and a director, two
// rules (manager at level 1 from 500, director at level 2 from 1000) and
// a draft request for the given amount.
func newEnv(amount int64) *fakeEnv {
	dept := strPtr("dept-ops")
	return &fakeEnv{
		requests: map[string]*repository.PurchaseRequest{
			"req-1": {
				ID:             "req-1",
				RequesterID:    "user-buyer",
				Title:          "Workstation order",
				Status:         repository.RequestStatusDraft,
				Currency:       "USD",
				EstimatedTotal: amount,
				Lines: []*repository.RequestLine{
					{ID: "line-1", RequestID: "req-1", LineNumber: 1, Name: "Laptop", Quantity: 1, UnitPrice: amount - 100, LineAmount: amount - 100},
					{ID: "line-2", RequestID: "req-1", LineNumber: 2, Name: "Dock", Quantity: 2, UnitPrice: 50, LineAmount: 100},
				},
			},
		},
		rules: []*repository.ApprovalRule{
			{ID: "rule-1", RuleName: "manager-review", RequiredRole: repository.RoleManager, ApprovalLevel: 1, MinAmount: 500, IsActive: true},
			{ID: "rule-2", RuleName: "director-review", RequiredRole: repository.RoleDirector, ApprovalLevel: 2, MinAmount: 1000, IsActive: true},
		},
		users: []*repository.User{
			{ID: "user-buyer", Name: "Avery", Role: repository.RoleBuyer, DepartmentID: dept, IsActive: true},
			{ID: "user-director", Name: "Noor", Role: repository.RoleDirector, DepartmentID: dept, IsActive: true},
			{ID: "user-manager", Name: "Sam", Role: repository.RoleManager, DepartmentID: dept, IsActive: true},
		},
	}
}

func newService(env *fakeEnv) *WorkflowService {
	return NewWorkflowService(env, env, env, env, env, env, logger.Nop())
}

func TestSubmitForwardsToFirstLevel(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	result, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)
	require.Equal(t, "user-manager", result.ApproverID)
	require.Equal(t, 1, result.ApprovalLevel)

	require.Equal(t, repository.RequestStatusPendingApproval, env.requests["req-1"].Status)
	require.Len(t, env.entries, 1)
	require.Equal(t, repository.ActionForwarded, env.entries[0].Action)
	require.Equal(t, "user-manager", env.entries[0].ApproverID)
}

func TestSubmitNoApplicableRule(t *testing.T) {
	env := newEnv(100)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeNoApplicableRule, errors.Code(err))

	require.Equal(t, repository.RequestStatusDraft, env.requests["req-1"].Status)
	require.Empty(t, env.entries)
}

func TestSubmitNoApproverForRole(t *testing.T) {
	env := newEnv(1000)
	for _, u := range env.users {
		if u.Role == repository.RoleManager {
			u.IsActive = false
		}
	}
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.Equal(t, errors.ErrCodeNoApproverForRole, errors.Code(err))
	require.Equal(t, repository.RequestStatusDraft, env.requests["req-1"].Status)
	require.Empty(t, env.entries)
}

func TestSubmitRequesterWithoutDepartment(t *testing.T) {
	env := newEnv(1000)
	env.users[0].DepartmentID = nil
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.Equal(t, errors.ErrCodeRequesterHasNoDepartment, errors.Code(err))
	require.Equal(t, repository.RequestStatusDraft, env.requests["req-1"].Status)
}

func TestSubmitOnlyByRequester(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-manager")
	require.Equal(t, errors.ErrCodeUnauthorized, errors.Code(err))
	require.Equal(t, repository.RequestStatusDraft, env.requests["req-1"].Status)
}

func TestSubmitNonDraft(t *testing.T) {
	env := newEnv(1000)
	env.requests["req-1"].Status = repository.RequestStatusPendingApproval
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.Equal(t, errors.ErrCodeConflict, errors.Code(err))
}

func TestApproveForwardsToNextLevel(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)
	require.False(t, result.Complete)
	require.Equal(t, "user-director", result.NextApproverID)
	require.Equal(t, 2, result.NextLevel)

	require.Equal(t, repository.RequestStatusPendingApproval, env.requests["req-1"].Status)
	require.Len(t, env.entries, 3)
	require.Equal(t, repository.ActionApproved, env.entries[1].Action)
	require.Equal(t, repository.ActionForwarded, env.entries[2].Action)
	require.Equal(t, "user-director", env.entries[2].ApproverID)
	require.Empty(t, env.orders)
}

func TestApproveFinalLevelCreatesOrder(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), "req-1", "user-director", strPtr("budget confirmed"))
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.NotEmpty(t, result.OrderID)

	require.Equal(t, repository.RequestStatusAwaitingSupplier, env.requests["req-1"].Status)

	require.Len(t, env.orders, 1)
	order := env.orders[0]
	require.Equal(t, result.OrderID, order.ID)
	require.Equal(t, "req-1", order.RequestID)
	require.Equal(t, int64(1000), order.TotalAmount)
	require.Len(t, order.Lines, 2)
	require.Equal(t, "Laptop", order.Lines[0].Name)
	require.Equal(t, int64(100), order.Lines[1].LineAmount)

	// two forwarded and two approved entries, interleaved per level
	require.Len(t, env.entries, 4)
	actions := []repository.ApprovalAction{}
	for _, entry := range env.entries {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []repository.ApprovalAction{
		repository.ActionForwarded,
		repository.ActionApproved,
		repository.ActionForwarded,
		repository.ActionApproved,
	}, actions)
	require.Equal(t, "budget confirmed", *env.entries[3].Notes)
}

func TestApproveWrongCaller(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), "req-1", "user-director", nil)
	require.Equal(t, errors.ErrCodeNotAssignedToCaller, errors.Code(err))
	require.Len(t, env.entries, 1)
}

func TestApproveBeforeSubmit(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.Equal(t, errors.ErrCodeChainNotStarted, errors.Code(err))
}

func TestApproveAfterConclusion(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "req-1", "user-director", nil)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), "req-1", "user-director", nil)
	require.Equal(t, errors.ErrCodeConflict, errors.Code(err))
	require.Len(t, env.orders, 1)
}

func TestApproveCurrentRuleMissing(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	// deactivating the level-1 rule after assignment leaves the pending
	// level without configuration
	env.rules[0].IsActive = false

	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.Equal(t, errors.ErrCodeCurrentRuleMissing, errors.Code(err))
	require.Len(t, env.entries, 1)
}

func TestApproveRollsBackWhenNextApproverMissing(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	for _, u := range env.users {
		if u.Role == repository.RoleDirector {
			u.IsActive = false
		}
	}

	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.Equal(t, errors.ErrCodeNoApproverForRole, errors.Code(err))

	// the approved entry written before the lookup failed must be gone
	require.Len(t, env.entries, 1)
	require.Equal(t, repository.ActionForwarded, env.entries[0].Action)
	require.Equal(t, repository.RequestStatusPendingApproval, env.requests["req-1"].Status)
}

func TestSingleLevelChainCompletesImmediately(t *testing.T) {
	env := newEnv(600) // only the manager rule covers this amount
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Len(t, env.orders, 1)
	require.Equal(t, repository.RequestStatusAwaitingSupplier, env.requests["req-1"].Status)
}

func TestRejectTerminatesChain(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	err = svc.Reject(context.Background(), "req-1", "user-manager", strPtr("budget exceeded"))
	require.NoError(t, err)

	require.Equal(t, repository.RequestStatusRejected, env.requests["req-1"].Status)
	require.Len(t, env.entries, 2)
	require.Equal(t, repository.ActionRejected, env.entries[1].Action)
	require.Equal(t, "budget exceeded", *env.entries[1].Notes)
	require.Empty(t, env.orders)

	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.Equal(t, errors.ErrCodeConflict, errors.Code(err))
}

func TestRejectWithoutNotesRecordsPlaceholder(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	err = svc.Reject(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)
	require.Equal(t, rejectedWithoutComment, *env.entries[1].Notes)
}

func TestRejectWrongCaller(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	err = svc.Reject(context.Background(), "req-1", "user-director", nil)
	require.Equal(t, errors.ErrCodeNotAssignedToCaller, errors.Code(err))
	require.Equal(t, repository.RequestStatusPendingApproval, env.requests["req-1"].Status)
}

func TestHistoryChronological(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "req-1", "user-manager", nil)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), "req-1", "user-director", nil)
	require.NoError(t, err)

	history, err := svc.History(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		require.False(t, history[i].ActionDate.Before(history[i-1].ActionDate))
	}
}

func TestHistoryUnknownRequest(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.History(context.Background(), "req-missing")
	require.Equal(t, errors.ErrCodeRequestNotFound, errors.Code(err))
}

func TestPendingApprovals(t *testing.T) {
	env := newEnv(1000)
	svc := newService(env)

	_, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)

	pending, err := svc.PendingApprovals(context.Background(), "user-manager")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "req-1", pending[0].RequestID)

	pending, err = svc.PendingApprovals(context.Background(), "user-director")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestDeterministicApproverSelection(t *testing.T) {
	env := newEnv(1000)
	dept := strPtr("dept-ops")
	env.users = append(env.users,
		&repository.User{ID: "user-manager-b", Name: "Kit", Role: repository.RoleManager, DepartmentID: dept, IsActive: true},
	)
	svc := newService(env)

	// lowest user id wins regardless of directory ordering
	result, err := svc.Submit(context.Background(), "req-1", "user-buyer")
	require.NoError(t, err)
	require.Equal(t, "user-manager", result.ApproverID)
}
