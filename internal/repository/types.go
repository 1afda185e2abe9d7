package repository

import "time"

// ── Organizational reference data ────────────────────────────────────────────

// Role is the closed set of approval authorities. Rules reference roles by
// these values; no raw role-id strings are dispatched on anywhere.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleManager  Role = "manager"
	RoleDirector Role = "director"
	RoleCFO      Role = "cfo"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleManager, RoleDirector, RoleCFO:
		return true
	}
	return false
}

// Department is an organizational unit; approvers are resolved within the
// requester's department.
type Department struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a system account. Approver eligibility is derived live from
// role + department + active flag, never snapshotted onto a request.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	DepartmentID *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ── Approval rules ───────────────────────────────────────────────────────────

// ApprovalRule maps an amount band to a required role at a given level.
// Bands are [MinAmount, MaxAmount) in cents; a nil MaxAmount is unbounded.
type ApprovalRule struct {
	ID            string
	RuleName      string
	RequiredRole  Role
	ApprovalLevel int
	MinAmount     int64
	MaxAmount     *int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Matches reports whether amount falls inside the rule's band.
func (r *ApprovalRule) Matches(amount int64) bool {
	if amount < r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && amount >= *r.MaxAmount {
		return false
	}
	return true
}

// ApprovalChain is the ordered list of rules applying to one amount,
// ascending by approval level.
type ApprovalChain []*ApprovalRule

// First returns the rule at the lowest level, or nil for an empty chain.
func (c ApprovalChain) First() *ApprovalRule {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// At returns the rule at exactly level, or nil.
func (c ApprovalChain) At(level int) *ApprovalRule {
	for _, rule := range c {
		if rule.ApprovalLevel == level {
			return rule
		}
	}
	return nil
}

// Next returns the first rule with a level strictly greater than
// currentLevel, or nil when currentLevel is the chain's maximum.
func (c ApprovalChain) Next(currentLevel int) *ApprovalRule {
	for _, rule := range c {
		if rule.ApprovalLevel > currentLevel {
			return rule
		}
	}
	return nil
}

// ── Purchase requests ────────────────────────────────────────────────────────

// RequestStatus is the lifecycle state of a purchase request. Transitions
// are performed exclusively by the workflow engine once submitted.
type RequestStatus string

const (
	RequestStatusDraft            RequestStatus = "draft"
	RequestStatusPendingApproval  RequestStatus = "pending_approval"
	RequestStatusApproved         RequestStatus = "approved"
	RequestStatusRejected         RequestStatus = "rejected"
	RequestStatusAwaitingSupplier RequestStatus = "awaiting_supplier"
	RequestStatusOrdered          RequestStatus = "ordered"
	RequestStatusCancelled        RequestStatus = "cancelled"
)

// Terminal reports whether no further workflow transition may leave s.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusApproved,
		RequestStatusAwaitingSupplier, RequestStatusOrdered,
		RequestStatusCancelled:
		return true
	}
	return false
}

// PurchaseRequest is a buyer-initiated spend request. The requester's
// department is resolved through the requester at transition time, so
// organizational changes are reflected live.
type PurchaseRequest struct {
	ID             string
	RequesterID    string
	Title          string
	Justification  *string
	Status         RequestStatus
	Currency       string
	EstimatedTotal int64 // cents, sum of line amounts
	SubmittedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []*RequestLine
}

// RequestLine is one line item on a purchase request.
type RequestLine struct {
	ID          string
	RequestID   string
	LineNumber  int
	ProductID   *string
	Name        string
	Description *string
	Quantity    float64
	UnitPrice   int64
	LineAmount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ── Approval ledger ──────────────────────────────────────────────────────────

// ApprovalAction is one of the three audit actions recorded per step.
type ApprovalAction string

const (
	ActionForwarded ApprovalAction = "forwarded"
	ActionApproved  ApprovalAction = "approved"
	ActionRejected  ApprovalAction = "rejected"
)

// ApprovalLogEntry is one immutable row in the approval ledger. The most
// recent entry per request determines the current assignee and level.
type ApprovalLogEntry struct {
	ID            string
	RequestID     string
	ApproverID    string
	Action        ApprovalAction
	ApprovalLevel int
	ActionDate    time.Time
	Notes         *string
}

// ── Purchase orders ──────────────────────────────────────────────────────────

// OrderStatus is the supplier-facing state of a purchase order.
type OrderStatus string

const (
	OrderStatusAwaitingSupplier OrderStatus = "awaiting_supplier"
	OrderStatusAccepted         OrderStatus = "accepted"
	OrderStatusRejected         OrderStatus = "rejected"
)

// PurchaseOrder is created exactly once per request, when the last
// approval level clears.
type PurchaseOrder struct {
	ID            string
	RequestID     string
	SupplierID    *string
	Status        OrderStatus
	Currency      string
	TotalAmount   int64
	IssuedAt      time.Time
	RespondedAt   *time.Time
	ResponseNotes *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []*OrderLine
}

// OrderLine mirrors a request line 1:1 on the resulting order.
type OrderLine struct {
	ID          string
	OrderID     string
	LineNumber  int
	ProductID   *string
	Name        string
	Description *string
	Quantity    float64
	UnitPrice   int64
	LineAmount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
