package errors

// Generic error codes shared across the service.
const (
	ErrCodeInternal     = "INTERNAL"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
)

// Approval workflow error codes. Each maps to one failure mode of the
// Submit / Approve / Reject transitions; none of them is retried.
const (
	ErrCodeRequestNotFound          = "REQUEST_NOT_FOUND"
	ErrCodeRequesterMissing         = "REQUESTER_MISSING"
	ErrCodeNoApplicableRule         = "NO_APPLICABLE_RULE"
	ErrCodeRuleConfigInvalid        = "RULE_CONFIG_INVALID"
	ErrCodeRequesterHasNoDepartment = "REQUESTER_HAS_NO_DEPARTMENT"
	ErrCodeNoApproverForRole        = "NO_APPROVER_FOR_ROLE"
	ErrCodeChainNotStarted          = "CHAIN_NOT_STARTED"
	ErrCodeNotAssignedToCaller      = "NOT_ASSIGNED_TO_CALLER"
	ErrCodeCurrentRuleMissing       = "CURRENT_RULE_MISSING"
)
