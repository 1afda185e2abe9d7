package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/procural/be-procurement/internal/database"
	"github.com/procural/be-procurement/internal/errors"
)

// ApprovalRulesRepository handles CRUD and chain resolution for
// approval_rules. Rules are immutable reference data from the workflow
// engine's point of view; Create/Update/Delete are administrative.
type ApprovalRulesRepository struct {
	db *database.DB
}

// NewApprovalRulesRepository creates a new ApprovalRulesRepository.
func NewApprovalRulesRepository(db *database.DB) *ApprovalRulesRepository {
	return &ApprovalRulesRepository{db: db}
}

// ResolveChain returns the ordered approval chain for an amount: every
// active rule whose [min, max) band contains the amount, ascending by
// approval level. An empty result is a hard stop; the caller must never
// fall back to auto-approval.
func (r *ApprovalRulesRepository) ResolveChain(ctx context.Context, amount int64) (ApprovalChain, error) {
	query := `
		SELECT id, rule_name, required_role, approval_level,
		       min_amount, max_amount, is_active,
		       created_at, updated_at
		FROM approval_rules
		WHERE is_active = TRUE
		  AND min_amount <= $1
		  AND (max_amount IS NULL OR $1 < max_amount)
		ORDER BY approval_level ASC
	`

	rows, err := r.db.Query(ctx, query, amount)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve approval chain")
	}
	defer rows.Close()

	rules, err := r.scanRules(rows)
	if err != nil {
		return nil, err
	}
	chain := ApprovalChain(rules)

	if len(chain) == 0 {
		return nil, errors.New(errors.ErrCodeNoApplicableRule,
			"no approval rule covers this amount").
			WithParams(map[string]interface{}{"amount": amount})
	}
	if err := validateChain(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// validateChain rejects chains with duplicate approval levels. Two rules
// at the same level inside one band is a configuration error, not a tie
// to be broken silently.
func validateChain(chain ApprovalChain) error {
	sorted := sort.SliceIsSorted(chain, func(i, j int) bool {
		return chain[i].ApprovalLevel < chain[j].ApprovalLevel
	})
	if !sorted {
		return errors.New(errors.ErrCodeRuleConfigInvalid, "approval chain is not ordered by level")
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].ApprovalLevel == chain[i-1].ApprovalLevel {
			return errors.New(errors.ErrCodeRuleConfigInvalid,
				fmt.Sprintf("duplicate approval level %d in chain (rules %s, %s)",
					chain[i].ApprovalLevel, chain[i-1].ID, chain[i].ID))
		}
	}
	return nil
}

// Create inserts a new approval rule.
func (r *ApprovalRulesRepository) Create(ctx context.Context, rule *ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		INSERT INTO approval_rules
		    (rule_name, required_role, approval_level,
		     min_amount, max_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		rule.RuleName,
		rule.RequiredRole,
		rule.ApprovalLevel,
		rule.MinAmount,
		rule.MaxAmount,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

// GetByID retrieves a rule by primary key.
func (r *ApprovalRulesRepository) GetByID(ctx context.Context, id string) (*ApprovalRule, error) {
	query := `
		SELECT id, rule_name, required_role, approval_level,
		       min_amount, max_amount, is_active,
		       created_at, updated_at
		FROM approval_rules
		WHERE id = $1
	`

	rule, err := r.scanRule(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_rule", id)
	}
	return rule, err
}

// List returns all rules, optionally filtered to active only, ordered by
// band then level so the configuration reads as chains.
func (r *ApprovalRulesRepository) List(ctx context.Context, activeOnly bool) ([]*ApprovalRule, error) {
	query := `
		SELECT id, rule_name, required_role, approval_level,
		       min_amount, max_amount, is_active,
		       created_at, updated_at
		FROM approval_rules
	`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY min_amount ASC, approval_level ASC"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval rules")
	}
	defer rows.Close()

	return r.scanRules(rows)
}

// Update persists changes to an existing rule.
func (r *ApprovalRulesRepository) Update(ctx context.Context, rule *ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		UPDATE approval_rules
		SET rule_name      = $2,
		    required_role  = $3,
		    approval_level = $4,
		    min_amount     = $5,
		    max_amount     = $6,
		    is_active      = $7,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.RuleName,
		rule.RequiredRole,
		rule.ApprovalLevel,
		rule.MinAmount,
		rule.MaxAmount,
		rule.IsActive,
	).Scan(&rule.UpdatedAt)

	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_rule", rule.ID)
	}
	return err
}

// Delete removes an approval rule.
func (r *ApprovalRulesRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM approval_rules
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_rule", id)
	}
	return nil
}

// validateRule checks a rule definition before it is persisted.
func validateRule(rule *ApprovalRule) error {
	if rule.RuleName == "" {
		return errors.InvalidInput("rule_name", "rule name is required")
	}
	if !rule.RequiredRole.Valid() {
		return errors.InvalidInput("required_role", "unknown role")
	}
	if rule.ApprovalLevel < 1 {
		return errors.InvalidInput("approval_level", "approval level must be a positive integer")
	}
	if rule.MinAmount < 0 {
		return errors.InvalidInput("min_amount", "minimum amount cannot be negative")
	}
	if rule.MaxAmount != nil && *rule.MaxAmount <= rule.MinAmount {
		return errors.InvalidInput("max_amount", "maximum amount must be greater than minimum amount")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type ruleScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRulesRepository) scanRule(row ruleScanner) (*ApprovalRule, error) {
	rule := &ApprovalRule{}
	err := row.Scan(
		&rule.ID,
		&rule.RuleName,
		&rule.RequiredRole,
		&rule.ApprovalLevel,
		&rule.MinAmount,
		&rule.MaxAmount,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *ApprovalRulesRepository) scanRules(rows pgx.Rows) ([]*ApprovalRule, error) {
	var rules []*ApprovalRule
	for rows.Next() {
		rule := &ApprovalRule{}
		err := rows.Scan(
			&rule.ID,
			&rule.RuleName,
			&rule.RequiredRole,
			&rule.ApprovalLevel,
			&rule.MinAmount,
			&rule.MaxAmount,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval rule")
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
