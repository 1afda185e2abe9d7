package service

import (
	"context"

	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/repository"
)

// RuleService handles approval rule administration. Rule changes apply to
// chains resolved after the change; in-flight requests re-resolve their
// chain on every transition.
type RuleService struct {
	rulesRepo *repository.ApprovalRulesRepository
	log       *logger.Logger
}

// NewRuleService creates a new rule service
func NewRuleService(
	rulesRepo *repository.ApprovalRulesRepository,
	log *logger.Logger,
) *RuleService {
	return &RuleService{
		rulesRepo: rulesRepo,
		log:       log,
	}
}

// CreateRule creates a new approval rule
func (s *RuleService) CreateRule(ctx context.Context, rule *repository.ApprovalRule) (*repository.ApprovalRule, error) {
	if err := s.rulesRepo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("rule_name", rule.RuleName).
		Int("approval_level", rule.ApprovalLevel).
		Msg("Approval rule created")

	return rule, nil
}

// GetRule retrieves an approval rule by ID
func (s *RuleService) GetRule(ctx context.Context, id string) (*repository.ApprovalRule, error) {
	return s.rulesRepo.GetByID(ctx, id)
}

// ListRules lists approval rules
func (s *RuleService) ListRules(ctx context.Context, activeOnly bool) ([]*repository.ApprovalRule, error) {
	return s.rulesRepo.List(ctx, activeOnly)
}

// UpdateRule updates an existing approval rule
func (s *RuleService) UpdateRule(ctx context.Context, rule *repository.ApprovalRule) (*repository.ApprovalRule, error) {
	if err := s.rulesRepo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Msg("Approval rule updated")

	return rule, nil
}

// DeleteRule removes an approval rule
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rulesRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Str("rule_id", id).
		Msg("Approval rule deleted")

	return nil
}
