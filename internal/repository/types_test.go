package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name   string
		rule   ApprovalRule
		amount int64
		want   bool
	}{
		{"inside band", ApprovalRule{MinAmount: 500, MaxAmount: int64Ptr(5000)}, 1000, true},
		{"at lower bound", ApprovalRule{MinAmount: 500, MaxAmount: int64Ptr(5000)}, 500, true},
		{"at upper bound excluded", ApprovalRule{MinAmount: 500, MaxAmount: int64Ptr(5000)}, 5000, false},
		{"below band", ApprovalRule{MinAmount: 500, MaxAmount: int64Ptr(5000)}, 499, false},
		{"unbounded above", ApprovalRule{MinAmount: 500}, 1_000_000_00, true},
		{"zero amount against zero min", ApprovalRule{MinAmount: 0}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.rule.Matches(tt.amount))
		})
	}
}

func TestChainNavigation(t *testing.T) {
	chain := ApprovalChain{
		{ID: "r1", ApprovalLevel: 1},
		{ID: "r2", ApprovalLevel: 3},
	}

	require.Equal(t, "r1", chain.First().ID)
	require.Equal(t, "r2", chain.At(3).ID)
	require.Nil(t, chain.At(2))

	// levels need not be contiguous
	require.Equal(t, "r2", chain.Next(1).ID)
	require.Equal(t, "r2", chain.Next(2).ID)
	require.Nil(t, chain.Next(3))
}

func TestEmptyChain(t *testing.T) {
	var chain ApprovalChain
	require.Nil(t, chain.First())
	require.Nil(t, chain.At(1))
	require.Nil(t, chain.Next(0))
}

func TestRequestStatusTerminal(t *testing.T) {
	require.False(t, RequestStatusDraft.Terminal())
	require.False(t, RequestStatusPendingApproval.Terminal())
	require.True(t, RequestStatusRejected.Terminal())
	require.True(t, RequestStatusApproved.Terminal())
	require.True(t, RequestStatusAwaitingSupplier.Terminal())
	require.True(t, RequestStatusOrdered.Terminal())
	require.True(t, RequestStatusCancelled.Terminal())
}
