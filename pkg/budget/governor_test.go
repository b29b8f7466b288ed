package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGovernor(ledger Ledger) *Governor {
	return NewGovernor(Options{
		Pricing: map[string]Pricing{
			"test-model":     {Input: 1.00, Output: 2.00},
			"fallback-model": {Input: 0.50, Output: 1.00},
		},
		FallbackModel: "fallback-model",
		DailyBudget:   5.00,
		MaxCostPerRun: 0.50,
		Ledger:        ledger,
	})
}

func TestGovernor_CostOf(t *testing.T) {
	g := newTestGovernor(NewMemoryLedger())

	t.Run("known model", func(t *testing.T) {
		// 1M input at $1.00 plus 1M output at $2.00
		cost := g.CostOf("test-model", 1_000_000, 1_000_000)
		assert.InDelta(t, 3.00, cost, 1e-9)
	})

	t.Run("unknown model uses fallback pricing", func(t *testing.T) {
		cost := g.CostOf("never-heard-of-it", 1_000_000, 0)
		assert.InDelta(t, 0.50, cost, 1e-9)
	})

	t.Run("zero tokens cost nothing", func(t *testing.T) {
		assert.Zero(t, g.CostOf("test-model", 0, 0))
	})
}

func TestGovernor_Check(t *testing.T) {
	tests := []struct {
		name      string
		dailySoFar float64
		estimated float64
		wantOK    bool
		wantWord  string
	}{
		{
			name:      "within both ceilings",
			estimated: 0.10,
			wantOK:    true,
		},
		{
			name:      "exceeds per-run ceiling",
			estimated: 0.60,
			wantOK:    false,
			wantWord:  "max per run",
		},
		{
			name:       "would exceed daily budget",
			dailySoFar: 4.90,
			estimated:  0.20,
			wantOK:     false,
			wantWord:   "daily budget",
		},
		{
			name:       "exactly at daily budget is allowed",
			dailySoFar: 4.90,
			estimated:  0.10,
			wantOK:     true,
		},
		{
			name:       "exactly at per-run ceiling is allowed",
			estimated:  0.50,
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := NewMemoryLedger()
			g := newTestGovernor(ledger)
			if tt.dailySoFar > 0 {
				_, err := ledger.Add(time.Now().Format("2006-01-02"), tt.dailySoFar)
				require.NoError(t, err)
			}

			ok, reason := g.Check(tt.estimated)
			assert.Equal(t, tt.wantOK, ok, reason)
			if tt.wantWord != "" {
				assert.Contains(t, reason, tt.wantWord)
			}
		})
	}
}

func TestGovernor_Record(t *testing.T) {
	ledger := NewMemoryLedger()
	g := newTestGovernor(ledger)

	cost1, err := g.Record("test-model", 100_000, 50_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, cost1, 1e-9)

	cost2, err := g.Record("test-model", 100_000, 50_000)
	require.NoError(t, err)

	daily, err := g.DailyTotal()
	require.NoError(t, err)
	assert.InDelta(t, cost1+cost2, daily, 1e-9)

	s := g.SessionSummary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 200_000, s.TotalInputTokens)
	assert.Equal(t, 100_000, s.TotalOutputTokens)
	assert.InDelta(t, cost1+cost2, s.TotalCost, 1e-9)
	assert.InDelta(t, cost1+cost2, s.CostByModel["test-model"], 1e-9)
}

func TestGovernor_RecordFeedsCheck(t *testing.T) {
	ledger := NewMemoryLedger()
	g := newTestGovernor(ledger)

	// Spend $4.90 of the $5.00 daily budget.
	_, err := ledger.Add(time.Now().Format("2006-01-02"), 4.90)
	require.NoError(t, err)

	ok, _ := g.Check(0.05)
	assert.True(t, ok)

	ok, reason := g.Check(0.20)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily budget")
}

func TestGovernor_EstimateTokens(t *testing.T) {
	g := newTestGovernor(NewMemoryLedger())

	text := "navigate to the login page and fill in the form"
	tokens := g.EstimateTokens("test-model", text)
	// Either the real encoder or the characters/4 heuristic; both are
	// positive for non-empty text.
	assert.Greater(t, tokens, 0)
	assert.Zero(t, g.EstimateTokens("test-model", ""))
}

func TestGovernor_EstimateCost(t *testing.T) {
	g := newTestGovernor(NewMemoryLedger())

	cost := g.EstimateCost("test-model", "a prompt of some length", 2000)
	// The output cap alone contributes 2000 tokens at $2/1M.
	assert.GreaterOrEqual(t, cost, 2000.0/1_000_000*2.00)
}

func TestGovernor_FormatReport(t *testing.T) {
	g := newTestGovernor(NewMemoryLedger())
	_, err := g.Record("test-model", 1000, 500)
	require.NoError(t, err)

	report := g.FormatReport()
	assert.Contains(t, report, "Requests:")
	assert.Contains(t, report, "test-model")
	assert.Contains(t, report, "$5.00")
}
