// Package budget tracks LLM spend and enforces per-run and daily ceilings.
//
// The Governor is an injected instance, not a process-wide singleton: the
// control loop constructs one and passes it through to every component that
// issues model calls. The durable daily total lives behind the Ledger
// interface; session totals are in-process only.
package budget

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// Pricing holds the per-1M-token rates for one model, in USD.
type Pricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Summary aggregates the spend of the current process session.
type Summary struct {
	TotalRequests     int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
	CostByModel       map[string]float64
	SessionStart      time.Time
}

// Options configures a Governor.
type Options struct {
	// Pricing maps model names to rates. Unknown models fall back to
	// FallbackModel's rates.
	Pricing map[string]Pricing

	// FallbackModel names the pricing entry used for unrecognized models.
	FallbackModel string

	// DailyBudget is the calendar-day ceiling in USD.
	DailyBudget float64

	// MaxCostPerRun is the single-request estimate ceiling in USD.
	MaxCostPerRun float64

	// Ledger is the durable daily-total store. Required.
	Ledger Ledger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Governor tracks cumulative spend and answers budget questions. Safe for
// concurrent use by independent task workers.
type Governor struct {
	mu            sync.Mutex
	pricing       map[string]Pricing
	fallbackModel string
	dailyBudget   float64
	maxCostPerRun float64
	ledger        Ledger
	now           func() time.Time
	summary       Summary
}

// NewGovernor creates a Governor from the given options.
func NewGovernor(opts Options) *Governor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Governor{
		pricing:       opts.Pricing,
		fallbackModel: opts.FallbackModel,
		dailyBudget:   opts.DailyBudget,
		maxCostPerRun: opts.MaxCostPerRun,
		ledger:        opts.Ledger,
		now:           now,
		summary: Summary{
			CostByModel:  make(map[string]float64),
			SessionStart: now(),
		},
	}
}

// today returns the current calendar date key.
func (g *Governor) today() string {
	return g.now().Format("2006-01-02")
}

// CostOf computes the cost of a request against the pricing table. Unknown
// models use the fallback model's pricing rather than failing.
func (g *Governor) CostOf(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := g.pricing[model]
	if !ok {
		pricing = g.pricing[g.fallbackModel]
	}

	inputCost := float64(inputTokens) / 1_000_000 * pricing.Input
	outputCost := float64(outputTokens) / 1_000_000 * pricing.Output
	return inputCost + outputCost
}

// Check reports whether a request with the given estimated cost fits the
// budget. The reason distinguishes the daily ceiling from the per-run
// ceiling so callers can surface which limit was hit.
func (g *Governor) Check(estimatedCost float64) (bool, string) {
	if estimatedCost > g.maxCostPerRun {
		return false, fmt.Sprintf("estimated cost $%.4f exceeds max per run $%.2f", estimatedCost, g.maxCostPerRun)
	}

	dailyTotal, err := g.ledger.Total(g.today())
	if err != nil {
		// A broken ledger is a configuration problem; refuse spend rather
		// than risk blowing the ceiling.
		return false, fmt.Sprintf("budget ledger unavailable: %v", err)
	}

	if dailyTotal+estimatedCost > g.dailyBudget {
		return false, fmt.Sprintf("would exceed daily budget: $%.4f / $%.2f", dailyTotal+estimatedCost, g.dailyBudget)
	}

	return true, "within budget"
}

// Record posts the actual token usage of a completed request and returns its
// cost. The daily total is updated durably; the session summary in-process.
func (g *Governor) Record(model string, inputTokens, outputTokens int) (float64, error) {
	cost := g.CostOf(model, inputTokens, outputTokens)

	if _, err := g.ledger.Add(g.today(), cost); err != nil {
		return cost, err
	}

	g.mu.Lock()
	g.summary.TotalRequests++
	g.summary.TotalInputTokens += inputTokens
	g.summary.TotalOutputTokens += outputTokens
	g.summary.TotalCost += cost
	g.summary.CostByModel[model] += cost
	g.mu.Unlock()

	return cost, nil
}

// EstimateTokens counts the tokens text would consume for model, using
// tiktoken when an encoding is available and a characters/4 heuristic
// otherwise.
func (g *Governor) EstimateTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateCost estimates the cost of a call before it is made: the prompt at
// input rates plus the response cap at output rates.
func (g *Governor) EstimateCost(model, prompt string, maxOutputTokens int) float64 {
	return g.CostOf(model, g.EstimateTokens(model, prompt), maxOutputTokens)
}

// DailyTotal returns today's accumulated spend.
func (g *Governor) DailyTotal() (float64, error) {
	return g.ledger.Total(g.today())
}

// SessionSummary returns a copy of the session spend summary.
func (g *Governor) SessionSummary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.summary
	s.CostByModel = make(map[string]float64, len(g.summary.CostByModel))
	for k, v := range g.summary.CostByModel {
		s.CostByModel[k] = v
	}
	return s
}

// FormatReport renders a human-readable cost report for CLI output.
func (g *Governor) FormatReport() string {
	s := g.SessionSummary()
	daily, _ := g.DailyTotal()

	var b strings.Builder
	fmt.Fprintf(&b, "API cost summary\n")
	fmt.Fprintf(&b, "  Requests:     %d\n", s.TotalRequests)
	fmt.Fprintf(&b, "  Tokens:       %d in / %d out\n", s.TotalInputTokens, s.TotalOutputTokens)
	fmt.Fprintf(&b, "  This session: $%.4f\n", s.TotalCost)
	fmt.Fprintf(&b, "  Today:        $%.4f of $%.2f\n", daily, g.dailyBudget)
	if len(s.CostByModel) > 0 {
		fmt.Fprintf(&b, "  By model:\n")
		for model, cost := range s.CostByModel {
			fmt.Fprintf(&b, "    %s: $%.4f\n", model, cost)
		}
	}
	return b.String()
}
