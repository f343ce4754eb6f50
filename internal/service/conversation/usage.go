package conversation

import (
	"sync"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/util"
)

// Pricing is USD per million tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	Currency         string
}

func DefaultPricing() Pricing {
	return Pricing{
		InputPerMillion:  constants.Pricing.InputPerMillion,
		OutputPerMillion: constants.Pricing.OutputPerMillion,
		Currency:         constants.Pricing.Currency,
	}
}

func (p Pricing) Estimate(u domain.TokenUsage) domain.CostEstimate {
	in := float64(u.InputTokens) / 1_000_000 * p.InputPerMillion
	out := float64(u.OutputTokens) / 1_000_000 * p.OutputPerMillion
	currency := p.Currency
	if currency == "" {
		currency = constants.Pricing.Currency
	}
	return domain.CostEstimate{
		InputCost:  util.RoundTo(in, 6),
		OutputCost: util.RoundTo(out, 6),
		TotalCost:  util.RoundTo(in+out, 6),
		Currency:   currency,
	}
}

// UsageTracker accumulates token usage per phase. Safe for concurrent use.
type UsageTracker struct {
	mu      sync.Mutex
	byPhase map[string]domain.TokenUsage
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{byPhase: make(map[string]domain.TokenUsage)}
}

func (t *UsageTracker) Add(phase string, u domain.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPhase[phase] = t.byPhase[phase].Add(u)
}

// Record adds a call's usage; nil metadata is ignored.
func (t *UsageTracker) Record(phase Phase, meta *ai.GenerateMetadata) {
	if meta == nil {
		return
	}
	t.Add(string(phase), meta.Usage)
}

func (t *UsageTracker) Summary(p Pricing) domain.UsageSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := domain.UsageSummary{ByPhase: make(map[string]domain.TokenUsage, len(t.byPhase))}
	for phase, u := range t.byPhase {
		s.ByPhase[phase] = u
		s.Total = s.Total.Add(u)
	}
	s.Cost = p.Estimate(s.Total)
	return s
}
