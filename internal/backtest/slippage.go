package backtest

import "fmt"

// SlippageModel names one of the three execution-cost policies.
type SlippageModel string

const (
	SlippageConservative SlippageModel = "conservative"
	SlippageRealistic    SlippageModel = "realistic"
	SlippageOptimistic   SlippageModel = "optimistic"
)

// SlippageParams are the coefficients of the linear slippage estimate. The
// numbers are configuration, not calibration: none of the defaults has an
// empirical basis beyond being safely pessimistic in the conservative case.
type SlippageParams struct {
	Base         float64 // flat fraction of notional
	SizeImpact   float64 // fraction per 1000 contracts
	ProfitImpact float64 // fraction per 1% of expected edge
}

// Default coefficient sets. Conservative dominates realistic dominates
// optimistic in every coefficient, which is what guarantees the model
// ordering for all inputs rather than only for typical ones.
var defaultSlippage = map[SlippageModel]SlippageParams{
	SlippageConservative: {Base: 0.005, SizeImpact: 0.004, ProfitImpact: 0.003},
	SlippageRealistic:    {Base: 0.003, SizeImpact: 0.002, ProfitImpact: 0.002},
	SlippageOptimistic:   {Base: 0.001, SizeImpact: 0.001, ProfitImpact: 0.001},
}

// Params returns the coefficient set for a model, or an error for an
// unknown model name.
func (m SlippageModel) Params() (SlippageParams, error) {
	p, ok := defaultSlippage[m]
	if !ok {
		return SlippageParams{}, fmt.Errorf("backtest: unknown slippage model %q", m)
	}
	return p, nil
}

// Cost returns the estimated execution cost in capital units for a hedge of
// the given size and per-contract cost, with the given expected edge.
func (p SlippageParams) Cost(size, perContractCost, profitPercent float64) float64 {
	if size <= 0 {
		return 0
	}
	notional := size * perContractCost
	frac := p.Base + p.SizeImpact*(size/1000) + p.ProfitImpact*(profitPercent)
	if frac < 0 {
		frac = 0
	}
	return notional * frac
}
