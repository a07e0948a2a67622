package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// OpportunityAlert formats a detected opportunity for operator channels.
func OpportunityAlert(opp domain.ArbitrageOpportunity) (title, message string) {
	title = fmt.Sprintf("Arbitrage: %s +%.2f%%", opp.PairID, opp.Result.ProfitPercent)

	var b strings.Builder
	fmt.Fprintf(&b, "Direction: %s\n", opp.Result.Direction)
	fmt.Fprintf(&b, "%s %s @ %.4f / %s %s @ %.4f\n",
		opp.Result.FirstLeg.Venue, opp.Result.FirstLeg.Side, opp.Result.FirstLeg.Price,
		opp.Result.SecondLeg.Venue, opp.Result.SecondLeg.Side, opp.Result.SecondLeg.Price,
	)
	fmt.Fprintf(&b, "Total cost: %.4f, net profit: %.4f per contract\n",
		opp.Result.TotalCost, opp.Result.NetProfit,
	)
	fmt.Fprintf(&b, "Confidence: %d%%, max size: %.0f contracts, TTL: %ds",
		opp.Confidence, opp.MaxSize, opp.TTLSeconds,
	)
	return title, b.String()
}

// CollectionAlert formats a finished collection job.
func CollectionAlert(job domain.CollectionJob, snapshots int) (title, message string) {
	title = fmt.Sprintf("Collection %s: %s", job.ID, job.Status)
	message = fmt.Sprintf("Pairs: %d completed, %d failed. Snapshots kept: %d.",
		job.Progress.PairsCompleted, job.Progress.PairsFailed, snapshots,
	)
	return title, message
}

// BacktestAlert formats a finished backtest run.
func BacktestAlert(result domain.BacktestResult) (title, message string) {
	s := result.Summary
	title = fmt.Sprintf("Backtest %s finished", result.ID)
	message = fmt.Sprintf(
		"Trades: %d executed, %d skipped. Final capital: %.2f (%.2f%%). Sharpe: %.2f, max drawdown: %.2f%%.",
		s.ExecutedTrades, s.SkippedTrades, s.FinalCapital,
		s.Metrics.ReturnPercent, s.Metrics.SharpeRatio, s.Metrics.MaxDrawdownPct,
	)
	return title, message
}
