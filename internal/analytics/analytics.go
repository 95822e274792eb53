package analytics

import (
	"math"

	"github.com/simfolio-lab/simfolio/internal/types"
)

// Sessions per year used for annualization.
const tradingSessionsPerYear = 252.0

// Compute derives summary statistics from a snapshot series. The series
// is read only; calling Compute twice over the same series yields the
// same stats. Benchmark may be nil when no benchmark was configured.
func Compute(snapshots []types.Snapshot, startingCash float64, periodsPerYear float64, benchmark []float64) types.PerformanceStats {
	stats := types.PerformanceStats{
		StartingCash: startingCash,
		NumTicks:     len(snapshots),
	}

	if len(snapshots) == 0 {
		return stats
	}

	if periodsPerYear <= 0 {
		periodsPerYear = tradingSessionsPerYear
	}

	last := snapshots[len(snapshots)-1]
	stats.EndingCash = last.Cash
	stats.EndingNAV = last.NAV

	if startingCash > 0 {
		stats.TotalReturn = last.NAV/startingCash - 1
	}

	returns := make([]float64, len(snapshots))
	for i, snapshot := range snapshots {
		returns[i] = snapshot.Returns
	}

	stats.AnnualReturn = annualize(stats.TotalReturn, float64(len(returns)), periodsPerYear)
	stats.Volatility = stddev(returns) * math.Sqrt(periodsPerYear)
	stats.SharpeRatio = sharpe(returns, periodsPerYear)
	stats.SortinoRatio = sortino(returns, periodsPerYear)
	stats.MaxDrawdown = MaxDrawdown(snapshots)

	if len(benchmark) > 0 {
		alpha, beta := AlphaBeta(returns, benchmark, periodsPerYear)
		stats.Alpha = alpha
		stats.Beta = beta
		stats.BenchmarkReturn = cumulative(benchmark)
	}

	return stats
}

// MaxDrawdown returns the largest peak-to-trough NAV decline as a
// positive fraction.
func MaxDrawdown(snapshots []types.Snapshot) float64 {
	if len(snapshots) == 0 {
		return 0
	}

	peak := snapshots[0].NAV
	worst := 0.0

	for _, snapshot := range snapshots {
		if snapshot.NAV > peak {
			peak = snapshot.NAV
		}

		if peak > 0 {
			drawdown := (peak - snapshot.NAV) / peak
			if drawdown > worst {
				worst = drawdown
			}
		}
	}

	return worst
}

// AlphaBeta regresses the strategy returns on the benchmark returns. The
// two series are aligned by index and truncated to the shorter one. Beta
// is the regression slope; alpha is the annualized intercept.
func AlphaBeta(returns []float64, benchmark []float64, periodsPerYear float64) (alpha float64, beta float64) {
	n := len(returns)
	if len(benchmark) < n {
		n = len(benchmark)
	}

	if n < 2 {
		return 0, 0
	}

	returns = returns[:n]
	benchmark = benchmark[:n]

	meanR := mean(returns)
	meanB := mean(benchmark)

	var covariance, variance float64

	for i := 0; i < n; i++ {
		covariance += (returns[i] - meanR) * (benchmark[i] - meanB)
		variance += (benchmark[i] - meanB) * (benchmark[i] - meanB)
	}

	if variance == 0 {
		return 0, 0
	}

	beta = covariance / variance
	alpha = (meanR - beta*meanB) * periodsPerYear

	return alpha, beta
}

// cumulative compounds a simple-return series.
func cumulative(returns []float64) float64 {
	total := 1.0
	for _, r := range returns {
		total *= 1 + r
	}

	return total - 1
}

func annualize(totalReturn float64, periods float64, periodsPerYear float64) float64 {
	if periods <= 0 || totalReturn <= -1 {
		return 0
	}

	return math.Pow(1+totalReturn, periodsPerYear/periods) - 1
}

func sharpe(returns []float64, periodsPerYear float64) float64 {
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}

	return mean(returns) / sd * math.Sqrt(periodsPerYear)
}

func sortino(returns []float64, periodsPerYear float64) float64 {
	var downside float64

	var count int

	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}

		count++
	}

	if count == 0 {
		return 0
	}

	dd := math.Sqrt(downside / float64(count))
	if dd == 0 {
		return 0
	}

	return mean(returns) / dd * math.Sqrt(periodsPerYear)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)

	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}

	return math.Sqrt(sum / float64(len(values)-1))
}
