package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PerformanceStats summarizes a finished run, derived from the snapshot
// history by the analytics package.
type PerformanceStats struct {
	// Total simple return over the run.
	TotalReturn float64 `yaml:"total_return"`
	// Annualized return assuming 252 trading sessions per year.
	AnnualReturn float64 `yaml:"annual_return"`
	// Annualized Sharpe ratio over per-tick returns.
	SharpeRatio float64 `yaml:"sharpe_ratio"`
	// Annualized Sortino ratio (downside deviation denominator).
	SortinoRatio float64 `yaml:"sortino_ratio"`
	// Maximum peak-to-trough NAV drawdown, as a positive fraction.
	MaxDrawdown float64 `yaml:"max_drawdown"`
	// Volatility is the annualized standard deviation of returns.
	Volatility float64 `yaml:"volatility"`
	// Alpha and Beta against the benchmark series. Zero when no benchmark
	// was configured.
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	// BenchmarkReturn is the benchmark's total return over the run.
	BenchmarkReturn float64 `yaml:"benchmark_return"`
	// Counters.
	NumSessions int     `yaml:"num_sessions"`
	NumTicks    int     `yaml:"num_ticks"`
	NumOrders   int     `yaml:"num_orders"`
	NumFills    int     `yaml:"num_fills"`
	TotalFees   float64 `yaml:"total_fees"`
	// Final state.
	StartingCash float64 `yaml:"starting_cash"`
	EndingCash   float64 `yaml:"ending_cash"`
	EndingNAV    float64 `yaml:"ending_nav"`
}

// RunResult is the user-visible output of a run: the performance time
// series, the recorded errors, and the summary statistics. A run always
// returns whatever partial series was produced before an abort.
type RunResult struct {
	// RunID is the unique identifier for this run.
	RunID string `yaml:"run_id" json:"run_id"`
	// StartedAt is the wall-clock time the run was executed.
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	// Snapshots is the ordered, append-only portfolio time series.
	Snapshots []Snapshot `yaml:"snapshots" json:"snapshots"`
	// Errors lists recorded callback failures in tick order.
	Errors []ErrorRecord `yaml:"errors" json:"errors"`
	// Stats summarizes the snapshot series.
	Stats PerformanceStats `yaml:"stats" json:"stats"`
	// Aborted is true when the run stopped before its final tick.
	Aborted bool `yaml:"aborted" json:"aborted"`
	// JournalPath is the path of the exported order/fill journal, when the
	// run was configured with a results folder.
	JournalPath string `yaml:"journal_path" json:"journal_path"`
}

// WriteStats writes the run statistics to a YAML file.
func WriteStats(path string, stats PerformanceStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats to file: %w", err)
	}

	return nil
}
