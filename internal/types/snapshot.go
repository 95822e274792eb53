package types

import "time"

// Snapshot is one row of the portfolio time series: the ledger state after
// mark-to-market at a tick. The snapshot history is append-only and never
// mutated, which is what makes analytics replayable.
type Snapshot struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Cash      float64   `yaml:"cash" json:"cash" csv:"cash"`
	NAV       float64   `yaml:"nav" json:"nav" csv:"nav"`
	// Returns is the simple return since the previous snapshot.
	Returns float64 `yaml:"returns" json:"returns" csv:"returns"`
	// Positions holds a copy of the open positions at the tick, sorted by
	// symbol so that identical runs serialize identically.
	Positions []Position `yaml:"positions" json:"positions" csv:"-"`
}

// ErrorRecord is one recorded strategy-callback failure.
type ErrorRecord struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Message   string    `yaml:"message" json:"message"`
	Stack     string    `yaml:"stack" json:"stack"`
	// Aborted is true when the run stopped because of this error rather
	// than continuing to the next tick.
	Aborted bool `yaml:"aborted" json:"aborted"`
}
