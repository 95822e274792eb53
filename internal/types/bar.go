package types

import "time"

// Bar is a single OHLCV row for one symbol at one native-frequency interval.
// Timestamps are unique and monotonically increasing per symbol within a
// bundle. Native bars in a bundle carry the start of their interval, the
// provider convention; aggregated bars produced by resampling default to the
// window's right edge, so an aggregated bar is only visible once complete.
type Bar struct {
	Time   time.Time `csv:"time" json:"time" yaml:"time"`
	Symbol string    `csv:"symbol" json:"symbol" yaml:"symbol"`
	Open   float64   `csv:"open" json:"open" yaml:"open"`
	High   float64   `csv:"high" json:"high" yaml:"high"`
	Low    float64   `csv:"low" json:"low" yaml:"low"`
	Close  float64   `csv:"close" json:"close" yaml:"close"`
	Volume float64   `csv:"volume" json:"volume" yaml:"volume"`
}

// BarField names a column of a Bar for aggregation-rule lookups.
type BarField string

const (
	BarFieldOpen   BarField = "open"
	BarFieldHigh   BarField = "high"
	BarFieldLow    BarField = "low"
	BarFieldClose  BarField = "close"
	BarFieldVolume BarField = "volume"
)

// Field returns the value of the named field.
func (b Bar) Field(field BarField) float64 {
	switch field {
	case BarFieldOpen:
		return b.Open
	case BarFieldHigh:
		return b.High
	case BarFieldLow:
		return b.Low
	case BarFieldClose:
		return b.Close
	case BarFieldVolume:
		return b.Volume
	default:
		return 0
	}
}
