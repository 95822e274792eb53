package types

import (
	"time"

	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Frequency is a bar cadence, either the native storage cadence of a bundle
// or the emission rate at which a strategy is invoked.
type Frequency string

const (
	Frequency1m  Frequency = "1m"
	Frequency5m  Frequency = "5m"
	Frequency15m Frequency = "15m"
	Frequency30m Frequency = "30m"
	Frequency1h  Frequency = "1h"
	Frequency1d  Frequency = "1d"
)

var frequencyDurations = map[Frequency]time.Duration{
	Frequency1m:  time.Minute,
	Frequency5m:  5 * time.Minute,
	Frequency15m: 15 * time.Minute,
	Frequency30m: 30 * time.Minute,
	Frequency1h:  time.Hour,
	Frequency1d:  24 * time.Hour,
}

// Duration returns the window width of the frequency. Zero for unknown values.
func (f Frequency) Duration() time.Duration {
	return frequencyDurations[f]
}

// IsValid reports whether the frequency is one of the supported cadences.
func (f Frequency) IsValid() bool {
	_, ok := frequencyDurations[f]

	return ok
}

// ParseFrequency parses a frequency string such as "1m" or "1d".
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.IsValid() {
		return "", errors.Newf(errors.ErrCodeInvalidFrequency, "unsupported frequency: %s", s)
	}

	return f, nil
}

// AllFrequencies lists the supported cadences for schema generation.
var AllFrequencies = []any{
	Frequency1m,
	Frequency5m,
	Frequency15m,
	Frequency30m,
	Frequency1h,
	Frequency1d,
}
