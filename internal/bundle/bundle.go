package bundle

import (
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/simfolio-lab/simfolio/internal/types"
)

// Metadata describes one ingested bundle version. Bundles are immutable
// once saved: a new ingestion creates a new version.
type Metadata struct {
	Name            string
	Version         *semver.Version
	NativeFrequency types.Frequency
	Calendar        string
	Start           time.Time
	End             time.Time
	Symbols         []string
	CreatedAt       time.Time
	// WriterVersion is the build version of the binary that saved the
	// bundle, checked for compatibility on load.
	WriterVersion string
}

// HasSymbol reports whether the bundle covers the given symbol.
func (m Metadata) HasSymbol(symbol string) bool {
	for _, s := range m.Symbols {
		if s == symbol {
			return true
		}
	}

	return false
}
