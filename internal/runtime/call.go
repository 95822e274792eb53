package runtime

import (
	"runtime/debug"
	"time"

	"github.com/simfolio-lab/simfolio/internal/types"
	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Call invokes one strategy callback, converting both returned errors and
// panics into an ErrorRecord so a misbehaving strategy cannot take down
// the engine. The record's Aborted flag is set by the caller according to
// the run's error policy.
func Call(tick time.Time, fn func() error) *types.ErrorRecord {
	record := invoke(fn)
	if record == nil {
		return nil
	}

	record.Timestamp = tick

	return record
}

func invoke(fn func() error) (record *types.ErrorRecord) {
	defer func() {
		if r := recover(); r != nil {
			record = &types.ErrorRecord{
				Message: errors.Newf(errors.ErrCodeCallbackFailed, "strategy panicked: %v", r).Error(),
				Stack:   string(debug.Stack()),
			}
		}
	}()

	if err := fn(); err != nil {
		return &types.ErrorRecord{
			Message: errors.Wrap(errors.ErrCodeCallbackFailed, "strategy callback failed", err).Error(),
			Stack:   string(debug.Stack()),
		}
	}

	return nil
}
