package runtime

import (
	"github.com/moznion/go-optional"
)

// Cache is per-run mutable strategy state. It starts empty on every run
// and is never shared between runs, so two runs over the same data cannot
// influence each other.
type Cache interface {
	Set(key string, value any)
	Get(key string) (any, bool)
	Reset()
}

// WarmupState tracks how many bars a strategy has observed, for
// strategies that need a lookback window before trading.
type WarmupState struct {
	BarsSeen int  `json:"bars_seen"`
	Complete bool `json:"complete"`
}

// RunCache is the default Cache. Warmup is typed because nearly every
// strategy needs it; everything else goes through the key-value surface.
type RunCache struct {
	Warmup optional.Option[WarmupState]

	data map[string]any
}

// NewRunCache creates an empty cache.
func NewRunCache() *RunCache {
	return &RunCache{
		Warmup: optional.None[WarmupState](),
		data:   make(map[string]any),
	}
}

// Set implements Cache.
func (c *RunCache) Set(key string, value any) {
	c.data[key] = value
}

// Get implements Cache.
func (c *RunCache) Get(key string) (any, bool) {
	value, ok := c.data[key]

	return value, ok
}

// Reset implements Cache.
func (c *RunCache) Reset() {
	c.Warmup = optional.None[WarmupState]()
	c.data = make(map[string]any)
}
