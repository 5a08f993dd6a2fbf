package ranking

import (
	"fmt"
	"time"
)

const (
	DefaultBatchSize            = 50
	DefaultMaxUpdateFrequency   = 5 * time.Minute
	DefaultStatsInterval        = time.Minute
	DefaultMaxQueueSize         = 10_000
	DefaultMaxSegmentsPerUpdate = 5
	DefaultMaxAttempts          = 3
)

// Config holds the validated knobs of the update engine. Construct it once in
// the composition root; zero fields are filled in by SetDefaults.
type Config struct {
	// BatchSize is the default number of items drained per processing cycle.
	BatchSize int
	// MaxUpdateFrequency is the interval of the periodic batch timer.
	MaxUpdateFrequency time.Duration
	// StatsInterval is the interval of the statistics recomputation timer.
	StatsInterval time.Duration
	// PriorityThreshold is the priority at or above which an enqueue triggers
	// an immediate synchronous drain of all urgent items.
	PriorityThreshold Priority
	// MaxQueueSize is the hard capacity bound of the update queue.
	MaxQueueSize int
	// EnableSmartBatching grows/shrinks the batch size based on queue length
	// and recent processing latency.
	EnableSmartBatching bool
	// MaxSegmentsPerUpdate is how many top-quality segments a single
	// performance submission fans out to.
	MaxSegmentsPerUpdate int
	// MaxAttempts is how many processing attempts an item gets before it is
	// dropped and counted as a permanent failure.
	MaxAttempts int
}

func (c *Config) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxUpdateFrequency == 0 {
		c.MaxUpdateFrequency = DefaultMaxUpdateFrequency
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.PriorityThreshold == 0 {
		c.PriorityThreshold = PriorityHigh
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.MaxSegmentsPerUpdate == 0 {
		c.MaxSegmentsPerUpdate = DefaultMaxSegmentsPerUpdate
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxUpdateFrequency <= 0 {
		return fmt.Errorf("max update frequency must be positive, got %s", c.MaxUpdateFrequency)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval)
	}
	if c.PriorityThreshold < PriorityLow || c.PriorityThreshold > PriorityCritical {
		return fmt.Errorf("invalid priority threshold: %d", c.PriorityThreshold)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max queue size must be positive, got %d", c.MaxQueueSize)
	}
	if c.MaxSegmentsPerUpdate <= 0 {
		return fmt.Errorf("max segments per update must be positive, got %d", c.MaxSegmentsPerUpdate)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
