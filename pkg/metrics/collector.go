package metrics

import "time"

// Source exposes the gauges a Collector samples on a ticker. The scheduler
// implements it, so this package does not need to import it (it already
// depends on metrics for counters).
type Source interface {
	ReservedMemoryBytes() int64
	TasksInFlight() int
}

// Collector periodically samples a Source into the package's gauges.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ReservedMemoryBytes.Set(float64(c.source.ReservedMemoryBytes()))
	TasksInFlight.Set(float64(c.source.TasksInFlight()))
}
