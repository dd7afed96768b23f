package metrics

import (
	"time"

	"media-downloader/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats implements StatsProvider.
func (f StatsProviderFunc) GetStats() Stats { return f() }

// Stats holds the current statistics
type Stats struct {
	Records        int
	AudioBytes     int64
	VideoBytes     int64
	UnknownBytes   int64
	DirectoryFiles int
}

// Collector periodically collects gauge values that are cheaper to sample
// than to maintain incrementally.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	RegistryRecordsLive.Set(float64(stats.Records))
	RegistryTrackedBytes.WithLabelValues("audio").Set(float64(stats.AudioBytes))
	RegistryTrackedBytes.WithLabelValues("video").Set(float64(stats.VideoBytes))
	RegistryTrackedBytes.WithLabelValues("unknown").Set(float64(stats.UnknownBytes))
	DirectoryFiles.Set(float64(stats.DirectoryFiles))

	logging.Debug("Metrics collected: records=%d, files=%d", stats.Records, stats.DirectoryFiles)
}
