package experience

import (
	"math/rand/v2"
	"sync"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
)

// #region config
// Config holds experience collection options.
type Config struct {
	MaxSize       int `yaml:"max_size"`
	BatchSize     int `yaml:"batch_size"`
	DispatchEvery int `yaml:"dispatch_every"`
	LogEvery      int `yaml:"log_every"`
}

// DefaultConfig dispatches batches of 32 every 16 experiences once 32 are buffered.
func DefaultConfig() Config {
	return Config{MaxSize: 10000, BatchSize: 32, DispatchEvery: 16, LogEvery: 100}
}

// Stats summarises collection.
type Stats struct {
	TotalExperiences int
	TotalEpisodes    int
	BufferSize       int
	AverageReward    float64
	BatchesSent      int
	BatchesDropped   int
}

// #endregion config

// #region collector
// Collector buffers experiences and offers training batches on a channel
// without ever blocking.
type Collector struct {
	mu       sync.Mutex
	config   Config
	buffer   *Buffer
	training chan<- []Experience
	total    int
	episodes int
	sent     int
	dropped  int
}

// NewCollector returns a collector. training may be nil to disable dispatch.
func NewCollector(config Config, training chan<- []Experience, rng *rand.Rand) *Collector {
	d := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = d.BatchSize
	}
	if config.DispatchEvery <= 0 {
		config.DispatchEvery = d.DispatchEvery
	}
	if config.LogEvery <= 0 {
		config.LogEvery = d.LogEvery
	}
	return &Collector{config: config, buffer: NewBuffer(config.MaxSize, rng), training: training}
}

// Collect stores e. It reports whether a training batch was handed off.
func (c *Collector) Collect(e Experience) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.buffer.Add(e)

	if c.total%c.config.LogEvery == 0 {
		monitoring.Logf("[EXPERIENCE] total=%d buffer=%d avg_reward=%.4f",
			c.total, c.buffer.Len(), c.buffer.AverageReward())
	}

	n := c.buffer.Len()
	if c.training == nil || n < c.config.BatchSize || n%c.config.DispatchEvery != 0 {
		return false
	}
	batch := c.buffer.TrainingBatch(c.config.BatchSize)
	select {
	case c.training <- batch:
		c.sent++
		return true
	default:
		c.dropped++
		monitoring.Logf("[EXPERIENCE] training channel full, dropped batch of %d (dropped=%d)", len(batch), c.dropped)
		return false
	}
}

// CurrentEpisode returns the episode id for new experiences.
func (c *Collector) CurrentEpisode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.CurrentEpisode()
}

// StartNewEpisode rotates the episode id.
func (c *Collector) StartNewEpisode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episodes++
	return c.buffer.StartNewEpisode()
}

// Recent returns up to n experiences, newest first.
func (c *Collector) Recent(n int) []Experience {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Recent(n)
}

func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalExperiences: c.total,
		TotalEpisodes:    c.episodes,
		BufferSize:       c.buffer.Len(),
		AverageReward:    c.buffer.AverageReward(),
		BatchesSent:      c.sent,
		BatchesDropped:   c.dropped,
	}
}

// #endregion collector
