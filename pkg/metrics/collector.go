package metrics

import (
	"sort"
	"sync"

	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// BERPoint is the latest bit error measurement at one Eb/N0.
type BERPoint struct {
	EbN0dB     float64
	Bits       uint64
	Errors     uint64
	UnionBound float64
}

// BER returns the measured bit error rate.
func (p BERPoint) BER() float64 {
	if p.Bits == 0 {
		return 0
	}
	return float64(p.Errors) / float64(p.Bits)
}

// Collector collects decoder metrics
type Collector struct {
	mu sync.RWMutex

	// Decoder work
	blocksDecoded uint64
	bytesIn       uint64
	bytesOut      uint64
	workCalls     uint64

	// Runs
	totalRuns  uint64
	activeRuns map[string]bool

	// Simulation results keyed by Eb/N0
	ber map[float64]BERPoint
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		activeRuns: make(map[string]bool),
		ber:        make(map[float64]BERPoint),
	}
}

// WorkDone records the difference between two decoder stat snapshots
func (c *Collector) WorkDone(before, after viterbi.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocksDecoded += after.Blocks - before.Blocks
	c.bytesIn += after.BytesIn - before.BytesIn
	c.bytesOut += after.BytesOut - before.BytesOut
	c.workCalls += after.WorkCalls - before.WorkCalls
}

// RunStarted records the start of a decode or simulation run
func (c *Collector) RunStarted(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRuns++
	c.activeRuns[runID] = true
}

// RunEnded records the end of a run
func (c *Collector) RunEnded(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.activeRuns, runID)
}

// RecordBER stores the latest measurement for an Eb/N0 point
func (c *Collector) RecordBER(p BERPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ber[p.EbN0dB] = p
}

// Reset resets all metrics (useful for testing)
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRuns = make(map[string]bool)
	c.ber = make(map[float64]BERPoint)
	// Note: cumulative counters are kept
}

// Getters for metrics

// GetBlocksDecoded returns total decoded blocks
func (c *Collector) GetBlocksDecoded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocksDecoded
}

// GetBytesIn returns total symbol bytes consumed
func (c *Collector) GetBytesIn() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesIn
}

// GetBytesOut returns total decoded bytes produced
func (c *Collector) GetBytesOut() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytesOut
}

// GetWorkCalls returns total decoder work calls
func (c *Collector) GetWorkCalls() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workCalls
}

// GetTotalRuns returns the number of runs started
func (c *Collector) GetTotalRuns() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalRuns
}

// GetActiveRuns returns the number of runs in progress
func (c *Collector) GetActiveRuns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.activeRuns)
}

// GetBERPoints returns the measurements sorted by Eb/N0
func (c *Collector) GetBERPoints() []BERPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := make([]BERPoint, 0, len(c.ber))
	for _, p := range c.ber {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].EbN0dB < points[j].EbN0dB })
	return points
}
