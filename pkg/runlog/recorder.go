package runlog

import (
	"sync"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/database"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/metrics"
	"github.com/dbehnke/dvbt-viterbi/pkg/simulation"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
	"github.com/google/uuid"
)

// Notifier receives live run events. *web.WebSocketHub implements it.
type Notifier interface {
	BroadcastDecodeProgress(runID string, blocks, bytesIn, bytesOut uint64)
	BroadcastBERPoint(runID string, ebn0dB float64, bits, errors uint64, bound float64)
	BroadcastRunFinished(runID, kind string, err error)
}

// Sinks are the optional destinations of run records. Any field may be nil.
type Sinks struct {
	Runs     *database.DecodeRunRepository
	BER      *database.BERRepository
	Metrics  *metrics.Collector
	Notifier Notifier
}

// Recorder tracks active runs and fans their progress out to the
// database, the metrics collector and live clients.
type Recorder struct {
	sinks  Sinks
	logger *logger.Logger
	active map[string]*activeRun
	mu     sync.RWMutex
}

// activeRun tracks an ongoing run
type activeRun struct {
	record    database.DecodeRun
	startTime time.Time
	last      viterbi.Stats
}

// Describe holds what a run is decoding with.
type Describe struct {
	Kind      string
	Params    viterbi.Params
	LaneWidth int
	Scalar    bool
}

// NewRecorder creates a new run recorder
func NewRecorder(sinks Sinks, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		sinks:  sinks,
		logger: log,
		active: make(map[string]*activeRun),
	}
}

// Start registers a new run and returns its ID.
func (r *Recorder) Start(d Describe) string {
	now := time.Now()
	kernel := "vector"
	if d.Scalar {
		kernel = "scalar"
	}
	run := &activeRun{
		record: database.DecodeRun{
			RunID:         uuid.NewString(),
			Kind:          d.Kind,
			Constellation: d.Params.Constellation.String(),
			Hierarchy:     d.Params.Hierarchy.String(),
			Priority:      d.Params.Priority.String(),
			CodeRate:      d.Params.CodeRate.String(),
			BlockBits:     d.Params.BlockBits,
			LaneWidth:     d.LaneWidth,
			Kernel:        kernel,
			StartTime:     now,
		},
		startTime: now,
	}

	r.mu.Lock()
	r.active[run.record.RunID] = run
	r.mu.Unlock()

	if r.sinks.Runs != nil {
		rec := run.record
		if err := r.sinks.Runs.Create(&rec); err != nil {
			r.logger.Error("Failed to save run",
				logger.Error(err),
				logger.String("run_id", rec.RunID))
		}
	}
	if r.sinks.Metrics != nil {
		r.sinks.Metrics.RunStarted(run.record.RunID)
	}

	r.logger.Info("Run started",
		logger.String("run_id", run.record.RunID),
		logger.String("kind", d.Kind),
		logger.String("code_rate", run.record.CodeRate))
	return run.record.RunID
}

// Progress records the decoder counters of a run. Counters are cumulative
// per decoder; only the difference to the previous call is added.
func (r *Recorder) Progress(runID string, stats viterbi.Stats) {
	r.mu.Lock()
	run, ok := r.active[runID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Progress for unknown run", logger.String("run_id", runID))
		return
	}
	before := run.last
	if stats.Blocks < before.Blocks {
		// decoder was reset or replaced
		before = viterbi.Stats{}
	}
	run.last = stats
	run.record.Blocks += stats.Blocks - before.Blocks
	run.record.BytesIn += stats.BytesIn - before.BytesIn
	run.record.BytesOut += stats.BytesOut - before.BytesOut
	blocks, in, out := run.record.Blocks, run.record.BytesIn, run.record.BytesOut
	r.mu.Unlock()

	if r.sinks.Metrics != nil {
		r.sinks.Metrics.WorkDone(before, stats)
	}
	if r.sinks.Notifier != nil {
		r.sinks.Notifier.BroadcastDecodeProgress(runID, blocks, in, out)
	}
}

// RecordBER stores one simulated point of a run.
func (r *Recorder) RecordBER(runID string, res simulation.Result) {
	// every point decodes with a fresh decoder
	r.mu.Lock()
	if run, ok := r.active[runID]; ok {
		run.last = viterbi.Stats{}
	}
	r.mu.Unlock()
	r.Progress(runID, res.Stats)

	if r.sinks.Metrics != nil {
		r.sinks.Metrics.RecordBER(metrics.BERPoint{
			EbN0dB:     res.EbN0dB,
			Bits:       res.Bits,
			Errors:     res.Errors,
			UnionBound: res.UnionBound,
		})
	}
	if r.sinks.BER != nil {
		m := &database.BERMeasurement{
			RunID:      runID,
			Mode:       res.Mode,
			CodeRate:   res.CodeRate,
			EbN0dB:     res.EbN0dB,
			Bits:       res.Bits,
			Errors:     res.Errors,
			UnionBound: res.UnionBound,
		}
		if err := r.sinks.BER.Create(m); err != nil {
			r.logger.Error("Failed to save BER measurement",
				logger.Error(err),
				logger.String("run_id", runID))
		}
	}
	if r.sinks.Notifier != nil {
		r.sinks.Notifier.BroadcastBERPoint(runID, res.EbN0dB, res.Bits, res.Errors, res.UnionBound)
	}
}

// Finish closes a run, storing its totals and runErr if any.
func (r *Recorder) Finish(runID string, runErr error) {
	r.mu.Lock()
	run, ok := r.active[runID]
	if ok {
		delete(r.active, runID)
	}
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("Finish for unknown run", logger.String("run_id", runID))
		return
	}

	end := time.Now()
	run.record.EndTime = end
	run.record.Duration = end.Sub(run.startTime).Seconds()
	if runErr != nil {
		run.record.Error = runErr.Error()
	}

	if r.sinks.Runs != nil {
		if err := r.sinks.Runs.Finish(&run.record); err != nil {
			r.logger.Error("Failed to save run totals",
				logger.Error(err),
				logger.String("run_id", runID))
		}
	}
	if r.sinks.Metrics != nil {
		r.sinks.Metrics.RunEnded(runID)
	}
	if r.sinks.Notifier != nil {
		r.sinks.Notifier.BroadcastRunFinished(runID, run.record.Kind, runErr)
	}

	r.logger.Info("Run finished",
		logger.String("run_id", runID),
		logger.Uint64("blocks", run.record.Blocks),
		logger.Uint64("bytes_out", run.record.BytesOut),
		logger.Float64("seconds", run.record.Duration),
		logger.Float64("mbit_per_sec", run.record.Throughput()))
}

// GetActiveRunCount returns the number of runs not yet finished
func (r *Recorder) GetActiveRunCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
