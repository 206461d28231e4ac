package runlog

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dbehnke/dvbt-viterbi/pkg/database"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/metrics"
	"github.com/dbehnke/dvbt-viterbi/pkg/simulation"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

type fakeNotifier struct {
	mu       sync.Mutex
	progress []uint64
	points   []float64
	finished []string
}

func (f *fakeNotifier) BroadcastDecodeProgress(runID string, blocks, bytesIn, bytesOut uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, blocks)
}

func (f *fakeNotifier) BroadcastBERPoint(runID string, ebn0dB float64, bits, errors uint64, bound float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, ebn0dB)
}

func (f *fakeNotifier) BroadcastRunFinished(runID, kind string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := kind
	if err != nil {
		msg += ":" + err.Error()
	}
	f.finished = append(f.finished, msg)
}

func newSinks(t *testing.T) (Sinks, *fakeNotifier) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db, err := database.NewDB(database.Config{Path: filepath.Join(t.TempDir(), "runs.db")}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	n := &fakeNotifier{}
	return Sinks{
		Runs:     database.NewDecodeRunRepository(db.GetDB()),
		BER:      database.NewBERRepository(db.GetDB()),
		Metrics:  metrics.NewCollector(),
		Notifier: n,
	}, n
}

func TestRecorder_DecodeRun(t *testing.T) {
	sinks, n := newSinks(t)
	rec := NewRecorder(sinks, nil)

	id := rec.Start(Describe{Kind: database.RunKindDecode, Params: viterbi.DefaultParams(), LaneWidth: 8})
	if rec.GetActiveRunCount() != 1 || sinks.Metrics.GetActiveRuns() != 1 {
		t.Fatal("Expected one active run")
	}

	rec.Progress(id, viterbi.Stats{Blocks: 2, BytesIn: 3008, BytesOut: 376, WorkCalls: 1})
	rec.Progress(id, viterbi.Stats{Blocks: 5, BytesIn: 7520, BytesOut: 940, WorkCalls: 2})
	rec.Finish(id, nil)

	if rec.GetActiveRunCount() != 0 || sinks.Metrics.GetActiveRuns() != 0 {
		t.Error("Expected no active runs after finish")
	}
	if got := sinks.Metrics.GetBlocksDecoded(); got != 5 {
		t.Errorf("Expected 5 blocks in metrics, got %d", got)
	}
	if got := sinks.Metrics.GetWorkCalls(); got != 2 {
		t.Errorf("Expected 2 work calls in metrics, got %d", got)
	}

	run, err := sinks.Runs.GetByRunID(id)
	if err != nil {
		t.Fatalf("Run not stored: %v", err)
	}
	if run.Blocks != 5 || run.BytesOut != 940 || run.LaneWidth != 8 || run.Kernel != "vector" {
		t.Errorf("Unexpected stored run %+v", run)
	}
	if run.EndTime.IsZero() {
		t.Error("Expected end time stored")
	}

	if len(n.progress) != 2 || n.progress[1] != 5 {
		t.Errorf("Unexpected progress events %v", n.progress)
	}
	if len(n.finished) != 1 || n.finished[0] != database.RunKindDecode {
		t.Errorf("Unexpected finish events %v", n.finished)
	}
}

func TestRecorder_BERRun(t *testing.T) {
	sinks, n := newSinks(t)
	rec := NewRecorder(sinks, nil)

	id := rec.Start(Describe{Kind: database.RunKindBER, Params: viterbi.DefaultParams(), Scalar: true})
	for _, eb := range []float64{3, 4} {
		rec.RecordBER(id, simulation.Result{
			EbN0dB:   eb,
			Mode:     simulation.ModeSoft,
			CodeRate: "1/2",
			Bits:     1504,
			Errors:   1,
			Stats:    viterbi.Stats{Blocks: 2, BytesOut: 376, WorkCalls: 1},
		})
	}
	rec.Finish(id, errors.New("interrupted"))

	points, err := sinks.BER.GetByRun(id)
	if err != nil {
		t.Fatalf("Failed to load points: %v", err)
	}
	if len(points) != 2 || points[0].EbN0dB != 3 {
		t.Fatalf("Unexpected stored points %+v", points)
	}

	run, err := sinks.Runs.GetByRunID(id)
	if err != nil {
		t.Fatalf("Run not stored: %v", err)
	}
	// each point has its own decoder, so blocks add up
	if run.Blocks != 4 {
		t.Errorf("Expected 4 blocks, got %d", run.Blocks)
	}
	if run.Error != "interrupted" || run.Kernel != "scalar" {
		t.Errorf("Unexpected stored run %+v", run)
	}

	if len(sinks.Metrics.GetBERPoints()) != 2 {
		t.Error("Expected 2 BER points in metrics")
	}
	if len(n.points) != 2 || n.finished[0] != "ber:interrupted" {
		t.Errorf("Unexpected events %v %v", n.points, n.finished)
	}
}

func TestRecorder_NoSinks(t *testing.T) {
	rec := NewRecorder(Sinks{}, nil)
	id := rec.Start(Describe{Kind: database.RunKindEncode, Params: viterbi.DefaultParams()})
	rec.Progress(id, viterbi.Stats{Blocks: 1})
	rec.RecordBER(id, simulation.Result{EbN0dB: 1})
	rec.Finish(id, nil)

	// unknown runs are ignored
	rec.Progress("missing", viterbi.Stats{Blocks: 1})
	rec.Finish("missing", nil)

	if rec.GetActiveRunCount() != 0 {
		t.Error("Expected no active runs")
	}
}
