package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dbehnke/dvbt-viterbi/pkg/channel"
	"github.com/dbehnke/dvbt-viterbi/pkg/database"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/metrics"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Deps are the data sources behind the API. Runs, BER and Metrics may be nil.
type Deps struct {
	Params  viterbi.Params
	Runs    *database.DecodeRunRepository
	BER     *database.BERRepository
	Metrics *metrics.Collector
}

// API handles REST API endpoints
type API struct {
	deps   Deps
	logger *logger.Logger
}

// NewAPI creates a new API instance
func NewAPI(deps Deps, log *logger.Logger) *API {
	return &API{
		deps:   deps,
		logger: log,
	}
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := GetBuildInfo()
	response := map[string]interface{}{
		"status":     "running",
		"service":    "dvbt-viterbi",
		"version":    info.Version,
		"commit":     info.Commit,
		"build_time": info.BuildTime,
	}

	p := a.deps.Params
	decoder := map[string]interface{}{
		"constellation": p.Constellation.String(),
		"hierarchy":     p.Hierarchy.String(),
		"priority":      p.Priority.String(),
		"code_rate":     p.CodeRate.String(),
		"block_bits":    p.BlockBits,
		"start_state":   p.StartState,
		"end_state":     p.EndState,
		"latency_bytes": viterbi.Latency,
	}
	if layout, err := p.Layout(); err == nil {
		decoder["output_multiple"] = layout.OutputBytes
		decoder["input_per_block"] = layout.Symbols
		decoder["relative_rate"] = float64(layout.K*layout.M) / float64(8*layout.N)
	} else {
		decoder["error"] = err.Error()
	}
	response["decoder"] = decoder

	if c := a.deps.Metrics; c != nil {
		response["counters"] = map[string]interface{}{
			"blocks_decoded": c.GetBlocksDecoded(),
			"bytes_in":       c.GetBytesIn(),
			"bytes_out":      c.GetBytesOut(),
			"work_calls":     c.GetWorkCalls(),
			"runs_active":    c.GetActiveRuns(),
		}
	}

	a.writeJSON(w, response)
}

// HandleRuns handles the /api/runs endpoint
func (a *API) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.deps.Runs == nil {
		a.writeJSON(w, []interface{}{})
		return
	}

	runs, err := a.deps.Runs.GetRecent(listLimit(r))
	if err != nil {
		a.logger.Error("Failed to load runs", logger.Error(err))
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, runs)
}

// HandleRun handles /api/runs/{id}: one run with its BER points
func (a *API) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.deps.Runs == nil {
		http.Error(w, "Run history is disabled", http.StatusNotFound)
		return
	}

	id := r.PathValue("id")
	run, err := a.deps.Runs.GetByRunID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("Failed to load run", logger.Error(err), logger.String("run_id", id))
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	points := []database.BERMeasurement{}
	if a.deps.BER != nil {
		if points, err = a.deps.BER.GetByRun(id); err != nil {
			a.logger.Error("Failed to load BER measurements", logger.Error(err), logger.String("run_id", id))
			http.Error(w, "Failed to load BER measurements", http.StatusInternalServerError)
			return
		}
	}

	a.writeJSON(w, map[string]interface{}{
		"run":    run,
		"points": points,
	})
}

// HandleBER handles the /api/ber endpoint. With ?run=<id> it returns that
// run's curve, otherwise the most recent points.
func (a *API) HandleBER(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.deps.BER != nil {
		var (
			points []database.BERMeasurement
			err    error
		)
		if runID := r.URL.Query().Get("run"); runID != "" {
			points, err = a.deps.BER.GetByRun(runID)
		} else {
			points, err = a.deps.BER.GetRecent(listLimit(r))
		}
		if err != nil {
			a.logger.Error("Failed to load BER measurements", logger.Error(err))
			http.Error(w, "Failed to load BER measurements", http.StatusInternalServerError)
			return
		}
		a.writeJSON(w, points)
		return
	}

	// Without a database serve the in-memory points of this process.
	points := []map[string]interface{}{}
	if a.deps.Metrics != nil {
		for _, p := range a.deps.Metrics.GetBERPoints() {
			points = append(points, map[string]interface{}{
				"ebn0_db":     p.EbN0dB,
				"bits":        p.Bits,
				"errors":      p.Errors,
				"ber":         p.BER(),
				"union_bound": p.UnionBound,
				"uncoded":     channel.UncodedBER(p.EbN0dB),
			})
		}
	}
	a.writeJSON(w, points)
}

func (a *API) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
