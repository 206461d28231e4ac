package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
)

const namespace = "dvbt_viterbi"

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// family is one metric in the text exposition
type family struct {
	name  string
	help  string
	kind  string // counter or gauge
	value func(c *Collector) uint64
}

var families = []family{
	{"blocks_decoded_total", "Total blocks decoded", "counter", (*Collector).GetBlocksDecoded},
	{"bytes_in_total", "Total symbol bytes consumed", "counter", (*Collector).GetBytesIn},
	{"bytes_out_total", "Total decoded bytes produced", "counter", (*Collector).GetBytesOut},
	{"work_calls_total", "Total decoder work calls", "counter", (*Collector).GetWorkCalls},
	{"runs_total", "Total decode and simulation runs", "counter", (*Collector).GetTotalRuns},
	{"runs_active", "Number of runs in progress", "gauge", func(c *Collector) uint64 {
		return uint64(c.GetActiveRuns())
	}},
}

// PrometheusHandler serves the collector in Prometheus text format
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{collector: collector}
}

func writeHeader(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n# TYPE %s_%s %s\n", namespace, name, help, namespace, name, kind)
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	for _, f := range families {
		writeHeader(w, f.name, f.help, f.kind)
		fmt.Fprintf(w, "%s_%s %d\n", namespace, f.name, f.value(h.collector))
	}

	// One sample per Eb/N0 point
	points := h.collector.GetBERPoints()
	curves := []struct {
		name, help string
		value      func(BERPoint) float64
	}{
		{"ber", "Measured bit error rate", BERPoint.BER},
		{"ber_union_bound", "Soft decision union bound", func(p BERPoint) float64 { return p.UnionBound }},
	}
	for _, c := range curves {
		writeHeader(w, c.name, c.help, "gauge")
		for _, p := range points {
			fmt.Fprintf(w, "%s_%s{ebn0_db=%q} %g\n", namespace, c.name,
				strconv.FormatFloat(p.EbN0dB, 'g', -1, 64), c.value(p))
		}
	}
}

// PrometheusServer exposes a Collector on its own listener
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.Nop()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start serves metrics until ctx is cancelled, then returns ctx.Err().
// A disabled server returns nil immediately.
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, NewPrometheusHandler(s.collector))

	// Port 0 picks a free port; the real one is logged
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.log.Info("Serving Prometheus metrics",
		logger.String("addr", ln.Addr().String()),
		logger.String("path", s.config.Path))

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		if err := s.Stop(); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop shuts the server down, waiting up to five seconds for open scrapes
func (s *PrometheusServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
