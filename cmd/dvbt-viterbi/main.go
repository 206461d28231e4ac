package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dbehnke/dvbt-viterbi/pkg/config"
	"github.com/dbehnke/dvbt-viterbi/pkg/database"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/metrics"
	"github.com/dbehnke/dvbt-viterbi/pkg/runlog"
	"github.com/dbehnke/dvbt-viterbi/pkg/simulation"
	"github.com/dbehnke/dvbt-viterbi/pkg/stream"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
	"github.com/dbehnke/dvbt-viterbi/pkg/web"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	mode := flag.String("mode", "decode", "Operation: decode, encode or ber")
	inFile := flag.String("in", "-", "Input file (- for stdin)")
	outFile := flag.String("out", "-", "Output file (- for stdout)")
	serve := flag.Bool("serve", false, "Keep metrics and web servers running after the job until interrupted")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("DVB-T Viterbi %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	// Decoded data may go to stdout, so logs go to stderr
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	})

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	// Validate only mode
	if *validate {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	// Reinitialize logger with config settings
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	log.Info("Starting DVB-T Viterbi",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("mode", *mode))

	params, err := cfg.Decoder.Params()
	if err != nil {
		log.Error("Invalid decoder configuration", logger.Error(err))
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal",
				logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize wait group for goroutines
	var wg sync.WaitGroup

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector()

	// Start Prometheus metrics server if enabled
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log.WithComponent("metrics"),
			)
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
		log.Info("Prometheus metrics server started",
			logger.Int("port", cfg.Metrics.Prometheus.Port),
			logger.String("path", cfg.Metrics.Prometheus.Path))
	}

	// Open run history database if enabled
	sinks := runlog.Sinks{Metrics: metricsCollector}
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewDB(database.Config{
			Path:      cfg.Database.Path,
			Retention: cfg.Database.Retention,
		}, log.WithComponent("database"))
		if err != nil {
			log.Error("Failed to open database", logger.Error(err))
			os.Exit(1)
		}
		sinks.Runs = database.NewDecodeRunRepository(db.GetDB())
		sinks.BER = database.NewBERRepository(db.GetDB())
		log.Info("Database opened", logger.String("path", cfg.Database.Path))
	}

	// Start web server if enabled
	if cfg.Web.Enabled {
		web.SetBuildInfo(web.BuildInfo{Version: version, Commit: gitCommit, BuildTime: buildTime})
		srv := web.NewServer(cfg.Web, web.Deps{
			Params:  params,
			Runs:    sinks.Runs,
			BER:     sinks.BER,
			Metrics: metricsCollector,
		}, log.WithComponent("web"))
		sinks.Notifier = srv.GetHub()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && err != context.Canceled {
				log.Error("Web server error", logger.Error(err))
			}
		}()
		log.Info("Web server started",
			logger.String("host", cfg.Web.Host),
			logger.Int("port", cfg.Web.Port))
	}

	recorder := runlog.NewRecorder(sinks, log.WithComponent("runlog"))

	jobErr := runJob(ctx, *mode, *inFile, *outFile, cfg, params, recorder, log)
	if jobErr != nil && !errors.Is(jobErr, context.Canceled) {
		log.Error("Job failed", logger.Error(jobErr))
	}

	// Wait for shutdown signal when serving
	if *serve && ctx.Err() == nil {
		log.Info("Job complete, serving until interrupted")
		<-ctx.Done()
	}

	// Cancel context to trigger graceful shutdown
	cancel()

	// Wait for all components to stop
	wg.Wait()

	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", logger.Error(err))
		}
	}

	log.Info("DVB-T Viterbi stopped")
	if jobErr != nil && !errors.Is(jobErr, context.Canceled) {
		os.Exit(1)
	}
}

// runJob runs one CLI operation as a recorded run.
func runJob(ctx context.Context, mode, inPath, outPath string, cfg *config.Config, params viterbi.Params, rec *runlog.Recorder, log *logger.Logger) error {
	kind := database.RunKindDecode
	switch mode {
	case "decode":
	case "encode":
		kind = database.RunKindEncode
	case "ber":
		kind = database.RunKindBER
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	runID := rec.Start(runlog.Describe{
		Kind:      kind,
		Params:    params,
		LaneWidth: cfg.Decoder.LaneWidth,
		Scalar:    cfg.Decoder.Scalar,
	})

	var err error
	switch kind {
	case database.RunKindDecode:
		err = decode(ctx, inPath, outPath, cfg, params, runID, rec, log)
	case database.RunKindEncode:
		err = encode(ctx, inPath, outPath, params, log)
	case database.RunKindBER:
		err = simulate(ctx, cfg, params, runID, rec, log)
	}
	rec.Finish(runID, err)
	return err
}

func decode(ctx context.Context, inPath, outPath string, cfg *config.Config, params viterbi.Params, runID string, rec *runlog.Recorder, log *logger.Logger) error {
	opts := append(cfg.Options(), viterbi.WithLogger(log))
	dec, err := viterbi.New(params, opts...)
	if err != nil {
		return err
	}

	in, out, closeFiles, err := openFiles(inPath, outPath)
	if err != nil {
		return err
	}
	defer closeFiles()

	pump := stream.NewPump(stream.DefaultBlocksPerCall, func(s viterbi.Stats) {
		rec.Progress(runID, s)
	}, log.WithComponent("stream"))
	_, err = pump.Decode(ctx, dec, in, out)
	return err
}

func encode(ctx context.Context, inPath, outPath string, params viterbi.Params, log *logger.Logger) error {
	enc, err := viterbi.NewEncoder(params)
	if err != nil {
		return err
	}
	layout, err := params.Layout()
	if err != nil {
		return err
	}

	in, out, closeFiles, err := openFiles(inPath, outPath)
	if err != nil {
		return err
	}
	defer closeFiles()

	n, err := stream.NewPump(stream.DefaultBlocksPerCall, nil, log.WithComponent("stream")).
		Encode(ctx, enc, layout.OutputBytes, in, out)
	log.Info("Encoded stream", logger.Int("symbol_bytes", n))
	return err
}

func simulate(ctx context.Context, cfg *config.Config, params viterbi.Params, runID string, rec *runlog.Recorder, log *logger.Logger) error {
	runner, err := simulation.NewRunner(simulation.Config{
		Params:    params,
		Options:   cfg.Options(),
		Amplitude: cfg.Channel.Amplitude,
		Mode:      cfg.Simulation.Mode,
		EbN0dB:    cfg.Simulation.EbN0dB,
		Bits:      cfg.Simulation.Bits,
		Seed:      cfg.Simulation.Seed,
	}, log)
	if err != nil {
		return err
	}
	_, err = runner.Run(ctx, func(res simulation.Result) {
		rec.RecordBER(runID, res)
	})
	return err
}

// openFiles opens the job input and output, "-" meaning stdin and stdout.
func openFiles(inPath, outPath string) (io.Reader, io.Writer, func(), error) {
	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	var closers []io.Closer

	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if inPath != "-" && inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open input: %w", err)
		}
		in = f
		closers = append(closers, f)
	}
	if outPath != "-" && outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("failed to create output: %w", err)
		}
		out = f
		closers = append(closers, f)
	}
	return in, out, closeAll, nil
}
