package testhelpers

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/dvbt-viterbi/pkg/config"
	"github.com/dbehnke/dvbt-viterbi/pkg/database"
	"github.com/dbehnke/dvbt-viterbi/pkg/logger"
	"github.com/dbehnke/dvbt-viterbi/pkg/viterbi"
)

// IntegrationSuite provides infrastructure for integration tests
type IntegrationSuite struct {
	T      *testing.T
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc
	Hosts  []*MockHost
	DB     *database.DB
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	log := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
	})

	return &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(),
		Logger: log,
		Ctx:    ctx,
		Cancel: cancel,
		Hosts:  make([]*MockHost, 0),
	}
}

// CreateMockHost builds a decoder for p and a host driving it
func (s *IntegrationSuite) CreateMockHost(p viterbi.Params, seed uint64, opts ...viterbi.Option) *MockHost {
	dec, err := viterbi.New(p, append(opts, viterbi.WithLogger(s.Logger))...)
	if err != nil {
		s.T.Fatalf("Failed to create decoder: %v", err)
	}
	host := NewMockHost(dec, seed)
	s.Hosts = append(s.Hosts, host)
	return host
}

// OpenDatabase opens a run database in a temporary directory
func (s *IntegrationSuite) OpenDatabase() *database.DB {
	db, err := database.NewDB(database.Config{
		Path: filepath.Join(s.T.TempDir(), "integration.db"),
	}, s.Logger.WithComponent("database"))
	if err != nil {
		s.T.Fatalf("Failed to open database: %v", err)
	}
	s.DB = db
	return db
}

// GetFreePort gets a free port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup cleans up resources
func (s *IntegrationSuite) Cleanup() {
	if s.DB != nil {
		_ = s.DB.Close()
	}

	// Cancel context
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig creates a default test configuration
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Decoder: config.DecoderConfig{
			Constellation: "qpsk",
			Hierarchy:     "nh",
			Priority:      "hp",
			CodeRate:      "1/2",
			BlockBits:     1504,
			Streams:       1,
			LaneWidth:     viterbi.DefaultLaneWidth,
		},
		Channel: config.ChannelConfig{
			Amplitude:    viterbi.DefaultAmplitude,
			DesignEbN0dB: viterbi.DefaultDesignEbN0dB,
		},
		Simulation: config.SimulationConfig{
			EbN0dB: []float64{3, 4},
			Bits:   20000,
			Seed:   1,
			Mode:   "soft",
		},
		Web: config.WebConfig{
			Enabled: false,
			Host:    "127.0.0.1",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}
