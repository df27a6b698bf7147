package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/accstream/internal/session"
	"github.com/srg/accstream/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Identity of the sensor most tests talk to.
const (
	SensorName    = "Movesense 123"
	SensorAddress = "aa:bb:cc:dd:ee:01"
)

// SessionSuite provides a session wired to a FakeTransport for every test.
//
// Basic usage:
//
//	type StreamSuite struct {
//	    testutils.SessionSuite
//	}
//
//	func TestStreamSuite(t *testing.T) {
//	    suite.Run(t, new(StreamSuite))
//	}
//
// Custom configuration usage:
//
//	func (s *StreamSuite) SetupTest() {
//	    s.WithConfig(func(cfg *config.Config) {
//	        cfg.OperationTimeout = 50 * time.Millisecond
//	    })
//	    s.SessionSuite.SetupTest() // Call parent last to apply configuration
//	}
type SessionSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Transport *FakeTransport
	Config    *config.Config
	Session   *session.Session

	// WaitTimeout bounds WaitFor polling.
	WaitTimeout time.Duration
}

// WithConfig adjusts the configuration the next SetupTest uses.
func (s *SessionSuite) WithConfig(fn func(cfg *config.Config)) {
	if s.Config == nil {
		s.Config = s.defaultConfig()
	}
	fn(s.Config)
}

// SetupTest creates the transport and the session. Called before each test method.
func (s *SessionSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.WaitTimeout == 0 {
		s.WaitTimeout = 2 * time.Second
	}
	if s.Config == nil {
		s.Config = s.defaultConfig()
	}

	s.Transport = NewFakeTransport()
	sess, err := session.New(s.Transport, s.Config, s.Logger)
	s.Require().NoError(err, "session MUST be created from a valid config")
	s.Session = sess
}

// TearDownTest shuts the session down and resets per-test configuration.
func (s *SessionSuite) TearDownTest() {
	if s.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
		defer cancel()
		s.NoError(s.Session.Close(ctx), "session MUST shut down")
	}
	s.Session = nil
	s.Config = nil
}

func (s *SessionSuite) defaultConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "silent"
	// Long enough that tests end the scan explicitly.
	cfg.ScanDuration = time.Minute
	return cfg
}

// Ctx returns a bounded context for one test step.
func (s *SessionSuite) Ctx() context.Context {
	return s.Helper.Context()
}

// Snapshot returns the session's current snapshot.
func (s *SessionSuite) Snapshot() session.Snapshot {
	snap, err := s.Session.Snapshot(s.Ctx())
	s.Require().NoError(err, "snapshot MUST be available while the session runs")
	return snap
}

// WaitFor polls snapshots until cond holds.
func (s *SessionSuite) WaitFor(cond func(session.Snapshot) bool, msgAndArgs ...interface{}) session.Snapshot {
	var last session.Snapshot
	s.Require().Eventually(func() bool {
		last = s.Snapshot()
		return cond(last)
	}, s.WaitTimeout, 5*time.Millisecond, msgAndArgs...)
	return last
}

// WaitForState polls snapshots until the session reaches state.
func (s *SessionSuite) WaitForState(state session.State) session.Snapshot {
	return s.WaitFor(func(snap session.Snapshot) bool {
		return snap.State == state
	}, fmt.Sprintf("session MUST reach %s", state))
}

// Discover starts a scan and feeds advs to it. Snapshots taken after
// Discover returns already reflect every advertisement.
func (s *SessionSuite) Discover(advs ...*AdvertisementBuilder) {
	s.Require().NoError(s.Session.StartScan(s.Ctx()), "scan MUST start")
	s.Require().Eventually(s.Transport.Scanning, s.WaitTimeout, time.Millisecond, "transport scan MUST be running")
	for _, adv := range advs {
		s.Require().True(s.Transport.Advertise(adv.Build()), "advertisement MUST reach the running scan")
	}
}

// Connect discovers the default sensor, selects it, ends the scan and
// connects. It returns once the session is Connected.
func (s *SessionSuite) Connect() session.Snapshot {
	s.Discover(CreateMockAdvertisement(SensorName, SensorAddress, -50))
	s.Require().NoError(s.Session.SelectDevice(s.Ctx(), SensorName))
	s.Require().NoError(s.Session.StopScan(s.Ctx()))
	s.Require().NoError(s.Session.Connect(s.Ctx()))
	return s.WaitForState(session.Connected)
}

// Stream runs Connect and starts the stream. It returns once the session is Streaming.
func (s *SessionSuite) Stream() session.Snapshot {
	s.Connect()
	s.Require().NoError(s.Session.StartStream(s.Ctx()))
	return s.WaitForState(session.Streaming)
}
