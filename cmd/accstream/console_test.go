package main

import (
	"testing"
	"time"

	"github.com/srg/accstream/internal/session"
	"github.com/srg/accstream/internal/testutils"
	"github.com/srg/accstream/pkg/config"
	"github.com/stretchr/testify/suite"
)

type ConsoleTestSuite struct {
	CommandTestSuite

	app     *app
	out     *syncBuffer
	console *Console
}

func TestConsoleTestSuite(t *testing.T) {
	suite.Run(t, new(ConsoleTestSuite))
}

func (s *ConsoleTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()

	cfg := config.DefaultConfig()
	cfg.LogLevel = "silent"
	cfg.ScanDuration = time.Minute

	a, err := openAppWith(cfg, s.Logger)
	s.Require().NoError(err)
	s.app = a
	s.out = new(syncBuffer)
	s.console = newConsole(a, s.out)
}

func (s *ConsoleTestSuite) TearDownTest() {
	s.app.Close()
	s.CommandTestSuite.TearDownTest()
}

func (s *ConsoleTestSuite) exec(line string) bool {
	return s.console.Execute(s.Helper.Context(), line)
}

func (s *ConsoleTestSuite) waitForState(state session.State) {
	s.Require().Eventually(func() bool {
		snap, err := s.app.session.Snapshot(s.Helper.Context())
		return err == nil && snap.State == state
	}, 2*time.Second, 5*time.Millisecond, "session MUST reach %s", state)
}

func (s *ConsoleTestSuite) TestConsole_FullFlow() {
	// GOAL: Verify console lines drive the session through a full stream cycle
	//
	// TEST SCENARIO: scan → select (name with spaces) → connect → start → stop → disconnect

	s.False(s.exec("scan"))
	s.AwaitScan()
	s.Require().True(s.Transport.Advertise(
		testutils.CreateMockAdvertisement(testutils.SensorName, testutils.SensorAddress, -50).Build()))

	s.exec("select Movesense 123")
	s.waitForState(session.Discovered)
	s.exec("stop-scan")

	s.exec("connect")
	s.waitForState(session.Connected)
	s.exec("start")
	s.waitForState(session.Streaming)
	s.exec("stop")
	s.waitForState(session.Connected)
	s.exec("d")
	s.waitForState(session.Idle)

	s.NotContains(s.out.String(), "Error:", "no step of the flow MUST fail")
	s.Equal([]string{
		testutils.OpScan, testutils.OpConnect, testutils.OpDiscover, testutils.OpSubscribe,
		testutils.OpWrite, testutils.OpWrite, testutils.OpDisconnect,
	}, s.Transport.Ops())
}

func (s *ConsoleTestSuite) TestConsole_DevicesAndStatus() {
	s.exec("s")
	s.AwaitScan()
	s.Require().True(s.Transport.Advertise(
		testutils.CreateMockAdvertisement(testutils.SensorName, testutils.SensorAddress, -50).Build()))

	s.exec("ls")
	s.Contains(s.out.String(), "Movesense 123  aa:bb:cc:dd:ee:01  -50 dBm  yes")

	s.exec("status")
	out := s.out.String()
	s.Contains(out, "State:      scanning")
	s.Contains(out, "Selected:   -")
	s.Contains(out, "Scanning:   true")
	s.Contains(out, "Devices:    1")
}

func (s *ConsoleTestSuite) TestConsole_Errors() {
	// GOAL: Verify rejected intents print a user-facing error and keep the console running
	//
	// TEST SCENARIO: unknown device, connect without selection, unknown command, missing argument

	s.False(s.exec("select nope"))
	s.Contains(s.out.String(), "Error: device not discovered")

	s.False(s.exec("connect"))
	s.Contains(s.out.String(), "Error: invalid transition")

	s.False(s.exec("frobnicate"))
	s.Contains(s.out.String(), "Unknown command: frobnicate (type 'help' for commands)")

	s.False(s.exec("select"))
	s.Contains(s.out.String(), "Usage: select <name-or-address>")

	s.False(s.exec("   "))
}

func (s *ConsoleTestSuite) TestConsole_WatchAndHelp() {
	s.exec("watch on")
	s.True(s.console.watch.Load())
	s.exec("watch")
	s.False(s.console.watch.Load())
	s.Contains(s.out.String(), "Sample output on")
	s.Contains(s.out.String(), "Sample output off")

	s.exec("help")
	s.Contains(s.out.String(), "accstream console commands:")
}

func (s *ConsoleTestSuite) TestConsole_Quit() {
	for _, line := range []string{"quit", "exit", "q", "QUIT"} {
		s.True(s.exec(line), "%q MUST end the console", line)
	}
}
