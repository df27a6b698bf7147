package main

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// syncBuffer is a bytes.Buffer safe for a command writing while the test polls.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs cobra commands against a FakeTransport.
// All cmd/accstream test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Helper    *testutils.TestHelper
	Logger    *logrus.Logger
	Transport *testutils.FakeTransport

	originalTransport func(*logrus.Logger) (device.Transport, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Transport = testutils.NewFakeTransport()

	s.originalTransport = newTransport
	newTransport = func(*logrus.Logger) (device.Transport, error) {
		return s.Transport, nil
	}

	// Flag values outlive a single Execute.
	scanDuration, scanFormat, scanDedup = 0, "table", ""
	streamRate, streamCount, streamJSON, streamNoColor = 0, 0, false, false
	_ = rootCmd.PersistentFlags().Set("config", "")
	_ = rootCmd.PersistentFlags().Set("log-level", "")
}

func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.originalTransport
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(syncBuffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// StartCommand runs a command in the background. The returned buffer can be
// polled while the command runs; the channel yields its error once.
func (s *CommandTestSuite) StartCommand(cmd *cobra.Command, args ...string) (*syncBuffer, <-chan error) {
	buf := new(syncBuffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.Execute()
	}()
	return buf, errCh
}

// AwaitScan waits until the command under test has a scan running.
func (s *CommandTestSuite) AwaitScan() {
	s.Require().Eventually(s.Transport.Scanning, 2*time.Second, time.Millisecond, "command MUST start a scan")
}

// AwaitOutput waits until buf contains text.
func (s *CommandTestSuite) AwaitOutput(buf *syncBuffer, text string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(buf.String(), text)
	}, 2*time.Second, time.Millisecond, "output MUST contain %q", text)
}

// AwaitResult waits for a background command to finish.
func (s *CommandTestSuite) AwaitResult(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		s.FailNow("command did not finish")
		return nil
	}
}
