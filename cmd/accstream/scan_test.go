package main

import (
	"testing"
	"unicode/utf8"

	"github.com/srg/accstream/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ScanCommandTestSuite struct {
	CommandTestSuite
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}

func (s *ScanCommandTestSuite) advertise() {
	s.AwaitScan()
	s.Transport.Advertise(testutils.CreateMockAdvertisement(testutils.SensorName, testutils.SensorAddress, -50).Build())
	s.Transport.Advertise(testutils.CreateMockAdvertisement("Polar H10 1", "11:22:33:44:55:66", -70).Build())
	s.Transport.Advertise(testutils.CreateMockAdvertisement(testutils.SensorName, "aa:bb:cc:dd:ee:02", -30).Build())
	s.Transport.Advertise(testutils.CreateMockAdvertisement("Beacon", "22:22:22:22:22:22", -20).
		WithConnectable(false).Build())
}

func (s *ScanCommandTestSuite) TestScan_Table() {
	// GOAL: Verify scan prints connectable devices in discovery order, deduplicated by name
	//
	// TEST SCENARIO: 4 advertisements (one duplicate name, one non-connectable) → 2-row table

	buf, errCh := s.StartCommand(rootCmd, "scan", "--duration", "300ms")
	s.advertise()
	s.Require().NoError(s.AwaitResult(errCh))

	testutils.NewTextAsserter(s.T()).Assert(buf.String(), `
NAME  ADDRESS  RSSI  SENSOR
------------------------------------------------------------
Movesense 123  aa:bb:cc:dd:ee:01  -50 dBm  yes
Polar H10 1    11:22:33:44:55:66  -70 dBm  no
`)
}

func (s *ScanCommandTestSuite) TestScan_JSON() {
	buf, errCh := s.StartCommand(rootCmd, "scan", "--duration", "300ms", "--format", "json")
	s.advertise()
	s.Require().NoError(s.AwaitResult(errCh))

	testutils.NewJSONAsserter(s.T()).Assert(buf.String(), `[
		{"id": "aa:bb:cc:dd:ee:01", "name": "Movesense 123", "connectable": true, "rssi": "<<PRESENCE>>"},
		{"id": "11:22:33:44:55:66", "name": "Polar H10 1", "connectable": true, "rssi": -70}
	]`)
}

func (s *ScanCommandTestSuite) TestScan_DedupByID() {
	buf, errCh := s.StartCommand(rootCmd, "scan", "--duration", "300ms", "--format", "json", "--dedup", "id")
	s.advertise()
	s.Require().NoError(s.AwaitResult(errCh))

	testutils.NewJSONAsserter(s.T()).WithOptions(testutils.WithIgnoredFields("rssi")).Assert(buf.String(), `[
		{"id": "aa:bb:cc:dd:ee:01", "name": "Movesense 123"},
		{"id": "11:22:33:44:55:66", "name": "Polar H10 1"},
		{"id": "aa:bb:cc:dd:ee:02", "name": "Movesense 123"}
	]`)
}

func (s *ScanCommandTestSuite) TestScan_NoDevices() {
	out, err := s.ExecuteCommand(rootCmd, "scan", "--duration", "50ms")
	s.Require().NoError(err)
	s.Contains(out, "No devices discovered")
}

func (s *ScanCommandTestSuite) TestScan_InvalidArguments() {
	_, err := s.ExecuteCommand(rootCmd, "scan", "--format", "xml")
	s.ErrorContains(err, "invalid format")

	_, err = s.ExecuteCommand(rootCmd, "scan", "--format", "table", "--dedup", "mac")
	s.ErrorContains(err, "invalid dedup key")

	s.Zero(s.Transport.CallCount(testutils.OpScan), "invalid arguments MUST NOT start a scan")
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "Movesense 123", truncateName("Movesense 123", 24))
	assert.Equal(t, "Movesense 17463000019...", truncateName("Movesense 174630000192 Ext", 24))

	// Multi-byte names are cut on rune boundaries.
	cut := truncateName("Датчик движения Movesense 01", 24)
	assert.True(t, utf8.ValidString(cut), "truncated name MUST stay valid UTF-8")
	assert.Equal(t, 24, utf8.RuneCountInString(cut))
	assert.Equal(t, "Датчик движения Moves...", cut)
}
