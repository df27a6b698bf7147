package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (s *Session) handleIntent(m intent) error {
	if s.closing {
		return ErrClosed
	}

	var err error
	switch m.kind {
	case intentStartScan:
		err = s.startScan()
	case intentStopScan:
		err = s.stopScan()
	case intentSelect:
		err = s.selectDevice(m.key)
	case intentConnect:
		err = s.connect()
	case intentStartStream:
		err = s.startStream()
	case intentStopStream:
		err = s.stopStream()
	case intentDisconnect:
		err = s.disconnect()
	default:
		err = fmt.Errorf("unknown intent %d", m.kind)
	}

	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"intent": m.kind,
			"state":  s.state,
		}).WithError(err).Debug("Intent rejected")
	}
	return err
}

// startScan clears the registry and opens a scan window. Scanning runs
// alongside any selection or connection already in progress.
func (s *Session) startScan() error {
	if s.scanning {
		return ErrBusy
	}

	s.registry.Reset()
	s.scanning = true
	s.scanGen++
	if s.state == Idle {
		s.setState(Scanning)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ScanDuration)
	s.scanCancel = cancel
	s.runScan(ctx, s.scanGen)

	s.logger.WithField("duration", s.cfg.ScanDuration).Info("Scanning for devices...")
	s.publish()
	return nil
}

// stopScan ends the scan window early. A selection made during the scan is kept.
func (s *Session) stopScan() error {
	if !s.scanning {
		return nil
	}
	s.endScan()
	s.publish()
	return nil
}

func (s *Session) endScan() {
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	s.scanning = false
	s.scanGen++
	if s.state == Scanning {
		s.setState(s.restState())
	}
}

func (s *Session) selectDevice(key string) error {
	switch s.state {
	case Idle, Scanning, Discovered:
	default:
		return ErrBusy
	}

	dev, ok := s.registry.Find(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	if !strings.Contains(dev.Name, s.cfg.VendorMarker) {
		return fmt.Errorf("%w: %q is not a %s sensor", ErrInvalidSelection, dev.DisplayName(), s.cfg.VendorMarker)
	}

	s.selected = &dev
	s.setState(Discovered)
	s.logger.WithFields(logrus.Fields{
		"device": dev.DisplayName(),
		"id":     dev.ID,
	}).Info("Device selected")
	s.publish()
	return nil
}

func (s *Session) connect() error {
	switch s.state {
	case Connecting, Connected, Streaming:
		return nil
	case Subscribing, Disconnecting:
		return ErrBusy
	case Discovered:
	default:
		return invalidTransition("connect", s.state)
	}

	s.gen++
	s.attemptID = uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.opCancel = cancel

	s.setState(Connecting)
	s.entry().Info("Connecting...")
	s.runConnect(ctx, s.gen, *s.selected)
	s.publish()
	return nil
}

func (s *Session) startStream() error {
	switch s.state {
	case Streaming:
		return nil
	case Subscribing, Connecting, Disconnecting:
		return ErrBusy
	case Connected:
	default:
		return invalidTransition("start stream", s.state)
	}

	s.setState(Subscribing)
	s.runWrite(opStartStream, s.startCmd)
	s.publish()
	return nil
}

func (s *Session) stopStream() error {
	switch s.state {
	case Connected:
		return nil
	case Subscribing, Connecting, Disconnecting:
		return ErrBusy
	case Streaming:
	default:
		return invalidTransition("stop stream", s.state)
	}

	s.subscribed = false
	s.setState(Subscribing)
	s.runWrite(opStopStream, s.stopCmd)
	s.publish()
	return nil
}

// disconnect drops the selection. With a link held or in progress it
// supersedes any in-flight operation and tears the link down.
func (s *Session) disconnect() error {
	switch {
	case s.state == Disconnecting:
		return nil
	case s.state.linked():
		s.beginTeardown()
		return nil
	case s.selected != nil:
		s.selected = nil
		s.setState(s.restState())
		s.publish()
		return nil
	default:
		return nil
	}
}

// beginTeardown moves a linked session to Disconnecting. The stop command
// is written first when the sensor may be streaming.
func (s *Session) beginTeardown() {
	stopFirst := s.state == Streaming || s.state == Subscribing

	if s.opCancel != nil {
		s.opCancel()
		s.opCancel = nil
	}
	s.gen++
	s.subscribed = false
	s.setState(Disconnecting)
	s.entry().WithField("stop_stream", stopFirst).Info("Disconnecting...")

	s.runDisconnect(s.gen, s.selected.ID, stopFirst)
	s.publish()
}

func (s *Session) handleClose() {
	if s.closing {
		return
	}
	s.closing = true
	s.logger.WithField("state", s.state).Debug("Session shutting down")

	if s.scanning {
		s.endScan()
	}

	switch {
	case s.state == Disconnecting:
		// The pending disconnect result finishes the shutdown.
	case s.state.linked():
		s.beginTeardown()
	default:
		s.finish()
	}
}

// finish releases the outputs and stops the actor.
func (s *Session) finish() {
	s.selected = nil
	s.subscribed = false
	s.sample = nil
	s.setState(Idle)
	s.publish()

	s.snapshots.Close()
	s.samples.Close()
	s.errs.Close()
	s.done = true
}

// restState is where the session settles when nothing is in flight.
func (s *Session) restState() State {
	switch {
	case s.selected != nil:
		return Discovered
	case s.scanning:
		return Scanning
	default:
		return Idle
	}
}

func (s *Session) entry() *logrus.Entry {
	fields := logrus.Fields{"attempt": s.attemptID}
	if s.selected != nil {
		fields["device"] = s.selected.DisplayName()
	}
	return s.logger.WithFields(fields)
}
