package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/accstream/internal/accel"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/groutine"
)

// stepContext bounds a single transport call when operation_timeout is set.
func (s *Session) stepContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.OperationTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Session) runScan(ctx context.Context, gen uint64) {
	allowDup := s.cfg.AllowDuplicates
	groutine.Go(ctx, "session-scan", func(ctx context.Context) {
		err := s.transport.Scan(ctx, allowDup, func(adv device.Advertisement) {
			s.post(advertisement{gen: gen, dev: device.NewDevice(adv)})
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		s.post(scanStopped{gen: gen, err: err})
	})
}

// runConnect performs connect, service discovery and the notification
// subscription as one attempt. A failure after the link is up releases it,
// unless the attempt was superseded: then the link is reported back and the
// actor decides whether anyone still needs it.
func (s *Session) runConnect(ctx context.Context, gen uint64, dev device.Device) {
	cfg := s.cfg
	groutine.Go(ctx, "session-connect", func(ctx context.Context) {
		res := opResult{op: opConnect, gen: gen, id: dev.ID}

		step := func(op string, fn func(ctx context.Context) error) bool {
			if err := ctx.Err(); err != nil {
				res.err = &TransportError{Op: op, Device: dev.DisplayName(), Err: err}
				return false
			}
			stepCtx, cancel := s.stepContext(ctx)
			defer cancel()
			if err := fn(stepCtx); err != nil {
				res.err = &TransportError{Op: op, Device: dev.DisplayName(), Err: err}
				return false
			}
			return true
		}

		ok := step("connect", func(ctx context.Context) error {
			err := s.transport.Connect(ctx, dev.ID)
			if errors.Is(err, device.ErrAlreadyConnected) {
				// A superseded attempt left its link behind.
				s.logger.WithField("id", dev.ID).Debug("Releasing leftover link before connecting")
				s.releaseLink(dev.ID)
				err = s.transport.Connect(ctx, dev.ID)
			}
			return err
		})
		if ok {
			res.linked = true
			ok = step("discover services", func(ctx context.Context) error {
				return s.transport.DiscoverServices(ctx, dev.ID)
			}) && step("subscribe", func(ctx context.Context) error {
				return s.transport.Subscribe(ctx, dev.ID, cfg.ServiceUUID, cfg.NotifyCharUUID, func(data []byte) {
					s.postFrame(gen, data)
				})
			})
			if !ok && ctx.Err() == nil {
				s.releaseLink(dev.ID)
				res.linked = false
			}
		}

		if ok {
			res.disconnected = s.transport.Disconnected(dev.ID)
		}
		s.post(res)
	})
}

func (s *Session) runWrite(op opKind, payload []byte) {
	gen, id, name := s.gen, s.selected.ID, s.selected.DisplayName()
	cfg := s.cfg
	groutine.Go(context.Background(), "session-write", func(ctx context.Context) {
		stepCtx, cancel := s.stepContext(ctx)
		defer cancel()

		res := opResult{op: op, gen: gen, id: id}
		if err := s.transport.Write(stepCtx, id, cfg.ServiceUUID, cfg.WriteCharUUID, payload); err != nil {
			res.err = &TransportError{Op: op.String(), Device: name, Err: err}
		}
		s.post(res)
	})
}

func (s *Session) runDisconnect(gen uint64, id string, stopFirst bool) {
	cfg := s.cfg
	name := s.selected.DisplayName()
	logger := s.entry()
	groutine.Go(context.Background(), "session-disconnect", func(ctx context.Context) {
		if stopFirst {
			stepCtx, cancel := s.stepContext(ctx)
			if err := s.transport.Write(stepCtx, id, cfg.ServiceUUID, cfg.WriteCharUUID, s.stopCmd); err != nil {
				logger.WithError(err).Debug("Stop stream before disconnect failed")
			}
			cancel()
		}

		res := opResult{op: opDisconnect, gen: gen, id: id}
		stepCtx, cancel := s.stepContext(ctx)
		defer cancel()
		if err := s.transport.Disconnect(stepCtx, id); err != nil {
			res.err = &TransportError{Op: "disconnect", Device: name, Err: err}
		}
		s.post(res)
	})
}

// releaseLink drops a link nobody wants any more. Errors only get logged.
func (s *Session) releaseLink(id string) {
	ctx, cancel := s.stepContext(context.Background())
	defer cancel()
	if err := s.transport.Disconnect(ctx, id); err != nil {
		s.logger.WithField("id", id).WithError(err).Debug("Releasing link failed")
	}
}

func (s *Session) monitor(ctx context.Context, gen uint64, disconnected <-chan struct{}) {
	if disconnected == nil {
		return
	}
	groutine.Go(ctx, "session-link-monitor", func(ctx context.Context) {
		select {
		case <-disconnected:
			s.post(linkLost{gen: gen})
		case <-ctx.Done():
		}
	})
}

func (s *Session) onAdvertisement(m advertisement) {
	if m.gen != s.scanGen {
		return
	}
	if s.registry.OnAdvertisement(m.dev) {
		s.logger.WithFields(logrus.Fields{
			"device": m.dev.DisplayName(),
			"id":     m.dev.ID,
			"rssi":   m.dev.RSSI,
		}).Debug("Device discovered")
		s.publish()
	}
}

func (s *Session) onScanStopped(m scanStopped) {
	if m.gen != s.scanGen {
		return
	}
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	s.scanning = false
	s.scanGen++
	if s.state == Scanning {
		s.setState(s.restState())
	}
	s.logger.WithField("devices", s.registry.Len()).Info("Scan finished")
	if m.err != nil {
		s.fail(&TransportError{Op: "scan", Err: m.err})
	}
	s.publish()
}

func (s *Session) onOpResult(m opResult) {
	if m.gen != s.gen {
		s.onStaleResult(m)
		return
	}

	switch m.op {
	case opConnect:
		if m.err != nil {
			s.opCancel()
			s.opCancel = nil
			s.setState(Discovered)
			s.fail(m.err)
			break
		}
		s.setState(Connected)
		s.entry().Info("Connected")
		ctx, cancel := context.WithCancel(context.Background())
		s.opCancel = cancel
		s.monitor(ctx, s.gen, m.disconnected)

	case opStartStream:
		if m.err != nil {
			s.setState(Connected)
			s.fail(m.err)
			break
		}
		s.subscribed = true
		s.setState(Streaming)
		s.entry().Info("Streaming")

	case opStopStream:
		if m.err != nil {
			s.subscribed = true
			s.setState(Streaming)
			s.fail(m.err)
			break
		}
		s.setState(Connected)
		s.entry().Info("Stream stopped")

	case opDisconnect:
		if m.err != nil {
			if s.closing {
				s.entry().WithError(m.err).Debug("Disconnect during shutdown failed")
			} else {
				s.fail(m.err)
			}
		}
		s.entry().Info("Disconnected")
		s.selected = nil
		s.sample = nil
		s.setState(s.restState())
		if s.closing {
			s.finish()
			return
		}
	}
	s.publish()
}

// onStaleResult handles a completion for an attempt that was superseded.
// A link that came up after the user gave up on it is released, unless the
// current attempt targets the same device: a connecting attempt releases a
// leftover link itself, and an established one already replaced it.
func (s *Session) onStaleResult(m opResult) {
	s.logger.WithFields(logrus.Fields{
		"op":  m.op,
		"gen": m.gen,
	}).Debug("Discarding superseded result")

	if m.op != opConnect || !m.linked {
		return
	}
	if s.attemptActive() && s.selected.ID == m.id {
		return
	}
	id := m.id
	groutine.Go(context.Background(), "session-release", func(context.Context) {
		s.releaseLink(id)
	})
}

// attemptActive reports whether the current generation is connecting to,
// or holds, the selected device.
func (s *Session) attemptActive() bool {
	switch s.state {
	case Connecting, Connected, Subscribing, Streaming:
		return s.selected != nil
	default:
		return false
	}
}

func (s *Session) onFrame(m frameReceived) {
	if m.gen != s.gen || s.state != Streaming {
		s.dropped++
		return
	}

	samples := accel.Decode(m.data)
	latest, ok := accel.Latest(samples)
	if !ok {
		return
	}
	for _, smp := range samples {
		s.samples.Send(smp)
	}
	s.sample = &latest
	s.publish()
}

func (s *Session) onLinkLost(m linkLost) {
	if m.gen != s.gen || !s.state.linked() || s.state == Disconnecting {
		return
	}

	name := s.selected.DisplayName()
	if s.opCancel != nil {
		s.opCancel()
		s.opCancel = nil
	}
	s.gen++
	s.subscribed = false
	s.selected = nil
	s.sample = nil
	s.setState(s.restState())
	s.fail(&TransportError{Op: "link", Device: name, Err: device.ErrNotConnected})
	s.publish()
}
