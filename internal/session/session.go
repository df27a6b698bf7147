// Package session drives one sensor session: discovery, selection,
// connection, service negotiation, the accelerometer stream and teardown.
//
// All session state is owned by a single actor goroutine. Intents from the
// presentation layer and callbacks from the transport are both delivered as
// messages on one queue and handled one at a time, so no handler ever runs
// concurrently with another. Transport calls run on their own goroutines and
// report back through the same queue.
package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/accstream/internal/accel"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/discovery"
	"github.com/srg/accstream/internal/groutine"
	"github.com/srg/accstream/internal/ringchan"
	"github.com/srg/accstream/pkg/config"
)

// Session is the single-owner state machine for one sensor. Its methods are
// safe for concurrent use.
type Session struct {
	transport device.Transport
	cfg       *config.Config
	logger    *logrus.Logger
	registry  *discovery.Registry
	startCmd  []byte
	stopCmd   []byte

	inbox chan message
	quit  chan struct{} // closed when the actor exits

	snapshots *ringchan.RingChannel[Snapshot]
	samples   *ringchan.RingChannel[accel.Sample]
	errs      *ringchan.RingChannel[error]

	// Actor-owned state. Only touched from run().
	state      State
	selected   *device.Device
	subscribed bool
	sample     *accel.Sample

	scanning   bool
	scanGen    uint64
	scanCancel context.CancelFunc

	gen       uint64 // bumped whenever in-flight link work is superseded
	opCancel  context.CancelFunc
	attemptID string

	closing bool
	done    bool
	dropped uint64
}

// New creates a session in the Idle state and starts its actor.
func New(transport device.Transport, cfg *config.Config, logger *logrus.Logger) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	startCmd, err := cfg.StartCommand()
	if err != nil {
		return nil, err
	}
	dedup, err := discovery.ParseDedupKey(cfg.DedupKey)
	if err != nil {
		return nil, err
	}

	s := &Session{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		registry:  discovery.New(dedup),
		startCmd:  startCmd,
		stopCmd:   cfg.StopCommand(),
		inbox:     make(chan message, cfg.QueueSize),
		quit:      make(chan struct{}),
		snapshots: ringchan.New[Snapshot](cfg.OutputBuffer),
		samples:   ringchan.New[accel.Sample](cfg.OutputBuffer),
		errs:      ringchan.New[error](cfg.OutputBuffer),
		state:     Idle,
	}

	groutine.Go(context.Background(), "session-actor", s.run)
	return s, nil
}

// StartScan clears the registry and scans for the configured window.
func (s *Session) StartScan(ctx context.Context) error {
	return s.do(ctx, intentStartScan, "")
}

// StopScan ends a running scan early.
func (s *Session) StopScan(ctx context.Context) error {
	return s.do(ctx, intentStopScan, "")
}

// SelectDevice selects a discovered device by ID or name. Devices whose
// name lacks the vendor marker are rejected with ErrInvalidSelection.
func (s *Session) SelectDevice(ctx context.Context, key string) error {
	return s.do(ctx, intentSelect, key)
}

// Connect connects to the selected device, discovers its services and
// enables frame notifications. Completion is reported via snapshots.
func (s *Session) Connect(ctx context.Context) error {
	return s.do(ctx, intentConnect, "")
}

// StartStream asks the sensor to start streaming accelerometer frames.
func (s *Session) StartStream(ctx context.Context) error {
	return s.do(ctx, intentStartStream, "")
}

// StopStream asks the sensor to stop streaming.
func (s *Session) StopStream(ctx context.Context) error {
	return s.do(ctx, intentStopStream, "")
}

// Disconnect drops the selection and any connection, stopping the stream first.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, intentDisconnect, "")
}

// Snapshot returns the current session view.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.send(ctx, snapshotRequest{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-s.quit:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshots streams a snapshot after every change. Slow readers lose the oldest.
func (s *Session) Snapshots() <-chan Snapshot { return s.snapshots.C() }

// Samples streams decoded samples in arrival order. Slow readers lose the oldest.
func (s *Session) Samples() <-chan accel.Sample { return s.samples.C() }

// Errors streams asynchronous transport failures.
func (s *Session) Errors() <-chan error { return s.errs.C() }

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.quit }

// Close tears the session down: stops scanning, stops the stream and
// disconnects regardless of state. Teardown failures are swallowed.
// Output channels are closed when it returns nil. Safe to call repeatedly.
func (s *Session) Close(ctx context.Context) error {
	if err := s.send(ctx, closeRequest{}); err != nil {
		if err == ErrClosed {
			return nil
		}
		return err
	}
	select {
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) do(ctx context.Context, kind intentKind, key string) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, intent{kind: kind, key: key, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) send(ctx context.Context, m message) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a message from a transport goroutine.
func (s *Session) post(m message) {
	select {
	case s.inbox <- m:
	case <-s.quit:
	}
}

// postFrame never blocks: notifications have no backpressure, so a full
// queue drops the frame.
func (s *Session) postFrame(gen uint64, data []byte) {
	select {
	case s.inbox <- frameReceived{gen: gen, data: data}:
	default:
		s.logger.WithField("bytes", len(data)).Debug("Session queue full, dropping frame")
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.quit)
	s.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Session actor started")

	for !s.done {
		s.handle(<-s.inbox)
	}

	s.logger.WithFields(logrus.Fields{
		"samples_overwritten": s.samples.GetMetrics().Overwritten,
		"frames_ignored":      s.dropped,
	}).Debug("Session actor stopped")
}

func (s *Session) handle(m message) {
	switch m := m.(type) {
	case intent:
		m.reply <- s.handleIntent(m)
	case snapshotRequest:
		m.reply <- s.snapshot()
	case closeRequest:
		s.handleClose()
	case advertisement:
		s.onAdvertisement(m)
	case scanStopped:
		s.onScanStopped(m)
	case opResult:
		s.onOpResult(m)
	case frameReceived:
		s.onFrame(m)
	case linkLost:
		s.onLinkLost(m)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:      s.state,
		Subscribed: s.subscribed,
		Scanning:   s.scanning,
		Devices:    s.registry.List(),
	}
	if s.selected != nil {
		d := *s.selected
		snap.Selected = &d
	}
	if s.sample != nil {
		v := *s.sample
		snap.Sample = &v
	}
	return snap
}

func (s *Session) publish() {
	s.snapshots.Send(s.snapshot())
}

func (s *Session) fail(err error) {
	s.logger.WithError(err).Warn("Session operation failed")
	s.errs.Send(err)
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"from":    s.state,
		"to":      next,
		"attempt": s.attemptID,
	}).Debug("Session state transition")
	s.state = next
}
