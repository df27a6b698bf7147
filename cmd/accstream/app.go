package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/accstream/internal/device"
	goble "github.com/srg/accstream/internal/device/go-ble"
	"github.com/srg/accstream/internal/session"
	"github.com/srg/accstream/pkg/config"
)

// shutdownTimeout bounds the disconnect a command performs on its way out.
const shutdownTimeout = 5 * time.Second

// newTransport creates the platform BLE transport. Tests replace it.
var newTransport = func(logger *logrus.Logger) (device.Transport, error) {
	t, err := goble.NewTransport(logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// app bundles what every command needs to drive a session.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	session *session.Session
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return nil, err
	}
	return openAppWith(cfg, logger)
}

func openAppWith(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	transport, err := newTransport(logger)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(transport, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, session: sess}, nil
}

// Close performs the shutdown teardown. It never fails the command.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.session.Close(ctx); err != nil {
		a.logger.WithError(err).Debug("Session shutdown did not complete")
	}
}

// await waits until cond holds for a session snapshot. An asynchronous
// session error ends the wait with that error.
func (a *app) await(ctx context.Context, cond func(session.Snapshot) bool) (session.Snapshot, error) {
	snap, err := a.session.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	if cond(snap) {
		return snap, nil
	}

	for {
		select {
		case snap, ok := <-a.session.Snapshots():
			if !ok {
				return snap, session.ErrClosed
			}
			if cond(snap) {
				return snap, nil
			}
		case err, ok := <-a.session.Errors():
			if !ok {
				return snap, session.ErrClosed
			}
			return snap, classifyAsyncError(err)
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
