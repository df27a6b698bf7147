package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/accstream/internal/device"
	"github.com/srg/accstream/internal/groutine"
)

// gattClient is the subset of ble.Client the transport drives.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

type scanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler) error

type dialFunc func(ctx context.Context, addr ble.Addr) (gattClient, error)

// link is one live connection.
type link struct {
	id         string
	client     gattClient
	mu         sync.Mutex // guards profile and subscribed
	writeMutex sync.Mutex // serializes writes
	profile    *ble.Profile
	subscribed []*ble.Characteristic
	done       chan struct{}
	closeOnce  sync.Once
}

func (l *link) close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Transport implements device.Transport on top of go-ble.
type Transport struct {
	scan   scanFunc
	dial   dialFunc
	links  *hashmap.Map[string, *link]
	logger *logrus.Logger
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a Transport on the platform's default BLE device.
func NewTransport(logger *logrus.Logger) (*Transport, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	dial := func(ctx context.Context, addr ble.Addr) (gattClient, error) {
		client, err := dev.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return newTransport(dev.Scan, dial, logger), nil
}

func newTransport(scan scanFunc, dial dialFunc, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		scan:   scan,
		dial:   dial,
		links:  hashmap.New[string, *link](),
		logger: logger,
	}
}

// Scan delivers advertisements until ctx is done. Ending because of ctx is not an error.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := t.scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return NormalizeError(err)
}

// Connect dials the device at id.
func (t *Transport) Connect(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		t.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}
	if _, ok := t.links.Get(id); ok {
		t.logger.WithField("address", id).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	t.logger.WithField("address", id).Debug("Dialing BLE device...")
	client, err := t.dial(ctx, ble.NewAddr(id))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": id,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", id, NormalizeError(err))
	}

	l := &link{id: id, client: client, done: make(chan struct{})}
	if _, loaded := t.links.GetOrInsert(id, l); loaded {
		// Lost a race with a concurrent Connect; keep the first link.
		_ = client.CancelConnection()
		return device.ErrAlreadyConnected
	}

	t.monitor(l)
	t.logger.WithField("address", id).Info("BLE device connected")
	return nil
}

// monitor drops the link when the platform reports the peer went away.
func (t *Transport) monitor(l *link) {
	notifier, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		t.logger.Debug("Client does not expose Disconnected(); link loss will not be detected")
		return
	}
	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		select {
		case <-notifier.Disconnected():
			t.logger.WithField("address", l.id).Warn("Peer disconnected")
			t.links.Del(l.id)
			l.close()
		case <-l.done:
		}
	})
}

// DiscoverServices discovers the full GATT profile of a connected device.
func (t *Transport) DiscoverServices(ctx context.Context, id string) error {
	l, err := t.link(id)
	if err != nil {
		return err
	}

	var profile *ble.Profile
	err = runWithContext(ctx, func() error {
		var derr error
		profile, derr = l.client.DiscoverProfile(true)
		return derr
	})
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": id,
			"error":   err,
		}).Error("Failed to discover profile")
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	l.mu.Lock()
	l.profile = profile
	l.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"address":  id,
		"services": len(profile.Services),
	}).Debug("Profile discovered successfully")
	return nil
}

// Subscribe enables notifications (or indications) on a characteristic.
// The handler receives a copy of every payload.
func (t *Transport) Subscribe(ctx context.Context, id, service, characteristic string, handler func([]byte)) error {
	l, err := t.link(id)
	if err != nil {
		return err
	}
	char, err := l.characteristic(service, characteristic)
	if err != nil {
		return err
	}

	indicate := false
	switch {
	case char.Property&ble.CharNotify != 0:
	case char.Property&ble.CharIndicate != 0:
		indicate = true
	default:
		return fmt.Errorf("characteristic %s does not support notifications: %w",
			device.ShortenUUID(device.NormalizeUUID(characteristic)), errors.ErrUnsupported)
	}

	err = runWithContext(ctx, func() error {
		return l.client.Subscribe(char, indicate, func(data []byte) {
			buf := make([]byte, len(data))
			copy(buf, data)
			handler(buf)
		})
	})
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"serviceUUID": service,
			"charUUID":    characteristic,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("failed to subscribe to %s: %w", device.ShortenUUID(device.NormalizeUUID(characteristic)), NormalizeError(err))
	}

	l.mu.Lock()
	l.subscribed = append(l.subscribed, char)
	l.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"serviceUUID": service,
		"charUUID":    characteristic,
		"indicate":    indicate,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// Write writes data to a characteristic and waits for the acknowledgement.
func (t *Transport) Write(ctx context.Context, id, service, characteristic string, data []byte) error {
	l, err := t.link(id)
	if err != nil {
		return err
	}
	char, err := l.characteristic(service, characteristic)
	if err != nil {
		return err
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	payload := append([]byte(nil), data...)
	err = runWithContext(ctx, func() error {
		return l.client.WriteCharacteristic(char, payload, false)
	})
	if err != nil {
		return fmt.Errorf("failed to write to characteristic %s in service %s: %w",
			device.ShortenUUID(device.NormalizeUUID(characteristic)), device.ShortenUUID(device.NormalizeUUID(service)), NormalizeError(err))
	}

	t.logger.WithFields(logrus.Fields{
		"address":  id,
		"charUUID": characteristic,
		"bytes":    len(data),
	}).Debug("Characteristic written")
	return nil
}

// Disconnect unsubscribes everything and drops the connection to id.
// Disconnecting a device that is not connected is a no-op.
func (t *Transport) Disconnect(ctx context.Context, id string) error {
	l, ok := t.links.Get(id)
	if !ok {
		t.logger.WithField("address", id).Debug("Disconnect called but already disconnected")
		return nil
	}
	t.links.Del(id)
	defer l.close()

	t.logger.WithField("address", id).Info("Disconnecting BLE device...")

	l.mu.Lock()
	subscribed := l.subscribed
	l.subscribed = nil
	l.mu.Unlock()

	var unsubscribeErrors []string
	for _, char := range subscribed {
		if err := NormalizeError(l.client.Unsubscribe(char, char.Property&ble.CharNotify == 0)); err != nil {
			unsubscribeErrors = append(unsubscribeErrors, fmt.Sprintf("%s: %v", char.UUID.String(), err))
		}
	}
	if len(unsubscribeErrors) > 0 {
		t.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	err := runWithContext(ctx, l.client.CancelConnection)
	if err != nil {
		t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return fmt.Errorf("failed to disconnect %q: %w", id, NormalizeError(err))
	}
	t.logger.WithField("address", id).Info("BLE device disconnected successfully")
	return nil
}

// Disconnected returns a channel closed when the link to id goes away.
func (t *Transport) Disconnected(id string) <-chan struct{} {
	l, ok := t.links.Get(id)
	if !ok {
		return nil
	}
	return l.done
}

func (t *Transport) link(id string) (*link, error) {
	l, ok := t.links.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotConnected, id)
	}
	return l, nil
}

// characteristic resolves a characteristic in the discovered profile.
func (l *link) characteristic(service, characteristic string) (*ble.Characteristic, error) {
	l.mu.Lock()
	profile := l.profile
	l.mu.Unlock()

	if profile == nil {
		return nil, &device.ConnectionError{State: device.NotInitialized, Msg: "services not discovered"}
	}

	svcUUID := device.NormalizeUUID(service)
	charUUID := device.NormalizeUUID(characteristic)
	for _, svc := range profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != svcUUID {
			continue
		}
		for _, c := range svc.Characteristics {
			if device.NormalizeUUID(c.UUID.String()) == charUUID {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// runWithContext runs a blocking go-ble call, giving up when ctx ends.
// The call itself keeps running in the background until the library returns.
func runWithContext(ctx context.Context, fn func() error) error {
	if ctx.Done() == nil {
		return fn()
	}
	errCh := make(chan error, 1)
	groutine.Go(ctx, "ble-op", func(context.Context) {
		errCh <- fn()
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
