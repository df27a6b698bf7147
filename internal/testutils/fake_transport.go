package testutils

import (
	"context"
	"sync"

	"github.com/srg/accstream/internal/device"
)

// Transport operation names recorded by FakeTransport.
const (
	OpScan       = "scan"
	OpConnect    = "connect"
	OpDiscover   = "discover"
	OpSubscribe  = "subscribe"
	OpWrite      = "write"
	OpDisconnect = "disconnect"
)

// Call is one recorded transport invocation.
type Call struct {
	Op             string
	ID             string
	Service        string
	Characteristic string
	Data           []byte
}

// FakeTransport is a scripted, in-memory device.Transport.
//
// Every call is recorded. Operations succeed unless FailOn configured an
// error for them, and may be held open with Block or Hold until the test
// releases them. Advertisements and notifications are injected by the test with
// Advertise and Notify.
type FakeTransport struct {
	mu          sync.Mutex
	calls       []Call
	errs        map[string]error
	gates       map[string]chan struct{}
	holds       map[string]chan struct{}
	scanHandler func(device.Advertisement)
	notify      map[string]func([]byte)
	links       map[string]chan struct{}
}

var _ device.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a transport with no scripted failures.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		errs:   make(map[string]error),
		gates:  make(map[string]chan struct{}),
		holds:  make(map[string]chan struct{}),
		notify: make(map[string]func([]byte)),
		links:  make(map[string]chan struct{}),
	}
}

// FailOn makes every subsequent op return err. A nil err clears the failure.
func (f *FakeTransport) FailOn(op string, err error) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
	} else {
		f.errs[op] = err
	}
	return f
}

// Block holds every subsequent op until the returned release func is called
// or the call's context ends.
func (f *FakeTransport) Block(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Hold is like Block, but held calls ignore context cancellation, the way a
// radio stack that cannot abort an in-flight dial behaves.
func (f *FakeTransport) Hold(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.holds[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.holds[op] == gate {
				delete(f.holds, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Linked reports whether the transport currently holds a link to id.
func (f *FakeTransport) Linked(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[id]
	return ok
}

// Scanning reports whether a Scan call is currently running.
func (f *FakeTransport) Scanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanHandler != nil
}

// Advertise delivers adv to the running scan. It reports false when no scan is running.
func (f *FakeTransport) Advertise(adv device.Advertisement) bool {
	f.mu.Lock()
	h := f.scanHandler
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

// Notify delivers data to the notification handler subscribed for id.
func (f *FakeTransport) Notify(id string, data []byte) bool {
	f.mu.Lock()
	h := f.notify[id]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// DropLink simulates the peripheral going away.
func (f *FakeTransport) DropLink(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.links[id]; ok {
		close(ch)
		delete(f.links, id)
		delete(f.notify, id)
	}
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (f *FakeTransport) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times op was invoked.
func (f *FakeTransport) CallCount(op string) int {
	return len(f.Calls(op))
}

// Ops returns the sequence of recorded op names.
func (f *FakeTransport) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

func (f *FakeTransport) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	if err := f.enter(ctx, Call{Op: OpScan}); err != nil {
		return err
	}

	f.mu.Lock()
	f.scanHandler = handler
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.scanHandler = nil
	f.mu.Unlock()
	return nil
}

func (f *FakeTransport) Connect(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: OpConnect, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[id]; ok {
		return device.ErrAlreadyConnected
	}
	f.links[id] = make(chan struct{})
	return nil
}

func (f *FakeTransport) DiscoverServices(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: OpDiscover, ID: id}); err != nil {
		return err
	}
	return f.linked(id)
}

func (f *FakeTransport) Subscribe(ctx context.Context, id, service, characteristic string, handler func([]byte)) error {
	if err := f.enter(ctx, Call{Op: OpSubscribe, ID: id, Service: service, Characteristic: characteristic}); err != nil {
		return err
	}
	if err := f.linked(id); err != nil {
		return err
	}
	f.mu.Lock()
	f.notify[id] = handler
	f.mu.Unlock()
	return nil
}

func (f *FakeTransport) Write(ctx context.Context, id, service, characteristic string, data []byte) error {
	payload := append([]byte(nil), data...)
	if err := f.enter(ctx, Call{Op: OpWrite, ID: id, Service: service, Characteristic: characteristic, Data: payload}); err != nil {
		return err
	}
	return f.linked(id)
}

func (f *FakeTransport) Disconnect(ctx context.Context, id string) error {
	if err := f.enter(ctx, Call{Op: OpDisconnect, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.links[id]; ok {
		close(ch)
		delete(f.links, id)
	}
	delete(f.notify, id)
	return nil
}

func (f *FakeTransport) Disconnected(id string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.links[id]; ok {
		return ch
	}
	return nil
}

// enter records c, waits on any gate for c.Op and returns the scripted error.
func (f *FakeTransport) enter(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate := f.gates[c.Op]
	hold := f.holds[c.Op]
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[c.Op]
}

func (f *FakeTransport) linked(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[id]; !ok {
		return device.ErrNotConnected
	}
	return nil
}
