// Package calq is the application-facing Calq analytics API. It validates arguments,
// enforces that Init has completed, and forwards every call to a NativeTransport, which
// does the real queueing, persistence and delivery.
//
// Each operation returns a *Call that resolves exactly once. Argument problems resolve the
// Call immediately with an *ArgumentError and never reach the transport. Calling any
// operation other than Init before Init has succeeded returns ErrNotInitialized directly
// from the method instead.
package calq

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"calqbridge/internal/logger"
)

// Facade is a handle on one native Calq client.
type Facade struct {
	transport NativeTransport
	logger    *logger.Logger
	check     *checker

	initialized atomic.Bool
	inflight    inflight
}

// Option customises a Facade.
type Option func(*Facade)

// WithLogger sets the facade's logger.
func WithLogger(l *logger.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates an uninitialised facade over transport.
func New(transport NativeTransport, opts ...Option) *Facade {
	f := &Facade{
		transport: transport,
		logger:    logger.New("calq"),
		check:     newChecker(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewWithBridge creates a facade that forwards through a generic bridge.
func NewWithBridge(bridge Bridge, opts ...Option) *Facade {
	return New(NewBridgeTransport(bridge), opts...)
}

// Open creates a facade and blocks until Init has succeeded, so the returned handle is
// always initialised.
func Open(ctx context.Context, transport NativeTransport, writeKey string, opts ...Option) (*Facade, error) {
	f := New(transport, opts...)
	if _, err := f.Init(ctx, writeKey).Wait(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Initialized reports whether Init has completed successfully. Once true it stays true.
func (f *Facade) Initialized() bool {
	return f.initialized.Load()
}

// Drain waits for every forwarded call issued so far to resolve, or for ctx.
func (f *Facade) Drain(ctx context.Context) error {
	select {
	case <-f.inflight.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init starts (or restores) the native client for writeKey. This must succeed before any
// other operation. The initialised flag flips only when the native side reports success.
func (f *Facade) Init(ctx context.Context, writeKey string) *Call {
	if err := f.check.text("writeKey", writeKey); err != nil {
		return f.reject(OpInit, err)
	}

	return f.forward(ctx, OpInit, func(ctx context.Context) (json.RawMessage, error) {
		payload, err := f.transport.Init(ctx, writeKey)
		if err == nil {
			f.initialized.Store(true)
		}
		return payload, err
	})
}

// Track records an action with optional properties; nil properties are sent as {}.
func (f *Facade) Track(ctx context.Context, action string, properties map[string]any) (*Call, error) {
	if err := f.guard(OpTrack); err != nil {
		return nil, err
	}
	if err := f.check.text("action", action); err != nil {
		return f.reject(OpTrack, err), nil
	}
	props, err := f.check.properties("properties", properties)
	if err != nil {
		return f.reject(OpTrack, err), nil
	}

	return f.forward(ctx, OpTrack, func(ctx context.Context) (json.RawMessage, error) {
		return f.transport.Track(ctx, action, props)
	}), nil
}

// TrackSale records an action carrying revenue. currency is a three character code (it
// may be fictional) and amount any finite number; negative amounts record refunds.
// Arguments are checked in the order action, currency, amount.
func (f *Facade) TrackSale(ctx context.Context, action string, properties map[string]any, currency string, amount any) (*Call, error) {
	if err := f.guard(OpTrackSale); err != nil {
		return nil, err
	}
	if err := f.check.text("action", action); err != nil {
		return f.reject(OpTrackSale, err), nil
	}
	if err := f.check.currency(currency); err != nil {
		return f.reject(OpTrackSale, err), nil
	}
	value, err := f.check.amount(amount)
	if err != nil {
		return f.reject(OpTrackSale, err), nil
	}
	props, err := f.check.properties("properties", properties)
	if err != nil {
		return f.reject(OpTrackSale, err), nil
	}

	return f.forward(ctx, OpTrackSale, func(ctx context.Context) (json.RawMessage, error) {
		return f.transport.TrackSale(ctx, action, props, currency, value)
	}), nil
}

// SetGlobalProperty attaches property to every action tracked afterwards, replacing any
// earlier value. value must not be nil and is sent as text.
func (f *Facade) SetGlobalProperty(ctx context.Context, property string, value any) (*Call, error) {
	if err := f.guard(OpSetGlobalProperty); err != nil {
		return nil, err
	}
	if err := f.check.text("property", property); err != nil {
		return f.reject(OpSetGlobalProperty, err), nil
	}
	text, err := f.check.stringify("value", value)
	if err != nil {
		return f.reject(OpSetGlobalProperty, err), nil
	}

	return f.forward(ctx, OpSetGlobalProperty, func(ctx context.Context) (json.RawMessage, error) {
		return f.transport.SetGlobalProperty(ctx, property, text)
	}), nil
}

// Identify associates the current, possibly anonymous, session with actor. Identifying an
// already identified user as someone else is refused by the native client, not here.
func (f *Facade) Identify(ctx context.Context, actor string) (*Call, error) {
	if err := f.guard(OpIdentify); err != nil {
		return nil, err
	}
	if err := f.check.text("actor", actor); err != nil {
		return f.reject(OpIdentify, err), nil
	}

	return f.forward(ctx, OpIdentify, func(ctx context.Context) (json.RawMessage, error) {
		return f.transport.Identify(ctx, actor)
	}), nil
}

// Profile sets profile properties for the current user. properties must be a map with
// string keys or a struct.
func (f *Facade) Profile(ctx context.Context, properties any) (*Call, error) {
	if err := f.guard(OpProfile); err != nil {
		return nil, err
	}
	props, err := f.check.structured("properties", properties)
	if err != nil {
		return f.reject(OpProfile, err), nil
	}

	return f.forward(ctx, OpProfile, func(ctx context.Context) (json.RawMessage, error) {
		return f.transport.Profile(ctx, props)
	}), nil
}

// Clear resets the native session to an anonymous user. The facade stays initialised.
func (f *Facade) Clear(ctx context.Context) (*Call, error) {
	if err := f.guard(OpClear); err != nil {
		return nil, err
	}

	return f.forward(ctx, OpClear, f.transport.Clear), nil
}

// FlushQueue asks the native client to send everything it has queued now. Batching of
// later calls is unaffected.
func (f *Facade) FlushQueue(ctx context.Context) (*Call, error) {
	if err := f.guard(OpFlush); err != nil {
		return nil, err
	}

	return f.forward(ctx, OpFlush, f.transport.Flush), nil
}

func (f *Facade) guard(op Operation) error {
	if !f.initialized.Load() {
		f.logger.Warnf("%s called before init", op)
		return ErrNotInitialized
	}
	return nil
}

func (f *Facade) reject(op Operation, err error) *Call {
	f.logger.Warnf("%s rejected: %v", op, err)
	return failedCall(op, err)
}

// forward runs fn on its own goroutine and resolves the returned call with its outcome.
// Transport errors are passed through unchanged.
func (f *Facade) forward(ctx context.Context, op Operation, fn func(context.Context) (json.RawMessage, error)) *Call {
	call := newCall(op)

	f.inflight.add()
	go func() {
		defer f.inflight.done()

		payload, err := fn(ctx)
		if err != nil {
			f.logger.Debug("native call failed", map[string]interface{}{
				"operation": op,
				"error":     err.Error(),
			})
		}
		call.resolve(payload, err)
	}()

	return call
}

// inflight counts forwarded calls that have not resolved. Unlike a WaitGroup it may be
// waited on while calls are still being added.
type inflight struct {
	mu    sync.Mutex
	count int
	zero  chan struct{}
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (i *inflight) add() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.count == 0 {
		i.zero = make(chan struct{})
	}
	i.count++
}

func (i *inflight) done() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.count--
	if i.count == 0 {
		close(i.zero)
	}
}

// idle returns a channel closed once every call counted so far has resolved.
func (i *inflight) idle() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.count == 0 {
		return closedChan
	}
	return i.zero
}
