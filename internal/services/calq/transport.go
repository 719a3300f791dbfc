package calq

import (
	"context"
	"encoding/json"
)

// ModuleName is the native module every bridge call is addressed to.
const ModuleName = "Calq"

// Operation names a native bridge operation.
type Operation string

const (
	OpInit              Operation = "init"
	OpTrack             Operation = "track"
	OpTrackSale         Operation = "trackSale"
	OpSetGlobalProperty Operation = "setGlobalProperty"
	OpIdentify          Operation = "identify"
	OpProfile           Operation = "profile"
	OpClear             Operation = "clear"
	OpFlush             Operation = "flush"
)

// Operations lists every operation in bridge order.
var Operations = []Operation{
	OpInit, OpTrack, OpTrackSale, OpSetGlobalProperty,
	OpIdentify, OpProfile, OpClear, OpFlush,
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, known := range Operations {
		if op == known {
			return true
		}
	}
	return false
}

// NativeTransport is the native collaborator as the facade sees it: one method per
// operation, arguments already validated and serialized. Implementations own batching,
// persistence and delivery; each method returns the native success payload or an error.
type NativeTransport interface {
	Init(ctx context.Context, writeKey string) (json.RawMessage, error)
	Track(ctx context.Context, action, properties string) (json.RawMessage, error)
	TrackSale(ctx context.Context, action, properties, currency string, amount float64) (json.RawMessage, error)
	SetGlobalProperty(ctx context.Context, property, value string) (json.RawMessage, error)
	Identify(ctx context.Context, actor string) (json.RawMessage, error)
	Profile(ctx context.Context, properties string) (json.RawMessage, error)
	Clear(ctx context.Context) (json.RawMessage, error)
	Flush(ctx context.Context) (json.RawMessage, error)
}

// Bridge is the generic platform exec call: module, operation and an ordered list of
// serialized primitives (strings and numbers).
type Bridge interface {
	Invoke(ctx context.Context, module string, op Operation, args []any) (json.RawMessage, error)
}

// BridgeFunc adapts a plain function to Bridge.
type BridgeFunc func(ctx context.Context, module string, op Operation, args []any) (json.RawMessage, error)

func (f BridgeFunc) Invoke(ctx context.Context, module string, op Operation, args []any) (json.RawMessage, error) {
	return f(ctx, module, op, args)
}

// BridgeTransport turns each NativeTransport method into a single Bridge.Invoke addressed
// to ModuleName.
type BridgeTransport struct {
	bridge Bridge
}

// NewBridgeTransport wraps bridge.
func NewBridgeTransport(bridge Bridge) *BridgeTransport {
	return &BridgeTransport{bridge: bridge}
}

var _ NativeTransport = (*BridgeTransport)(nil)

func (t *BridgeTransport) invoke(ctx context.Context, op Operation, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return t.bridge.Invoke(ctx, ModuleName, op, args)
}

func (t *BridgeTransport) Init(ctx context.Context, writeKey string) (json.RawMessage, error) {
	return t.invoke(ctx, OpInit, writeKey)
}

func (t *BridgeTransport) Track(ctx context.Context, action, properties string) (json.RawMessage, error) {
	return t.invoke(ctx, OpTrack, action, properties)
}

func (t *BridgeTransport) TrackSale(ctx context.Context, action, properties, currency string, amount float64) (json.RawMessage, error) {
	return t.invoke(ctx, OpTrackSale, action, properties, currency, amount)
}

func (t *BridgeTransport) SetGlobalProperty(ctx context.Context, property, value string) (json.RawMessage, error) {
	return t.invoke(ctx, OpSetGlobalProperty, property, value)
}

func (t *BridgeTransport) Identify(ctx context.Context, actor string) (json.RawMessage, error) {
	return t.invoke(ctx, OpIdentify, actor)
}

func (t *BridgeTransport) Profile(ctx context.Context, properties string) (json.RawMessage, error) {
	return t.invoke(ctx, OpProfile, properties)
}

func (t *BridgeTransport) Clear(ctx context.Context) (json.RawMessage, error) {
	return t.invoke(ctx, OpClear)
}

func (t *BridgeTransport) Flush(ctx context.Context) (json.RawMessage, error) {
	return t.invoke(ctx, OpFlush)
}
