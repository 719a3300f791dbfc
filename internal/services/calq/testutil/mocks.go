// Package testutil holds test doubles for code built on the calq package.
package testutil

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"calqbridge/internal/services/calq"
)

// MockTransport is a testify mock of calq.NativeTransport. Return values are
// (json.RawMessage or nil, error).
type MockTransport struct {
	mock.Mock
}

var _ calq.NativeTransport = (*MockTransport)(nil)

func payloadOf(args mock.Arguments) (json.RawMessage, error) {
	var payload json.RawMessage
	if p := args.Get(0); p != nil {
		payload = p.(json.RawMessage)
	}
	return payload, args.Error(1)
}

func (m *MockTransport) Init(ctx context.Context, writeKey string) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, writeKey))
}

func (m *MockTransport) Track(ctx context.Context, action, properties string) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, action, properties))
}

func (m *MockTransport) TrackSale(ctx context.Context, action, properties, currency string, amount float64) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, action, properties, currency, amount))
}

func (m *MockTransport) SetGlobalProperty(ctx context.Context, property, value string) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, property, value))
}

func (m *MockTransport) Identify(ctx context.Context, actor string) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, actor))
}

func (m *MockTransport) Profile(ctx context.Context, properties string) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx, properties))
}

func (m *MockTransport) Clear(ctx context.Context) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx))
}

func (m *MockTransport) Flush(ctx context.Context) (json.RawMessage, error) {
	return payloadOf(m.Called(ctx))
}
