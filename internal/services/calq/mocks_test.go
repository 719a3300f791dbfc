package calq_test

import (
	"context"
	"encoding/json"
	"sync"

	"calqbridge/internal/services/calq"
)

// bridgeCall is one Invoke captured by recordingBridge.
type bridgeCall struct {
	Module    string
	Operation calq.Operation
	Args      []any
}

// recordingBridge records every Invoke and answers with a canned payload or error.
type recordingBridge struct {
	mu      sync.Mutex
	calls   []bridgeCall
	payload json.RawMessage
	err     error
}

var _ calq.Bridge = (*recordingBridge)(nil)

func (b *recordingBridge) Invoke(_ context.Context, module string, op calq.Operation, args []any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, bridgeCall{Module: module, Operation: op, Args: args})
	return b.payload, b.err
}

func (b *recordingBridge) recorded() []bridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bridgeCall(nil), b.calls...)
}
