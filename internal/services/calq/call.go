package calq

import (
	"context"
	"encoding/json"
	"sync"
)

// Call is the pending outcome of one forwarded operation. It resolves exactly once, either
// with the native payload or with an error.
type Call struct {
	operation Operation

	once    sync.Once
	done    chan struct{}
	payload json.RawMessage
	err     error
}

func newCall(op Operation) *Call {
	return &Call{operation: op, done: make(chan struct{})}
}

// failedCall returns a Call that is already resolved with err.
func failedCall(op Operation, err error) *Call {
	c := newCall(op)
	c.resolve(nil, err)
	return c
}

// resolve settles the call. Later calls are ignored.
func (c *Call) resolve(payload json.RawMessage, err error) bool {
	settled := false
	c.once.Do(func() {
		c.payload = payload
		c.err = err
		close(c.done)
		settled = true
	})
	return settled
}

// Operation returns the bridge operation this call forwarded.
func (c *Call) Operation() Operation {
	return c.operation
}

// Done is closed once the call has resolved.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether the outcome is already known.
func (c *Call) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the call resolves or ctx is done. Giving up on ctx does not cancel
// the forwarded operation.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.payload, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the failure once resolved, nil while pending or on success.
func (c *Call) Err() error {
	if !c.Resolved() {
		return nil
	}
	return c.err
}

// Then registers continuations; exactly one of them runs, exactly once. If the call has
// already resolved (always true for validation failures) the continuation runs before Then
// returns, otherwise on its own goroutine. Either continuation may be nil.
func (c *Call) Then(onSuccess func(json.RawMessage), onFail func(error)) {
	deliver := func() {
		if c.err != nil {
			if onFail != nil {
				onFail(c.err)
			}
			return
		}
		if onSuccess != nil {
			onSuccess(c.payload)
		}
	}

	if c.Resolved() {
		deliver()
		return
	}
	go func() {
		<-c.done
		deliver()
	}()
}
