// Package bridge carries Calq calls between the application and the native client over
// HTTP. Client implements calq.Bridge on the application side; Server and Dispatcher
// receive those calls and run them against a calq.NativeTransport.
package bridge

import (
	"encoding/json"
	"errors"

	"calqbridge/internal/services/calq"
)

// Response codes.
const (
	CodeOK     = 0
	CodeFailed = -1
)

// Paths served by Server.
const (
	PathInvoke = "/bridge"
	PathHealth = "/health"
)

var (
	ErrUnknownModule    = errors.New("unknown bridge module")
	ErrUnknownOperation = errors.New("unknown bridge operation")
	ErrBadArguments     = errors.New("invalid bridge arguments")
)

// Request is one exec call on the wire.
type Request struct {
	ID        string            `json:"id"`
	Module    string            `json:"module"`
	Operation calq.Operation    `json:"operation"`
	Args      []json.RawMessage `json:"args"`
}

// Response answers a Request with the same ID. Code is CodeOK with Data, or CodeFailed
// with Error.
type Response struct {
	ID        string          `json:"id"`
	Operation calq.Operation  `json:"operation"`
	Code      int             `json:"code"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Validate checks the envelope, not the arguments.
func (r *Request) Validate() error {
	if r.Module != calq.ModuleName {
		return ErrUnknownModule
	}
	if !r.Operation.Valid() {
		return ErrUnknownOperation
	}
	return nil
}
