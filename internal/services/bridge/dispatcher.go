package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"calqbridge/internal/logger"
	"calqbridge/internal/services/calq"
)

type argKind int

const (
	kindText argKind = iota
	kindNumber
)

// signatures lists the positional argument kinds of each operation.
var signatures = map[calq.Operation][]argKind{
	calq.OpInit:              {kindText},
	calq.OpTrack:             {kindText, kindText},
	calq.OpTrackSale:         {kindText, kindText, kindText, kindNumber},
	calq.OpSetGlobalProperty: {kindText, kindText},
	calq.OpIdentify:          {kindText},
	calq.OpProfile:           {kindText},
	calq.OpClear:             {},
	calq.OpFlush:             {},
}

// Dispatcher decodes a Request's arguments and runs the matching NativeTransport method.
type Dispatcher struct {
	transport calq.NativeTransport
	logger    *logger.Logger
}

func NewDispatcher(transport calq.NativeTransport, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.New("calq-dispatcher")
	}
	return &Dispatcher{transport: transport, logger: log}
}

// Dispatch always returns a Response; failures are reported with CodeFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Operation: req.Operation}

	data, err := d.run(ctx, req)
	if err != nil {
		d.logger.Warnf("%s failed: %v", req.Operation, err)
		resp.Code = CodeFailed
		resp.Error = err.Error()
		return resp
	}

	resp.Code = CodeOK
	resp.Data = data
	return resp
}

func (d *Dispatcher) run(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	args, err := decodeArgs(req.Operation, req.Args)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("dispatch", map[string]interface{}{
		"id":        req.ID,
		"operation": req.Operation,
	})

	t := d.transport
	switch req.Operation {
	case calq.OpInit:
		return t.Init(ctx, args[0].(string))
	case calq.OpTrack:
		return t.Track(ctx, args[0].(string), args[1].(string))
	case calq.OpTrackSale:
		return t.TrackSale(ctx, args[0].(string), args[1].(string), args[2].(string), args[3].(float64))
	case calq.OpSetGlobalProperty:
		return t.SetGlobalProperty(ctx, args[0].(string), args[1].(string))
	case calq.OpIdentify:
		return t.Identify(ctx, args[0].(string))
	case calq.OpProfile:
		return t.Profile(ctx, args[0].(string))
	case calq.OpClear:
		return t.Clear(ctx)
	case calq.OpFlush:
		return t.Flush(ctx)
	}
	return nil, ErrUnknownOperation
}

// decodeArgs checks arity and decodes each argument into a string or float64.
func decodeArgs(op calq.Operation, raw []json.RawMessage) ([]any, error) {
	kinds, ok := signatures[op]
	if !ok {
		return nil, ErrUnknownOperation
	}
	if len(raw) != len(kinds) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrBadArguments, op, len(kinds), len(raw))
	}

	args := make([]any, len(kinds))
	for i, kind := range kinds {
		if bytes.Equal(bytes.TrimSpace(raw[i]), []byte("null")) {
			return nil, fmt.Errorf("%w: %s argument %d is null", ErrBadArguments, op, i)
		}
		switch kind {
		case kindText:
			var s string
			if err := json.Unmarshal(raw[i], &s); err != nil {
				return nil, fmt.Errorf("%w: %s argument %d is not a string", ErrBadArguments, op, i)
			}
			args[i] = s
		case kindNumber:
			var f float64
			if err := json.Unmarshal(raw[i], &f); err != nil {
				return nil, fmt.Errorf("%w: %s argument %d is not a number", ErrBadArguments, op, i)
			}
			args[i] = f
		}
	}
	return args, nil
}
