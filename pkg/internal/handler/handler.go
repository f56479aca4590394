// Package handler provides reflection-based processor execution for the job pipeline.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/jdziat/newsdesk/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds metadata about a registered job processor.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasContext bool
	HasResult  bool
	Timeout    time.Duration
}

// NewHandler creates a Handler from a function.
// The function must have signature: func(ctx context.Context, payload T) error
// or func(ctx context.Context, payload T) (R, error). The context argument is optional.
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}

	handler := &Handler{Fn: fnVal}

	// Parse function signature
	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, fmt.Errorf("handler must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(contextType) {
		handler.HasContext = true
		argIdx = 1
	}

	if argIdx < numIn {
		handler.ArgsType = fnType.In(argIdx)
	}

	// Validate return type - allow error or (R, error)
	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errorType) {
			return nil, fmt.Errorf("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("handler must return (R, error)")
		}
		handler.HasResult = true
	default:
		return nil, fmt.Errorf("handler must return error or (R, error)")
	}

	return handler, nil
}

// Execute runs the handler with the given context and JSON payload and
// returns the JSON-encoded result, if the handler produces one.
// A payload that cannot be decoded is a terminal error.
func (h *Handler) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	// Defensive check: ensure handler function is valid
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return nil, fmt.Errorf("handler function is nil or invalid")
	}

	var args []reflect.Value

	if h.HasContext {
		args = append(args, reflect.ValueOf(ctx))
	}

	if h.ArgsType != nil {
		argVal := reflect.New(h.ArgsType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, argVal.Interface()); err != nil {
				return nil, core.NoRetry(fmt.Errorf("failed to unmarshal payload: %w", err))
			}
		}
		args = append(args, argVal.Elem())
	}

	results := h.Fn.Call(args)

	if !h.HasResult {
		if !results[0].IsNil() {
			return nil, results[0].Interface().(error)
		}
		return nil, nil
	}

	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	if isNil(results[0]) {
		return nil, nil
	}
	out, err := json.Marshal(results[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return out, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
