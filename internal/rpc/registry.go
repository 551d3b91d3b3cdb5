// Package rpc dispatches nonce-correlated JSON calls over WebSocket
// connections and pushes fire-and-forget events back.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/halogen-labs/halogen/internal/app/metrics"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
)

// HandlerFunc handles one call. A nil result suppresses the success reply;
// only errors are reported back for such calls.
type HandlerFunc func(ctx context.Context, conn *Conn, data json.RawMessage) (interface{}, error)

// Registry maps "namespace.method" names to handlers.
type Registry struct {
	handlers map[string]map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]HandlerFunc)}
}

// Register adds a handler under namespace.method. Registering twice for the
// same name panics; that is always a wiring bug.
func (r *Registry) Register(namespace, method string, handler HandlerFunc) {
	ns := r.handlers[namespace]
	if ns == nil {
		ns = make(map[string]HandlerFunc)
		r.handlers[namespace] = ns
	}
	if _, dup := ns[method]; dup {
		panic(fmt.Sprintf("rpc: duplicate handler %s.%s", namespace, method))
	}
	ns[method] = handler
}

// Call dispatches a qualified "namespace.method" name.
func (r *Registry) Call(ctx context.Context, conn *Conn, name string, data json.RawMessage) (interface{}, error) {
	namespace, method, ok := strings.Cut(name, ".")
	if !ok {
		return nil, apperrors.BadRequest(fmt.Sprintf("rpc func %q is not namespace.method", name))
	}
	ns, ok := r.handlers[namespace]
	if !ok {
		return nil, apperrors.MissingNamespace(namespace)
	}
	handler, ok := ns[method]
	if !ok {
		return nil, apperrors.MissingMethod(namespace, method)
	}

	result, err := handler(ctx, conn, data)
	if err != nil {
		metrics.RecordRPCCall(name, "error")
		return nil, err
	}
	metrics.RecordRPCCall(name, "ok")
	return result, nil
}

// Typed adapts a request-typed handler into a HandlerFunc.
func Typed[Req any, Resp any](fn func(ctx context.Context, conn *Conn, req Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, conn *Conn, data json.RawMessage) (interface{}, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, apperrors.BadRequest(fmt.Sprintf("malformed call data: %v", err))
			}
		}
		return fn(ctx, conn, req)
	}
}

// Notify adapts a handler with no success payload: nil results send no
// reply, matching fire-and-forget calls.
func Notify[Req any](fn func(ctx context.Context, conn *Conn, req Req) error) HandlerFunc {
	return func(ctx context.Context, conn *Conn, data json.RawMessage) (interface{}, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, apperrors.BadRequest(fmt.Sprintf("malformed call data: %v", err))
			}
		}
		return nil, fn(ctx, conn, req)
	}
}
