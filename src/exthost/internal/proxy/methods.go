package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.lsp.dev/jsonrpc2"
)

// MethodPrefix is the reserved prefix of every RPC-callable method name.
const MethodPrefix = "$"

// MethodFunc handles one inbound request or notification. params is the raw positional argument array.
// For notifications the returned value is discarded.
type MethodFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Methods maps method names (including the reserved prefix) to their handlers for a single domain.
type Methods map[string]MethodFunc

// Method0 adapts a handler without arguments.
func Method0[R any](fn func(ctx context.Context) (R, error)) MethodFunc {
	return func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return fn(ctx)
	}
}

// Method1 adapts a handler taking the first positional argument decoded as P.
func Method1[P any, R any](fn func(ctx context.Context, arg P) (R, error)) MethodFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var arg P
		if err := decodeFirstArg(params, &arg); err != nil {
			return nil, err
		}
		return fn(ctx, arg)
	}
}

// Notification1 adapts a handler without result taking the first positional argument decoded as P.
func Notification1[P any](fn func(ctx context.Context, arg P) error) MethodFunc {
	return func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var arg P
		if err := decodeFirstArg(params, &arg); err != nil {
			return nil, err
		}
		return nil, fn(ctx, arg)
	}
}

// WireMethod returns the method name used on the wire for method in domain.
func WireMethod(domain, method string) string {
	return domain + "." + method
}

// SplitWireMethod splits a wire method name into its domain and method.
func SplitWireMethod(wire string) (domain string, method string, ok bool) {
	domain, method, ok = strings.Cut(wire, ".")
	if !ok || domain == "" || !strings.HasPrefix(method, MethodPrefix) {
		return "", "", false
	}
	return domain, method, true
}

func decodeFirstArg(params json.RawMessage, arg interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, fmt.Sprintf("params must be an argument array: %v", err))
	}
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args[0], arg); err != nil {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, fmt.Sprintf("decoding argument: %v", err))
	}
	return nil
}

func encodeArgs(args []interface{}) []interface{} {
	if args == nil {
		return []interface{}{}
	}
	return args
}
