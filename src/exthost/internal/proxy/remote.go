package proxy

import (
	"context"
)

// Remote is the proxy for a capability domain implemented by the extension host. Each call is serialized as a
// request or notification named "<domain>.<method>" with the arguments as positional parameters.
type Remote struct {
	conn   *Connection
	domain string
}

// Domain returns the capability domain of this proxy.
func (r *Remote) Domain() string {
	return r.domain
}

// Call sends a request and waits for its response. result, if non-nil, receives the decoded response value.
// A failure reported by the remote handler is returned as a *jsonrpc2.Error.
func (r *Remote) Call(ctx context.Context, method string, result interface{}, args ...interface{}) error {
	return r.conn.call(ctx, WireMethod(r.domain, method), args, result)
}

// Notify sends a notification. No response is expected.
func (r *Remote) Notify(ctx context.Context, method string, args ...interface{}) error {
	return r.conn.notify(ctx, WireMethod(r.domain, method), args)
}
