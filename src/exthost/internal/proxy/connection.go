// Package proxy implements the bidirectional request/notification dispatcher used to talk to the extension host.
// Outbound calls go through a Remote for a capability domain; inbound calls are routed to the Methods registered
// for their domain.
package proxy

import (
	"context"
	stderr "errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
)

// Connection is a JSON-RPC connection to a single extension host.
// It is replaced, never reused, when the extension host restarts.
type Connection struct {
	id     uuid.UUID
	conn   jsonrpc2.Conn
	logger *zap.SugaredLogger
	stats  tally.Scope

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	domains map[string]Methods
	closed  bool
}

// Params are used to create a new Connection.
type Params struct {
	Conn   jsonrpc2.Conn
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

// New wraps conn. Inbound messages are only dispatched once HandleReq is attached to the underlying
// connection, either by Listen or by the caller of jsonrpc2.Conn.Go.
func New(p Params) *Connection {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	stats := p.Stats
	if stats == nil {
		stats = tally.NoopScope
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.Must(uuid.NewV4())
	return &Connection{
		id:      id,
		conn:    p.Conn,
		logger:  logger.With("connection", id.String()),
		stats:   stats.SubScope("proxy"),
		ctx:     ctx,
		cancel:  cancel,
		domains: make(map[string]Methods),
	}
}

// UUID returns the identifier of this connection.
func (c *Connection) UUID() uuid.UUID {
	return c.id
}

// Listen starts dispatching inbound messages to the registered domains. Handlers run off the read loop, one
// at a time in arrival order, so a reply waiting on the stream never stops responses from being read.
func (c *Connection) Listen(ctx context.Context) {
	c.conn.Go(ctx, jsonrpc2.AsyncHandler(c.HandleReq))
}

// Done is closed when the underlying stream stops.
func (c *Connection) Done() <-chan struct{} {
	return c.conn.Done()
}

// Register routes inbound requests and notifications for domain to methods.
// The returned function removes the registration.
func (c *Connection) Register(domain string, methods Methods) (unregister func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &errors.ConnectionReplacedError{}
	}
	if _, ok := c.domains[domain]; ok {
		return nil, fmt.Errorf("domain %q is already registered", domain)
	}
	c.domains[domain] = methods

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.domains, domain)
		})
	}, nil
}

// Remote returns the proxy for the methods the extension host implements in domain.
func (c *Connection) Remote(domain string) *Remote {
	return &Remote{conn: c, domain: domain}
}

// Close stops dispatching inbound messages, rejects pending and future outbound calls with
// ConnectionReplacedError and closes the underlying stream. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.domains = make(map[string]Methods)
	c.mu.Unlock()

	c.cancel()
	if err := c.conn.Close(); err != nil && !isDone(c.conn.Done()) {
		return fmt.Errorf("closing extension host connection: %w", err)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// HandleReq routes a single inbound request or notification. Every message, notifications included, is passed
// to reply exactly once, which jsonrpc2.AsyncHandler relies on to release the next message.
func (c *Connection) HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	_, isCall := req.(*jsonrpc2.Call)

	c.mu.RLock()
	closed := c.closed
	var fn MethodFunc
	domain, method, ok := SplitWireMethod(req.Method())
	if ok {
		fn = c.domains[domain][method]
	}
	c.mu.RUnlock()

	if closed {
		if isCall {
			return reply(ctx, nil, toWireError(&errors.ConnectionReplacedError{Method: req.Method()}))
		}
		return reply(ctx, nil, nil)
	}

	if fn == nil {
		c.stats.Counter("method_not_found").Inc(1)
		if !isCall {
			c.logger.Warnw("dropping notification for unknown method", "method", req.Method())
			return reply(ctx, nil, nil)
		}
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}

	result, err := c.invoke(ctx, req.Method(), fn, req)
	if !isCall {
		if err != nil {
			c.logger.Warnw("notification handler failed", "method", req.Method(), zap.Error(err))
		}
		return reply(ctx, nil, nil)
	}
	if err != nil {
		c.stats.Counter("handler_errors").Inc(1)
		return reply(ctx, nil, toWireError(err))
	}
	return reply(ctx, result, nil)
}

func (c *Connection) invoke(ctx context.Context, method string, fn MethodFunc, req jsonrpc2.Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("handler panicked", "method", method, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("%s: %v", method, r)
		}
	}()
	c.stats.Counter("inbound").Inc(1)
	return fn(ctx, req.Params())
}

func (c *Connection) call(ctx context.Context, method string, args []interface{}, result interface{}) error {
	if c.IsClosed() {
		return &errors.ConnectionReplacedError{Method: method}
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()
	go func() {
		select {
		case <-c.conn.Done():
			cancel()
		case <-callCtx.Done():
		}
	}()

	c.stats.Counter("calls").Inc(1)
	_, err := c.conn.Call(callCtx, method, encodeArgs(args), result)
	if err != nil {
		c.stats.Counter("call_errors").Inc(1)
		if c.ctx.Err() != nil || isDone(c.conn.Done()) {
			return &errors.ConnectionReplacedError{Method: method}
		}
		return err
	}
	return nil
}

func (c *Connection) notify(ctx context.Context, method string, args []interface{}) error {
	if c.IsClosed() {
		return &errors.ConnectionReplacedError{Method: method}
	}
	c.stats.Counter("notifications").Inc(1)
	return c.conn.Notify(ctx, method, encodeArgs(args))
}

// toWireError keeps JSON-RPC errors as they are and reports everything else as an internal error.
func toWireError(err error) error {
	var wire *jsonrpc2.Error
	if stderr.As(err, &wire) {
		return wire
	}
	return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
