// Package exthost connects extension host streams to the shared services.
package exthost

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/internal/jsonrpcfx"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConnectionSource publishes every extension host connection as it is accepted. The initial value is nil.
type ConnectionSource interface {
	Connections() observable.Observable[*proxy.Connection]
}

// Manager tracks the connections accepted by the JSON-RPC module.
type Manager interface {
	jsonrpcfx.ConnectionManager
	ConnectionSource
}

// Params are inbound parameters to build a Manager.
type Params struct {
	fx.In

	JSONRPC jsonrpcfx.JSONRPCModule
	Logger  *zap.SugaredLogger
	Stats   tally.Scope
}

type manager struct {
	logger *zap.SugaredLogger
	stats  tally.Scope

	mu          sync.Mutex
	connections map[uuid.UUID]*proxy.Connection
	latest      *observable.Subject[*proxy.Connection]
}

// New creates a Manager and registers it with the JSON-RPC module.
func New(p Params) (Manager, error) {
	m := newManager(p.Logger, p.Stats)
	if err := p.JSONRPC.RegisterConnectionManager(m); err != nil {
		return nil, fmt.Errorf("registering connection manager: %w", err)
	}
	return m, nil
}

func newManager(logger *zap.SugaredLogger, stats tally.Scope) *manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if stats == nil {
		stats = tally.NoopScope
	}
	return &manager{
		logger:      logger,
		stats:       stats.SubScope("bridge"),
		connections: make(map[uuid.UUID]*proxy.Connection),
		latest:      observable.NewSubject[*proxy.Connection](nil),
	}
}

// NewConnection wraps conn and publishes it. The returned Router is the connection itself.
func (m *manager) NewConnection(ctx context.Context, conn jsonrpc2.Conn) (jsonrpcfx.Router, error) {
	c := proxy.New(proxy.Params{
		Conn:   conn,
		Logger: m.logger,
		Stats:  m.stats,
	})

	m.mu.Lock()
	m.connections[c.UUID()] = c
	m.stats.Gauge("active_connections").Update(float64(len(m.connections)))
	m.mu.Unlock()

	m.latest.Next(c)
	return c, nil
}

// RemoveConnection closes the connection with the given id.
func (m *manager) RemoveConnection(ctx context.Context, id uuid.UUID) {
	m.mu.Lock()
	c, ok := m.connections[id]
	delete(m.connections, id)
	m.stats.Gauge("active_connections").Update(float64(len(m.connections)))
	m.mu.Unlock()

	if !ok {
		m.logger.Warnw("removing unknown connection", zap.Stringer("uuid", id))
		return
	}
	if err := c.Close(); err != nil {
		m.logger.Warnw("closing connection", zap.Stringer("uuid", id), zap.Error(err))
	}
}

func (m *manager) Connections() observable.Observable[*proxy.Connection] {
	return m.latest
}
