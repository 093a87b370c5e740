package jsonrpcfx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber/exthost-broker/src/exthost/internal/serverinfofile"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyAddress = "jsonrpc.address"
	_outputKey        = "exthost-address"
)

// Module is an fx module accepting JSON-RPC streams from extension hosts.
var Module = fx.Provide(New)

// JSONRPCModule accepts extension host connections and hands each of them to the registered ConnectionManager.
type JSONRPCModule interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	ServeStream(ctx context.Context, conn jsonrpc2.Conn) error
	RegisterConnectionManager(connectionManager ConnectionManager) error
}

// Router serves as the interface through which handling of requests will be implemented.
// HandleReq must pass every message, notifications included, to its replier exactly once: the next message is
// only dispatched after that.
type Router interface {
	HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error
	UUID() uuid.UUID
}

// ConnectionManager will manage each active connection and its corresponding Router throughout the lifecycle of a connection.
type ConnectionManager interface {
	NewConnection(ctx context.Context, conn jsonrpc2.Conn) (router Router, err error)
	RemoveConnection(ctx context.Context, id uuid.UUID)
}

type module struct {
	Address string `json:"address"`

	connectionMgr  ConnectionManager
	ln             net.Listener
	logger         *zap.SugaredLogger
	serverInfoFile serverinfofile.ServerInfoFile

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Params define values to be used by the JSON-RPC module.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Logger         *zap.SugaredLogger
	ServerInfoFile serverinfofile.ServerInfoFile `optional:"true"`
}

// New creates a new server to accept extension host streams on the configured address.
func New(p Params) (JSONRPCModule, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := module{
		logger:         logger,
		serverInfoFile: p.ServerInfoFile,
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: m.OnStart,
		OnStop:  m.OnStop,
	})

	return &m, nil
}

// OnStart binds the listener and begins accepting extension host connections.
func (m *module) OnStart(ctx context.Context) error {
	if err := m.setup(); err != nil {
		return err
	}

	if m.serverInfoFile != nil {
		if err := m.serverInfoFile.Publish(map[string]string{_outputKey: m.ln.Addr().String()}); err != nil {
			m.ln.Close()
			return err
		}
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.start(serveCtx)
	}()
	return nil
}

// OnStop stops accepting connections.
func (m *module) OnStop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.ln != nil {
		err = m.ln.Close()
	}
	m.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServeStream is called when a new extension host connects. Requests received via the connection will be routed to the handler, and answered via the connection's replier.
func (m *module) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	if m.connectionMgr == nil {
		m.logger.Errorf("cannot serve connection, no connection manager set")
		return errors.New("cannot serve connection, no connection manager set")
	}

	handler, err := m.connectionMgr.NewConnection(ctx, conn)
	if err != nil {
		return err
	}
	m.logger.Infow("extension host connected", zap.Stringer("uuid", handler.UUID()))
	// Requests are handled off the read loop so that responses keep being read while a reply is written.
	conn.Go(ctx, jsonrpc2.AsyncHandler(handler.HandleReq))

	// Block until the extension host goes away or the connection is replaced.
	<-conn.Done()

	m.connectionMgr.RemoveConnection(ctx, handler.UUID())
	m.logger.Infow("extension host disconnected", zap.Stringer("uuid", handler.UUID()))

	return conn.Err()
}

// RegisterConnectionManager sets the connection manager, which keeps track of current active connections and provides a Router implementation.
func (m *module) RegisterConnectionManager(connectionMgr ConnectionManager) error {
	if m.connectionMgr != nil {
		return errors.New("cannot register a duplicate connection manager")
	}
	m.connectionMgr = connectionMgr
	return nil
}

// setup should be called after creation of a new handler to set initial values.
func (m *module) setup() error {
	if m.Address == "" {
		return errors.New("setup called before address is set")
	}

	ln, err := net.Listen("tcp", m.Address)
	if err != nil {
		return err
	}
	m.ln = ln
	return nil
}

// start serves connections until the listener is closed.
func (m *module) start(ctx context.Context) {
	m.logger.Infow("started JSON-RPC inbound", zap.String("address", m.ln.Addr().String()))
	if err := jsonrpc2.Serve(ctx, m.ln, m, 0); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		m.logger.Errorw("JSON-RPC inbound stopped", zap.Error(err))
	}
}

// processConfig will parse the configuration for any values required by this module.
func (m *module) processConfig(cfg config.Provider) error {
	val := cfg.Get(_configKeyAddress)
	if err := val.Populate(&m.Address); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyAddress, err)
	}

	if m.Address == "" {
		// yaml is missing either the key or value
		return fmt.Errorf("missing field %q in config", _configKeyAddress)
	}

	return nil
}
