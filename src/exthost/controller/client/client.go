// Package client binds the shared services to whichever extension host connection is current.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
	"github.com/uber/exthost-broker/src/exthost/services"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bridge is the wiring between the services and a single connection.
type Bridge interface {
	// Unsubscribe releases every resource held for the connection, including the connection itself.
	Unsubscribe() error
}

// Factory builds the bridge for a newly available connection.
type Factory func(conn *proxy.Connection, svc *services.Container) (Bridge, error)

// Client follows the connection source and keeps exactly one bridge alive, bound to the latest connection.
type Client interface {
	// Unsubscribe tears down the current bridge and stops listening for connections.
	Unsubscribe() error
}

// Params are inbound parameters to build a Client.
type Params struct {
	fx.In

	Services  *services.Container
	Source    observable.Observable[*proxy.Connection]
	Factory   Factory
	Logger    *zap.SugaredLogger
	Lifecycle fx.Lifecycle `optional:"true"`
}

type client struct {
	services *services.Container
	factory  Factory
	logger   *zap.SugaredLogger

	sub observable.Subscription

	mu      sync.Mutex
	current Bridge
	closed  bool
}

// New subscribes to p.Source. With a lifecycle, the client is torn down when the application stops.
func New(p Params) Client {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &client{
		services: p.Services,
		factory:  p.Factory,
		logger:   logger,
	}
	c.sub = p.Source.Subscribe(c.onConnection)

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.Unsubscribe()
			},
		})
	}
	return c
}

func (c *client) onConnection(conn *proxy.Connection) {
	if conn == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.current != nil {
		if err := c.current.Unsubscribe(); err != nil {
			c.logger.Warnw("tearing down previous extension host bridge", zap.Error(err))
		}
		c.current = nil
	}

	bridge, err := c.factory(conn, c.services)
	if err != nil {
		c.logger.Errorw("binding extension host connection", zap.Stringer("uuid", conn.UUID()), zap.Error(err))
		if closeErr := conn.Close(); closeErr != nil {
			c.logger.Warnw("closing unbound extension host connection", zap.Error(closeErr))
		}
		return
	}
	c.current = bridge
	c.logger.Infow("extension host bound", zap.Stringer("uuid", conn.UUID()))
}

func (c *client) Unsubscribe() error {
	c.sub.Unsubscribe()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.current != nil {
		if uerr := c.current.Unsubscribe(); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("tearing down extension host bridge: %w", uerr))
		}
		c.current = nil
	}
	return err
}
