package handler

import (
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/controller"
	"github.com/uber/exthost-broker/src/exthost/controller/client"
	"github.com/uber/exthost-broker/src/exthost/handler/exthost"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
	"github.com/uber/exthost-broker/src/exthost/services"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the extension host connection handling into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(exthost.New),
	fx.Provide(connectionSource),
	fx.Provide(bridgeFactory),
	fx.Invoke(outputServiceInfo),
	fx.Invoke(func(c client.Client) {}),
)

func connectionSource(m exthost.Manager) observable.Observable[*proxy.Connection] {
	return m.Connections()
}

func bridgeFactory(logger *zap.SugaredLogger, stats tally.Scope) client.Factory {
	return func(conn *proxy.Connection, svc *services.Container) (client.Bridge, error) {
		b, err := exthost.NewBridge(exthost.BridgeParams{
			Conn:     conn,
			Services: svc,
			Logger:   logger,
			Stats:    stats,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
