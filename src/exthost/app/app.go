package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/gateway"
	"github.com/uber/exthost-broker/src/exthost/handler"
	"github.com/uber/exthost-broker/src/exthost/internal/core"
	"github.com/uber/exthost-broker/src/exthost/internal/fs"
	"github.com/uber/exthost-broker/src/exthost/internal/jsonrpcfx"
	"github.com/uber/exthost-broker/src/exthost/internal/serverinfofile"
	"github.com/uber/exthost-broker/src/exthost/repository/environment"
	"github.com/uber/exthost-broker/src/exthost/services"
	"go.uber.org/fx"
)

// Module defines the exthost-broker application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	serverinfofile.Module,
	environment.Module,
	services.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "exthost-broker",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)
