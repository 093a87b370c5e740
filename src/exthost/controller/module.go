package controller

import (
	"github.com/uber/exthost-broker/src/exthost/controller/client"
	contextservice "github.com/uber/exthost-broker/src/exthost/controller/context-service"
	"github.com/uber/exthost-broker/src/exthost/controller/contribution"
	"github.com/uber/exthost-broker/src/exthost/controller/extensions"
	"github.com/uber/exthost-broker/src/exthost/controller/settings"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(settings.New),
	fx.Provide(contextservice.New),
	fx.Provide(extensions.New),
	fx.Provide(contribution.New),
	fx.Provide(client.New),
)
