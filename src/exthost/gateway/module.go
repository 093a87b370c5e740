package gateway

import (
	extensionregistry "github.com/uber/exthost-broker/src/exthost/gateway/extension-registry"
	settingsstore "github.com/uber/exthost-broker/src/exthost/gateway/settings-store"
	"go.uber.org/fx"
)

// Module provides the outbound collaborators: the settings store and the extension registry.
var Module = fx.Options(
	settingsstore.Module,
	extensionregistry.Module,
	fx.Invoke(func(r extensionregistry.Registry) {}),
)
