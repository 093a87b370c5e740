// Package exthostclient contains typed proxies for the capabilities the extension host implements.
package exthostclient

import (
	"context"
	"fmt"

	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
)

// Capability domains shared by both ends of a connection.
const (
	DomainConfiguration = "configuration"
	DomainContext       = "context"
	DomainExtensions    = "extensions"
	DomainContribution  = "contribution"
	DomainEnvironment   = "environment"
)

// Methods implemented by the extension host.
const (
	MethodAcceptConfigurationData = "$acceptConfigurationData"
	MethodAcceptContextData       = "$acceptContextData"
	MethodActivateExtension       = "$activateExtension"
	MethodAcceptEnvironmentData   = "$acceptEnvironmentData"
)

// Methods implemented by the host application.
const (
	MethodAcceptConfigurationUpdate = "$acceptConfigurationUpdate"
	MethodAcceptContextUpdates      = "$acceptContextUpdates"
	MethodRegisterContributions     = "$registerContributions"
)

const _errSendToExtensionHost = "sending %s to extension host: %w"

// Gateway sends state to a single extension host.
type Gateway interface {
	// AcceptConfigurationData pushes a valid settings cascade.
	AcceptConfigurationData(ctx context.Context, cascade entity.SettingsCascade) error
	// AcceptContextData pushes the whole context.
	AcceptContextData(ctx context.Context, c entity.Context) error
	// AcceptEnvironmentData pushes the roots and visible documents of env. Extensions are not sent; the
	// extension host learns about them through ActivateExtension.
	AcceptEnvironmentData(ctx context.Context, env entity.Environment) error
	// ActivateExtension asks the extension host to execute and activate x, returning once it has.
	ActivateExtension(ctx context.Context, x entity.ExecutableExtension) error
}

type gateway struct {
	configuration *proxy.Remote
	context       *proxy.Remote
	extensions    *proxy.Remote
	environment   *proxy.Remote
}

// New returns a Gateway sending over conn.
func New(conn *proxy.Connection) Gateway {
	return &gateway{
		configuration: conn.Remote(DomainConfiguration),
		context:       conn.Remote(DomainContext),
		extensions:    conn.Remote(DomainExtensions),
		environment:   conn.Remote(DomainEnvironment),
	}
}

func (g *gateway) AcceptConfigurationData(ctx context.Context, cascade entity.SettingsCascade) error {
	if err := g.configuration.Call(ctx, MethodAcceptConfigurationData, nil, cascade); err != nil {
		return fmt.Errorf(_errSendToExtensionHost, MethodAcceptConfigurationData, err)
	}
	return nil
}

func (g *gateway) AcceptContextData(ctx context.Context, c entity.Context) error {
	if err := g.context.Call(ctx, MethodAcceptContextData, nil, c); err != nil {
		return fmt.Errorf(_errSendToExtensionHost, MethodAcceptContextData, err)
	}
	return nil
}

func (g *gateway) ActivateExtension(ctx context.Context, x entity.ExecutableExtension) error {
	if err := g.extensions.Call(ctx, MethodActivateExtension, nil, x); err != nil {
		return fmt.Errorf(_errSendToExtensionHost, MethodActivateExtension, err)
	}
	return nil
}

func (g *gateway) AcceptEnvironmentData(ctx context.Context, env entity.Environment) error {
	env.Extensions = nil
	if err := g.environment.Call(ctx, MethodAcceptEnvironmentData, nil, env); err != nil {
		return fmt.Errorf(_errSendToExtensionHost, MethodAcceptEnvironmentData, err)
	}
	return nil
}
