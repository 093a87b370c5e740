// Package services is the container of the application services shared by every extension host connection.
package services

import (
	contextservice "github.com/uber/exthost-broker/src/exthost/controller/context-service"
	"github.com/uber/exthost-broker/src/exthost/controller/contribution"
	"github.com/uber/exthost-broker/src/exthost/controller/extensions"
	"github.com/uber/exthost-broker/src/exthost/controller/settings"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/repository/environment"
	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Container exposes the read models pushed to the extension host and the registries it writes to.
type Container struct {
	Environment  environment.Repository
	Settings     settings.Service
	Context      contextservice.Service
	Extensions   extensions.Service
	Contribution contribution.Registry
}

// Params are inbound parameters to build the container.
type Params struct {
	fx.In

	Environment  environment.Repository
	Settings     settings.Service
	Context      contextservice.Service
	Extensions   extensions.Service
	Contribution contribution.Registry
}

// New creates a services container.
func New(p Params) *Container {
	return &Container{
		Environment:  p.Environment,
		Settings:     p.Settings,
		Context:      p.Context,
		Extensions:   p.Extensions,
		Contribution: p.Contribution,
	}
}

// Model returns the current environment together with the current settings cascade and context.
func (c *Container) Model() entity.Model {
	return entity.Model{
		Environment:   c.Environment.Get(),
		Configuration: c.Settings.Value(),
		Context:       c.Context.Value(),
	}
}

// VisibleActions returns the contributed actions whose `when` clause holds in the current model.
func (c *Container) VisibleActions() []entity.ActionContribution {
	return c.Contribution.Visible(c.Model())
}
