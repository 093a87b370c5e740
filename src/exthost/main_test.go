package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uber/exthost-broker/src/exthost/controller/client"
	"github.com/uber/exthost-broker/src/exthost/handler/exthost"
	"github.com/uber/exthost-broker/src/exthost/internal/jsonrpcfx"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
	"github.com/uber/exthost-broker/src/exthost/services"
	"go.uber.org/fx"
	"go.uber.org/goleak"
)

func TestDependenciesAreSatisfied(t *testing.T) {
	assert.NoError(t, fx.ValidateApp(opts()))
}

func TestApplicationResolves(t *testing.T) {
	tests := []struct {
		name   string
		invoke interface{}
	}{
		{
			name:   "extension host client",
			invoke: func(client.Client) {},
		},
		{
			name:   "connection manager registered with the JSON-RPC server",
			invoke: func(exthost.Manager, jsonrpcfx.JSONRPCModule) {},
		},
		{
			name:   "shared services",
			invoke: func(*services.Container) {},
		},
		{
			name:   "bridge factory over the connection stream",
			invoke: func(client.Factory, observable.Observable[*proxy.Connection]) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, fx.ValidateApp(opts(), fx.Invoke(tt.invoke)))
		})
	}
}

func TestUnprovidedTypeFailsValidation(t *testing.T) {
	type unprovided struct{}
	assert.Error(t, fx.ValidateApp(opts(), fx.Invoke(func(*unprovided) {})))
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
