package exthost

import (
	"context"
	"fmt"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	exthostclient "github.com/uber/exthost-broker/src/exthost/gateway/exthost"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/internal/proxy"
	"github.com/uber/exthost-broker/src/exthost/services"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bridge connects the shared services to one extension host connection. It pushes the settings, the
// context, the environment and the active extensions, and serves the requests the extension host makes.
type Bridge struct {
	conn     *proxy.Connection
	services *services.Container
	gateway  exthostclient.Gateway
	logger   *zap.SugaredLogger
	stats    tally.Scope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subs observable.Subscriptions

	mu            sync.Mutex
	unregisters   []func()
	activated     map[string]struct{}
	unsubscribed  bool
	activations   *queueSender[entity.ExecutableExtension]
	configuration *latestSender[entity.SettingsCascade]
	contextData   *latestSender[entity.Context]
	environment   *latestSender[entity.Environment]
}

// BridgeParams are the dependencies of a Bridge.
type BridgeParams struct {
	Conn     *proxy.Connection
	Services *services.Container
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
}

// NewBridge registers the host application's methods on the connection and starts pushing state.
func NewBridge(p BridgeParams) (*Bridge, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	stats := p.Stats
	if stats == nil {
		stats = tally.NoopScope
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		conn:      p.Conn,
		services:  p.Services,
		gateway:   exthostclient.New(p.Conn),
		logger:    logger.With("connection", p.Conn.UUID().String()),
		stats:     stats.SubScope("bridge"),
		ctx:       ctx,
		cancel:    cancel,
		activated: make(map[string]struct{}),
	}

	if err := b.registerMethods(); err != nil {
		return nil, multierr.Append(err, b.Unsubscribe())
	}

	b.configuration = newLatestSender("configuration", b.logger, b.gateway.AcceptConfigurationData)
	b.contextData = newLatestSender("context", b.logger, b.gateway.AcceptContextData)
	b.environment = newLatestSender("environment", b.logger, b.gateway.AcceptEnvironmentData)
	b.activations = newQueueSender("extensions", b.logger, b.activate)
	b.start(b.configuration.run, b.contextData.run, b.environment.run, b.activations.run)

	b.subs.Add(p.Services.Settings.Data().Subscribe(func(cascade entity.SettingsCascade) {
		// Extensions only ever see valid settings.
		if cascade.IsValid() {
			b.configuration.offer(cascade)
		}
	}))
	b.subs.Add(p.Services.Context.Data().Subscribe(b.contextData.offer))
	b.subs.Add(p.Services.Environment.Data().Subscribe(b.environment.offer))
	b.subs.Add(p.Services.Extensions.ActiveExtensions().Subscribe(b.onActiveExtensions))

	return b, nil
}

func (b *Bridge) start(runs ...func(ctx context.Context)) {
	for _, run := range runs {
		b.wg.Add(1)
		go func(run func(ctx context.Context)) {
			defer b.wg.Done()
			run(b.ctx)
		}(run)
	}
}

func (b *Bridge) registerMethods() error {
	domains := map[string]proxy.Methods{
		exthostclient.DomainConfiguration: {
			exthostclient.MethodAcceptConfigurationUpdate: proxy.Notification1(b.acceptConfigurationUpdate),
		},
		exthostclient.DomainContext: {
			exthostclient.MethodAcceptContextUpdates: proxy.Notification1(b.acceptContextUpdates),
		},
		exthostclient.DomainContribution: {
			exthostclient.MethodRegisterContributions: proxy.Notification1(b.registerContributions),
		},
	}
	for domain, methods := range domains {
		unregister, err := b.conn.Register(domain, methods)
		if err != nil {
			return fmt.Errorf("registering %s methods: %w", domain, err)
		}
		b.addUnregister(unregister)
	}
	return nil
}

func (b *Bridge) addUnregister(unregister func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribed {
		return false
	}
	b.unregisters = append(b.unregisters, unregister)
	return true
}

func (b *Bridge) acceptConfigurationUpdate(ctx context.Context, edit entity.SettingsUpdate) error {
	b.stats.Counter("configuration_updates").Inc(1)
	return b.services.Settings.Update(ctx, edit)
}

func (b *Bridge) acceptContextUpdates(ctx context.Context, patch entity.Context) error {
	b.stats.Counter("context_updates").Inc(1)
	b.services.Context.Update(patch)
	return nil
}

func (b *Bridge) registerContributions(ctx context.Context, c entity.Contributions) error {
	unregister, err := b.services.Contribution.Register(c)
	if err != nil {
		return err
	}
	if !b.addUnregister(unregister) {
		unregister()
	}
	return nil
}

// onActiveExtensions queues the activation of every extension this connection has not activated yet.
func (b *Bridge) onActiveExtensions(active []entity.ExecutableExtension) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, x := range active {
		if _, ok := b.activated[x.ID]; ok {
			continue
		}
		b.activated[x.ID] = struct{}{}
		b.activations.offer(x)
	}
}

func (b *Bridge) activate(ctx context.Context, x entity.ExecutableExtension) error {
	if err := b.gateway.ActivateExtension(ctx, x); err != nil {
		b.stats.Counter("activation_errors").Inc(1)
		return fmt.Errorf("activating extension %q: %w", x.ID, err)
	}
	b.stats.Counter("activations").Inc(1)
	b.logger.Infow("extension activated", zap.String("extension", x.ID), zap.String("scriptURL", x.ScriptURL))
	return nil
}

// Unsubscribe stops pushing state, releases the contributions registered through this connection and
// closes the connection. It is safe to call more than once.
func (b *Bridge) Unsubscribe() error {
	b.mu.Lock()
	if b.unsubscribed {
		b.mu.Unlock()
		return nil
	}
	b.unsubscribed = true
	unregisters := b.unregisters
	b.unregisters = nil
	b.mu.Unlock()

	b.subs.Unsubscribe()
	for i := len(unregisters) - 1; i >= 0; i-- {
		unregisters[i]()
	}

	b.cancel()
	err := b.conn.Close()
	b.wg.Wait()
	return err
}
