// Package extensions decides which configured extensions the extension host activates.
package extensions

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/controller/settings"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"github.com/uber/exthost-broker/src/exthost/repository/environment"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ActivationFilter returns the extensions whose activation conditions hold in the given state. It only looks
// at the current state; remembering earlier activations is up to the Service.
type ActivationFilter func(env entity.Environment, cascade entity.SettingsCascade) []entity.ExtensionDescriptor

// Service computes the set of active extensions.
type Service interface {
	// ActiveExtensions emits the extensions to execute each time the environment or the settings change.
	// Every subscription remembers the extensions it activated and keeps emitting them for as long as
	// they are configured, even when their activation conditions stop holding.
	ActiveExtensions() observable.Observable[[]entity.ExecutableExtension]
}

// Params are inbound parameters to initialize a new extensions service.
type Params struct {
	fx.In

	Environment environment.Repository
	Settings    settings.Service
	Logger      *zap.SugaredLogger
	Stats       tally.Scope
	Filter      ActivationFilter `optional:"true"`
}

type service struct {
	environment observable.Observable[entity.Environment]
	settings    observable.Observable[entity.SettingsCascade]
	filter      ActivationFilter
	logger      *zap.SugaredLogger
	stats       tally.Scope

	// activations holds the activated count of every live subscription.
	mu          sync.Mutex
	activations map[*activation]int
}

// New creates an extensions service over the shared environment and settings.
func New(p Params) Service {
	return NewService(p.Environment.Data(), p.Settings.Data(), p.Filter, p.Logger, p.Stats)
}

// NewService creates an extensions service over the given sources. A nil filter selects the enabled
// extensions that declare a matching activation event.
func NewService(
	env observable.Observable[entity.Environment],
	cascade observable.Observable[entity.SettingsCascade],
	filter ActivationFilter,
	logger *zap.SugaredLogger,
	stats tally.Scope,
) Service {
	if filter == nil {
		filter = DefaultActivationFilter(logger)
	}
	return &service{
		environment: env,
		settings:    cascade,
		filter:      filter,
		logger:      logger,
		stats:       stats.SubScope("extensions"),
		activations: make(map[*activation]int),
	}
}

func (s *service) ActiveExtensions() observable.Observable[[]entity.ExecutableExtension] {
	return observable.Func[[]entity.ExecutableExtension](func(observer func([]entity.ExecutableExtension)) observable.Subscription {
		a := &activation{
			service:   s,
			observer:  observer,
			activated: make(map[string]struct{}),
		}

		s.record(a, 0)

		var subs observable.Subscriptions
		subs.Add(observable.SubscriptionFunc(a.release))
		subs.Add(s.environment.Subscribe(a.onEnvironment))
		subs.Add(s.settings.Subscribe(a.onSettings))
		return &subs
	})
}

// record stores the activated count of a and reports the totals over the live subscriptions.
func (s *service) record(a *activation, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[a] = n
	s.report()
}

func (s *service) forget(a *activation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activations, a)
	s.report()
}

// report runs with mu held.
func (s *service) report() {
	var total int
	for _, n := range s.activations {
		total += n
	}
	s.stats.Gauge("subscriptions").Update(float64(len(s.activations)))
	s.stats.Gauge("activated").Update(float64(total))
}

// activation is the state of one ActiveExtensions subscription.
type activation struct {
	*service
	observer func([]entity.ExecutableExtension)

	mu          sync.Mutex
	env         entity.Environment
	cascade     entity.SettingsCascade
	hasEnv      bool
	hasSettings bool
	activated   map[string]struct{}
	last        []entity.ExtensionDescriptor
	emitted     bool
	released    bool
}

// release runs after both sources were unsubscribed.
func (a *activation) release() {
	a.mu.Lock()
	a.released = true
	a.mu.Unlock()
	a.forget(a)
}

func (a *activation) onEnvironment(env entity.Environment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.env, a.hasEnv = env, true
	a.evaluate()
}

func (a *activation) onSettings(cascade entity.SettingsCascade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cascade, a.hasSettings = cascade, true
	a.evaluate()
}

// evaluate runs with mu held, once both sources have produced a value.
func (a *activation) evaluate() {
	if a.released || !a.hasEnv || !a.hasSettings {
		return
	}

	for _, x := range a.candidates() {
		a.activated[x.ID] = struct{}{}
	}
	a.record(a, len(a.activated))

	active := make([]entity.ExtensionDescriptor, 0, len(a.env.Extensions))
	for _, x := range a.env.Extensions {
		if _, ok := a.activated[x.ID]; ok {
			active = append(active, x)
		}
	}

	if a.emitted && reflect.DeepEqual(a.last, active) {
		return
	}
	a.last, a.emitted = active, true

	executables := make([]entity.ExecutableExtension, 0, len(active))
	for _, x := range active {
		scriptURL, err := ScriptURL(x)
		if err != nil {
			a.logger.Warnw("unable to execute extension", zap.String("extension", x.ID), zap.Error(err))
			continue
		}
		executables = append(executables, entity.ExecutableExtension{ID: x.ID, ScriptURL: scriptURL})
	}
	a.observer(executables)
}

func (a *activation) candidates() (candidates []entity.ExtensionDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorw("extension activation filter panicked", zap.Any("panic", r))
			candidates = nil
		}
	}()
	return a.filter(a.env, a.cascade)
}

// DefaultActivationFilter selects the extensions that are enabled in the settings and declare either the "*"
// activation event or an "onLanguage:" event for the language of a visible document. Extensions that are
// missing, have an invalid manifest or declare no activation events are logged and skipped.
func DefaultActivationFilter(logger *zap.SugaredLogger) ActivationFilter {
	return func(env entity.Environment, cascade entity.SettingsCascade) []entity.ExtensionDescriptor {
		languages := env.VisibleLanguages()

		var selected []entity.ExtensionDescriptor
		for _, x := range env.Extensions {
			if matchesActivationEvent(logger, x, cascade, languages) {
				selected = append(selected, x)
			}
		}
		return selected
	}
}

func matchesActivationEvent(logger *zap.SugaredLogger, x entity.ExtensionDescriptor, cascade entity.SettingsCascade, languages []string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("checking extension activation", zap.String("extension", x.ID), zap.Any("panic", r))
			ok = false
		}
	}()

	switch {
	case !cascade.IsExtensionEnabled(x.ID):
		return false
	case x.ManifestError != nil:
		logger.Warnw("extension manifest is invalid", zap.String("extension", x.ID), zap.String("error", x.ManifestError.Message))
		return false
	case x.Manifest == nil:
		logger.Warnw("extension was not found, remove it from settings to suppress this warning", zap.String("extension", x.ID))
		return false
	case len(x.Manifest.ActivationEvents) == 0:
		logger.Warnw("extension has no activation events, so it will never be activated", zap.String("extension", x.ID))
		return false
	}

	for _, event := range x.Manifest.ActivationEvents {
		if event == entity.ActivationEventAll {
			return true
		}
		for _, language := range languages {
			if event == entity.ActivationEventOnLanguagePrefix+language {
				return true
			}
		}
	}
	return false
}

// ScriptURL returns the URL of the script bundle the extension host executes for x.
func ScriptURL(x entity.ExtensionDescriptor) (string, error) {
	switch {
	case x.ManifestError != nil:
		return "", fmt.Errorf("invalid manifest: %w", x.ManifestError)
	case x.Manifest == nil:
		return "", errors.New("extension manifest not found")
	case x.Manifest.URL == "":
		return "", errors.New("extension manifest has no url")
	}
	return x.Manifest.URL, nil
}
