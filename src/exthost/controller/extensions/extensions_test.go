package extensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func descriptor(id string, events ...string) entity.ExtensionDescriptor {
	return entity.ExtensionDescriptor{
		ID:       id,
		Manifest: &entity.ExtensionManifest{URL: "u", ActivationEvents: events},
	}
}

func enabled(ids ...string) entity.SettingsCascade {
	extensions := map[string]interface{}{}
	for _, id := range ids {
		extensions[id] = true
	}
	return entity.SettingsCascade{
		Subjects: []entity.SettingsSubject{},
		Final:    entity.Settings{"extensions": extensions},
	}
}

// enabledFilter activates every enabled extension regardless of its activation events.
func enabledFilter(env entity.Environment, cascade entity.SettingsCascade) []entity.ExtensionDescriptor {
	var out []entity.ExtensionDescriptor
	for _, x := range env.Extensions {
		if cascade.IsExtensionEnabled(x.ID) {
			out = append(out, x)
		}
	}
	return out
}

type harness struct {
	env      *observable.Subject[entity.Environment]
	settings *observable.Subject[entity.SettingsCascade]
	emitted  [][]entity.ExecutableExtension
	sub      observable.Subscription
}

func newHarness(t *testing.T, filter ActivationFilter, logger *zap.SugaredLogger) *harness {
	h := &harness{
		env:      observable.NewSubject(entity.Environment{}),
		settings: observable.NewSubject(entity.SettingsCascade{}),
	}
	s := NewService(h.env, h.settings, filter, logger, tally.NoopScope)
	h.sub = s.ActiveExtensions().Subscribe(func(x []entity.ExecutableExtension) {
		h.emitted = append(h.emitted, x)
	})
	t.Cleanup(h.sub.Unsubscribe)
	return h
}

func TestActiveExtensionsEmptySet(t *testing.T) {
	h := newHarness(t, func(env entity.Environment, _ entity.SettingsCascade) []entity.ExtensionDescriptor {
		return env.Extensions
	}, zap.NewNop().Sugar())

	require.Len(t, h.emitted, 1)
	assert.Equal(t, []entity.ExecutableExtension{}, h.emitted[0])
}

func TestActiveExtensionsStickyActivation(t *testing.T) {
	h := newHarness(t, enabledFilter, zap.NewNop().Sugar())

	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x")}})
	h.settings.Next(enabled("x"))

	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x"), descriptor("y")}})
	h.settings.Next(enabled("y"))

	// x stays active although it is no longer enabled.
	h.settings.Next(enabled())

	// Removing x from the environment drops it from the output only.
	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("y")}})
	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x"), descriptor("y")}})

	assert.Equal(t, [][]entity.ExecutableExtension{
		{},
		{{ID: "x", ScriptURL: "u"}},
		{{ID: "x", ScriptURL: "u"}, {ID: "y", ScriptURL: "u"}},
		{{ID: "y", ScriptURL: "u"}},
		{{ID: "x", ScriptURL: "u"}, {ID: "y", ScriptURL: "u"}},
	}, h.emitted)
}

func TestActiveExtensionsSubscriptionsAreIndependent(t *testing.T) {
	env := observable.NewSubject(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x")}})
	cascade := observable.NewSubject(enabled("x"))
	s := NewService(env, cascade, enabledFilter, zap.NewNop().Sugar(), tally.NoopScope)

	var first [][]entity.ExecutableExtension
	sub := s.ActiveExtensions().Subscribe(func(x []entity.ExecutableExtension) { first = append(first, x) })
	defer sub.Unsubscribe()
	require.Equal(t, [][]entity.ExecutableExtension{{{ID: "x", ScriptURL: "u"}}}, first)

	cascade.Next(enabled())

	// A new subscription starts with nothing activated.
	var second [][]entity.ExecutableExtension
	sub2 := s.ActiveExtensions().Subscribe(func(x []entity.ExecutableExtension) { second = append(second, x) })
	defer sub2.Unsubscribe()
	assert.Equal(t, [][]entity.ExecutableExtension{{}}, second)
	assert.Len(t, first, 1)
}

func TestActivatedGaugeCoversAllSubscriptions(t *testing.T) {
	env := observable.NewSubject(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x"), descriptor("y")}})
	cascade := observable.NewSubject(enabled("x"))
	scope := tally.NewTestScope("", nil)
	s := NewService(env, cascade, enabledFilter, zap.NewNop().Sugar(), scope)

	gauge := func(name string) float64 {
		g, ok := scope.Snapshot().Gauges()["extensions."+name+"+"]
		require.True(t, ok, name)
		return g.Value()
	}

	first := s.ActiveExtensions().Subscribe(func([]entity.ExecutableExtension) {})
	assert.Equal(t, float64(1), gauge("activated"))

	cascade.Next(enabled("x", "y"))
	second := s.ActiveExtensions().Subscribe(func([]entity.ExecutableExtension) {})
	assert.Equal(t, float64(2), gauge("subscriptions"))
	assert.Equal(t, float64(4), gauge("activated"))

	// A subscription that activates nothing must not reset the others.
	cascade.Next(enabled())
	third := s.ActiveExtensions().Subscribe(func([]entity.ExecutableExtension) {})
	assert.Equal(t, float64(3), gauge("subscriptions"))
	assert.Equal(t, float64(4), gauge("activated"))

	first.Unsubscribe()
	assert.Equal(t, float64(2), gauge("activated"))

	second.Unsubscribe()
	third.Unsubscribe()
	assert.Equal(t, float64(0), gauge("subscriptions"))
	assert.Equal(t, float64(0), gauge("activated"))
}

func TestActiveExtensionsUnsubscribe(t *testing.T) {
	h := newHarness(t, enabledFilter, zap.NewNop().Sugar())
	h.sub.Unsubscribe()

	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x")}})
	h.settings.Next(enabled("x"))

	assert.Len(t, h.emitted, 1)
	assert.Equal(t, 0, h.env.ObserverCount())
	assert.Equal(t, 0, h.settings.ObserverCount())
}

func TestDefaultActivationFilter(t *testing.T) {
	invalid := entity.ExtensionDescriptor{ID: "invalid", ManifestError: &entity.ErrorLike{Message: "bad manifest"}}
	missing := entity.ExtensionDescriptor{ID: "missing"}

	tests := []struct {
		name     string
		env      entity.Environment
		cascade  entity.SettingsCascade
		want     []string
		warnings int
	}{
		{
			name:    "star activation",
			env:     entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x", "*")}},
			cascade: enabled("x"),
			want:    []string{"x"},
		},
		{
			name:    "not enabled",
			env:     entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x", "*")}},
			cascade: enabled(),
		},
		{
			name: "language of a visible document",
			env: entity.Environment{
				VisibleTextDocuments: []entity.TextDocument{{URI: "file:///a.txt", LanguageID: "plaintext"}, {URI: "file:///b.go", LanguageID: "go"}},
				Extensions: []entity.ExtensionDescriptor{
					descriptor("go", "onLanguage:go"),
					descriptor("py", "onLanguage:python"),
				},
			},
			cascade: enabled("go", "py"),
			want:    []string{"go"},
		},
		{
			name:     "missing invalid and eventless manifests",
			env:      entity.Environment{Extensions: []entity.ExtensionDescriptor{missing, invalid, descriptor("none")}},
			cascade:  enabled("missing", "invalid", "none"),
			warnings: 3,
		},
		{
			name:    "invalid settings",
			env:     entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x", "*")}},
			cascade: entity.SettingsCascade{FinalError: &entity.ErrorLike{Message: "bad"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			filter := DefaultActivationFilter(zap.New(core).Sugar())

			var got []string
			for _, x := range filter(tt.env, tt.cascade) {
				got = append(got, x.ID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warnings, logs.Len())
		})
	}
}

func TestFilterPanicIsContained(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness(t, func(env entity.Environment, cascade entity.SettingsCascade) []entity.ExtensionDescriptor {
		if len(env.Extensions) == 1 {
			panic("boom")
		}
		return enabledFilter(env, cascade)
	}, zap.New(core).Sugar())

	h.settings.Next(enabled("x", "y"))
	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x")}})
	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{descriptor("x"), descriptor("y")}})

	assert.Equal(t, 1, logs.FilterMessage("extension activation filter panicked").Len())
	assert.Equal(t, []entity.ExecutableExtension{{ID: "x", ScriptURL: "u"}, {ID: "y", ScriptURL: "u"}}, h.emitted[len(h.emitted)-1])
}

func TestUnresolvableScriptURLIsSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, enabledFilter, zap.New(core).Sugar())

	noURL := entity.ExtensionDescriptor{ID: "nourl", Manifest: &entity.ExtensionManifest{ActivationEvents: []string{"*"}}}
	h.env.Next(entity.Environment{Extensions: []entity.ExtensionDescriptor{noURL, descriptor("x")}})
	h.settings.Next(enabled("nourl", "x"))

	assert.Equal(t, []entity.ExecutableExtension{{ID: "x", ScriptURL: "u"}}, h.emitted[len(h.emitted)-1])
	assert.Equal(t, 1, logs.FilterMessage("unable to execute extension").Len())
}

func TestScriptURL(t *testing.T) {
	u, err := ScriptURL(descriptor("x"))
	require.NoError(t, err)
	assert.Equal(t, "u", u)

	_, err = ScriptURL(entity.ExtensionDescriptor{ID: "x"})
	assert.Error(t, err)

	_, err = ScriptURL(entity.ExtensionDescriptor{ID: "x", ManifestError: &entity.ErrorLike{Message: "bad"}})
	assert.ErrorContains(t, err, "bad")
}
