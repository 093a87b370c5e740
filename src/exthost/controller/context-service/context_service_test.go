package contextservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"go.uber.org/zap"
)

func TestApplyContextUpdate(t *testing.T) {
	current := entity.Context{"a": 1, "b": nil, "c": 2, "d": 3, "e": nil}
	patch := entity.Context{"a": nil, "b": 1, "c": 3}

	got := ApplyContextUpdate(current, patch)
	assert.Equal(t, entity.Context{"b": 1, "c": 3, "d": 3, "e": nil}, got)

	// Inputs are left untouched.
	assert.Equal(t, entity.Context{"a": 1, "b": nil, "c": 2, "d": 3, "e": nil}, current)
	assert.Equal(t, entity.Context{"a": nil, "b": 1, "c": 3}, patch)

	assert.Equal(t, entity.Context{"x": true}, ApplyContextUpdate(nil, entity.Context{"x": true, "y": nil}))
}

func TestGetComputedContextProperty(t *testing.T) {
	cascade := entity.SettingsCascade{
		Subjects: []entity.SettingsSubject{},
		Final: entity.Settings{
			"a":   1,
			"a.b": 2,
			"c.d": 3,
		},
	}
	withDoc := entity.Environment{
		VisibleTextDocuments: []entity.TextDocument{
			{URI: "file:///a/b.c", LanguageID: "l", Text: "t"},
			{URI: "file:///x/y.go", LanguageID: "go", Text: "package y"},
		},
	}
	ctx := entity.Context{"myKey": "myValue", "config.a": "shadowed", "resource.uri": "shadowed"}

	tests := []struct {
		name   string
		env    entity.Environment
		key    string
		want   interface{}
		wantOK bool
	}{
		{name: "config top-level", key: "config.a", want: 1, wantOK: true},
		{name: "config dotted key is literal", key: "config.a.b", want: 2, wantOK: true},
		{name: "config dotted key without parent", key: "config.c.d", want: 3, wantOK: true},
		{name: "config missing is null", key: "config.x", want: nil, wantOK: true},
		{name: "resource uri", env: withDoc, key: "resource.uri", want: "file:///a/b.c", wantOK: true},
		{name: "resource basename", env: withDoc, key: "resource.basename", want: "b.c", wantOK: true},
		{name: "resource dirname", env: withDoc, key: "resource.dirname", want: "file:///a", wantOK: true},
		{name: "resource extname", env: withDoc, key: "resource.extname", want: ".c", wantOK: true},
		{name: "resource language", env: withDoc, key: "resource.language", want: "l", wantOK: true},
		{name: "resource textContent", env: withDoc, key: "resource.textContent", want: "t", wantOK: true},
		{name: "resource type", env: withDoc, key: "resource.type", want: "textDocument", wantOK: true},
		{name: "resource unknown field", env: withDoc, key: "resource.size", wantOK: false},
		{name: "component type", env: withDoc, key: "component.type", want: "textEditor", wantOK: true},
		{name: "resource without document", key: "resource.uri", wantOK: false},
		{name: "resource basename without document", key: "resource.basename", wantOK: false},
		{name: "resource type without document", key: "resource.type", wantOK: false},
		{name: "component without document", key: "component.type", wantOK: false},
		{name: "context fallback", key: "myKey", want: "myValue", wantOK: true},
		{name: "context missing", key: "otherKey", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetComputedContextProperty(tt.env, cascade, ctx, tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetComputedContextPropertyRootDocument(t *testing.T) {
	env := entity.Environment{VisibleTextDocuments: []entity.TextDocument{{URI: "file:///b.c", LanguageID: "l"}}}

	dirname, ok := GetComputedContextProperty(env, entity.SettingsCascade{}, entity.Context{}, "resource.dirname")
	assert.True(t, ok)
	assert.Equal(t, "file://", dirname)

	basename, ok := GetComputedContextProperty(env, entity.SettingsCascade{}, entity.Context{}, "resource.basename")
	assert.True(t, ok)
	assert.Equal(t, "b.c", basename)
}

func TestGetComputedContextPropertyInvalidCascade(t *testing.T) {
	cascade := entity.SettingsCascade{FinalError: &entity.ErrorLike{Message: "bad"}}
	got, ok := GetComputedContextProperty(entity.Environment{}, cascade, entity.Context{"config.a": 1}, "config.a")
	assert.True(t, ok)
	assert.Nil(t, got)
}

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri, dirname, basename string
	}{
		{"file:///a/b.c", "file:///a", "b.c"},
		{"file:///b.c", "file://", "b.c"},
		{"file:///a//b.c", "file:///a/", "b.c"},
		{"untitled", "", "untitled"},
		{"https://example.com/repo/-/blob/main.go", "https://example.com/repo/-/blob", "main.go"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			dirname, basename := splitURI(tt.uri)
			assert.Equal(t, tt.dirname, dirname)
			assert.Equal(t, tt.basename, basename)
		})
	}
}

func TestService(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	s := New(Params{Logger: zap.NewNop().Sugar(), Stats: scope})

	var got []entity.Context
	sub := s.Data().Subscribe(func(c entity.Context) { got = append(got, c) })
	defer sub.Unsubscribe()

	s.Update(entity.Context{"a": 1, "b": 2})
	next := s.Update(entity.Context{"a": nil})

	require.Len(t, got, 3)
	assert.Equal(t, entity.Context{}, got[0])
	assert.Equal(t, entity.Context{"a": 1, "b": 2}, got[1])
	assert.Equal(t, entity.Context{"b": 2}, got[2])
	assert.Equal(t, next, s.Value())
}
