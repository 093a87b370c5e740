// Package contextservice holds the context: the flat key-value state that `when` clauses and extensions
// consult, together with the properties computed from the environment and the settings.
package contextservice

import (
	"path"
	"strings"

	"github.com/uber-go/tally"
	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/observable"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configPrefix   = "config."
	_resourcePrefix = "resource."
	_componentType  = "component.type"

	_resourceType  = "textDocument"
	_componentKind = "textEditor"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Service owns the context.
type Service interface {
	// Data replays the current context to each subscriber and then pushes every update.
	Data() observable.Observable[entity.Context]
	// Value returns the current context.
	Value() entity.Context
	// Update merges patch into the context and publishes the result.
	Update(patch entity.Context) entity.Context
}

// Params are inbound parameters to initialize a new context service.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type service struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
	data   *observable.Subject[entity.Context]
}

// New creates a context service holding an empty context.
func New(p Params) Service {
	return &service{
		logger: p.Logger,
		stats:  p.Stats.SubScope("context"),
		data:   observable.NewSubject(entity.Context{}),
	}
}

func (s *service) Data() observable.Observable[entity.Context] {
	return s.data
}

func (s *service) Value() entity.Context {
	return s.data.Value()
}

func (s *service) Update(patch entity.Context) entity.Context {
	s.stats.Counter("updates").Inc(1)
	next := s.data.Update(func(current entity.Context) entity.Context {
		return ApplyContextUpdate(current, patch)
	})
	s.logger.Debugw("context updated", zap.Int("keys", len(patch)))
	return next
}

// ApplyContextUpdate returns a new context with patch merged into current. A nil value in patch removes the
// key; keys absent from patch are kept. Neither argument is modified.
func ApplyContextUpdate(current, patch entity.Context) entity.Context {
	result := current.Clone()
	for k, v := range patch {
		if v == nil {
			delete(result, k)
			continue
		}
		result[k] = v
	}
	return result
}

// GetComputedContextProperty resolves key against the environment, the settings and the context.
//
// Keys prefixed with "config." name a literal top-level key of the merged settings and resolve to nil when
// it is missing. Keys prefixed with "resource." describe the first visible document and "component.type"
// the editor showing it. Any other key is read from ctx. ok is false when the key is undefined.
func GetComputedContextProperty(env entity.Environment, cascade entity.SettingsCascade, ctx entity.Context, key string) (value interface{}, ok bool) {
	if strings.HasPrefix(key, _configPrefix) {
		if cascade.FinalError != nil || cascade.Final == nil {
			return nil, true
		}
		return cascade.Final[strings.TrimPrefix(key, _configPrefix)], true
	}

	if strings.HasPrefix(key, _resourcePrefix) {
		if len(env.VisibleTextDocuments) == 0 {
			return nil, false
		}
		return resourceProperty(env.VisibleTextDocuments[0], strings.TrimPrefix(key, _resourcePrefix))
	}

	if key == _componentType {
		if len(env.VisibleTextDocuments) == 0 {
			return nil, false
		}
		return _componentKind, true
	}

	value, ok = ctx[key]
	return value, ok
}

func resourceProperty(doc entity.TextDocument, field string) (interface{}, bool) {
	uri := string(doc.URI)
	dirname, basename := splitURI(uri)

	switch field {
	case "uri":
		return uri, true
	case "basename":
		return basename, true
	case "dirname":
		return dirname, true
	case "extname":
		return path.Ext(basename), true
	case "language":
		return string(doc.LanguageID), true
	case "textContent":
		return doc.Text, true
	case "type":
		return _resourceType, true
	default:
		return nil, false
	}
}

// splitURI splits a URI at its last path separator.
func splitURI(uri string) (dirname, basename string) {
	i := strings.LastIndex(uri, "/")
	if i < 0 {
		return "", uri
	}
	return uri[:i], uri[i+1:]
}
