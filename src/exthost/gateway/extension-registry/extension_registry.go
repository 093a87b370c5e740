// Package extensionregistry loads the manifests of the configured extensions.
package extensionregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/uber/exthost-broker/src/exthost/entity"
	"github.com/uber/exthost-broker/src/exthost/internal/fs"
	"github.com/uber/exthost-broker/src/exthost/repository/environment"
	"github.com/xeipuuv/gojsonschema"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKeyManifests = "extensions.manifests"

// manifestSchema describes the fields of a manifest the extension host relies on. Unknown fields are kept in
// the raw manifest.
const manifestSchema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "activationEvents": {"type": "array", "items": {"type": "string"}}
  }
}`

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Registry loads extension descriptors.
type Registry interface {
	// Load reads every configured manifest. A missing manifest yields a descriptor without one and an
	// invalid manifest yields a descriptor carrying the validation error.
	Load(ctx context.Context) ([]entity.ExtensionDescriptor, error)
}

// ManifestConfig is an extension and the location of its manifest.
type ManifestConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// Params are inbound parameters to initialize a new extension registry.
type Params struct {
	fx.In

	Config      config.Provider
	Logger      *zap.SugaredLogger
	FS          fs.FS
	Environment environment.Repository
	Lifecycle   fx.Lifecycle `optional:"true"`
}

type registry struct {
	manifests []ManifestConfig
	schema    *gojsonschema.Schema
	fs        fs.FS
	logger    *zap.SugaredLogger
	env       environment.Repository
}

// New creates a registry for the manifests listed in the configuration. When a lifecycle is provided, the
// descriptors are published to the environment on start.
func New(p Params) (Registry, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling manifest schema: %w", err)
	}

	r := &registry{
		schema: schema,
		fs:     p.FS,
		logger: p.Logger,
		env:    p.Environment,
	}
	if err := r.processConfig(p.Config); err != nil {
		return nil, err
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: r.publish,
		})
	}
	return r, nil
}

func (r *registry) Load(ctx context.Context) ([]entity.ExtensionDescriptor, error) {
	descriptors := make([]entity.ExtensionDescriptor, 0, len(r.manifests))
	for _, m := range r.manifests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, err := r.load(m)
		if err != nil {
			return nil, fmt.Errorf("loading extension %q: %w", m.ID, err)
		}
		descriptors = append(descriptors, x)
	}
	return descriptors, nil
}

func (r *registry) load(m ManifestConfig) (entity.ExtensionDescriptor, error) {
	x := entity.ExtensionDescriptor{ID: m.ID}

	exists, err := r.fs.FileExists(m.Path)
	if err != nil {
		return x, err
	}
	if !exists {
		r.logger.Warnw("extension manifest not found", zap.String("extension", m.ID), zap.String("path", m.Path))
		return x, nil
	}

	data, err := r.fs.ReadFile(m.Path)
	if err != nil {
		return x, err
	}
	raw := string(data)
	x.RawManifest = &raw

	manifest, err := r.parse(m.Path, data)
	if err != nil {
		x.ManifestError = entity.NewErrorLike(err)
		return x, nil
	}
	x.Manifest = manifest
	return x, nil
}

func (r *registry) parse(path string, data []byte) (*entity.ExtensionManifest, error) {
	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("invalid manifest: %s", strings.Join(details, "; "))
	}

	var manifest entity.ExtensionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	if manifest.URL != "" {
		resolved, err := resolveURL(path, manifest.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest url %q: %w", manifest.URL, err)
		}
		manifest.URL = resolved
	}
	return &manifest, nil
}

// resolveURL resolves a script URL relative to the manifest file.
func resolveURL(manifestPath, ref string) (string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if target.IsAbs() {
		return target.String(), nil
	}

	base, err := url.Parse(string(uri.File(manifestPath)))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

func (r *registry) publish(ctx context.Context) error {
	descriptors, err := r.Load(ctx)
	if err != nil {
		return err
	}
	r.env.Update(func(current entity.Environment) entity.Environment {
		current.Extensions = descriptors
		return current
	})
	r.logger.Infow("extensions loaded", zap.Int("count", len(descriptors)))
	return nil
}

func (r *registry) processConfig(cfg config.Provider) error {
	var manifests []ManifestConfig
	if err := cfg.Get(_configKeyManifests).Populate(&manifests); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyManifests, err)
	}

	for i, m := range manifests {
		if m.ID == "" || m.Path == "" {
			return fmt.Errorf("extension manifest %d requires an id and a path", i)
		}
		abs, err := r.fs.Abs(m.Path)
		if err != nil {
			return fmt.Errorf("resolving manifest of extension %q: %w", m.ID, err)
		}
		manifests[i].Path = abs
	}
	r.manifests = manifests
	return nil
}
