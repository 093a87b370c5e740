// Package serverinfofile publishes how to reach this broker in a JSON document that extension host launchers read.
package serverinfofile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/uber/exthost-broker/src/exthost/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKeyInfoFile = "serverInfoFilePath"

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ServerInfoFile is the broker's server info document.
type ServerInfoFile interface {
	// Publish merges fields into the document and rewrites the file. Fields published earlier are kept.
	Publish(fields map[string]string) error
}

type document struct {
	path   string
	fs     fs.FS
	logger *zap.SugaredLogger

	mu        sync.Mutex
	fields    map[string]string
	published bool
}

// Params define values to be used by ServerInfoFile.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	FS        fs.FS
}

// New creates the server info document at the configured path. The file is removed when the application stops.
func New(p Params) (ServerInfoFile, error) {
	path, err := infoFilePath(p.Config, p.FS)
	if err != nil {
		return nil, err
	}

	d := &document{
		path:   path,
		fs:     p.FS,
		logger: p.Logger,
		fields: make(map[string]string),
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: d.remove,
	})
	return d, nil
}

func (d *document) Publish(fields map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range fields {
		d.fields[k] = v
	}
	data, err := json.Marshal(d.fields)
	if err != nil {
		return fmt.Errorf("marshalling server info: %w", err)
	}

	if err := d.fs.MkdirAll(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("creating server info directory: %w", err)
	}
	if err := d.fs.WriteFile(d.path, data); err != nil {
		return fmt.Errorf("writing server info file: %w", err)
	}
	d.published = true

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.logger.Infow("server info published", zap.String("file", d.path), zap.Strings("fields", keys))
	return nil
}

// remove deletes the file if this process wrote it.
func (d *document) remove(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.published {
		return nil
	}
	exists, err := d.fs.FileExists(d.path)
	if err != nil || !exists {
		return err
	}
	if err := d.fs.Remove(d.path); err != nil {
		return fmt.Errorf("removing server info file: %w", err)
	}
	d.published = false
	return nil
}

func infoFilePath(cfg config.Provider, files fs.FS) (string, error) {
	var path string
	if err := cfg.Get(_configKeyInfoFile).Populate(&path); err != nil {
		return "", fmt.Errorf("getting config field %q: %w", _configKeyInfoFile, err)
	}
	if path == "" {
		return "", fmt.Errorf("missing field %q in config", _configKeyInfoFile)
	}

	// Launchers may start in another working directory.
	abs, err := files.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}
	return abs, nil
}
