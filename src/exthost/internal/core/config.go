package core

import (
	"fmt"
	"os"
	"path/filepath"

	uber_config "go.uber.org/config"
	"go.uber.org/fx"
)

const (
	_envConfigDir     = "EXTHOST_CONFIG_DIR"
	_defaultConfigDir = "src/exthost/config"
	_metaFile         = "meta.yaml"
)

// ConfigModule provides the layered YAML configuration.
var ConfigModule = fx.Options(
	fx.Provide(NewConfig),
)

// Config wraps the provider built from the files listed in meta.yaml.
type Config struct {
	provider uber_config.Provider
}

func (c Config) Get(path string) uber_config.Value {
	return c.provider.Get(path)
}

func (c Config) Name() string {
	return "config"
}

// NewConfig loads the configuration from the directory named by EXTHOST_CONFIG_DIR.
func NewConfig() (uber_config.Provider, error) {
	return NewConfigFromDir(getConfigDir())
}

// NewConfigFromDir loads meta.yaml from configDir and layers every listed file that exists, in order.
func NewConfigFromDir(configDir string) (uber_config.Provider, error) {
	metaProvider, err := uber_config.NewYAML(
		uber_config.File(filepath.Join(configDir, _metaFile)),
		uber_config.Expand(os.LookupEnv),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta configuration: %w", err)
	}

	var configFiles []string
	if err := metaProvider.Get("files").Populate(&configFiles); err != nil {
		return nil, fmt.Errorf("failed to read files list from meta.yaml: %w", err)
	}

	var options []uber_config.YAMLOption
	for _, file := range configFiles {
		fullPath := filepath.Join(configDir, file)
		if _, err := os.Stat(fullPath); err == nil {
			options = append(options, uber_config.File(fullPath))
		}
	}

	if len(options) == 0 {
		return nil, fmt.Errorf("no configuration files found in %s", configDir)
	}
	options = append(options, uber_config.Expand(os.LookupEnv))

	provider, err := uber_config.NewYAML(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return Config{provider: provider}, nil
}

// getConfigDir returns the path to the configuration directory.
func getConfigDir() string {
	if configDir := os.Getenv(_envConfigDir); configDir != "" {
		return configDir
	}

	// Relative to the workspace root, where the binary is expected to run.
	return _defaultConfigDir
}
