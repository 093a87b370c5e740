package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
	}
	return dir
}

func TestNewConfigFromDir(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		expectError bool
		check       func(t *testing.T, c Config)
	}{
		{
			name: "layers files in order",
			files: map[string]string{
				"meta.yaml":  "files:\n  - base.yaml\n  - local.yaml\n",
				"base.yaml":  "jsonrpc:\n  address: 127.0.0.1:0\nlogging:\n  level: info\n",
				"local.yaml": "logging:\n  level: debug\n",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "debug", c.Get("logging.level").String())
				assert.Equal(t, "127.0.0.1:0", c.Get("jsonrpc.address").String())
			},
		},
		{
			name: "skips missing files",
			files: map[string]string{
				"meta.yaml": "files:\n  - base.yaml\n  - local.yaml\n",
				"base.yaml": "logging:\n  level: warn\n",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "warn", c.Get("logging.level").String())
				assert.False(t, c.Get("nonexistent.path").HasValue())
			},
		},
		{
			name: "expands environment variables",
			files: map[string]string{
				"meta.yaml": "files:\n  - base.yaml\n",
				"base.yaml": "jsonrpc:\n  address: ${EXTHOST_TEST_ADDRESS:127.0.0.1:9999}\n",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "127.0.0.1:9999", c.Get("jsonrpc.address").String())
			},
		},
		{
			name: "no listed file exists",
			files: map[string]string{
				"meta.yaml": "files:\n  - base.yaml\n",
			},
			expectError: true,
		},
		{
			name:        "missing meta file",
			files:       map[string]string{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfigDir(t, tt.files)
			provider, err := NewConfigFromDir(dir)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, provider)
				return
			}
			require.NoError(t, err)
			c := provider.(Config)
			assert.Equal(t, "config", c.Name())
			tt.check(t, c)
		})
	}
}

func TestNewConfigUsesEnvDir(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"meta.yaml": "files:\n  - base.yaml\n",
		"base.yaml": "serverInfoFilePath: /tmp/exthost.json\n",
	})
	t.Setenv(_envConfigDir, dir)

	provider, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/exthost.json", provider.Get("serverInfoFilePath").String())
}

func TestGetConfigDir(t *testing.T) {
	tests := []struct {
		name           string
		envValue       string
		expectedResult string
	}{
		{
			name:           "returns environment variable when set",
			envValue:       "/custom/config/path",
			expectedResult: "/custom/config/path",
		},
		{
			name:           "returns default path when environment variable not set",
			expectedResult: _defaultConfigDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(_envConfigDir, tt.envValue)
			assert.Equal(t, tt.expectedResult, getConfigDir())
		})
	}
}
