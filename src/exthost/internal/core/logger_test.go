package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/zap/zapcore"
)

func TestNewSugaredLogger(t *testing.T) {
	tests := []struct {
		name        string
		logging     map[string]interface{}
		expectError bool
		enabled     zapcore.Level
	}{
		{
			name:    "json production logger",
			logging: map[string]interface{}{"level": "info", "encoding": "json"},
			enabled: zapcore.InfoLevel,
		},
		{
			name:    "console development logger",
			logging: map[string]interface{}{"level": "debug", "encoding": "console", "development": true},
			enabled: zapcore.DebugLevel,
		},
		{
			name:    "writes to output paths",
			logging: map[string]interface{}{"level": "warn", "outputPaths": []string{filepath.Join(t.TempDir(), "exthost.log")}},
			enabled: zapcore.WarnLevel,
		},
		{
			name:        "invalid level",
			logging:     map[string]interface{}{"level": "loud"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewStaticProvider(map[string]interface{}{"logging": tt.logging})
			require.NoError(t, err)

			sugar, err := NewSugaredLogger(provider)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, sugar.Desugar().Core().Enabled(tt.enabled))
			assert.False(t, sugar.Desugar().Core().Enabled(tt.enabled-1))
			assert.NotNil(t, NewLogger(sugar))
		})
	}
}
