package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/exthost-broker/src/exthost/internal/fs"
	"github.com/uber/exthost-broker/src/exthost/internal/fs/fsmock"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
)

func TestEnv(t *testing.T) {
	tests := []struct {
		name      string
		setEnvKey string
		setEnvVal string
		expectVal string
	}{
		{
			name:      "local",
			expectVal: EnvLocal,
		},
		{
			name:      "development",
			setEnvKey: _envExthostEnvironment,
			setEnvVal: "development",
			expectVal: EnvDevelopment,
		},
		{
			name:      "unknown value",
			setEnvKey: _envExthostEnvironment,
			setEnvVal: "staging",
			expectVal: EnvLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnvKey != "" {
				t.Setenv(tt.setEnvKey, tt.setEnvVal)
			}

			fxtest.New(
				t,
				fx.Provide(func() Context {
					return Context{
						Environment:        EnvLocal,
						RuntimeEnvironment: EnvLocal,
					}
				}),
				fx.Decorate(decorateEnvContext),
				fx.Invoke(func(ctx Context) {
					require.Equal(t, tt.expectVal, ctx.Environment, "unexpected environment")
					require.Equal(t, tt.expectVal, ctx.RuntimeEnvironment, "unexpected runtime environment")
				}),
			).RequireStart().RequireStop()
		})
	}
}

func loggingProvider(t *testing.T, outputPaths ...string) config.Provider {
	p, err := config.NewStaticProvider(map[string]interface{}{
		"logging": map[string]interface{}{
			"outputPaths": outputPaths,
		},
	})
	require.NoError(t, err)
	return p
}

func TestDecorateConfigProvider(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(nil)

		fxtest.New(
			t,
			fx.Provide(func() fs.FS {
				return fsMock
			}),
			fx.Provide(func() config.Provider {
				return loggingProvider(t, "/tmp/foo/myfile1.log")
			}),
			fx.Provide(func() Context {
				return Context{
					RuntimeEnvironment: EnvDevelopment,
				}
			}),
			fx.Decorate(decorateConfigProvider),
			fx.Invoke(func(cfg config.Provider) {
			}),
		).RequireStart().RequireStop()
	})

	t.Run("error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(errors.New("sample"))

		_, err := decorateConfigProvider(DecorateConfigParams{
			Cfg: loggingProvider(t, "/tmp/foo/myfile1.log"),
			FS:  fsMock,
		})
		assert.ErrorContains(t, err, "ensuring log folder")
	})
}

func TestEnsureLogFolder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(nil)
		fsMock.EXPECT().MkdirAll("/tmp/bar").Return(nil)

		_, err := ensureLogFolder(loggingProvider(t, "/tmp/foo/myfile1.log", "stderr", "/tmp/bar/myfile2.log"), fsMock)
		assert.NoError(t, err)
	})

	t.Run("error creating directory", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(errors.New("error creating directory"))

		_, err := ensureLogFolder(loggingProvider(t, "/tmp/foo/myfile1.log", "/tmp/bar/myfile2.log"), fsMock)
		assert.Error(t, err)
	})
}
