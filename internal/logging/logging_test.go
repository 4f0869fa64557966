package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/verdantlabs/hydrochat/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{"json info", config.LoggingConfig{Level: "info", Format: "json"}, false},
		{"console debug with caller", config.LoggingConfig{Level: "debug", Format: "console", Caller: true}, false},
		{"bad level", config.LoggingConfig{Level: "loud", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
