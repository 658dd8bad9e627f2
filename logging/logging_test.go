package logging

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Config{Env: "development", Level: "DEBUG"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Config{Env: EnvProduction, Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Env: "staging"})
	assert.True(t, errorx.IsOfType(err, ErrLogging))
	_, err = New(Config{Level: "loud"})
	assert.True(t, errorx.IsOfType(err, ErrLogging))

	assert.Error(t, Config{Level: "loud"}.Validate())
	assert.NoError(t, Config{Env: "Development", Level: "error"}.Validate())
}
