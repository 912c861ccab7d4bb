package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", "json", &buf))
	log.Debug().Str("module", "test").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "test", line["module"])
	assert.Equal(t, "hello", line["message"])
	assert.Contains(t, line, "time")
}

func TestSetupAutoFallsBackToJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("warn", "auto", &buf))
	log.Info().Msg("filtered")
	log.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "filtered")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetupConsole(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("info", "console", &buf))
	log.Info().Str("module", "test").Msg("ready")

	assert.Contains(t, buf.String(), "ready")
	assert.Contains(t, buf.String(), "module=test")
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	assert.Error(t, Setup("loud", "json", &bytes.Buffer{}))
	assert.Error(t, Setup("info", "xml", &bytes.Buffer{}))
}
