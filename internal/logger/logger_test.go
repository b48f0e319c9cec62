package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, parseLevel(""))
	require.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func TestNewWithWriter_TagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "slack-relay", "production", "warn")

	log.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	log.Warn().Str("tenant", "W1").Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "slack-relay", entry["service"])
	require.Equal(t, "production", entry["environment"])
	require.Equal(t, "W1", entry["tenant"])
	require.Equal(t, "kept", entry["message"])
}

func TestIsStructured(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	require.True(t, isStructured("Production"))
	require.False(t, isStructured("development"))

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "relay")
	require.True(t, isStructured("development"))
}
