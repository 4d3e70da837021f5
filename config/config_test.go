package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "3002", cfg.Port)
	require.Equal(t, "vecsearch", cfg.AppName)
	require.Equal(t, "bge-small", cfg.EncoderVariant)
	require.Equal(t, 64, cfg.QueueDepth)
	require.Equal(t, 256, cfg.MaxSequenceLength)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENCODER_VARIANT", "bge-large")
	t.Setenv("QUEUE_DEPTH", "8")
	t.Setenv("S3_USE_SSL", "false")

	cfg := Load()
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "bge-large", cfg.EncoderVariant)
	require.Equal(t, 8, cfg.QueueDepth)
	require.False(t, cfg.S3UseSSL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("QUEUE_DEPTH", "many")
	require.Equal(t, 64, Load().QueueDepth)
}
