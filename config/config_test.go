package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNothingConfigured(t *testing.T) {
	dir := t.TempDir()
	s, err := Load("rmi-agent", WithConfigFile(dir))
	require.NoError(t, err)
	require.Equal(t, "rmi-agent", s.Identity)
	require.Equal(t, filepath.Join("/var/lib", "rmi-agent", "messaging", "pending"), s.PendingRoot)
	require.Greater(t, s.ReconnectDelay, time.Duration(0))
	require.Greater(t, s.ResendDelay, time.Duration(0))
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	contents := "broker_url: amqp://localhost:5672\npending_root: /tmp/pending\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o640))

	s, err := Load("rmi-agent", WithConfigFile(dir))
	require.NoError(t, err)
	require.Equal(t, "amqp://localhost:5672", s.BrokerURL)
	require.Equal(t, "/tmp/pending", s.PendingRoot)
}

func TestLoadHonoursEnvironmentOverride(t *testing.T) {
	t.Setenv("RMI_BROKER_URL", "amqp://env-broker:5672")
	dir := t.TempDir()

	s, err := Load("rmi-agent", WithConfigFile(dir))
	require.NoError(t, err)
	require.Equal(t, "amqp://env-broker:5672", s.BrokerURL)
}
