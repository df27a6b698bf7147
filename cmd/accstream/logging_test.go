package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-level", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nsample_rate: 52\n"), 0o600))

	tests := []struct {
		name      string
		args      []string
		wantLevel logrus.Level
		wantRate  int
	}{
		{name: "silent without flags", args: nil, wantLevel: logrus.PanicLevel, wantRate: 26},
		{name: "log level flag", args: []string{"--log-level", "debug"}, wantLevel: logrus.DebugLevel, wantRate: 26},
		{name: "config file", args: []string{"--config", path}, wantLevel: logrus.WarnLevel, wantRate: 52},
		{name: "flag overrides file", args: []string{"--config", path, "--log-level", "error"}, wantLevel: logrus.ErrorLevel, wantRate: 52},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, logger, err := configureLogger(newFlagCommand(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			assert.Equal(t, tt.wantRate, cfg.SampleRate)
		})
	}
}

func TestConfigureLogger_Errors(t *testing.T) {
	_, _, err := configureLogger(newFlagCommand(t, "--log-level", "chatty"))
	assert.Error(t, err, "unknown log level MUST be rejected")

	_, _, err = configureLogger(newFlagCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, err, "failed to read config")
}
