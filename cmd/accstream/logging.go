package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/accstream/pkg/config"
)

// configureLogger loads --config (if any), applies --log-level on top and
// returns the resulting configuration with a logger built from it.
// Without either flag the CLI stays silent so logs don't interleave with
// command output.
func configureLogger(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	switch {
	case logLevelStr != "":
		cfg.LogLevel = logLevelStr
	case path == "":
		cfg.LogLevel = "silent"
	}
	if _, err := cfg.Level(); err != nil {
		return nil, nil, err
	}

	return cfg, cfg.NewLogger(), nil
}
