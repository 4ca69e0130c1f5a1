package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/pkg/config"
)

// loadSettings reads the --settings file over the defaults and applies the
// global flags. --log-level takes precedence over --verbose, and both over
// the settings file.
func loadSettings(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("settings")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if kind, _ := cmd.Flags().GetString("store"); kind != "" {
		cfg.Store.Kind = kind
	}
	if path, _ := cmd.Flags().GetString("store-path"); path != "" {
		cfg.Store.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return cfg, logger, nil
}
