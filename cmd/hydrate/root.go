package main

import (
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "hydrate",
		Short:         "Thread hydration debugging tool",
		Long:          `Replays the hydration event sequence of an agent thread against an execution backend.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (defaults and HYDRATION_* env vars when empty)")
	cmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "warn", "log level")

	cmd.AddCommand(newConnectCmd(opts))
	return cmd
}

// newLogger 日志写 stderr, stdout 只输出事件
func (o *rootOptions) newLogger(debug bool) (*logger.Logger, error) {
	if debug {
		return logger.Development()
	}
	return logger.NewWithOptions(
		logger.WithLevel(o.logLevel),
		logger.WithFormat("console"),
		logger.WithOutput("stderr"),
	)
}
