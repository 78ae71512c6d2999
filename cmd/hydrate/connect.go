package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/conf"
	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/hydration/data"
	"github.com/lk2023060901/agent-hydration/internal/hydration/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type connectOptions struct {
	endpoint    string
	graphID     string
	apiKey      string
	limit       int
	timeout     time.Duration
	joinRetries int
	input       string
	debug       bool
}

func newConnectCmd(root *rootOptions) *cobra.Command {
	opts := &connectOptions{}

	cmd := &cobra.Command{
		Use:   "connect <thread-id>",
		Short: "Hydrate a thread and print UI events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.endpoint, "endpoint", "", "execution backend base URL")
	flags.StringVar(&opts.graphID, "graph", "", "graph id used to select the active run")
	flags.StringVar(&opts.apiKey, "api-key", "", "value of the x-api-key header")
	flags.IntVar(&opts.limit, "limit", biz.DefaultHistoryLimit, "maximum number of history messages")
	flags.DurationVar(&opts.timeout, "timeout", biz.DefaultTimeout, "backend client timeout")
	flags.IntVar(&opts.joinRetries, "join-retries", biz.DefaultJoinRetries, "live stream rejoin attempts")
	flags.StringVar(&opts.input, "input", "", "connect input as a JSON object")
	flags.BoolVar(&opts.debug, "debug", false, "log dropped records and backend requests")
	return cmd
}

// baseConfig 配置文件为基准, 命令行显式指定的参数覆盖之
func (o *connectOptions) baseConfig(cmd *cobra.Command, config *conf.Config) biz.Config {
	h := config.Hydration
	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		h.Endpoint = o.endpoint
	}
	if flags.Changed("graph") {
		h.GraphID = o.graphID
	}
	if flags.Changed("api-key") {
		h.APIKey = o.apiKey
	}
	if flags.Changed("limit") {
		h.HistoryLimit = o.limit
	}
	if flags.Changed("timeout") {
		h.Timeout = o.timeout
	}
	if flags.Changed("join-retries") {
		h.JoinRetries = o.joinRetries
	}
	if flags.Changed("debug") {
		h.Debug = o.debug
	}
	return h.Base()
}

func runConnect(cmd *cobra.Command, root *rootOptions, opts *connectOptions, threadID string) error {
	config, err := conf.LoadConfig(root.configFile)
	if err != nil {
		return err
	}
	base := opts.baseConfig(cmd, config)

	log, err := root.newLogger(base.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	req := &biz.ConnectRequest{ThreadID: threadID}
	if cmd.Flags().Changed("limit") {
		req.Limit = opts.limit
	}
	if opts.input != "" {
		if err := json.Unmarshal([]byte(opts.input), &req.Input); err != nil {
			return fmt.Errorf("--input must be a JSON object: %w", err)
		}
	}

	uc := biz.NewHydrationUseCase(base, data.NewBackendFactory(log, nil, 0), log)
	if err := uc.Validate(req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := service.NewJSONLinesSink(cmd.OutOrStdout())
	if err := uc.Connect(ctx, req, sink); err != nil {
		return err
	}
	if err := sink.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("hydration aborted", zap.Error(err))
		return err
	}
	return nil
}
