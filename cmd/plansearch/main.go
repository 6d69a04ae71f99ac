// Command plansearch runs the plan-then-search answer pipeline as an HTTP
// service, an MCP server or a one-shot CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "time/tzdata"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/telemetry"
)

type rootOptions struct {
	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "plansearch",
		Short:         "Plan, search and answer with a language model",
		Version:       plansearch.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newMCPCommand(opts),
		newAskCommand(opts),
	)
	return cmd
}

// app bundles what every subcommand needs once config is loaded.
type app struct {
	cfg    *config.Config
	client *plansearch.PlanSearchClient
	close  func()
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Server.Name, plansearch.Version)
	if err != nil {
		return nil, err
	}
	client, err := plansearch.NewPlanSearchClient(ctx, cfg)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}
	return &app{
		cfg:    cfg,
		client: client,
		close: func() {
			if err := client.Close(); err != nil {
				logger.Warnf("close plan search client: %v", err)
			}
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warnf("shutdown tracing: %v", err)
			}
			_ = logger.Sync()
		},
	}, nil
}
