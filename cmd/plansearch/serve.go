package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/httpapi"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr, mcpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /plan_search and the plan-search MCP tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if mcpAddr == "" {
				mcpAddr = a.cfg.Server.MCPAddr
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(a.client),
				ReadHeaderTimeout: 10 * time.Second,
			}
			mcpSrv := server.NewStreamableHTTPServer(plansearch.NewServer(a.cfg.Server.Name, a.client))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Infof("http api listening on %s", addr)
				return ignoreClosed(httpSrv.ListenAndServe())
			})
			g.Go(func() error {
				logger.Infof("mcp server listening on %s/mcp", mcpAddr)
				return ignoreClosed(mcpSrv.Start(mcpAddr))
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Infof("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return errors.Join(httpSrv.Shutdown(sctx), mcpSrv.Shutdown(sctx))
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP API listen address (default from config)")
	cmd.Flags().StringVar(&mcpAddr, "mcp-addr", "", "MCP streamable HTTP listen address (default from config)")
	return cmd
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the plan-search MCP tool over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()
			return server.ServeStdio(plansearch.NewServer(a.cfg.Server.Name, a.client))
		},
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
