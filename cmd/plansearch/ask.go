package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

type askOptions struct {
	locale       string
	searchEngine string
	stream       bool
	verbose      bool
	noPlanning   bool
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	ao := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := ao.request(strings.Join(args, " "))
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()
			return ask(cmd.Context(), cmd.OutOrStdout(), a.client, req)
		},
	}
	cmd.Flags().StringVar(&ao.locale, "locale", "", "response locale, e.g. en-US (default from config)")
	cmd.Flags().StringVar(&ao.searchEngine, "search-engine", "", "grounding | search_crawling | grounding_crawling")
	cmd.Flags().BoolVar(&ao.stream, "stream", true, "print progress steps while answering")
	cmd.Flags().BoolVar(&ao.verbose, "verbose", false, "include diagnostic payloads in progress steps")
	cmd.Flags().BoolVar(&ao.noPlanning, "no-planning", false, "search the question as-is without a plan")
	return cmd
}

func (o *askOptions) request(question string) (orchestrator.Request, error) {
	req := orchestrator.NewRequest(schema.ChatMessage{Role: schema.RoleUser, Content: question})
	req.Locale = o.locale
	req.Stream = o.stream
	req.Verbose = o.verbose
	req.Planning = !o.noPlanning
	if o.searchEngine != "" {
		engine, err := config.ParseSearchEngine(o.searchEngine)
		if err != nil {
			return req, err
		}
		req.SearchEngine = engine
	}
	return req, nil
}

// ask writes each event on its own line. Answer chunks are written as-is.
func ask(ctx context.Context, w io.Writer, gen orchestrator.Generator, req orchestrator.Request) error {
	var failure error
	for ev := range gen.Generate(ctx, req) {
		switch ev.Kind {
		case schema.EventAnswer:
			fmt.Fprint(w, ev.Text)
		case schema.EventError:
			failure = errors.New(ev.Text)
		default:
			fmt.Fprintf(w, "\n%s\n", ev.Marker())
		}
	}
	fmt.Fprintln(w)
	return failure
}
