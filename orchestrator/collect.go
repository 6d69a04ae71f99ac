package orchestrator

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// Generator produces the event sequence for a request. *Pipeline implements it.
type Generator interface {
	Generate(ctx context.Context, req Request) iter.Seq[schema.Event]
}

// Collect drains seq into one text: answer increments concatenated, then the
// elapsed-time notice after a blank line. Status events are dropped. An error
// event ends collection and is returned.
func Collect(seq iter.Seq[schema.Event]) (string, error) {
	var answer strings.Builder
	var trailer string
	for ev := range seq {
		switch ev.Kind {
		case schema.EventAnswer:
			answer.WriteString(ev.Text)
		case schema.EventTelemetry:
			trailer = ev.Text
		case schema.EventError:
			return answer.String(), errors.New(ev.Text)
		}
	}
	if trailer == "" {
		return answer.String(), nil
	}
	return answer.String() + "\n\n" + trailer, nil
}
