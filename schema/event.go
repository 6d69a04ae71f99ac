package schema

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// EventKind separates progress updates from answer text.
type EventKind string

const (
	// EventStatus is an out-of-band progress step.
	EventStatus EventKind = "status"
	// EventAnswer carries generated answer text.
	EventAnswer EventKind = "answer"
	// EventTelemetry is the trailing elapsed-time notice.
	EventTelemetry EventKind = "telemetry"
	// EventError terminates the stream.
	EventError EventKind = "error"
)

// Event is one element of the pipeline output stream. Status events set Step
// and optionally Code (verbose diagnostics) and Input; the other kinds set Text.
type Event struct {
	Kind  EventKind `json:"kind"`
	Step  string    `json:"step,omitempty"`
	Text  string    `json:"text,omitempty"`
	Code  string    `json:"code,omitempty"`
	Input string    `json:"input,omitempty"`
}

func Status(step string) Event {
	return Event{Kind: EventStatus, Step: step}
}

// StatusWithCode attaches a diagnostic payload, rendered base64-encoded.
func StatusWithCode(step, code string) Event {
	return Event{Kind: EventStatus, Step: step, Code: code}
}

func StatusWithInput(step, input string) Event {
	return Event{Kind: EventStatus, Step: step, Input: input}
}

func Answer(text string) Event {
	return Event{Kind: EventAnswer, Text: text}
}

func Telemetry(text string) Event {
	return Event{Kind: EventTelemetry, Text: text}
}

func Error(msg string) Event {
	return Event{Kind: EventError, Text: msg}
}

// Marker renders the event in the legacy text framing:
//
//	### <step>
//	### <step>#code#<base64>
//	### <step>#input#<description>
//	### <step>#input#<description>#code#<base64>
//	Error: <message>
//
// Answer and telemetry events render their text unchanged.
func (e Event) Marker() string {
	switch e.Kind {
	case EventStatus:
		var b strings.Builder
		b.WriteString("### ")
		b.WriteString(e.Step)
		if e.Input != "" {
			b.WriteString("#input#")
			b.WriteString(e.Input)
		}
		if e.Code != "" {
			b.WriteString("#code#")
			b.WriteString(base64.StdEncoding.EncodeToString([]byte(e.Code)))
		}
		return b.String()
	case EventError:
		return "Error: " + e.Text
	default:
		return e.Text
	}
}

// PrettyJSON renders v for verbose diagnostics, "{}" when v cannot be encoded.
func PrettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
