package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/pflag"

	"github.com/go-appsec/h1wire"
	"github.com/go-appsec/h1wire/cliutil"
)

const bodyPreviewRunes = 120

func parseEvents(args []string) error {
	flags := pflag.NewFlagSet("events", pflag.ContinueOnError)
	role := flags.String("role", "server", "parsing side: server parses requests, client parses responses")
	file := flags.String("file", "-", "raw HTTP input (- for stdin)")
	strict := flags.Bool("strict", false, "reject bare LF line endings")
	if err := flags.Parse(args); err != nil {
		return err
	}

	r, err := parseRole(*role)
	if err != nil {
		return err
	}
	data, err := readInput(*file)
	if err != nil {
		return err
	}

	conn := h1wire.NewConnection(r, h1wire.Options{StrictLineEndings: *strict})
	events, parseErr := collectEvents(conn, data)
	printEventTable(events)
	return parseErr
}

func parseRole(s string) (h1wire.Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return h1wire.RoleClient, nil
	case "server":
		return h1wire.RoleServer, nil
	default:
		return 0, fmt.Errorf("invalid role %q (want client or server)", s)
	}
}

// collectEvents feeds the whole input, signals EOF, and drains every event the
// engine will surface, stepping through pipelined message cycles by completing
// the local direction with a minimal message.
func collectEvents(conn *h1wire.Connection, data []byte) ([]h1wire.Event, error) {
	if len(data) > 0 {
		if err := conn.ReceiveData(data); err != nil {
			return nil, err
		}
	}
	if err := conn.ReceiveData(nil); err != nil {
		return nil, err
	}

	var events []h1wire.Event
	for {
		ev, err := conn.NextEvent()
		if err != nil {
			return events, err
		}
		switch ev.(type) {
		case h1wire.ConnectionClosed:
			return append(events, ev), nil
		case h1wire.NeedMoreData:
			return events, nil
		case h1wire.Paused:
			if !advanceCycle(conn) {
				return events, nil
			}
		default:
			events = append(events, ev)
		}
	}
}

// advanceCycle unblocks a parser paused at a pipelining boundary. The dump
// tool has no real peer, so it completes its own direction with a minimal
// bodyless message and starts the next cycle. Reports false when the
// connection cannot continue (protocol switch, keep-alive lost).
func advanceCycle(conn *h1wire.Connection) bool {
	if conn.TheirState() != h1wire.StateDone {
		return false
	}
	if conn.OurState() == h1wire.StateIdle {
		var fill []h1wire.Event
		if conn.Role() == h1wire.RoleServer {
			fill = []h1wire.Event{
				h1wire.ResponseLine{StatusCode: 204},
				h1wire.HeaderBlock{},
				h1wire.EndOfMessage{},
			}
		} else {
			fill = []h1wire.Event{
				h1wire.RequestLine{Method: "GET", Target: "/"},
				h1wire.HeaderBlock{},
				h1wire.EndOfMessage{},
			}
		}
		for _, ev := range fill {
			if _, err := conn.Send(ev); err != nil {
				return false
			}
		}
	}
	return conn.StartNextCycle() == nil
}

func printEventTable(events []h1wire.Event) {
	if len(events) == 0 {
		cliutil.NoResults(os.Stdout, "No events parsed.")
		return
	}

	t := cliutil.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"#", "Event", "Detail"})

	var headers h1wire.Headers
	var body []byte
	for i, ev := range events {
		var kind, detail string
		switch e := ev.(type) {
		case h1wire.RequestLine:
			kind = "request-line"
			detail = e.Method + " " + e.Target + " " + e.Version
			headers, body = nil, nil
		case h1wire.ResponseLine:
			kind = "response-line"
			detail = fmt.Sprintf("%s %d %s", e.Version, e.StatusCode, e.Reason)
			headers, body = nil, nil
		case h1wire.InformationalResponse:
			kind = "informational"
			detail = fmt.Sprintf("HTTP/1.1 %d %s%s", e.StatusCode, e.Reason, fieldSuffix(e.Headers))
		case h1wire.HeaderBlock:
			kind = "headers"
			detail = fieldSummary(e.Headers)
			headers = e.Headers
		case h1wire.Data:
			kind = "data"
			detail = fmt.Sprintf("%d bytes", len(e.Bytes))
			body = append(body, e.Bytes...)
		case h1wire.EndOfMessage:
			kind = "end-of-message"
			detail = bodySummary(body, headers) + fieldSuffix(e.Trailers)
		case h1wire.ConnectionClosed:
			kind = "connection-closed"
		}
		t.AppendRow(table.Row{i + 1, kind, detail})
	}
	t.Render()
	cliutil.Summary(os.Stdout, len(events), "event", "events")
}

func fieldSummary(h h1wire.Headers) string {
	if len(h) == 0 {
		return "(no fields)"
	}
	parts := make([]string, len(h))
	for i, hdr := range h {
		parts[i] = hdr.Name + ": " + hdr.Value
	}
	return strings.Join(parts, "; ")
}

func fieldSuffix(h h1wire.Headers) string {
	if len(h) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d fields)", len(h))
}

// bodySummary previews the assembled message body, decompressing known
// Content-Encoding values for display.
func bodySummary(body []byte, headers h1wire.Headers) string {
	if len(body) == 0 {
		return "no body"
	}
	summary := fmt.Sprintf("%d body bytes", len(body))
	if encoding := headers.Get("Content-Encoding"); encoding != "" {
		if decoded, wasCompressed := decompress(body, encoding); wasCompressed && decoded != nil {
			return fmt.Sprintf("%s (%s, %d decoded): %s",
				summary, encoding, len(decoded), previewBody(decoded, bodyPreviewRunes))
		}
	}
	return summary + ": " + previewBody(body, bodyPreviewRunes)
}
