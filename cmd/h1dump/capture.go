package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/go-appsec/h1wire"
	"github.com/go-appsec/h1wire/capture"
)

func parseCapture(args []string) error {
	flags := pflag.NewFlagSet("capture", pflag.ContinueOnError)
	role := flags.String("role", "server", "parsing side: server parses requests, client parses responses")
	file := flags.String("file", "-", "raw HTTP input (- for stdin)")
	out := flags.String("out", "flows.msgpack", "output archive path")
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
	if parseErr != nil {
		return fmt.Errorf("parse input: %w", parseErr)
	}
	if len(events) == 0 {
		return errors.New("no events parsed from input")
	}

	store := capture.NewStore()
	flowID := store.Add(capture.FromEvents(r, events))
	if err := capture.WriteFile(*out, store.All()); err != nil {
		return err
	}

	fmt.Printf("captured flow %s (%d events) to %s\n", flowID, len(events), *out)
	return nil
}

func parseReplay(args []string) error {
	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	in := flags.String("in", "flows.msgpack", "input archive path")
	flow := flags.String("flow", "", "replay only this flow ID")
	if err := flags.Parse(args); err != nil {
		return err
	}

	exchanges, err := capture.ReadFile(*in)
	if err != nil {
		return err
	}
	if *flow != "" {
		var match *capture.Exchange
		for _, ex := range exchanges {
			if ex.FlowID == *flow {
				match = ex
				break
			}
		}
		if match == nil {
			return fmt.Errorf("flow %s not found in %s", *flow, *in)
		}
		exchanges = []*capture.Exchange{match}
	}

	for _, ex := range exchanges {
		if err := replayExchange(os.Stdout, ex); err != nil {
			return fmt.Errorf("replay flow %s: %w", ex.FlowID, err)
		}
	}
	return nil
}

// replayExchange re-serializes a captured exchange into canonical wire bytes.
// Records were captured on the parsing side, so they are sent from the
// opposite role; each completed message gets a fresh writer connection since
// there is no peer to drive the paired direction.
func replayExchange(out io.Writer, ex *capture.Exchange) error {
	events, err := ex.Events()
	if err != nil {
		return err
	}
	sendRole, err := replayRole(ex.Role)
	if err != nil {
		return err
	}

	var conn *h1wire.Connection
	for _, ev := range events {
		if _, ok := ev.(h1wire.ConnectionClosed); ok {
			continue
		}
		if conn == nil || conn.OurState() != h1wire.StateIdle && conn.OurState() != h1wire.StateSendBody {
			conn = h1wire.NewConnection(sendRole, h1wire.Options{})
		}
		wire, err := conn.Send(ev)
		if err != nil {
			return err
		}
		if _, err := out.Write(wire); err != nil {
			return err
		}
	}
	return nil
}

func replayRole(captureRole string) (h1wire.Role, error) {
	parsed, err := parseRole(captureRole)
	if err != nil {
		return 0, fmt.Errorf("flow has invalid role %q", captureRole)
	}
	if parsed == h1wire.RoleServer {
		return h1wire.RoleClient, nil // server-parsed flows hold requests
	}
	return h1wire.RoleServer, nil
}
