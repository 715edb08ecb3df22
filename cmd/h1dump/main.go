// h1dump runs raw HTTP/1.1 byte streams through the framing engine for
// inspection, capture, and canonical re-serialization. It is the I/O
// collaborator the engine itself deliberately lacks: files or stdin play the
// transport.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/go-appsec/h1wire/cliutil"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printRootUsage()
		return 1
	}

	var err error
	switch args[0] {
	case "events":
		err = parseEvents(args[1:])
	case "capture":
		err = parseCapture(args[1:])
	case "replay":
		err = parseReplay(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("h1dump version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printRootUsage()
		return 0
	default:
		validCommands := []string{"events", "capture", "replay", "version", "help"}
		err = cliutil.UnknownCommandError(args[0], validCommands)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printRootUsage() {
	fmt.Fprint(os.Stderr, `Usage: h1dump <command> [options]

Inspect raw HTTP/1.1 byte streams through the h1wire framing engine.

Commands:
  events    parse a raw stream and print its protocol event sequence
  capture   parse a raw stream and save it as a msgpack flow archive
  replay    re-serialize a flow archive into canonical wire bytes
  version   print version
  help      show this help

Common options:
  --role client|server   side doing the parsing: a server parses requests,
                         a client parses responses (default server)
  --file <path>          raw HTTP input, - for stdin (default -)

Examples:
  h1dump events --role server --file request.raw
  h1dump capture --role client --file response.raw --out flows.msgpack
  h1dump replay --in flows.msgpack
`)
}

func readInput(path string) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
