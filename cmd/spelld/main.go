package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.2.0"

// ioStreams wires stdout/stderr for commands and becomes injectable in tests.
type ioStreams struct {
	out io.Writer
	err io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	streams := ioStreams{out: os.Stdout, err: os.Stderr}
	if err := runCLI(ctx, os.Args[1:], streams); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(streams.err, err)
		}
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, argv []string, streams ioStreams) error {
	global := flag.NewFlagSet("spelld", flag.ContinueOnError)
	global.SetOutput(streams.err)
	configDir := ""
	global.StringVar(&configDir, "config-dir", configDir, "Configuration directory (defaults to ~/.spelld).")
	global.Usage = func() {
		fmt.Fprintln(streams.err, "spelld - MetaKeyAI spell-casting sidecar")
		fmt.Fprintln(streams.err, "\nUsage:")
		fmt.Fprintln(streams.err, "  spelld [global flags] <command> [args]")
		fmt.Fprintln(streams.err, "\nCommands:")
		fmt.Fprintln(streams.err, "  serve   Start the daemon (HTTP, or MCP over stdio with --stdio)")
		fmt.Fprintln(streams.err, "  cast    Invoke a single spell once and print its output")
		fmt.Fprintln(streams.err, "  spells  List discovered spells")
		fmt.Fprintln(streams.err, "  config  Manage local configuration")
		fmt.Fprintln(streams.err, "\nGlobal Flags:")
		global.PrintDefaults()
		fmt.Fprintln(streams.err, "\nRun 'spelld <command> -h' for command-specific usage.")
	}
	if err := global.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		return fmt.Errorf("missing command")
	}
	sub := args[0]
	rest := args[1:]
	switch sub {
	case "serve":
		return serveCommand(ctx, rest, configDir, streams)
	case "cast":
		return castCommand(ctx, rest, configDir, streams)
	case "spells":
		return spellsCommand(rest, configDir, streams)
	case "config":
		return configCommand(rest, configDir, streams)
	case "help", "-h", "--help":
		global.Usage()
		return nil
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", sub)
	}
}
