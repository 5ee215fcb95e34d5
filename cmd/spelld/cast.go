package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/metakeyai/spelld/pkg/logging"
)

func castCommand(ctx context.Context, argv []string, cfgDir string, streams ioStreams) error {
	set := flag.NewFlagSet("cast", flag.ContinueOnError)
	set.SetOutput(streams.err)
	file := set.String("file", "", "Cast a script file directly instead of a registered spell.")
	input := set.String("input", "", "Input text (reads stdin when omitted).")
	debug := set.Bool("debug", false, "Enable debug logging.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: spelld cast [flags] [spell-id]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.New(*debug)
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(cfgDir, logger)
	if err != nil {
		return err
	}

	scriptPath := strings.TrimSpace(*file)
	if scriptPath == "" {
		args := set.Args()
		if len(args) != 1 {
			set.Usage()
			return errors.New("cast requires a spell id or -file")
		}
		desc, ok := rt.registry.Lookup(args[0])
		if !ok {
			return fmt.Errorf("spell %q is not registered", args[0])
		}
		scriptPath = desc.ScriptPath
	}

	text := *input
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	unit, err := rt.loader.LoadQuiet(scriptPath)
	if err != nil {
		return err
	}
	res := rt.loader.Invoke(ctx, unit, text)
	if res.Err != nil {
		return res.Err
	}
	if streams.out != nil {
		fmt.Fprint(streams.out, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Fprintln(streams.out)
		}
	}
	return nil
}
