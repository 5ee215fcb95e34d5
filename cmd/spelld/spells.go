package main

import (
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/metakeyai/spelld/pkg/logging"
)

func spellsCommand(argv []string, cfgDir string, streams ioStreams) error {
	set := flag.NewFlagSet("spells", flag.ContinueOnError)
	set.SetOutput(streams.err)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: spelld spells")
		fmt.Fprintln(streams.err, "\nLists spells discovered in the configured spells directory.")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := logging.New(false)
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(cfgDir, logger)
	if err != nil {
		return err
	}

	spells := rt.registry.List()
	if len(spells) == 0 {
		fmt.Fprintf(streams.out, "no spells found in %s\n", rt.cfg.SpellsDir)
		return nil
	}
	tw := tabwriter.NewWriter(streams.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDESCRIPTION")
	for _, d := range spells {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Category, d.Description)
	}
	return tw.Flush()
}
