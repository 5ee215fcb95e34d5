package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metakeyai/spelld/pkg/config"
)

const configFileName = "config.yaml"

func configCommand(argv []string, cfgDir string, streams ioStreams) error {
	set := flag.NewFlagSet("config", flag.ContinueOnError)
	set.SetOutput(streams.err)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: spelld config <init|set|get|list> ...")
		fmt.Fprintln(streams.err, "\nCommands:")
		fmt.Fprintln(streams.err, "  init             Create a config file with defaults")
		fmt.Fprintln(streams.err, "  set key value    Update a single key")
		fmt.Fprintln(streams.err, "  get key          Print the value of a key")
		fmt.Fprintln(streams.err, "  list             Show the effective configuration")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	args := set.Args()
	if len(args) == 0 {
		set.Usage()
		return errors.New("config expects a subcommand")
	}
	loader, err := config.NewLoader(cfgDir)
	if err != nil {
		return err
	}
	switch args[0] {
	case "init":
		return configInit(loader, streams.out)
	case "set":
		return configSet(loader, args[1:], streams.out)
	case "get":
		return configGet(loader, args[1:], streams.out)
	case "list":
		return configList(loader, streams.out)
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func configPath(loader *config.Loader) string {
	return filepath.Join(loader.Dir(), configFileName)
}

func configInit(loader *config.Loader, out io.Writer) error {
	path := configPath(loader)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check config: %w", err)
	}
	if err := saveConfig(path, config.Default()); err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintf(out, "created %s\n", path)
	}
	return nil
}

func configSet(loader *config.Loader, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errors.New("config set requires <key> <value>")
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	value := strings.TrimSpace(strings.Join(args[1:], " "))

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	switch key {
	case "host":
		cfg.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("port must be a number: %w", err)
		}
		cfg.Port = port
	case "spells_dir":
		cfg.SpellsDir = value
	case "failure_mode":
		cfg.FailureMode = value
	case "model":
		cfg.Model = value
	case "debug":
		cfg.Debug = value == "1" || strings.EqualFold(value, "true")
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveConfig(configPath(loader), cfg); err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintf(out, "%s updated\n", key)
	}
	return nil
}

func configGet(loader *config.Loader, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("config get requires a key")
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	value, err := configValue(cfg, strings.ToLower(strings.TrimSpace(args[0])))
	if err != nil {
		return err
	}
	if out != nil {
		fmt.Fprintln(out, value)
	}
	return nil
}

func configList(loader *config.Loader, out io.Writer) error {
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	fmt.Fprintf(out, "host=%s\n", cfg.Host)
	fmt.Fprintf(out, "port=%d\n", cfg.Port)
	fmt.Fprintf(out, "spells_dir=%s\n", cfg.SpellsDir)
	fmt.Fprintf(out, "failure_mode=%s\n", cfg.FailureMode)
	fmt.Fprintf(out, "model=%s\n", cfg.Model)
	fmt.Fprintf(out, "debug=%t\n", cfg.Debug)
	return nil
}

func configValue(cfg config.Config, key string) (string, error) {
	switch key {
	case "host":
		return cfg.Host, nil
	case "port":
		return strconv.Itoa(cfg.Port), nil
	case "spells_dir":
		return cfg.SpellsDir, nil
	case "failure_mode":
		return cfg.FailureMode, nil
	case "model":
		return cfg.Model, nil
	case "debug":
		return strconv.FormatBool(cfg.Debug), nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

func saveConfig(path string, cfg config.Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
