// Package config loads the daemon configuration from ~/.spelld (or an
// explicit directory) with environment variables taking precedence. The
// environment stays the sole channel for LLM credentials; the file only
// covers daemon-local settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/metakeyai/spelld/pkg/spell"
)

const spelldDirName = ".spelld"

// Config is the daemon configuration.
type Config struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	SpellsDir   string `json:"spells_dir" yaml:"spells_dir"`
	FailureMode string `json:"failure_mode" yaml:"failure_mode"`
	Model       string `json:"model" yaml:"model"`
	Debug       bool   `json:"debug" yaml:"debug"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        5000,
		SpellsDir:   filepath.Join(spelldDir(), "spells"),
		FailureMode: string(spell.FailEmpty),
	}
}

// Addr renders the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Normalize trims whitespace and cleans paths.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Host = strings.TrimSpace(c.Host)
	c.Model = strings.TrimSpace(c.Model)
	c.FailureMode = strings.TrimSpace(strings.ToLower(c.FailureMode))
	if c.SpellsDir != "" {
		c.SpellsDir = filepath.Clean(c.SpellsDir)
	}
}

// Validate rejects values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.SpellsDir) == "" {
		return errors.New("spells_dir is required")
	}
	if _, err := spell.ParseFailureMode(c.FailureMode); err != nil {
		return err
	}
	return nil
}

// Loader loads, validates, and caches config state. Reload keeps the last
// good configuration when a refresh fails.
type Loader struct {
	dir string

	mu   sync.Mutex
	last atomic.Pointer[Config]
}

// NewLoader wires a loader for the given config directory; empty means
// ~/.spelld.
func NewLoader(dir string) (*Loader, error) {
	if strings.TrimSpace(dir) == "" {
		dir = spelldDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return &Loader{dir: abs}, nil
}

// Dir returns the absolute config directory.
func (l *Loader) Dir() string { return l.dir }

// Last returns the most recent valid configuration.
func (l *Loader) Last() (Config, bool) {
	cfg := l.last.Load()
	if cfg == nil {
		return Config{}, false
	}
	return *cfg, true
}

// Load reads the config file (when present), applies env overrides, and
// validates the result.
func (l *Loader) Load() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.loadOnce()
	if err != nil {
		return Config{}, err
	}
	l.last.Store(&cfg)
	return cfg, nil
}

// Reload refreshes configuration, keeping the last good state on error.
func (l *Loader) Reload() (Config, error) {
	prev, hadPrev := l.Last()
	cfg, err := l.Load()
	if err != nil {
		if hadPrev {
			return prev, fmt.Errorf("reload failed, keeping last good config: %w", err)
		}
		return Config{}, err
	}
	return cfg, nil
}

func (l *Loader) loadOnce() (Config, error) {
	cfg := Default()
	_, raw, err := readConfigPayload(l.dir)
	switch {
	case err == nil:
		if err := decodeMixedYAMLJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	default:
		return Config{}, err
	}
	applyEnv(&cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfigPayload(dir string) (string, []byte, error) {
	candidates := []string{"config.yaml", "config.yml", "config.json"}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return path, nil, err
		}
		return path, data, nil
	}
	return filepath.Join(dir, "config.yaml"), nil, fs.ErrNotExist
}

func decodeMixedYAMLJSON(data []byte, out any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New("config payload is empty")
	}
	if err := yaml.Unmarshal(data, out); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	return errors.New("config decode failed: unsupported format")
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SPELLD_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("SPELLD_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("SPELLD_SPELLS_DIR")); v != "" {
		cfg.SpellsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SPELLD_FAILURE_MODE")); v != "" {
		cfg.FailureMode = v
	}
	if v := strings.TrimSpace(os.Getenv("METAKEYAI_LLM")); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("SPELLD_DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

func spelldDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return spelldDirName
	}
	return filepath.Join(home, spelldDirName)
}
