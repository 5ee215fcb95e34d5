package spell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// EntryFunc is the designated callable a spell may expose to receive the
// input text directly instead of going through output capture.
type EntryFunc func(input string) (string, error)

// Program is the loaded representation of a spell's top-level code.
type Program struct {
	Entry EntryFunc
	Meta  map[string]string
}

// Capabilities are host facilities injected into every spell namespace.
// A nil Complete means the language-model capability is unavailable; spells
// calling it fail gracefully while everything else keeps working.
type Capabilities struct {
	Complete func(prompt string) (string, error)
}

// Engine evaluates spell source in an isolated namespace. Eval runs the
// top-level code once and extracts the entry callable and Meta record; Run
// re-executes the body in a fresh namespace with INPUT_TEXT bound, for spells
// without an entry callable.
type Engine interface {
	Eval(src string) (*Program, error)
	Run(ctx context.Context, src, input string) error
}

// GoEngine interprets spells with yaegi. Interpreting instead of compiling
// avoids go-build hangs and version skew between the daemon binary and user
// scripts; the import whitelist keeps scripts inside a known surface.
type GoEngine struct {
	caps    Capabilities
	allowed map[string]bool
}

// NewGoEngine builds the production engine with the given host capabilities.
func NewGoEngine(caps Capabilities) *GoEngine {
	return &GoEngine{
		caps: caps,
		allowed: map[string]bool{
			"bytes":           true,
			"encoding/base64": true,
			"encoding/csv":    true,
			"encoding/json":   true,
			"errors":          true,
			"fmt":             true,
			"math":            true,
			"math/rand":       true,
			"os":              true, // needed for os.Stdin/os.Stdout in fallback spells
			"regexp":          true,
			"sort":            true,
			"strconv":         true,
			"strings":         true,
			"time":            true,
			"unicode":         true,
			"unicode/utf8":    true,

			capabilityImport: true,
		},
	}
}

// capabilityImport is the import path spells use to reach host capabilities.
const capabilityImport = "metakeyai/ai"

// Eval executes the script's top-level code in a fresh interpreter and
// returns the resulting program. Top-level side effects run exactly once per
// Eval; callers are expected to cache the Program.
func (e *GoEngine) Eval(src string) (*Program, error) {
	if err := e.validateImports(src); err != nil {
		return nil, err
	}
	i, err := e.newInterp()
	if err != nil {
		return nil, err
	}
	// Bind an empty INPUT_TEXT so scripts written for the fallback contract
	// still load; Run rebinds the real input in a fresh namespace.
	if _, err := i.Eval(`var INPUT_TEXT = ""`); err != nil {
		return nil, fmt.Errorf("bind input: %w", err)
	}
	if _, err := i.Eval(wrapSource(src)); err != nil {
		return nil, fmt.Errorf("top-level execution: %w", err)
	}
	return &Program{
		Entry: extractEntry(i),
		Meta:  extractMeta(i),
	}, nil
}

// Run executes the script body in a fresh namespace with INPUT_TEXT bound.
// Output is whatever the script writes to stdout, which the caller is
// expected to have redirected. The interpreted call runs in a goroutine so a
// context deadline abandons it; the goroutine itself is not cancellable and
// keeps running in the background in that case.
func (e *GoEngine) Run(ctx context.Context, src, input string) error {
	if err := e.validateImports(src); err != nil {
		return err
	}
	i, err := e.newInterp()
	if err != nil {
		return err
	}
	if _, err := i.Eval("var INPUT_TEXT = " + strconv.Quote(input)); err != nil {
		return fmt.Errorf("bind input: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("script panicked: %v", r)
			}
		}()
		_, err := i.Eval(wrapSource(src))
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("script execution abandoned: %w", ctx.Err())
	}
}

func (e *GoEngine) newInterp() (*interp.Interpreter, error) {
	i := interp.New(interp.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(e.hostSymbols()); err != nil {
		return nil, fmt.Errorf("load host symbols: %w", err)
	}
	return i, nil
}

func (e *GoEngine) hostSymbols() interp.Exports {
	complete := e.caps.Complete
	available := complete != nil
	if complete == nil {
		complete = func(string) (string, error) {
			return "", errors.New("language model capability unavailable")
		}
	}
	return interp.Exports{
		capabilityImport + "/ai": {
			"Complete":  reflect.ValueOf(complete),
			"Available": reflect.ValueOf(func() bool { return available }),
		},
	}
}

// validateImports rejects imports outside the whitelist before any code runs.
func (e *GoEngine) validateImports(src string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := importPath(trimmed); pkg != "" && !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := importPath(strings.TrimPrefix(trimmed, "import ")); pkg != "" && !e.allowed[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// importPath strips an optional alias and quotes from a single import line.
func importPath(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return ""
	}
	if idx := strings.IndexByte(line, '"'); idx > 0 {
		line = line[idx:]
	}
	return strings.Trim(line, `"`)
}

func wrapSource(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}

func extractEntry(i *interp.Interpreter) EntryFunc {
	v, err := i.Eval("main.Cast")
	if err != nil {
		return nil
	}
	switch fn := v.Interface().(type) {
	case func(string) (string, error):
		return fn
	case func(string) string:
		return func(input string) (string, error) { return fn(input), nil }
	default:
		return nil
	}
}

func extractMeta(i *interp.Interpreter) map[string]string {
	v, err := i.Eval("main.Meta")
	if err != nil {
		return nil
	}
	switch m := v.Interface().(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}
