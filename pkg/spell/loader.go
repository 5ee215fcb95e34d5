package spell

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/metakeyai/spelld/pkg/telemetry"
)

// FailureMode selects what Invoke returns as output when spell execution
// fails. The original daemons disagreed on this, so it is an explicit
// configuration choice rather than an implicit default.
type FailureMode string

const (
	FailEmpty   FailureMode = "empty"   // output is ""
	FailInput   FailureMode = "input"   // output echoes the input text
	FailMessage FailureMode = "message" // output carries the error message
)

// ParseFailureMode validates a configured failure mode string.
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(s) {
	case FailEmpty, FailInput, FailMessage:
		return FailureMode(s), nil
	case "":
		return FailEmpty, nil
	default:
		return "", fmt.Errorf("unknown failure mode %q", s)
	}
}

// Unit is a cached, already-executed representation of a spell's top-level
// code. Units are created once per canonical path and never mutated.
type Unit struct {
	Path   string
	Source string
	prog   *Program
}

// HasEntry reports whether the spell exposes the Cast entry callable.
func (u *Unit) HasEntry() bool { return u.prog != nil && u.prog.Entry != nil }

// Meta returns the spell's declared metadata record, which may be nil.
func (u *Unit) Meta() map[string]string {
	if u.prog == nil {
		return nil
	}
	return u.prog.Meta
}

// Result is the outcome of one invocation.
type Result struct {
	Output  string
	Elapsed time.Duration
	Err     error
}

// Loader loads spell scripts exactly once per canonical path and keeps them
// for the process lifetime. Entries are never evicted.
type Loader struct {
	engine      Engine
	failureMode FailureMode

	mu    sync.Mutex
	units map[string]*Unit
}

// LoaderOption customizes loader behaviour.
type LoaderOption func(*Loader)

// WithFailureMode sets the output policy for failed invocations.
func WithFailureMode(mode FailureMode) LoaderOption {
	return func(l *Loader) {
		l.failureMode = mode
	}
}

// NewLoader wires a loader around the given engine.
func NewLoader(engine Engine, opts ...LoaderOption) *Loader {
	l := &Loader{
		engine:      engine,
		failureMode: FailEmpty,
		units:       make(map[string]*Unit),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached unit for path, executing the script's top-level
// code only on the first load of its canonical form. Reloading the same path
// returns the same unit without re-running top-level side effects.
func (l *Loader) Load(path string) (*Unit, error) {
	resolved, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if unit, ok := l.units[resolved]; ok {
		return unit, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resolved)
		}
		return nil, fmt.Errorf("read script: %w", err)
	}
	prog, err := l.engine.Eval(string(data))
	if err != nil {
		return nil, &LoadError{Path: resolved, Err: err}
	}
	unit := &Unit{Path: resolved, Source: string(data), prog: prog}
	l.units[resolved] = unit
	return unit, nil
}

// LoadQuiet loads with stdout captured and discarded, so an uncached script's
// top-level prints cannot leak into a transport that owns stdout. Cache hits
// behave exactly like Load.
func (l *Loader) LoadQuiet(path string) (*Unit, error) {
	castMu.Lock()
	defer castMu.Unlock()
	cio, err := captureStdio("")
	if err != nil {
		return nil, err
	}
	unit, loadErr := l.Load(path)
	_ = cio.restore()
	return unit, loadErr
}

// Invoke runs the unit with the given input text. Spells with an entry
// callable receive the input directly; everything else is re-executed in a
// fresh namespace with stdout captured as the output. Streams are restored on
// every exit path, and errors from spell code never propagate past here.
//
// No timeout is enforced internally: a caller wanting bounded latency passes
// a deadline on ctx and must treat expiry as fatal to the request, since the
// interpreted code keeps running in the background.
func (l *Loader) Invoke(ctx context.Context, unit *Unit, input string) Result {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "spell.invoke",
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("spell.path", unit.Path),
			attribute.Bool("spell.entry", unit.HasEntry()),
		)...),
	)

	castMu.Lock()
	cio, err := captureStdio(input)
	if err != nil {
		castMu.Unlock()
		telemetry.EndSpan(span, err)
		return l.failed(input, start, fmt.Errorf("redirect stdio: %w", err))
	}

	var out string
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("spell panicked: %v", r)
			}
		}()
		if unit.HasEntry() {
			out, runErr = callEntry(ctx, unit.prog.Entry, input)
		} else {
			runErr = l.engine.Run(ctx, unit.Source, input)
		}
	}()
	captured := cio.restore()
	castMu.Unlock()

	if runErr != nil {
		telemetry.EndSpan(span, runErr)
		return l.failed(input, start, &InvocationError{Path: unit.Path, Err: runErr})
	}
	if !unit.HasEntry() {
		out = captured
	}
	telemetry.EndSpan(span, nil)
	return Result{Output: out, Elapsed: time.Since(start)}
}

func (l *Loader) failed(input string, start time.Time, err error) Result {
	res := Result{Elapsed: time.Since(start), Err: err}
	switch l.failureMode {
	case FailInput:
		res.Output = input
	case FailMessage:
		res.Output = err.Error()
	}
	return res
}

// callEntry invokes the entry callable in a goroutine so a ctx deadline can
// abandon a hung spell. The spell keeps running in that case.
func callEntry(ctx context.Context, entry EntryFunc, input string) (string, error) {
	type outcome struct {
		out string
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("entry callable panicked: %v", r)}
			}
		}()
		out, err := entry(input)
		ch <- outcome{out: out, err: err}
	}()
	select {
	case res := <-ch:
		return res.out, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("entry callable abandoned: %w", ctx.Err())
	}
}

// WriteTempScript persists inline script content to a uniquely named file in
// the system temp directory. The cleanup func removes it and must run on
// every exit path of the surrounding invocation.
func WriteTempScript(src string) (string, func(), error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("spelld_temp_spell_%s.go", uuid.NewString()))
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		return "", nil, fmt.Errorf("write temp script: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

// canonicalPath resolves a script path to the absolute, symlink-free form
// used as the cache key.
func canonicalPath(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
