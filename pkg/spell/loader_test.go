package spell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEngine records Eval calls so cache behaviour is observable without
// a real interpreter.
type countingEngine struct {
	mu      sync.Mutex
	evals   int
	runs    int
	prog    *Program
	evalErr error
	runErr  error
}

func (e *countingEngine) Eval(src string) (*Program, error) {
	e.mu.Lock()
	e.evals++
	e.mu.Unlock()
	if e.evalErr != nil {
		return nil, e.evalErr
	}
	if e.prog != nil {
		return e.prog, nil
	}
	return &Program{}, nil
}

func (e *countingEngine) Run(ctx context.Context, src, input string) error {
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	return e.runErr
}

func (e *countingEngine) evalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestLoadExecutesTopLevelOnce(t *testing.T) {
	engine := &countingEngine{}
	loader := NewLoader(engine)
	path := writeScript(t, t.TempDir(), "spell.go", "func Cast(s string) string { return s }")

	first, err := loader.Load(path)
	require.NoError(t, err)
	second, err := loader.Load(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, engine.evalCount())
}

func TestLoadSamePathDifferentSpelling(t *testing.T) {
	engine := &countingEngine{}
	loader := NewLoader(engine)
	dir := t.TempDir()
	path := writeScript(t, dir, "spell.go", "func Cast(s string) string { return s }")

	_, err := loader.Load(path)
	require.NoError(t, err)
	// Same file through a redundant path element must hit the cache.
	sep := string(filepath.Separator)
	_, err = loader.Load(dir + sep + "." + sep + "spell.go")
	require.NoError(t, err)

	assert.Equal(t, 1, engine.evalCount())
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(&countingEngine{})
	_, err := loader.Load(filepath.Join(t.TempDir(), "nope.go"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadEngineFailure(t *testing.T) {
	boom := errors.New("syntax error")
	loader := NewLoader(&countingEngine{evalErr: boom})
	path := writeScript(t, t.TempDir(), "broken.go", "not go at all")

	_, err := loader.Load(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, path, loadErr.Path)
}

func TestInvokeEntrySuccess(t *testing.T) {
	loader := NewLoader(&countingEngine{})
	unit := &Unit{Path: "mem", prog: &Program{
		Entry: func(input string) (string, error) {
			return input + "!", nil
		},
	}}

	res := loader.Invoke(context.Background(), unit, "abc")
	require.NoError(t, res.Err)
	assert.Equal(t, "abc!", res.Output)
	assert.GreaterOrEqual(t, res.Elapsed.Nanoseconds(), int64(0))
}

func TestInvokeEntryError(t *testing.T) {
	loader := NewLoader(&countingEngine{})
	unit := &Unit{Path: "mem", prog: &Program{
		Entry: func(string) (string, error) {
			return "", errors.New("spell refused")
		},
	}}

	res := loader.Invoke(context.Background(), unit, "abc")
	require.Error(t, res.Err)
	var invErr *InvocationError
	assert.True(t, errors.As(res.Err, &invErr))
}

func TestInvokeFailureModes(t *testing.T) {
	unit := &Unit{Path: "mem", prog: &Program{
		Entry: func(string) (string, error) {
			return "", errors.New("spell refused")
		},
	}}
	tests := []struct {
		mode FailureMode
		want func(t *testing.T, out string)
	}{
		{FailEmpty, func(t *testing.T, out string) { assert.Empty(t, out) }},
		{FailInput, func(t *testing.T, out string) { assert.Equal(t, "original", out) }},
		{FailMessage, func(t *testing.T, out string) { assert.Contains(t, out, "spell refused") }},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			loader := NewLoader(&countingEngine{}, WithFailureMode(tc.mode))
			res := loader.Invoke(context.Background(), unit, "original")
			require.Error(t, res.Err)
			tc.want(t, res.Output)
		})
	}
}

func TestInvokeRecoversPanicAndRestoresStreams(t *testing.T) {
	loader := NewLoader(&countingEngine{})
	unit := &Unit{Path: "mem", prog: &Program{
		Entry: func(string) (string, error) {
			panic("spell exploded")
		},
	}}
	origOut, origIn := os.Stdout, os.Stdin

	res := loader.Invoke(context.Background(), unit, "abc")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "spell exploded")
	assert.Same(t, origOut, os.Stdout)
	assert.Same(t, origIn, os.Stdin)
}

func TestInvokeSerialized(t *testing.T) {
	loader := NewLoader(&countingEngine{})
	var active, maxActive int
	var mu sync.Mutex
	unit := &Unit{Path: "mem", prog: &Program{
		Entry: func(input string) (string, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return input, nil
		},
	}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := loader.Invoke(context.Background(), unit, fmt.Sprintf("in-%d", n))
			assert.NoError(t, res.Err)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive)
}

func TestLoadQuietSuppressesTopLevelOutput(t *testing.T) {
	loader := NewLoader(NewGoEngine(Capabilities{}))
	path := writeScript(t, t.TempDir(), "noisy.go", `import "fmt"

func main() {
	fmt.Print("noisy load")
}
`)

	origOut := os.Stdout
	pipeR, pipeW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = pipeW
	unit, loadErr := loader.LoadQuiet(path)
	os.Stdout = origOut
	pipeW.Close()
	leaked, err := io.ReadAll(pipeR)
	pipeR.Close()
	require.NoError(t, err)

	require.NoError(t, loadErr)
	assert.Empty(t, string(leaked))

	// The suppression only covers the one-time top-level run; invoking still
	// yields the script's output.
	res := loader.Invoke(context.Background(), unit, "")
	require.NoError(t, res.Err)
	assert.Equal(t, "noisy load", res.Output)
}

func TestParseFailureMode(t *testing.T) {
	mode, err := ParseFailureMode("")
	require.NoError(t, err)
	assert.Equal(t, FailEmpty, mode)

	for _, s := range []string{"empty", "input", "message"} {
		_, err := ParseFailureMode(s)
		assert.NoError(t, err, s)
	}

	_, err = ParseFailureMode("explode")
	assert.Error(t, err)
}

func TestWriteTempScript(t *testing.T) {
	path, cleanup, err := WriteTempScript("func Cast(s string) string { return s }")
	require.NoError(t, err)
	require.FileExists(t, path)

	cleanup()
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
