// Package llm provides the optional language-model capability injected into
// spell namespaces and backing the quick_edit endpoint. The daemon is fully
// functional without it: when no model is configured every call degrades to
// an explicit unavailable error instead of failing the process.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvModel is the sole configuration channel for model selection, in
// "provider/model" form (e.g. "openai/gpt-4o-mini").
const EnvModel = "METAKEYAI_LLM"

// ErrUnavailable indicates no usable model is configured.
var ErrUnavailable = errors.New("llm: client unavailable")

// Client is a one-shot completion capability.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// New builds a client for a "provider/model" spec. API keys and optional base
// URLs come from the provider's usual environment variables.
func New(spec string) (Client, error) {
	provider, model, err := splitModelSpec(spec)
	if err != nil {
		return nil, err
	}
	switch provider {
	case "openai":
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrUnavailable)
		}
		return newOpenAI(key, model, os.Getenv("OPENAI_BASE_URL")), nil
	case "anthropic":
		key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrUnavailable)
		}
		return newAnthropic(key, model, os.Getenv("ANTHROPIC_BASE_URL")), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// FromEnv resolves the client from METAKEYAI_LLM, returning an unavailable
// client (never an error) so callers can hold a Client unconditionally.
func FromEnv() Client {
	spec := strings.TrimSpace(os.Getenv(EnvModel))
	if spec == "" {
		return NewUnavailable(EnvModel + " is not set")
	}
	c, err := New(spec)
	if err != nil {
		return NewUnavailable(err.Error())
	}
	return c
}

func splitModelSpec(spec string) (provider, model string, err error) {
	spec = strings.TrimSpace(spec)
	provider, model, ok := strings.Cut(spec, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("model spec %q must be provider/model", spec)
	}
	return strings.ToLower(provider), model, nil
}

// NewUnavailable returns the no-op capability variant. Every completion fails
// with ErrUnavailable carrying the reason.
func NewUnavailable(reason string) Client {
	return &unavailable{reason: reason}
}

type unavailable struct {
	reason string
}

func (u *unavailable) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}

func (u *unavailable) Name() string { return "unavailable" }

// Probe performs a minimal round trip to verify the configured model answers.
func Probe(ctx context.Context, c Client) (bool, string) {
	out, err := c.Complete(ctx, "Hello")
	if err != nil {
		return false, err.Error()
	}
	return len(out) > 0, ""
}

const quickEditPrompt = "Improve the following text. Fix grammar and clarity, keep the meaning and tone. Reply with only the improved text.\n\n"

// QuickEdit runs a one-shot improvement pass over text. Without a configured
// model it falls back to a plain uppercase transformation; on a model error
// it returns the original text unchanged.
func QuickEdit(ctx context.Context, c Client, text string) string {
	if text == "" {
		return ""
	}
	out, err := c.Complete(ctx, quickEditPrompt+text)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return strings.ToUpper(text)
		}
		return text
	}
	return strings.TrimSpace(out)
}

// Switcher is a Client whose backend can be swapped at runtime, used when an
// env update reconfigures the model while spells keep a stable handle.
type Switcher struct {
	mu sync.RWMutex
	c  Client
}

// NewSwitcher wraps an initial client.
func NewSwitcher(c Client) *Switcher {
	if c == nil {
		c = NewUnavailable("no client configured")
	}
	return &Switcher{c: c}
}

// Swap replaces the backend client.
func (s *Switcher) Swap(c Client) {
	if c == nil {
		c = NewUnavailable("no client configured")
	}
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}

// Complete delegates to the current backend.
func (s *Switcher) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.RLock()
	c := s.c
	s.mu.RUnlock()
	return c.Complete(ctx, prompt)
}

// Name reports the current backend's name.
func (s *Switcher) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c.Name()
}

// Available reports whether the current backend is a real model client.
func (s *Switcher) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, unavailable := s.c.(*unavailable)
	return !unavailable
}
