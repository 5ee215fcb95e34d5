package spell

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Registry holds the spells discovered in the spells directory, keyed by
// declared id. It is populated at startup and replaced wholesale on rescan.
type Registry struct {
	loader *Loader
	dir    string
	logger *zap.Logger

	mu       sync.RWMutex
	spells   map[string]Descriptor
	onUpdate func(count int)
}

// OnUpdate registers a callback invoked after every successful Discover with
// the new spell count.
func (r *Registry) OnUpdate(fn func(count int)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// NewRegistry wires a registry over loader for the given directory.
func NewRegistry(loader *Loader, dir string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		loader: loader,
		dir:    dir,
		logger: logger,
		spells: make(map[string]Descriptor),
	}
}

// Discover scans the spells directory (non-recursive) for script files, loads
// each one, and registers those with a well-formed Meta record. Scripts that
// fail to load or lack metadata are logged and skipped, never fatal. Spell
// stdout during discovery is captured and discarded so transports that own
// stdout stay clean.
func (r *Registry) Discover() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Info("spells directory missing, registry empty", zap.String("dir", r.dir))
			return nil
		}
		return err
	}

	found := make(map[string]Descriptor)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".go") {
			continue
		}
		path := filepath.Join(r.dir, name)
		unit, err := r.loader.LoadQuiet(path)
		if err != nil {
			r.logger.Warn("skipping spell: load failed", zap.String("script", path), zap.Error(err))
			continue
		}
		desc, err := DescriptorFromMeta(unit.Meta(), unit.Path)
		if err != nil {
			r.logger.Debug("skipping script without metadata", zap.String("script", path), zap.Error(err))
			continue
		}
		if prev, ok := found[desc.ID]; ok {
			r.logger.Warn("duplicate spell id, keeping first",
				zap.String("id", desc.ID),
				zap.String("kept", prev.ScriptPath),
				zap.String("ignored", desc.ScriptPath))
			continue
		}
		found[desc.ID] = desc
	}

	r.mu.Lock()
	r.spells = found
	notify := r.onUpdate
	r.mu.Unlock()
	r.logger.Info("spells discovered", zap.Int("count", len(found)), zap.String("dir", r.dir))
	if notify != nil {
		notify(len(found))
	}
	return nil
}

// List returns descriptors sorted by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.spells))
	for _, d := range r.spells {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup resolves a registered spell by id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.spells[id]
	return d, ok
}

// Len reports the number of registered spells.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spells)
}

// Watch rescans the registry whenever the spells directory changes, until ctx
// is cancelled. Events are debounced so editors that write multiple times per
// save trigger one rescan.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var pending *time.Timer
		rescan := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(evt.Name, ".go") {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, func() {
					select {
					case rescan <- struct{}{}:
					default:
					}
				})
			case <-rescan:
				if err := r.Discover(); err != nil {
					r.logger.Warn("rescan failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("spells watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
