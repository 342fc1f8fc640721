package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KasumiKitsune/odyssey-sync/internal/config"
	engine "github.com/KasumiKitsune/odyssey-sync/internal/sync"
	"github.com/KasumiKitsune/odyssey-sync/internal/utils"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateItem = errors.New("item already exists")
	ErrItemOverlap   = errors.New("item folders overlap")
	ErrOutsideRoot   = errors.New("item folder is outside the app root")
	ErrBuiltinItem   = errors.New("builtin items cannot be removed or renamed")
)

// BuiltinItems are the application folders every install syncs. They are
// seeded enabled on first load and can be disabled but never removed.
var BuiltinItems = []string{
	"word_lists",
	"dialect_visual_wordlists",
	"flashcards",
	"Results",
}

// Item is one named folder under the app root that syncs with the target.
type Item struct {
	Name       string
	SourcePath string // relative to the app root
	Enabled    bool
	Builtin    bool
	LastStatus engine.RunStatus
	LastRunAt  time.Time
}

type runState struct {
	status engine.RunStatus
	at     time.Time
}

// Registry manages the set of backup items. All mutations persist
// immediately through the config record; run state stays in memory and
// is rehydrated from history at startup.
type Registry struct {
	mu    sync.RWMutex
	cfg   *config.Config
	root  string
	state map[string]runState
}

// New builds a registry over the config record, resolving the app root
// and seeding the builtin items missing from it.
func New(cfg *config.Config) (*Registry, error) {
	if cfg.AppRoot == "" {
		return nil, errors.New("app root is not set")
	}
	root, err := utils.ResolvePath(cfg.AppRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve app root %s: %w", cfg.AppRoot, err)
	}

	r := &Registry{
		cfg:   cfg,
		root:  root,
		state: make(map[string]runState),
	}

	if err := r.seedBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

// seedBuiltins adds any builtin item missing from the config. The folder
// may not exist yet; a sync just sees an empty tree until it does.
func (r *Registry) seedBuiltins() error {
	seeded := 0
	for _, name := range BuiltinItems {
		if _, ok := r.cfg.Items[name]; ok {
			continue
		}
		r.cfg.Items[name] = &config.ItemConfig{
			SourcePath: name,
			Enabled:    true,
			Builtin:    true,
		}
		seeded++
	}
	if seeded == 0 {
		return nil
	}

	slog.Info("seeded builtin items", "count", seeded)
	return r.cfg.Save()
}

// Root returns the absolute app root.
func (r *Registry) Root() string {
	return r.root
}

// List returns all items, builtins first, then by name.
func (r *Registry) List() []*Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Item, 0, len(r.cfg.Items))
	for name, ic := range r.cfg.Items {
		items = append(items, r.item(name, ic))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Builtin != items[j].Builtin {
			return items[i].Builtin
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// Enabled returns the items that take part in a full sync run.
func (r *Registry) Enabled() []*Item {
	all := r.List()
	enabled := make([]*Item, 0, len(all))
	for _, it := range all {
		if it.Enabled {
			enabled = append(enabled, it)
		}
	}
	return enabled
}

// Get returns one item by name.
func (r *Registry) Get(name string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ic, ok := r.cfg.Items[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	return r.item(name, ic), nil
}

// SourceDir returns the absolute source folder for an item.
func (r *Registry) SourceDir(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ic, ok := r.cfg.Items[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	return filepath.Join(r.root, filepath.FromSlash(ic.SourcePath)), nil
}

// Add registers a custom item. The source folder must exist, resolve
// inside the app root and stay disjoint from every enabled item.
func (r *Registry) Add(name, sourcePath string) (*Item, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cfg.Items[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, name)
	}

	rel, abs, err := r.resolveSource(name, sourcePath)
	if err != nil {
		return nil, err
	}
	if !utils.DirExists(abs) {
		return nil, fmt.Errorf("source folder does not exist: %s", abs)
	}
	if other, clash := r.overlaps(rel, name); clash {
		return nil, fmt.Errorf("%w: %s and %s", ErrItemOverlap, name, other)
	}

	r.cfg.Items[name] = &config.ItemConfig{
		SourcePath: rel,
		Enabled:    true,
	}
	if err := r.cfg.Save(); err != nil {
		delete(r.cfg.Items, name)
		return nil, err
	}

	slog.Info("item added", "name", name, "source", rel)
	return r.item(name, r.cfg.Items[name]), nil
}

// Remove unregisters an item. Files on both sides are left alone.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ic, ok := r.cfg.Items[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	if ic.Builtin {
		return fmt.Errorf("%w: %s", ErrBuiltinItem, name)
	}

	delete(r.cfg.Items, name)
	if err := r.cfg.Save(); err != nil {
		r.cfg.Items[name] = ic
		return err
	}

	delete(r.state, name)
	slog.Info("item removed", "name", name)
	return nil
}

// Enable turns an item back on, re-checking overlap against the set it
// is about to join.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ic, ok := r.cfg.Items[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	if ic.Enabled {
		return nil
	}
	if other, clash := r.overlaps(ic.SourcePath, name); clash {
		return fmt.Errorf("%w: %s and %s", ErrItemOverlap, name, other)
	}

	ic.Enabled = true
	if err := r.cfg.Save(); err != nil {
		ic.Enabled = false
		return err
	}
	return nil
}

// Disable pauses an item without forgetting it.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ic, ok := r.cfg.Items[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	if !ic.Enabled {
		return nil
	}

	ic.Enabled = false
	if err := r.cfg.Save(); err != nil {
		ic.Enabled = true
		return err
	}
	return nil
}

// Rename changes an item's name, keeping its folder, enabled state and
// last outcome.
func (r *Registry) Rename(oldName, newName string) error {
	newName, err := normalizeName(newName)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ic, ok := r.cfg.Items[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, oldName)
	}
	if ic.Builtin {
		return fmt.Errorf("%w: %s", ErrBuiltinItem, oldName)
	}
	if _, ok := r.cfg.Items[newName]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, newName)
	}

	delete(r.cfg.Items, oldName)
	r.cfg.Items[newName] = ic
	if err := r.cfg.Save(); err != nil {
		delete(r.cfg.Items, newName)
		r.cfg.Items[oldName] = ic
		return err
	}

	if st, ok := r.state[oldName]; ok {
		r.state[newName] = st
		delete(r.state, oldName)
	}
	slog.Info("item renamed", "from", oldName, "to", newName)
	return nil
}

// SetRunState records the latest run outcome for an item. It is kept in
// memory only; the durable copy lives in the history store.
func (r *Registry) SetRunState(name string, status engine.RunStatus, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cfg.Items[name]; !ok {
		return
	}
	r.state[name] = runState{status: status, at: at}
}

// item builds the public view. Callers must hold at least the read lock.
func (r *Registry) item(name string, ic *config.ItemConfig) *Item {
	it := &Item{
		Name:       name,
		SourcePath: ic.SourcePath,
		Enabled:    ic.Enabled,
		Builtin:    ic.Builtin,
		LastStatus: engine.StatusIdle,
	}
	if st, ok := r.state[name]; ok {
		it.LastStatus = st.status
		it.LastRunAt = st.at
	}
	return it
}

// resolveSource turns a user-supplied path into (relative, absolute)
// forms, rejecting anything outside the app root. An empty path defaults
// to a folder named after the item.
func (r *Registry) resolveSource(name, sourcePath string) (string, string, error) {
	if sourcePath == "" {
		sourcePath = name
	}

	var abs string
	if filepath.IsAbs(sourcePath) {
		abs = filepath.Clean(sourcePath)
	} else {
		abs = filepath.Join(r.root, sourcePath)
	}

	if !utils.PathContains(r.root, abs) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, sourcePath)
	}
	if abs == r.root {
		return "", "", fmt.Errorf("item folder cannot be the app root itself")
	}

	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, sourcePath)
	}
	return utils.NormPath(rel), abs, nil
}

// overlaps reports whether relPath equals, contains or sits inside the
// folder of any other enabled item.
func (r *Registry) overlaps(relPath, skipName string) (string, bool) {
	abs := filepath.Join(r.root, filepath.FromSlash(relPath))
	for name, ic := range r.cfg.Items {
		if name == skipName || !ic.Enabled {
			continue
		}
		other := filepath.Join(r.root, filepath.FromSlash(ic.SourcePath))
		if utils.PathContains(abs, other) || utils.PathContains(other, abs) {
			return name, true
		}
	}
	return "", false
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("item name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("item name cannot contain path separators: %s", name)
	}
	return name, nil
}
