package sync

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// RulesFileName is the optional per-item rules file at the top of an item's
// source folder. It is never copied to the target.
const RulesFileName = ".odyssey.yaml"

// ItemRules tunes how one item syncs: extra exclude globs and an optional
// conflict policy override.
type ItemRules struct {
	Exclude []string `yaml:"exclude,omitempty"`
	Policy  string   `yaml:"policy,omitempty"`
}

// LoadItemRules reads dir/.odyssey.yaml. A missing file yields (nil, nil).
// Unknown keys, bad globs and unknown policies are validation errors: a
// broken rules file fails the item's run rather than silently syncing with
// the wrong scope.
func LoadItemRules(dir string) (*ItemRules, error) {
	data, err := os.ReadFile(filepath.Join(dir, RulesFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rules ItemRules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *ItemRules) validate() error {
	for _, pattern := range r.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if r.Policy != "" {
		if _, err := ParsePolicy(r.Policy); err != nil {
			return err
		}
	}
	return nil
}

// Excluded reports whether the relative path matches any exclude glob.
func (r *ItemRules) Excluded(relPath string) bool {
	if r == nil {
		return false
	}
	for _, pattern := range r.Exclude {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// PolicyOverride returns the item's policy when one is set.
func (r *ItemRules) PolicyOverride() (Policy, bool) {
	if r == nil || r.Policy == "" {
		return PreferNewer, false
	}
	p, err := ParsePolicy(r.Policy)
	if err != nil {
		return PreferNewer, false
	}
	return p, true
}
