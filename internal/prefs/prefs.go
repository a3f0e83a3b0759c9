// Package prefs keeps per-user orderdesk settings in
// ~/.config/orderdesk/prefs.toml. Reading never fails: a missing or broken
// file yields defaults.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds per-user settings that survive restarts. Store and PlacedBy
// seed the header of a fresh draft.
type Prefs struct {
	Theme    string `toml:"theme"`
	Store    string `toml:"store,omitempty"`
	PlacedBy string `toml:"placed_by,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/orderdesk/prefs.toml"
	defaultTheme     = "Dracula"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

func (p Prefs) normalized() Prefs {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	p.Store = strings.TrimSpace(p.Store)
	p.PlacedBy = strings.TrimSpace(p.PlacedBy)
	return p
}

// Load reads preferences from path (empty uses DefaultPath). The error is
// always nil; it is kept so callers read like the config loader.
func Load(path string) (Prefs, error) {
	var p Prefs
	resolved, err := resolvePath(path)
	if err != nil {
		return p.normalized(), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return p.normalized(), nil
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Prefs{}.normalized(), nil
	}
	return p.normalized(), nil
}

// Save writes preferences to path, creating directories as needed. The file
// is replaced by rename so a crash never leaves half a file behind.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	data, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// Update applies fn to the stored preferences and saves the result, keeping
// fields fn does not touch.
func Update(path string, fn func(*Prefs)) error {
	p, _ := Load(path)
	fn(&p)
	return Save(path, p)
}

func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultPrefsPath
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}
