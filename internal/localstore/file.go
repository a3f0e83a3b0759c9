package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	fileSuffix       = ".json"
	defaultFilePoll  = time.Second
	fileStoreDirPerm = 0o755
	fileStorePerm    = 0o644
)

// File keeps one JSON file per key in a directory. Several processes may share
// the directory; Subscribe polls modification times to notice their writes.
type File struct {
	dir       string
	origin    string
	pollEvery time.Duration

	mu      sync.Mutex
	written map[string]time.Time
}

// NewFile creates dir when needed.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store dir is empty")
	}
	if err := os.MkdirAll(dir, fileStoreDirPerm); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{
		dir:       dir,
		origin:    uuid.NewString(),
		pollEvery: defaultFilePoll,
		written:   make(map[string]time.Time),
	}, nil
}

// SetPollInterval changes how often Subscribe scans the directory.
func (f *File) SetPollInterval(d time.Duration) {
	if d > 0 {
		f.pollEvery = d
	}
}

// Dir returns the backing directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, sanitizeKey(key)+fileSuffix)
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), fileStorePerm); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	target := f.path(key)
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f.remember(key, target)
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	f.mu.Lock()
	delete(f.written, sanitizeKey(key))
	f.mu.Unlock()
	return nil
}

func (f *File) remember(key, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.written[sanitizeKey(key)] = info.ModTime()
	f.mu.Unlock()
}

// Subscribe reports files changed by other writers. The first scan only
// records a baseline.
func (f *File) Subscribe(ctx context.Context) (<-chan Mutation, error) {
	seen, err := f.scan()
	if err != nil {
		return nil, err
	}
	ch := make(chan Mutation, 16)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(f.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			current, err := f.scan()
			if err != nil {
				continue
			}
			for key, mod := range current {
				prev, ok := seen[key]
				if ok && prev.Equal(mod) {
					continue
				}
				if f.ownWrite(key, mod) {
					continue
				}
				select {
				case ch <- Mutation{Key: key}:
				case <-ctx.Done():
					return
				}
			}
			for key := range seen {
				if _, ok := current[key]; ok {
					continue
				}
				select {
				case ch <- Mutation{Key: key}:
				case <-ctx.Done():
					return
				}
			}
			seen = current
		}
	}()
	return ch, nil
}

func (f *File) ownWrite(key string, mod time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	written, ok := f.written[key]
	return ok && written.Equal(mod)
}

func (f *File) scan() (map[string]time.Time, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out[strings.TrimSuffix(name, fileSuffix)] = info.ModTime()
	}
	return out, nil
}

func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
