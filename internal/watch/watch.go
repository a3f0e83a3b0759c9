// Package watch keeps a process in step with writes made by other processes
// sharing the same local store.
//
// There is no locking between instances: the watcher only re-reads what the
// last writer left behind.
package watch

import (
	"context"
	"log"

	"github.com/five82/orderdesk/internal/localstore"
)

// Subscriber delivers foreign mutations. *localstore.Store implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan localstore.Mutation, error)
}

// Options configure a Watcher.
type Options struct {
	// Keys are the backend keys that trigger a reload.
	Keys   []string
	Reload func(ctx context.Context) error
	Render func()
	Logger *log.Logger
}

// Watcher reloads state when a watched key changes elsewhere or the window
// regains focus.
type Watcher struct {
	source Subscriber
	keys   map[string]bool
	reload func(ctx context.Context) error
	render func()
	logger *log.Logger
}

// New builds a Watcher. With no Keys it watches the order history.
func New(source Subscriber, opts Options) *Watcher {
	keys := opts.Keys
	if len(keys) == 0 {
		keys = []string{localstore.Key(localstore.DatasetOrders)}
	}
	w := &Watcher{
		source: source,
		keys:   make(map[string]bool, len(keys)),
		reload: opts.Reload,
		render: opts.Render,
		logger: opts.Logger,
	}
	for _, k := range keys {
		w.keys[k] = true
	}
	return w
}

// Run consumes the mutation feed until ctx is done or the feed closes.
func (w *Watcher) Run(ctx context.Context) error {
	feed, err := w.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-feed:
			if !ok {
				return nil
			}
			if !w.keys[m.Key] {
				continue
			}
			w.logf("[watch] %s changed by %s", m.Key, originLabel(m.Origin))
			w.refresh(ctx)
		}
	}
}

// Focus reloads unconditionally, covering notifications missed while the
// terminal was in the background.
func (w *Watcher) Focus(ctx context.Context) {
	w.refresh(ctx)
}

func (w *Watcher) refresh(ctx context.Context) {
	if w.reload != nil {
		if err := w.reload(ctx); err != nil {
			w.logf("[watch] reload failed: %v", err)
		}
	}
	if w.render != nil {
		w.render()
	}
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

func originLabel(origin string) string {
	if origin == "" {
		return "another process"
	}
	return origin
}
