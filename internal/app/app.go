package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/five82/orderdesk/internal/config"
	"github.com/five82/orderdesk/internal/localstore"
	"github.com/five82/orderdesk/internal/prefs"
	"github.com/five82/orderdesk/internal/sheetapi"
	"github.com/five82/orderdesk/internal/state"
	"github.com/five82/orderdesk/internal/ui"
	"github.com/five82/orderdesk/internal/watch"
)

// Options configure the orderdesk application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/orderdesk/prefs.toml
	PollEvery  int    // seconds; zero uses the configured orders_refresh
}

// session adds window-focus reloads to the portal for the UI.
type session struct {
	*Portal
	watcher *watch.Watcher
}

func (s session) Focus(ctx context.Context) {
	s.watcher.Focus(ctx)
}

// Run boots the orderdesk TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	logger, closeLog, err := openLog(cfg.LogPath())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	log.SetOutput(logger.Writer())

	backend, closeStore, err := localstore.Open(ctx, localstore.OpenOptions{
		Kind: cfg.StoreBackend,
		Dir:  cfg.StoreDir(),
		Redis: localstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer func() { _ = closeStore() }()
	store := localstore.New(backend, logger)

	client, err := sheetapi.NewClient(sheetapi.Options{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.RequestTimeout,
		Retry:      cfg.ClientRetry(),
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	portal := NewPortal(store, client, &state.Store{}, PortalOptions{
		CatalogTTL: cfg.CatalogTTL,
		MaxQty:     cfg.MaxQty,
		StoreLock:  cfg.StoreLock,
		Stores:     cfg.Stores,
		Store:      userPrefs.Store,
		PlacedBy:   userPrefs.PlacedBy,
		ExportDir:  filepath.Join(cfg.DataDir, "exports"),
		Logger:     logger,
	})
	defer portal.Flush()

	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	// Populate the store before the UI starts; failures show as offline.
	if err := portal.Startup(ctx); err != nil {
		logger.Printf("[app] startup: %v", err)
	}

	watcher := watch.New(store, watch.Options{
		Keys: []string{
			localstore.Key(localstore.DatasetOrders),
			localstore.Key(localstore.DatasetDelivery),
		},
		Reload: portal.ReloadLocal,
		Render: notify,
		Logger: logger,
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Printf("[watch] disabled: %v", err)
		}
	}()

	interval := cfg.OrdersRefresh
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}
	StartPoller(ctx, portal, interval, notify)

	uiOpts := ui.Options{
		Context:    ctx,
		Controller: session{Portal: portal, watcher: watcher},
		Store:      portal.State(),
		Changes:    changes,
		LogPath:    cfg.LogPath(),
		ThemeName:  userPrefs.Theme,
		PrefsPath:  opts.PrefsPath,
		Stores:     cfg.Stores,
	}
	return ui.Run(uiOpts)
}

func openLog(path string) (*log.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), f.Close, nil
}
