package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/bluest/internal/dispatch"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/internal/radio/goble"
	"github.com/srg/bluest/pkg/catalog"
	"github.com/srg/bluest/pkg/catalog/le"
	"github.com/srg/bluest/pkg/config"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/discovery"
)

// newAdapter creates the radio (can be overridden in tests)
var newAdapter = func(logger *logrus.Logger) radio.Adapter {
	return goble.NewAdapter(logger)
}

// app carries what every command needs: configuration, logger and the
// collaborators built from them.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	out    io.Writer

	adapter radio.Adapter
	pool    *dispatch.Pool
}

// newApp loads the --config file (or defaults) and builds the logger.
// Radio and worker pool are created lazily.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg := config.DefaultConfig()
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	logger, err := configureLogger(cmd, cfg, path != "")
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (a *app) radio() radio.Adapter {
	if a.adapter == nil {
		a.adapter = newAdapter(a.logger)
	}
	return a.adapter
}

func (a *app) dispatcher() *dispatch.Pool {
	if a.pool == nil {
		a.pool = dispatch.New(a.cfg.WorkerCount, a.cfg.DispatchQueue, a.logger)
		a.pool.Start(context.Background())
	}
	return a.pool
}

func (a *app) catalog() *catalog.Manager {
	return catalog.New(catalog.Options{
		Logger:             a.logger,
		URL:                a.cfg.CatalogURL,
		ModelRepositoryURL: a.cfg.ModelRepositoryURL,
		CachePath:          a.cfg.CatalogCachePath,
		Timeout:            a.cfg.CatalogTimeout,
		RetryBackoff:       a.cfg.CatalogRetry,
	})
}

func (a *app) leCatalog() *le.Catalog {
	return le.New(le.Options{
		Logger:  a.logger,
		URL:     a.cfg.LECatalogURL,
		Timeout: a.cfg.CatalogTimeout,
	})
}

// discovery builds a manager sharing the app worker pool.
func (a *app) discovery(opts discovery.Options) *discovery.Manager {
	opts.Logger = a.logger
	opts.Dispatcher = a.dispatcher()
	opts.StopPollInterval = a.cfg.StopPollInterval
	opts.CatalogTimeout = a.cfg.CatalogTimeout
	return discovery.New(a.radio(), opts)
}

// close stops the worker pool and releases the radio.
func (a *app) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if s, ok := a.adapter.(interface{ Stop() error }); ok {
		if err := s.Stop(); err != nil {
			a.logger.WithError(err).Debug("Radio stop failed")
		}
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// interruptContext is cancelled by Ctrl+C, SIGTERM or after timeout (0 means none).
func interruptContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// findDevice scans until a BlueST node advertises from address.
func (a *app) findDevice(ctx context.Context, m *discovery.Manager, address string, timeout time.Duration) (*device.Device, error) {
	address = radio.NormalizeAddress(address)
	if err := m.StartDiscovery(false); err != nil {
		return nil, err
	}
	defer func() {
		if m.IsDiscovering() {
			_ = m.StopDiscovery()
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-m.Events():
			if ev.Device != nil && ev.Address == address {
				a.logger.WithField("address", address).Debug("Device found")
				return ev.Device, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%w: no BlueST advertisement from %s within %s", ErrDeviceNotFound, address, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// connect finds and connects the node at address. A disconnect that the
// command did not ask for cancels the returned context with ErrConnectionLost.
func (a *app) connect(ctx context.Context, address string) (*device.Device, context.Context, func(), error) {
	m := a.discovery(discovery.Options{AllowList: []string{address}})
	dev, err := a.findDevice(ctx, m, address, a.cfg.ScanTimeout)
	if err != nil {
		_ = m.Close()
		return nil, nil, nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	if err := dev.Connect(connectCtx, nil); err != nil {
		_ = m.Close()
		return nil, nil, nil, err
	}

	linkCtx, cancelLink := context.WithCancelCause(ctx)
	dev.AddListener(&device.ListenerFuncs{
		Disconnect: func(d *device.Device, unexpected bool) {
			if unexpected {
				cancelLink(fmt.Errorf("%w: %s", ErrConnectionLost, d.Address()))
			}
		},
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			if dev.IsConnected() {
				if err := dev.Disconnect(context.Background()); err != nil {
					a.logger.WithError(err).Warn("Disconnect failed")
				}
			}
			cancelLink(nil)
			_ = m.Close()
		})
	}
	return dev, linkCtx, release, nil
}

// syncWriter serializes output written from listener callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
