// Package app wires the controller's collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgnsrekt/colab_agent/internal/browser"
	"github.com/dgnsrekt/colab_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/colab_agent/internal/config"
	"github.com/dgnsrekt/colab_agent/internal/controller"
	"github.com/dgnsrekt/colab_agent/internal/invoker"
	"github.com/dgnsrekt/colab_agent/internal/notify"
	"github.com/dgnsrekt/colab_agent/internal/state"
	"github.com/dgnsrekt/colab_agent/internal/storage"
	"github.com/dgnsrekt/colab_agent/internal/tabs"
)

// App owns every long-lived resource behind the controller service.
type App struct {
	Config   *config.ControllerConfig
	CDP      *cdpcontrol.Client
	Locator  *tabs.Locator
	Invoker  *invoker.Invoker
	Service  *controller.Service
	Store    *state.Store
	Journal  *storage.Journal
	Launcher *browser.Launcher
}

// Build launches the browser when configured, connects CDP and assembles the
// controller. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.ControllerConfig) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	pattern, err := tabs.CompilePattern(cfg.TabURLPattern)
	if err != nil {
		return nil, err
	}

	if cfg.LaunchBrowser {
		a.Launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.BrowserProfileDir,
			Headless:   cfg.BrowserHeadless,
			BinaryPath: cfg.BrowserPath,
			StartURLs:  cfg.BrowserStartURLs,
		})
		if err := a.Launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	a.CDP = cdpcontrol.NewClient(cfg.ControllerCDPURL(), time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := a.CDP.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect CDP at %s: %w", cfg.ControllerCDPURL(), err)
	}

	a.Store, err = state.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if cfg.JournalDir != "" {
		a.Journal = storage.NewJournal(cfg.JournalDir, 256, cfg.JournalMaxSizeMB)
	}

	var sinks []controller.StatusSink
	if cfg.NtfyURL != "" {
		n := notify.New(&http.Client{Timeout: 5 * time.Second}, cfg.NtfyURL)
		if cfg.NtfyQuiet {
			n.Quiet()
		}
		sinks = append(sinks, n)
	}

	a.Locator = tabs.NewLocator(a.CDP, pattern)
	a.Invoker = invoker.New(invoker.CDPHost(a.CDP))

	opts := controller.Options{
		RevertDelay: time.Duration(cfg.StopRevertMS) * time.Millisecond,
		StatusTTL:   time.Duration(cfg.StatusTTLMS) * time.Millisecond,
		Keywords:    a.Store,
		Sinks:       sinks,
		Probe: func(ctx context.Context) (browser.ProbeResult, error) {
			return browser.Probe(ctx, cfg.ControllerCDPURL())
		},
	}
	if a.Journal != nil {
		opts.Journal = a.Journal
	}
	a.Service = controller.NewService(a.Locator, a.Invoker, opts)
	return a, nil
}

// Close releases resources in reverse order of Build.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			slog.Warn("outcome journal close failed", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			slog.Warn("state db close failed", "error", err)
		}
	}
	if a.CDP != nil {
		_ = a.CDP.Close()
	}
	if a.Launcher != nil && a.Launcher.Running() {
		a.Launcher.Stop()
	}
}
