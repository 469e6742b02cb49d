package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// DefaultStartURL is opened when no start URLs are configured.
const DefaultStartURL = "https://colab.research.google.com/"

const (
	readyTimeout  = 15 * time.Second
	readyInterval = 250 * time.Millisecond
	stopGrace     = 5 * time.Second
)

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	BinaryPath string // empty: search PATH
	StartURLs  []string
	ProfileDir string
	WindowSize string
	Headless   bool
}

func (c Config) endpoint() string {
	return net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// Launcher starts a Chromium with remote debugging for the controller to
// attach to, and stops it again if it was the one to start it.
type Launcher struct {
	cfg Config

	mu  sync.Mutex
	cmd *exec.Cmd
}

var (
	lookPath = exec.LookPath
	cdpReady = probeVersion
)

var browserNames = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1600,1000"
	}
	if len(cfg.StartURLs) == 0 {
		cfg.StartURLs = []string{DefaultStartURL}
	}
	return &Launcher{cfg: cfg}
}

func (l *Launcher) binary() (string, error) {
	if l.cfg.BinaryPath != "" {
		return lookPath(l.cfg.BinaryPath)
	}
	for _, name := range browserNames {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		const mac = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(mac); err == nil {
			return mac, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", browserNames)
}

// launchArgs keeps background notebook tabs at full speed: a throttled tab
// would sit on synthetic clicks and delayed key follow-ups.
func launchArgs(cfg Config) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(cfg.CDPPort),
		"--remote-debugging-address=" + cfg.CDPAddress,
		"--user-data-dir=" + cfg.ProfileDir,
		"--window-size=" + cfg.WindowSize,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
	}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	return append(args, cfg.StartURLs...)
}

// Launch starts the browser unless a CDP endpoint already answers on the
// configured port, in which case that browser is used as is.
func (l *Launcher) Launch(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cdpReady(ctx, l.cfg.endpoint()) {
		slog.Info("browser already listening, not launching", "endpoint", l.cfg.endpoint())
		return nil
	}

	bin, err := l.binary()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	cmd := exec.Command(bin, launchArgs(l.cfg)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	l.cmd = cmd
	slog.Info("browser started", "path", bin, "pid", cmd.Process.Pid, "start_urls", l.cfg.StartURLs)

	if err := l.awaitReady(ctx); err != nil {
		l.stopLocked()
		return err
	}
	slog.Info("CDP endpoint ready", "endpoint", l.cfg.endpoint())
	return nil
}

func (l *Launcher) awaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("CDP not ready within %s at %s", readyTimeout, l.cfg.endpoint())
			}
			return ctx.Err()
		case <-ticker.C:
			if cdpReady(ctx, l.cfg.endpoint()) {
				return nil
			}
		}
	}
}

func probeVersion(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+endpoint+"/json/version", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Running reports whether this launcher owns a live browser process.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}

// Stop sends SIGTERM, then SIGKILL after a grace period. A browser that was
// already running before Launch is left alone.
func (l *Launcher) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Launcher) stopLocked() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	cmd := l.cmd
	l.cmd = nil
	slog.Info("stopping browser", "pid", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		slog.Warn("browser ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
}
