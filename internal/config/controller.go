package config

import (
	"log/slog"
	"strconv"
	"strings"
)

const defaultConfigFile = "colab_agent.yaml"

// ControllerConfig holds configuration for the session controller and its
// HTTP API.
type ControllerConfig struct {
	CDPAddress        string
	CDPPort           int
	BindAddr          string
	PortCandidates    []string
	PortAutoFallback  bool
	TabURLPattern     string
	EvalTimeoutMS     int
	StopRevertMS      int
	StatusTTLMS       int
	LogLevel          string
	LogFile           string
	StateDir          string
	JournalDir        string
	JournalMaxSizeMB  int
	NtfyURL           string
	NtfyQuiet         bool
	LaunchBrowser     bool
	BrowserProfileDir string
	BrowserHeadless   bool
	BrowserPath       string
	BrowserStartURLs  []string
	ConfigFile        string
}

func defaults() *ControllerConfig {
	return &ControllerConfig{
		CDPAddress:        "127.0.0.1",
		CDPPort:           9222,
		BindAddr:          "127.0.0.1:8190",
		PortCandidates:    []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"},
		PortAutoFallback:  true,
		TabURLPattern:     "https://colab.research.google.com/*",
		EvalTimeoutMS:     5000,
		StopRevertMS:      1000,
		StatusTTLMS:       3000,
		LogLevel:          "info",
		LogFile:           "logs/colab_controller.log",
		JournalDir:        "./outcomes",
		JournalMaxSizeMB:  25,
		BrowserProfileDir: "./browser_profile",
	}
}

// LoadController builds the configuration from defaults, then the optional
// YAML file (CONTROLLER_CONFIG_FILE, else ./colab_agent.yaml when present),
// then environment variables including those from .env.
func LoadController() (*ControllerConfig, error) {
	loadDotEnv()

	cfg := defaults()
	path := getEnvOrDefault("CONTROLLER_CONFIG_FILE", "")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	fc, err := loadFile(path)
	switch {
	case err == nil:
		fc.apply(cfg)
		cfg.ConfigFile = path
	case !explicit && isNotExist(err):
		slog.Debug("no config file, using defaults and environment", "path", path)
	default:
		return nil, err
	}

	cfg.CDPAddress = getEnvOrDefault("CHROMIUM_CDP_ADDRESS", cfg.CDPAddress)
	cfg.CDPPort = getEnvIntOrDefault("CHROMIUM_CDP_PORT", cfg.CDPPort)
	cfg.BindAddr = getEnvOrDefault("CONTROLLER_BIND_ADDR", cfg.BindAddr)
	cfg.PortCandidates = getEnvListOrDefault("CONTROLLER_PORT_CANDIDATES", cfg.PortCandidates)
	cfg.PortAutoFallback = getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", cfg.PortAutoFallback)
	cfg.TabURLPattern = getEnvOrDefault("CONTROLLER_TAB_URL_PATTERN", cfg.TabURLPattern)
	cfg.EvalTimeoutMS = getEnvIntOrDefault("CONTROLLER_EVAL_TIMEOUT_MS", cfg.EvalTimeoutMS)
	cfg.StopRevertMS = getEnvIntOrDefault("CONTROLLER_STOP_REVERT_MS", cfg.StopRevertMS)
	cfg.StatusTTLMS = getEnvIntOrDefault("CONTROLLER_STATUS_TTL_MS", cfg.StatusTTLMS)
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("CONTROLLER_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getEnvOrDefault("CONTROLLER_LOG_FILE", cfg.LogFile)
	cfg.StateDir = getEnvOrDefault("CONTROLLER_STATE_DIR", cfg.StateDir)
	cfg.JournalDir = getEnvOrDefault("CONTROLLER_JOURNAL_DIR", cfg.JournalDir)
	cfg.JournalMaxSizeMB = getEnvIntOrDefault("CONTROLLER_JOURNAL_MAX_SIZE_MB", cfg.JournalMaxSizeMB)
	cfg.NtfyURL = getEnvOrDefault("CONTROLLER_NTFY_URL", cfg.NtfyURL)
	cfg.NtfyQuiet = getEnvBoolOrDefault("CONTROLLER_NTFY_QUIET", cfg.NtfyQuiet)
	cfg.LaunchBrowser = getEnvBoolOrDefault("CONTROLLER_LAUNCH_BROWSER", cfg.LaunchBrowser)
	cfg.BrowserProfileDir = getEnvOrDefault("CONTROLLER_BROWSER_PROFILE_DIR", cfg.BrowserProfileDir)
	cfg.BrowserHeadless = getEnvBoolOrDefault("CONTROLLER_BROWSER_HEADLESS", cfg.BrowserHeadless)
	cfg.BrowserPath = getEnvOrDefault("CONTROLLER_BROWSER_PATH", cfg.BrowserPath)
	cfg.BrowserStartURLs = getEnvListOrDefault("CONTROLLER_BROWSER_START_URLS", cfg.BrowserStartURLs)

	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.StopRevertMS < 0 {
		cfg.StopRevertMS = 0
	}
	if cfg.StatusTTLMS <= 0 {
		cfg.StatusTTLMS = 3000
	}
	return cfg, nil
}

// ControllerCDPURL returns CDP endpoint URL for controller use.
func (c *ControllerConfig) ControllerCDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}
