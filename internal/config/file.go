package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML file. Zero values leave defaults alone.
type fileConfig struct {
	CDP struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"cdp"`
	Server struct {
		BindAddr       string   `yaml:"bind_addr"`
		PortCandidates []string `yaml:"port_candidates"`
		AutoFallback   *bool    `yaml:"auto_fallback"`
	} `yaml:"server"`
	Tabs struct {
		URLPattern string `yaml:"url_pattern"`
	} `yaml:"tabs"`
	Session struct {
		EvalTimeoutMS int  `yaml:"eval_timeout_ms"`
		StopRevertMS  *int `yaml:"stop_revert_ms"`
		StatusTTLMS   int  `yaml:"status_ttl_ms"`
	} `yaml:"session"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Storage struct {
		StateDir         string `yaml:"state_dir"`
		JournalDir       string `yaml:"journal_dir"`
		JournalMaxSizeMB int    `yaml:"journal_max_size_mb"`
	} `yaml:"storage"`
	Notify struct {
		NtfyURL string `yaml:"ntfy_url"`
		Quiet   *bool  `yaml:"quiet"`
	} `yaml:"notify"`
	Browser struct {
		Launch     *bool    `yaml:"launch"`
		ProfileDir string   `yaml:"profile_dir"`
		Headless   *bool    `yaml:"headless"`
		Path       string   `yaml:"path"`
		StartURLs  []string `yaml:"start_urls"`
	} `yaml:"browser"`
}

// loadFile reads path. A missing file is reported with os.ErrNotExist so
// callers can skip it.
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if fc.CDP.Port < 0 || fc.CDP.Port > 65535 {
		return nil, fmt.Errorf("config file %s: cdp.port %d out of range", path, fc.CDP.Port)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *ControllerConfig) {
	setString(&cfg.CDPAddress, fc.CDP.Address)
	setInt(&cfg.CDPPort, fc.CDP.Port)
	setString(&cfg.BindAddr, fc.Server.BindAddr)
	if len(fc.Server.PortCandidates) > 0 {
		cfg.PortCandidates = fc.Server.PortCandidates
	}
	if fc.Server.AutoFallback != nil {
		cfg.PortAutoFallback = *fc.Server.AutoFallback
	}
	setString(&cfg.TabURLPattern, fc.Tabs.URLPattern)
	setInt(&cfg.EvalTimeoutMS, fc.Session.EvalTimeoutMS)
	if fc.Session.StopRevertMS != nil {
		cfg.StopRevertMS = *fc.Session.StopRevertMS
	}
	setInt(&cfg.StatusTTLMS, fc.Session.StatusTTLMS)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFile, fc.Log.File)
	setString(&cfg.StateDir, fc.Storage.StateDir)
	setString(&cfg.JournalDir, fc.Storage.JournalDir)
	setInt(&cfg.JournalMaxSizeMB, fc.Storage.JournalMaxSizeMB)
	setString(&cfg.NtfyURL, fc.Notify.NtfyURL)
	if fc.Notify.Quiet != nil {
		cfg.NtfyQuiet = *fc.Notify.Quiet
	}
	if fc.Browser.Launch != nil {
		cfg.LaunchBrowser = *fc.Browser.Launch
	}
	setString(&cfg.BrowserProfileDir, fc.Browser.ProfileDir)
	if fc.Browser.Headless != nil {
		cfg.BrowserHeadless = *fc.Browser.Headless
	}
	setString(&cfg.BrowserPath, fc.Browser.Path)
	if len(fc.Browser.StartURLs) > 0 {
		cfg.BrowserStartURLs = fc.Browser.StartURLs
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
