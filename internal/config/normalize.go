package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownload()
	c.normalizePlayer()
	c.normalizeOutput()
	c.normalizeSequence()
	c.normalizeUserscripts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputRoot) == "" {
		c.Paths.OutputRoot = defaultOutputRoot
	}
	if c.Paths.OutputRoot, err = expandPath(c.Paths.OutputRoot); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownload() {
	if c.Download.ConcurrentDownloads <= 0 {
		c.Download.ConcurrentDownloads = defaultConcurrentDownloads
	}
	if c.Download.Retries < 0 {
		c.Download.Retries = defaultRetries
	}
	if c.Download.RetryBaseDelayMS <= 0 {
		c.Download.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Download.RetryMaxDelayMS <= 0 {
		c.Download.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
	if c.Download.ConnectTimeout <= 0 {
		c.Download.ConnectTimeout = defaultConnectTimeout
	}
	if c.Download.RequestTimeout <= 0 {
		c.Download.RequestTimeout = defaultRequestTimeout
	}
	c.Download.HTTPHandling = strings.ToLower(strings.TrimSpace(c.Download.HTTPHandling))
	if c.Download.HTTPHandling == "" {
		c.Download.HTTPHandling = defaultHTTPHandling
	}
}

func (c *Config) normalizePlayer() {
	c.Player.Version = strings.TrimSpace(c.Player.Version)
	if c.Player.Version == "" {
		c.Player.Version = defaultPlayerVersion
	}
	c.Player.Language = strings.ToLower(strings.TrimSpace(c.Player.Language))
	if c.Player.Language == "" {
		c.Player.Language = defaultPlayerLanguage
	}
}

func (c *Config) normalizeOutput() {
	c.Output.Policy = strings.ToLower(strings.TrimSpace(c.Output.Policy))
	if c.Output.Policy == "" {
		c.Output.Policy = defaultOutputPolicy
	}
}

func (c *Config) normalizeSequence() {
	c.Sequence.Mode = strings.ToLower(strings.TrimSpace(c.Sequence.Mode))
	if c.Sequence.Mode == "" {
		c.Sequence.Mode = defaultSequenceMode
	}
}

func (c *Config) normalizeUserscripts() {
	if len(c.Userscripts.URLs) == 0 {
		return
	}
	urls := make([]string, 0, len(c.Userscripts.URLs))
	seen := make(map[string]struct{}, len(c.Userscripts.URLs))
	for _, raw := range c.Userscripts.URLs {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		urls = append(urls, trimmed)
	}
	c.Userscripts.URLs = urls
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
