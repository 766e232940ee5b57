package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateSequence(); err != nil {
		return err
	}
	if err := c.validateUserscripts(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDownload() error {
	if err := ensurePositiveMap(map[string]int{
		"download.concurrent_downloads": c.Download.ConcurrentDownloads,
		"download.retry_base_delay_ms":  c.Download.RetryBaseDelayMS,
		"download.retry_max_delay_ms":   c.Download.RetryMaxDelayMS,
		"download.connect_timeout":      c.Download.ConnectTimeout,
		"download.request_timeout":      c.Download.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Download.Retries < 0 {
		return errors.New("download.retries must be >= 0")
	}
	if c.Download.RetryMaxDelayMS < c.Download.RetryBaseDelayMS {
		return errors.New("download.retry_max_delay_ms must be >= download.retry_base_delay_ms")
	}
	switch c.Download.HTTPHandling {
	case HTTPDisallow, HTTPAllowInsecure, HTTPRedirectToHTTPS:
	default:
		return fmt.Errorf("download.http_handling must be one of %q, %q, %q",
			HTTPDisallow, HTTPAllowInsecure, HTTPRedirectToHTTPS)
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch c.Output.Policy {
	case PolicyFailFast, PolicyBestEffort:
		return nil
	default:
		return fmt.Errorf("output.policy must be %q or %q", PolicyFailFast, PolicyBestEffort)
	}
}

func (c *Config) validateSequence() error {
	switch c.Sequence.Mode {
	case SequenceNone, SequenceEvery:
		return nil
	default:
		return fmt.Errorf("sequence.mode must be %q or %q", SequenceNone, SequenceEvery)
	}
}

func (c *Config) validateUserscripts() error {
	for _, raw := range c.Userscripts.URLs {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("userscripts.urls entry %q: %w", raw, err)
		}
		scheme := strings.ToLower(parsed.Scheme)
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("userscripts.urls entry %q must use http or https", raw)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
