package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputRoot string `toml:"output_root"`
	LogDir     string `toml:"log_dir"`
}

// Download contains fetch concurrency, retry, and transport settings.
type Download struct {
	ConcurrentDownloads int    `toml:"concurrent_downloads"`
	Retries             int    `toml:"retries"`
	RetryBaseDelayMS    int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS     int    `toml:"retry_max_delay_ms"`
	RetryJitter         bool   `toml:"retry_jitter"`
	ConnectTimeout      int    `toml:"connect_timeout"`
	RequestTimeout      int    `toml:"request_timeout"`
	HTTPHandling        string `toml:"http_handling"`
}

// Player contains settings for the offline player engine.
type Player struct {
	Version  string `toml:"version"`
	Language string `toml:"language"`
}

// Output contains settings for output assembly.
type Output struct {
	SingleFile      bool   `toml:"single_file"`
	ReplaceExisting bool   `toml:"replace_existing"`
	Policy          string `toml:"policy"`
}

// Watermark contains settings for photobucket watermark removal.
type Watermark struct {
	Enabled bool `toml:"enabled"`
}

// Sequence contains settings for linked-case handling.
type Sequence struct {
	Mode string `toml:"mode"`
}

// Audio contains media embedding compatibility settings.
type Audio struct {
	HTML5 bool `toml:"html5"`
}

// Userscripts contains URLs of script snippets appended to the output page.
// Snippet contents are opaque text and are applied verbatim.
type Userscripts struct {
	URLs []string `toml:"urls"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// HTTP handling modes for insecure asset URLs.
const (
	HTTPDisallow        = "disallow"
	HTTPAllowInsecure   = "allow-insecure"
	HTTPRedirectToHTTPS = "redirect-to-https"
)

// Output assembly policies.
const (
	PolicyFailFast   = "failfast"
	PolicyBestEffort = "besteffort"
)

// Sequence handling modes.
const (
	SequenceNone  = "none"
	SequenceEvery = "every"
)

// Config encapsulates all configuration values for caseport.
//
// Configuration sections by subsystem:
//   - Paths: output root and log directory
//   - Download: concurrency limit, retry policy, timeouts, HTTP handling
//   - Player: player engine version and interface language
//   - Output: single-file toggle, replace policy, failure policy
//   - Watermark: photobucket watermark removal
//   - Sequence: linked-case download mode
//   - Audio: HTML5 media embedding compatibility
//   - Userscripts: extra script URLs appended to the output page
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Download    Download    `toml:"download"`
	Player      Player      `toml:"player"`
	Output      Output      `toml:"output"`
	Watermark   Watermark   `toml:"watermark"`
	Sequence    Sequence    `toml:"sequence"`
	Audio       Audio       `toml:"audio"`
	Userscripts Userscripts `toml:"userscripts"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/caseport/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/caseport/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("caseport.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputRoot, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
