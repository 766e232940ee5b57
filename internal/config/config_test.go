package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caseport/internal/config"
)

func TestLoadDefaultsFillInAndExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.OutputRoot != filepath.Join(tempHome, "cases") {
		t.Fatalf("unexpected output root: %q", cfg.Paths.OutputRoot)
	}
	wantLogs := filepath.Join(tempHome, ".local", "share", "caseport", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Download.ConcurrentDownloads != 5 {
		t.Fatalf("unexpected concurrency default: %d", cfg.Download.ConcurrentDownloads)
	}
	if cfg.Download.Retries != 3 {
		t.Fatalf("unexpected retries default: %d", cfg.Download.Retries)
	}
	if cfg.Download.HTTPHandling != config.HTTPRedirectToHTTPS {
		t.Fatalf("unexpected http handling default: %q", cfg.Download.HTTPHandling)
	}
	if cfg.Player.Version != "master" {
		t.Fatalf("unexpected player version default: %q", cfg.Player.Version)
	}
	if cfg.Player.Language != "en" {
		t.Fatalf("unexpected player language default: %q", cfg.Player.Language)
	}
	if cfg.Output.SingleFile {
		t.Fatal("expected single_file disabled by default")
	}
	if cfg.Output.Policy != config.PolicyBestEffort {
		t.Fatalf("unexpected output policy default: %q", cfg.Output.Policy)
	}
	if !cfg.Watermark.Enabled {
		t.Fatal("expected watermark removal enabled by default")
	}
	if cfg.Sequence.Mode != config.SequenceNone {
		t.Fatalf("unexpected sequence mode default: %q", cfg.Sequence.Mode)
	}
	if cfg.Audio.HTML5 {
		t.Fatal("expected html5 audio disabled by default")
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadParsesExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
output_root = "` + filepath.Join(dir, "out") + `"

[download]
concurrent_downloads = 2
retries = 1
http_handling = "Allow-Insecure"

[player]
version = "abc123"
language = "FR"

[output]
single_file = true
policy = "failfast"

[sequence]
mode = "every"

[userscripts]
urls = ["https://example.org/patch.js", "  ", "https://example.org/patch.js"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Download.ConcurrentDownloads != 2 {
		t.Fatalf("unexpected concurrency: %d", cfg.Download.ConcurrentDownloads)
	}
	if cfg.Download.Retries != 1 {
		t.Fatalf("unexpected retries: %d", cfg.Download.Retries)
	}
	if cfg.Download.HTTPHandling != config.HTTPAllowInsecure {
		t.Fatalf("http handling not normalized: %q", cfg.Download.HTTPHandling)
	}
	if cfg.Player.Language != "fr" {
		t.Fatalf("language not normalized: %q", cfg.Player.Language)
	}
	if !cfg.Output.SingleFile || cfg.Output.Policy != config.PolicyFailFast {
		t.Fatalf("unexpected output settings: %+v", cfg.Output)
	}
	if cfg.Sequence.Mode != config.SequenceEvery {
		t.Fatalf("unexpected sequence mode: %q", cfg.Sequence.Mode)
	}
	if len(cfg.Userscripts.URLs) != 1 || cfg.Userscripts.URLs[0] != "https://example.org/patch.js" {
		t.Fatalf("userscript urls not deduplicated: %v", cfg.Userscripts.URLs)
	}
}

func TestLoadRejectsInvalidEnums(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "http handling",
			body: "[download]\nhttp_handling = \"maybe\"\n",
			want: "download.http_handling",
		},
		{
			name: "output policy",
			body: "[output]\npolicy = \"sometimes\"\n",
			want: "output.policy",
		},
		{
			name: "sequence mode",
			body: "[sequence]\nmode = \"some\"\n",
			want: "sequence.mode",
		},
		{
			name: "userscript scheme",
			body: "[userscripts]\nurls = [\"ftp://example.org/a.js\"]\n",
			want: "userscripts.urls",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsBackoffInversion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[download]\nretry_base_delay_ms = 4000\nretry_max_delay_ms = 1000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for inverted backoff bounds")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Download.ConcurrentDownloads != 5 {
		t.Fatalf("sample changed concurrency default: %d", cfg.Download.ConcurrentDownloads)
	}
}

func TestExpandPathResolvesTilde(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	got, err := config.ExpandPath("~/cases")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(tempHome, "cases") {
		t.Fatalf("unexpected expansion: %q", got)
	}
}
