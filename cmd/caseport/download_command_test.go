package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caseport/internal/run"
)

func TestParseCaseRefs(t *testing.T) {
	ids, err := parseCaseRefs([]string{
		"42",
		"https://aaonline.fr/player.php?trial_id=106832",
		"42",
	})
	if err != nil {
		t.Fatalf("parseCaseRefs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 42 || ids[1] != 106832 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if _, err := parseCaseRefs([]string{"not-a-case"}); err == nil {
		t.Fatal("expected error for malformed reference")
	}
	if _, err := parseCaseRefs([]string{"-3"}); err == nil {
		t.Fatal("expected error for non-positive id")
	}
}

func TestRenderReport(t *testing.T) {
	started := time.Now()
	report := &run.Report{
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
		Cases: []*run.CaseResult{
			{CaseID: 42, Title: "Turnabout Test", Output: "/tmp/out/Turnabout Test/index.html"},
			{CaseID: 43, Title: "Turnabout Sequel", Output: "/tmp/out/Turnabout Sequel/index.html",
				MissingAssets: []string{"https://aaonline.fr/music/missing.mp3"}},
			{CaseID: 44, Err: errors.New("resolve error: case: manifest")},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report, false)
	out := buf.String()
	for _, want := range []string{
		"Turnabout Test",
		"OK",
		"INCOMPLETE",
		"(1 missing)",
		"FAILED",
		"resolve error: case: manifest",
		"missing.mp3",
		"1 succeeded, 1 incomplete, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, ansiYellow) {
		t.Error("colorless render must not emit ANSI codes")
	}

	buf.Reset()
	renderReport(&buf, report, true)
	if !strings.Contains(buf.String(), ansiYellow) {
		t.Error("colorized render of a mixed report must be yellow")
	}
}

func TestRenderReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &run.Report{}, false)
	if !strings.Contains(buf.String(), "Nothing to download") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestNewRunLogger(t *testing.T) {
	dir := t.TempDir()
	logger, logPath, err := newRunLogger(dir, "info", "console", false)
	if err != nil {
		t.Fatalf("newRunLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("no logger returned")
	}
	if filepath.Dir(logPath) != dir || !strings.HasPrefix(filepath.Base(logPath), "caseport-") {
		t.Fatalf("unexpected log path: %s", logPath)
	}

	logger, logPath, err = newRunLogger("", "debug", "json", false)
	if err != nil || logger == nil {
		t.Fatalf("stderr logger: %v", err)
	}
	if logPath != "" {
		t.Fatalf("expected no log file, got %s", logPath)
	}

	if _, _, err := newRunLogger("", "info", "yaml", false); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}
