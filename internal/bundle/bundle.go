// Package bundle writes rewritten cases to disk: a directory with an
// index document and its assets, or one self-contained HTML file.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"caseport/internal/assetgraph"
	"caseport/internal/config"
	"caseport/internal/fetch"
	"caseport/internal/rewrite"
)

const (
	lockFileName   = ".caseport.lock"
	incompleteName = ".caseport-incomplete"
)

var (
	// ErrOutputExists reports that a case's output is already present
	// and replacement was not requested.
	ErrOutputExists = errors.New("output already exists")
	// ErrOutputLocked reports that another run holds the output root.
	ErrOutputLocked = errors.New("output root is locked by another run")
	// ErrAssetsMissing reports failed assets under the fail-fast policy.
	ErrAssetsMissing = errors.New("assets missing")
)

// Bundler assembles case output under one output root. Acquire locks the
// root for the run; Release must be called once all cases are written.
type Bundler struct {
	OutputRoot      string
	SingleFile      bool
	Policy          string
	ReplaceExisting bool
	Logger          *slog.Logger

	lock  *flock.Flock
	runID string
}

func (b *Bundler) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// OutputPath returns a case's output path relative to the output root.
// The sequence linker uses the same layout to connect cases before they
// are written.
func OutputPath(filename string, singleFile bool) string {
	if singleFile {
		return filename + ".html"
	}
	return filename + "/index.html"
}

// Acquire creates the output root and locks it for this run.
func (b *Bundler) Acquire() error {
	if err := os.MkdirAll(b.OutputRoot, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	b.lock = flock.New(filepath.Join(b.OutputRoot, lockFileName))
	ok, err := b.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output root: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutputLocked, b.OutputRoot)
	}
	b.runID = uuid.NewString()
	return nil
}

// RunID returns the identifier assigned by Acquire, or the empty string
// before the root is locked.
func (b *Bundler) RunID() string { return b.runID }

// Release unlocks the output root.
func (b *Bundler) Release() error {
	if b.lock == nil {
		return nil
	}
	return b.lock.Unlock()
}

// Bundle writes one case. filename is the case's sanitized output stem;
// records carry the fetched assets for directory output. It returns the
// absolute path of the written document.
func (b *Bundler) Bundle(doc *rewrite.Document, filename string, records []*fetch.Record) (string, error) {
	failed := failedRecords(records)
	if len(failed) > 0 {
		if b.Policy == config.PolicyFailFast {
			return "", fmt.Errorf("%w: %s", ErrAssetsMissing, strings.Join(failed, ", "))
		}
		for _, miss := range failed {
			b.logger().Warn("bundling without missing asset", slog.String("asset", miss))
		}
	}

	if b.SingleFile {
		return b.bundleSingleFile(doc, filename)
	}
	return b.bundleDirectory(doc, filename, records)
}

func (b *Bundler) bundleSingleFile(doc *rewrite.Document, filename string) (string, error) {
	path := filepath.Join(b.OutputRoot, filename+".html")
	marker := path + incompleteName
	if err := b.checkExisting(path, marker); err != nil {
		return "", err
	}
	if err := b.writeMarker(marker); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(doc.HTML), 0o644); err != nil {
		return "", fmt.Errorf("write case document: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return "", fmt.Errorf("remove incomplete marker: %w", err)
	}
	return path, nil
}

func (b *Bundler) bundleDirectory(doc *rewrite.Document, filename string, records []*fetch.Record) (string, error) {
	dir := filepath.Join(b.OutputRoot, filename)
	marker := filepath.Join(dir, incompleteName)
	if err := b.checkExisting(dir, marker); err != nil {
		return "", err
	}
	assetsDir := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return "", fmt.Errorf("create case directory: %w", err)
	}
	if err := b.writeMarker(marker); err != nil {
		return "", err
	}

	for _, rec := range records {
		if !rec.OK() || inlineOnly(rec) {
			continue
		}
		target := filepath.Join(assetsDir, rec.LocalName)
		if err := os.WriteFile(target, rec.Body, 0o644); err != nil {
			return "", fmt.Errorf("write asset %s: %w", rec.LocalName, err)
		}
		// The player requests some assets under several names; each
		// alias is a plain copy.
		for _, alias := range rec.Asset.Aliases {
			if err := os.WriteFile(filepath.Join(assetsDir, alias), rec.Body, 0o644); err != nil {
				return "", fmt.Errorf("write asset alias %s: %w", alias, err)
			}
		}
	}

	path := filepath.Join(dir, "index.html")
	if err := os.WriteFile(path, []byte(doc.HTML), 0o644); err != nil {
		return "", fmt.Errorf("write case document: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return "", fmt.Errorf("remove incomplete marker: %w", err)
	}
	return path, nil
}

// checkExisting guards against overwriting finished output. Output left
// behind by an interrupted run carries the incomplete marker and is
// always replaced.
func (b *Bundler) checkExisting(target, marker string) error {
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("inspect existing output: %w", err)
	}
	if _, err := os.Stat(marker); err == nil {
		b.logger().Info("replacing output of an interrupted run", slog.String("path", target))
		return os.RemoveAll(target)
	}
	if !b.ReplaceExisting {
		return fmt.Errorf("%w: %s", ErrOutputExists, target)
	}
	return os.RemoveAll(target)
}

func (b *Bundler) writeMarker(marker string) error {
	if err := os.WriteFile(marker, []byte(b.runID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write incomplete marker: %w", err)
	}
	return nil
}

func failedRecords(records []*fetch.Record) []string {
	var failed []string
	for _, rec := range records {
		if !rec.OK() {
			failed = append(failed, rec.Asset.URL)
		}
	}
	return failed
}

// inlineOnly reports whether every reference to the asset was folded
// into the document itself, leaving nothing for the assets directory.
func inlineOnly(rec *fetch.Record) bool {
	if len(rec.Asset.Sites) == 0 {
		return false
	}
	for _, site := range rec.Asset.Sites {
		switch site.Kind {
		case assetgraph.KindCSSLink, assetgraph.KindStyleInclude,
			assetgraph.KindLanguage, assetgraph.KindHowler:
		default:
			return false
		}
	}
	return true
}
