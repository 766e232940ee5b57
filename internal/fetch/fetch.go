package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"caseport/internal/assetgraph"
	"caseport/internal/config"
)

const (
	defaultWorkers        = 5
	defaultRequestTimeout = 30 * time.Second
	photobucketReferer    = "https://photobucket.com/"
)

// AssetError is a per-asset download failure. Permanent failures (missing
// files, blocked requests, empty payloads) are never retried.
type AssetError struct {
	URL       string
	Permanent bool
	Err       error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.URL, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// Record is the outcome of fetching one asset. LocalName is assigned
// before the download starts, so failed records still name the file the
// bundle would have carried.
type Record struct {
	Asset     *assetgraph.Asset
	LocalName string
	Body      []byte
	MIME      string
	Err       error
}

// OK reports whether the asset was fetched successfully.
func (r *Record) OK() bool { return r.Err == nil }

// LocalPath returns the asset path relative to the case's index document.
func (r *Record) LocalPath() string { return "assets/" + r.LocalName }

// DataURL encodes the payload as a base64 data URL for single-file
// bundles.
func (r *Record) DataURL() string {
	mime := r.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Body)
}

// Fetcher downloads asset graphs. The zero value is not usable; populate
// at least HTTP and Budget.
type Fetcher struct {
	HTTP            *http.Client
	Policy          RetryPolicy
	Budget          *Budget
	Workers         int
	HTTPMode        string
	UserAgent       string
	RequestTimeout  time.Duration
	StripWatermarks bool
	// Names carries assigned local filenames across fetch waves. Nil
	// gives each FetchAll call its own namespace.
	Names  *Namer
	Logger *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

func (f *Fetcher) workers() int {
	if f.Workers <= 0 {
		return defaultWorkers
	}
	return f.Workers
}

func (f *Fetcher) timeout() time.Duration {
	if f.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return f.RequestTimeout
}

// FetchAll downloads every asset in the slice and streams one record per
// asset on the returned channel. The channel closes once all assets are
// accounted for; completion order is unspecified. Per-asset failures are
// reported on the record, never through an early channel close.
func (f *Fetcher) FetchAll(ctx context.Context, assets []*assetgraph.Asset) <-chan *Record {
	out := make(chan *Record, len(assets))
	namer := f.Names
	if namer == nil {
		namer = NewNamer()
	}
	records := make([]*Record, len(assets))
	for i, asset := range assets {
		records[i] = &Record{Asset: asset, LocalName: namer.Name(asset.URL)}
	}

	go func() {
		defer close(out)
		group := new(errgroup.Group)
		group.SetLimit(f.workers())
		for _, rec := range records {
			group.Go(func() error {
				f.fetchOne(ctx, rec, namer)
				out <- rec
				return nil
			})
		}
		group.Wait()
	}()
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, rec *Record, namer *Namer) {
	url := rec.Asset.URL
	if strings.HasPrefix(url, "http://") && f.HTTPMode == config.HTTPDisallow {
		rec.Err = &AssetError{URL: url, Permanent: true, Err: errors.New("insecure HTTP request blocked")}
		return
	}

	policy := f.Policy.normalized()
	var body []byte
	for attempt := 1; ; attempt++ {
		var err error
		body, err = f.request(ctx, url)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			rec.Err = ctx.Err()
			return
		}
		if !IsRetriable(err) || attempt >= policy.MaxAttempts {
			rec.Err = err
			return
		}
		backoff := policy.Backoff(attempt)
		f.logger().Warn("download failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))
		if err := SleepWithContext(ctx, backoff); err != nil {
			rec.Err = err
			return
		}
	}

	if len(body) == 0 {
		rec.Err = &AssetError{URL: url, Permanent: true, Err: errors.New("empty payload")}
		return
	}

	refExt := extOf(rec.LocalName)
	rec.Body = body
	rec.MIME = DetectMIME(body, refExt)

	if f.StripWatermarks && HostedWithWatermark(url) {
		rec.Body, rec.MIME = StripWatermark(rec.Body, rec.MIME, f.logger())
	}

	// The reference extension wins unless it is missing or contradicts
	// the sniffed content.
	if sniffed := ExtensionForMIME(rec.MIME); sniffed != "" {
		if refExt == "bin" || !extensionMatchesMIME(refExt, rec.MIME) {
			rec.LocalName = namer.WithExtension(rec.LocalName, url, sniffed)
		}
	}

	f.logger().Debug("asset fetched",
		slog.String("url", url),
		slog.String("local", rec.LocalName),
		slog.Int("bytes", len(rec.Body)))
}

// request performs one download attempt under the global budget.
func (f *Fetcher) request(ctx context.Context, url string) ([]byte, error) {
	if err := f.Budget.Acquire(ctx); err != nil {
		return nil, err
	}
	defer f.Budget.Release()

	rctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AssetError{URL: url, Permanent: true, Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	// Photobucket omits its watermark when the request appears to come
	// from its own site. Only spoof the referer when stripping is on.
	if f.StripWatermarks && HostedWithWatermark(url) {
		req.Header.Set("Referer", photobucketReferer)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &AssetError{URL: url, Permanent: true,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}
