package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"caseport/internal/assetgraph"
	"caseport/internal/config"
)

func testFetcher(budget int) *Fetcher {
	return &Fetcher{
		HTTP:     http.DefaultClient,
		Policy:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Budget:   NewBudget(budget),
		Workers:  budget,
		HTTPMode: config.HTTPRedirectToHTTPS,
	}
}

func assetFor(url string) *assetgraph.Asset {
	return &assetgraph.Asset{URL: url}
}

func collect(t *testing.T, ch <-chan *Record) []*Record {
	t.Helper()
	var records []*Record
	for rec := range ch {
		records = append(records, rec)
	}
	return records
}

func TestFetchAllDownloadsAndNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pictures/icons/Phoenix.png":
			w.Write(pngBytes(t, 8, 8))
		case "/music/intro.mp3":
			w.Write([]byte("ID3\x04\x00\x00\x00\x00\x00\x00fake audio payload"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := testFetcher(2)
	records := collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{
		assetFor(server.URL + "/pictures/icons/Phoenix.png"),
		assetFor(server.URL + "/music/intro.mp3"),
	}))
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	byName := map[string]*Record{}
	for _, rec := range records {
		if !rec.OK() {
			t.Fatalf("unexpected failure: %v", rec.Err)
		}
		byName[rec.LocalName] = rec
	}
	if rec := byName["Phoenix.png"]; rec == nil || rec.MIME != "image/png" {
		t.Fatalf("missing or mis-sniffed icon record: %+v", byName)
	}
	if rec := byName["intro.mp3"]; rec == nil || rec.MIME != "audio/mpeg" {
		t.Fatalf("missing or mis-sniffed audio record: %+v", byName)
	}
	if got := byName["intro.mp3"].LocalPath(); got != "assets/intro.mp3" {
		t.Fatalf("unexpected local path: %q", got)
	}
}

func TestFetchAllRespectsBudget(t *testing.T) {
	const limit = 2
	var inflight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := inflight.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := testFetcher(limit)
	f.Workers = 16
	assets := make([]*assetgraph.Asset, 12)
	for i := range assets {
		assets[i] = assetFor(server.URL + "/asset/" + strings.Repeat("x", i+1) + ".png")
	}
	records := collect(t, f.FetchAll(context.Background(), assets))
	if len(records) != len(assets) {
		t.Fatalf("expected %d records, got %d", len(assets), len(records))
	}
	if got := peak.Load(); got > limit {
		t.Fatalf("in-flight downloads peaked at %d, budget is %d", got, limit)
	}
}

func TestFetchAllNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := testFetcher(1)
	records := collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{
		assetFor(server.URL + "/missing.png"),
	}))
	rec := records[0]
	if rec.OK() {
		t.Fatal("expected failure record")
	}
	var assetErr *AssetError
	if !errors.As(rec.Err, &assetErr) || !assetErr.Permanent {
		t.Fatalf("expected permanent asset error, got %v", rec.Err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("404 was retried: %d requests", got)
	}
}

func TestFetchAllRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer server.Close()

	f := testFetcher(1)
	records := collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{
		assetFor(server.URL + "/flaky.css"),
	}))
	rec := records[0]
	if !rec.OK() {
		t.Fatalf("expected success after retries, got %v", rec.Err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchAllEmptyPayloadFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := testFetcher(1)
	records := collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{
		assetFor(server.URL + "/empty.gif"),
	}))
	var assetErr *AssetError
	if !errors.As(records[0].Err, &assetErr) || !assetErr.Permanent {
		t.Fatalf("expected permanent error for empty payload, got %v", records[0].Err)
	}
}

func TestFetchAllBlocksInsecureHTTP(t *testing.T) {
	f := testFetcher(1)
	f.HTTPMode = config.HTTPDisallow
	records := collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{
		assetFor("http://example.invalid/a.png"),
	}))
	var assetErr *AssetError
	if !errors.As(records[0].Err, &assetErr) || !assetErr.Permanent {
		t.Fatalf("expected permanent error for blocked request, got %v", records[0].Err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestPhotobucketRefererFollowsWatermarkToggle(t *testing.T) {
	var referer string
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		referer = req.Header.Get("Referer")
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("GIF89a-stub")),
			Request:    req,
		}, nil
	})
	asset := assetFor("https://i.photobucket.com/albums/x/wm.gif")

	f := testFetcher(1)
	f.HTTP = &http.Client{Transport: transport}
	f.StripWatermarks = true
	collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{asset}))
	if referer != photobucketReferer {
		t.Fatalf("referer with stripping on = %q", referer)
	}

	f = testFetcher(1)
	f.HTTP = &http.Client{Transport: transport}
	collect(t, f.FetchAll(context.Background(), []*assetgraph.Asset{asset}))
	if referer != "" {
		t.Fatalf("referer sent with stripping off: %q", referer)
	}
}

func TestNamerCollisionsGetStableHashes(t *testing.T) {
	n := NewNamer()
	first := n.Name("https://a.example/dir1/bench.png")
	second := n.Name("https://a.example/dir2/bench.png")
	if first != "bench.png" {
		t.Fatalf("first name = %q", first)
	}
	if second == first || !strings.HasPrefix(second, "bench-") || !strings.HasSuffix(second, ".png") {
		t.Fatalf("collision name = %q", second)
	}
	again := NewNamer()
	again.Name("https://a.example/dir1/bench.png")
	if got := again.Name("https://a.example/dir2/bench.png"); got != second {
		t.Fatalf("collision suffix not stable across runs: %q vs %q", got, second)
	}
}

func TestNamerDecodesAndStripsQuery(t *testing.T) {
	n := NewNamer()
	if got := n.Name("https://a.example/My%20Sprite.gif?v=3"); got != "My Sprite.gif" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := n.Name("https://a.example/raw-payload"); got != "raw-payload.bin" {
		t.Fatalf("unexpected extensionless name: %q", got)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
	if got := p.Backoff(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1 backoff = %v", got)
	}
	if got := p.Backoff(2); got != 200*time.Millisecond {
		t.Fatalf("attempt 2 backoff = %v", got)
	}
	if got := p.Backoff(5); got != 400*time.Millisecond {
		t.Fatalf("capped backoff = %v", got)
	}
	jittered := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
	for i := 0; i < 20; i++ {
		d := jittered.Backoff(1)
		if d < 50*time.Millisecond || d > 100*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", d)
		}
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("get x: unexpected status 503"), true},
		{errors.New("connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{&AssetError{URL: "x", Permanent: true, Err: errors.New("status 404")}, false},
		{errors.New("no such host"), false},
	}
	for _, tt := range tests {
		if got := IsRetriable(tt.err); got != tt.want {
			t.Errorf("IsRetriable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
