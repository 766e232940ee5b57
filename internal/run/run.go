// Package run drives the whole download pipeline: it resolves case
// manifests, enumerates and fetches their assets, rewrites the player
// documents for offline use, links sequence redirects, and bundles the
// results under the output root.
package run

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"caseport/internal/aao"
	"caseport/internal/assetgraph"
	"caseport/internal/bundle"
	"caseport/internal/config"
	"caseport/internal/fetch"
	"caseport/internal/rewrite"
	"caseport/internal/sequence"
)

// Runner executes one download run. Cases proceed through the pipeline
// concurrently and share a single in-flight download budget; a failing
// case never aborts the others.
type Runner struct {
	Config *config.Config
	Client *aao.Client
	Logger *slog.Logger

	// Progress, when set, is invoked once per completed case.
	Progress func(res *CaseResult)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) workers() int {
	if n := r.Config.Download.ConcurrentDownloads; n > 0 {
		return n
	}
	return 1
}

// retryPolicy is shared between the asset fetcher and the origin
// requests made outside it (case manifests, site configuration, the
// player template).
func (r *Runner) retryPolicy() fetch.RetryPolicy {
	return fetch.RetryPolicy{
		MaxAttempts: r.Config.Download.Retries + 1,
		BaseDelay:   time.Duration(r.Config.Download.RetryBaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(r.Config.Download.RetryMaxDelayMS) * time.Millisecond,
		Jitter:      r.Config.Download.RetryJitter,
	}
}

// retry runs fn until it succeeds, fails permanently, or exhausts the
// retry policy. Missing resources never retry.
func (r *Runner) retry(ctx context.Context, operation string, fn func() error) error {
	policy := r.retryPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !fetch.IsRetriable(err) || attempt >= policy.MaxAttempts {
			return err
		}
		backoff := policy.Backoff(attempt)
		r.logger().Warn("request failed, retrying",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err))
		if serr := fetch.SleepWithContext(ctx, backoff); serr != nil {
			return err
		}
	}
}

// Run downloads the given cases. Per-case failures are reported on the
// returned Report; the error return covers failures that sink the whole
// run, such as an unreachable player engine or a locked output root.
func (r *Runner) Run(ctx context.Context, ids []int64) (*Report, error) {
	if r.Config == nil {
		return nil, Wrap(ErrConfiguration, "run", "start", "no configuration", nil)
	}
	if r.Client == nil {
		return nil, Wrap(ErrConfiguration, "run", "start", "no site client", nil)
	}

	report := &Report{Started: time.Now()}
	order, cases, failures := r.resolveBatch(ctx, ids)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if len(cases) == 0 {
		for _, id := range order {
			report.Cases = append(report.Cases, &CaseResult{CaseID: id, Err: failures[id]})
		}
		report.Finished = time.Now()
		return report, nil
	}

	var paths *aao.SitePaths
	if err := r.retry(ctx, "site configuration", func() error {
		var rerr error
		paths, rerr = r.Client.SiteConfig(ctx)
		return rerr
	}); err != nil {
		return report, Wrap(ErrResolve, "site", "configuration", "", err)
	}
	var tpl *aao.Template
	if err := r.retry(ctx, "player template", func() error {
		var rerr error
		tpl, rerr = r.Client.PlayerTemplate(ctx, r.Config.Player.Version, r.workers())
		return rerr
	}); err != nil {
		return report, Wrap(ErrResolve, "player", "template", r.Config.Player.Version, err)
	}
	userscripts, err := r.fetchUserscripts(ctx)
	if err != nil {
		return report, err
	}

	bundler := &bundle.Bundler{
		OutputRoot:      r.Config.Paths.OutputRoot,
		SingleFile:      r.Config.Output.SingleFile,
		Policy:          r.Config.Output.Policy,
		ReplaceExisting: r.Config.Output.ReplaceExisting,
		Logger:          r.logger(),
	}
	if err := bundler.Acquire(); err != nil {
		return report, Wrap(ErrBundle, "output", "acquire", r.Config.Paths.OutputRoot, err)
	}
	defer bundler.Release()
	report.RunID = bundler.RunID()

	outputs := make(map[int64]string, len(cases))
	for id, kase := range cases {
		outputs[id] = bundle.OutputPath(kase.Filename(), r.Config.Output.SingleFile)
	}

	r.logger().Info("run started",
		slog.String("run_id", report.RunID),
		slog.Int("cases", len(cases)),
		slog.Int("workers", r.workers()),
		slog.Bool("single_file", r.Config.Output.SingleFile))

	budget := fetch.NewBudget(r.workers())
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: time.Duration(r.Config.Download.ConnectTimeout) * time.Second,
			}).DialContext,
		},
	}
	linker := sequence.NewLinker(r.Config.Output.SingleFile, r.logger())

	var (
		mu      sync.Mutex
		linkMu  sync.Mutex
		results = make(map[int64]*CaseResult, len(order))
	)
	record := func(res *CaseResult) {
		mu.Lock()
		results[res.CaseID] = res
		mu.Unlock()
		if r.Progress != nil {
			r.Progress(res)
		}
	}

	group := new(errgroup.Group)
	group.SetLimit(r.workers())
	for _, id := range order {
		if err, failed := failures[id]; failed {
			record(&CaseResult{CaseID: id, Err: err})
			continue
		}
		kase, resolved := cases[id]
		if !resolved {
			record(&CaseResult{CaseID: id, Err: Wrap(ErrResolve, "case", "manifest", "interrupted", ctx.Err())})
			continue
		}
		group.Go(func() error {
			res := r.processCase(ctx, kase, tpl, paths, budget, httpClient,
				bundler, linker, &linkMu, outputs, userscripts)
			record(res)
			return nil
		})
	}
	group.Wait()

	for _, id := range order {
		report.Cases = append(report.Cases, results[id])
	}
	report.Finished = time.Now()

	succeeded, warned, failed := report.Counts()
	r.logger().Info("run finished",
		slog.String("run_id", report.RunID),
		slog.String("status", string(report.Status())),
		slog.Int("succeeded", succeeded),
		slog.Int("with_warnings", warned),
		slog.Int("failed", failed),
		slog.Duration("elapsed", report.Finished.Sub(report.Started)))
	return report, ctx.Err()
}

// resolveBatch fetches the manifests of the requested cases. Under
// sequence mode "every", cases pulled in through sequence metadata join
// the batch round by round until the closure is complete. The returned
// order preserves the request order, with sequence additions appended
// after the cases that introduced them.
func (r *Runner) resolveBatch(ctx context.Context, ids []int64) ([]int64, map[int64]*aao.Case, map[int64]error) {
	var (
		mu       sync.Mutex
		order    []int64
		cases    = make(map[int64]*aao.Case)
		failures = make(map[int64]error)
		seen     = make(map[int64]struct{})
	)

	var pending []int64
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
		pending = append(pending, id)
	}

	for len(pending) > 0 && ctx.Err() == nil {
		var round []*aao.Case
		group := new(errgroup.Group)
		group.SetLimit(r.workers())
		for _, id := range pending {
			group.Go(func() error {
				var kase *aao.Case
				err := r.retry(ctx, "case manifest", func() error {
					var rerr error
					kase, rerr = r.Client.ResolveCase(ctx, id)
					return rerr
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[id] = Wrap(ErrResolve, "case", "manifest", "", err)
					return nil
				}
				cases[id] = kase
				round = append(round, kase)
				return nil
			})
		}
		group.Wait()

		pending = pending[:0]
		if r.Config.Sequence.Mode != config.SequenceEvery {
			continue
		}
		for _, kase := range round {
			for _, id := range kase.Info.Sequence.EntryIDs() {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				order = append(order, id)
				pending = append(pending, id)
				r.logger().Info("sequence entry joins batch",
					slog.Int64("case_id", id),
					slog.Int64("via", kase.ID()))
			}
		}
	}
	return order, cases, failures
}

// fetchUserscripts downloads the configured script snippets. Under the
// fail-fast policy a missing snippet is fatal; otherwise it is skipped
// with a warning.
func (r *Runner) fetchUserscripts(ctx context.Context) ([]string, error) {
	scripts := make([]string, 0, len(r.Config.Userscripts.URLs))
	for _, url := range r.Config.Userscripts.URLs {
		var text string
		err := r.retry(ctx, "userscript", func() error {
			var rerr error
			text, rerr = r.Client.Text(ctx, url)
			return rerr
		})
		if err != nil {
			if r.Config.Output.Policy == config.PolicyFailFast {
				return nil, Wrap(ErrConfiguration, "userscripts", "fetch", url, err)
			}
			r.logger().Warn("skipping unreachable userscript",
				slog.String("url", url),
				slog.Any("error", err))
			continue
		}
		scripts = append(scripts, text)
	}
	return scripts, nil
}

func (r *Runner) processCase(
	ctx context.Context,
	kase *aao.Case,
	tpl *aao.Template,
	paths *aao.SitePaths,
	budget *fetch.Budget,
	httpClient *http.Client,
	bundler *bundle.Bundler,
	linker *sequence.Linker,
	linkMu *sync.Mutex,
	outputs map[int64]string,
	userscripts []string,
) *CaseResult {
	res := &CaseResult{CaseID: kase.ID(), Title: kase.Info.Title}
	logger := r.logger().With(slog.Int64("case_id", kase.ID()))

	enum := &assetgraph.Enumerator{
		BaseURL:   r.Client.BaseURL(),
		EngineURL: r.Client.EngineURL(),
		HTTPMode:  r.Config.Download.HTTPHandling,
		Language:  r.Config.Player.Language,
		Paths:     paths,
		Logger:    logger,
	}
	graph, err := enum.Enumerate(kase, tpl)
	if err != nil {
		res.Err = Wrap(ErrResolve, "case", "enumerate", "", err)
		return res
	}

	fetcher := &fetch.Fetcher{
		HTTP:            httpClient,
		Budget:          budget,
		Workers:         r.workers(),
		HTTPMode:        r.Config.Download.HTTPHandling,
		Policy:          r.retryPolicy(),
		RequestTimeout:  time.Duration(r.Config.Download.RequestTimeout) * time.Second,
		StripWatermarks: r.Config.Watermark.Enabled,
		Names:           fetch.NewNamer(),
		Logger:          logger,
	}

	records := drain(fetcher.FetchAll(ctx, graph.Assets()))

	// Fetched stylesheets can reference further images; scan them and
	// fetch the additions in a second wave. Records complete in arbitrary
	// order, so walk the graph instead to keep the names assigned to
	// discovered assets stable across runs.
	before := graph.Len()
	byAsset := make(map[*assetgraph.Asset]*fetch.Record, len(records))
	for _, rec := range records {
		byAsset[rec.Asset] = rec
	}
	for _, asset := range graph.Assets()[:before] {
		if rec := byAsset[asset]; rec != nil && rec.OK() && rec.MIME == "text/css" {
			enum.ScanStylesheet(graph, assetgraph.DocMarkup, string(rec.Body))
		}
	}
	if extra := graph.Assets()[before:]; len(extra) > 0 {
		logger.Debug("stylesheets reference further assets", slog.Int("count", len(extra)))
		records = append(records, drain(fetcher.FetchAll(ctx, extra))...)
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	for _, rec := range records {
		if !rec.OK() {
			res.MissingAssets = append(res.MissingAssets, rec.Asset.URL)
		}
	}
	if len(res.MissingAssets) > 0 && r.Config.Output.Policy == config.PolicyFailFast {
		res.Err = Wrap(ErrFetch, "case", "fetch", strings.Join(res.MissingAssets, ", "), nil)
		return res
	}

	rewriter := &rewrite.Rewriter{
		SingleFile:  r.Config.Output.SingleFile,
		Language:    r.Config.Player.Language,
		HTML5Audio:  r.Config.Audio.HTML5,
		Paths:       paths,
		Userscripts: userscripts,
		Logger:      logger,
	}
	doc, err := rewriter.Rewrite(kase, tpl, records)
	if err != nil {
		res.Err = Wrap(ErrRewrite, "case", "rewrite", "", err)
		return res
	}

	linkMu.Lock()
	res.Links = linker.Resolve(doc, kase.Info.Sequence, outputs)
	linkMu.Unlock()

	path, err := bundler.Bundle(doc, kase.Filename(), records)
	if err != nil {
		res.Err = Wrap(ErrBundle, "case", "bundle", "", err)
		return res
	}
	res.Output = path

	logger.Info("case bundled",
		slog.String("title", kase.Info.Title),
		slog.String("output", path),
		slog.Int("assets", len(records)),
		slog.Int("missing", len(res.MissingAssets)))
	return res
}

func drain(ch <-chan *fetch.Record) []*fetch.Record {
	var records []*fetch.Record
	for rec := range ch {
		records = append(records, rec)
	}
	return records
}
