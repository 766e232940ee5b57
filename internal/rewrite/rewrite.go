package rewrite

import (
	"fmt"
	"log/slog"

	"caseport/internal/aao"
	"caseport/internal/assetgraph"
	"caseport/internal/fetch"
)

// Rewriter repoints a case and its player template at fetched local
// copies of every asset.
type Rewriter struct {
	// SingleFile selects data-URI embedding instead of assets/ paths.
	SingleFile  bool
	Language    string
	HTML5Audio  bool
	Paths       *aao.SitePaths
	Userscripts []string
	Logger      *slog.Logger
}

// Document is one rewritten, self-contained player page.
type Document struct {
	CaseID int64
	Title  string
	HTML   string
}

func (rw *Rewriter) logger() *slog.Logger {
	if rw.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return rw.Logger
}

// siteState groups the fetched records by the kind of reference they
// replace.
type siteState struct {
	voices    map[string]string
	sprites   map[string]string
	locks     map[string]*fetch.Record
	srcRepl   map[string]string
	cssURLs   map[string]string
	cssLinks  map[string]*fetch.Record
	styleIncs map[string]*fetch.Record
	langs     map[string]*fetch.Record
	howler    *fetch.Record
	// scriptStyles are stylesheet bodies lifted out of the scripts,
	// inserted into the markup head.
	scriptStyles []string
}

func newSiteState() *siteState {
	return &siteState{
		voices:    make(map[string]string),
		sprites:   make(map[string]string),
		locks:     make(map[string]*fetch.Record),
		srcRepl:   make(map[string]string),
		cssURLs:   make(map[string]string),
		cssLinks:  make(map[string]*fetch.Record),
		styleIncs: make(map[string]*fetch.Record),
		langs:     make(map[string]*fetch.Record),
	}
}

func (rw *Rewriter) assetValue(rec *fetch.Record) string {
	if rw.SingleFile {
		return rec.DataURL()
	}
	return rec.LocalPath()
}

// Rewrite applies every fetched record to the case data and the player
// template and assembles the offline player page. Failed records leave
// their sites untouched and are reported by the bundler; rewriting the
// same record set twice yields the same document.
func (rw *Rewriter) Rewrite(kase *aao.Case, tpl *aao.Template, records []*fetch.Record) (*Document, error) {
	st := newSiteState()

	var places map[string]any
	if tpl.DefaultData != nil {
		places = cloneValue(tpl.DefaultData.Places).(map[string]any)
	} else {
		places = make(map[string]any)
	}

	for _, rec := range records {
		if !rec.OK() {
			rw.logger().Warn("asset missing, leaving reference in place",
				slog.String("url", rec.Asset.URL),
				slog.Any("error", rec.Err))
			continue
		}
		value := rw.assetValue(rec)
		for _, site := range rec.Asset.Sites {
			if site.CaseID != 0 && site.CaseID != kase.ID() {
				continue
			}
			if err := rw.applySite(kase, places, st, site, value, rec); err != nil {
				return nil, fmt.Errorf("apply %s: %w", rec.Asset.URL, err)
			}
		}
	}

	scripts, err := rw.assembleScripts(kase, tpl, st, places)
	if err != nil {
		return nil, err
	}

	markup, err := rw.assembleMarkup(kase, tpl, st, scripts)
	if err != nil {
		return nil, err
	}

	return &Document{CaseID: kase.ID(), Title: kase.Info.Title, HTML: markup}, nil
}

func (rw *Rewriter) applySite(kase *aao.Case, places map[string]any, st *siteState, site assetgraph.Site, value string, rec *fetch.Record) error {
	switch site.Source {
	case assetgraph.SourceCaseData:
		if err := pointerSet(kase.Data, site.Pointer, value); err != nil {
			return err
		}
		if site.FlagPointer != "" {
			return pointerSet(kase.Data, site.FlagPointer, true)
		}
	case assetgraph.SourceDefaultPlaces:
		if err := pointerSet(places, site.Pointer, value); err != nil {
			return err
		}
		if site.FlagPointer != "" {
			return pointerSet(places, site.FlagPointer, true)
		}
	case assetgraph.SourceDefaultSprite:
		st.sprites[site.Key] = value
	case assetgraph.SourceDefaultVoice:
		st.voices[site.Key] = value
	case assetgraph.SourcePsycheLock:
		st.locks[site.Key] = rec
	case assetgraph.SourceDocument:
		switch site.Kind {
		case assetgraph.KindCSSLink:
			st.cssLinks[site.Match] = rec
		case assetgraph.KindStyleInclude:
			st.styleIncs[site.Match] = rec
		case assetgraph.KindSrcAttr:
			st.srcRepl[site.Match] = value
		case assetgraph.KindCSSURL:
			st.cssURLs[site.Match] = value
		case assetgraph.KindLanguage:
			st.langs[site.Match] = rec
		case assetgraph.KindHowler:
			st.howler = rec
		}
	}
	return nil
}

// assembleScripts builds the offline script corpus: the case data, the
// engine bundle with every dynamic retrieval replaced by its fetched
// result, and the static default asset lookups.
func (rw *Rewriter) assembleScripts(kase *aao.Case, tpl *aao.Template, st *siteState, places map[string]any) (string, error) {
	scripts, err := tpl.BundleScripts(rw.Paths)
	if err != nil {
		return "", err
	}
	scripts, err = rw.rewriteLanguage(scripts, st.langs)
	if err != nil {
		return "", err
	}
	scripts = rw.inlineHowler(scripts, st.howler)
	scripts = qualifySoundHowler(scripts)
	scripts = rw.rewriteVoiceGetter(scripts, st.voices)
	scripts = rw.rewriteSpriteGetter(scripts, st.sprites)
	scripts = rw.rewriteLockPaths(scripts, st.locks)
	scripts = rw.disablePreloading(scripts)

	var headStyles []string
	scripts, headStyles = rw.stripStyleIncludes(scripts, st.styleIncs)
	st.scriptStyles = headStyles

	scripts = rewriteSrcAttrs(scripts, st.srcRepl)

	injected, err := aao.InjectDefaultPlaces(scripts, places)
	if err != nil {
		rw.logger().Warn("default place table not found in scripts, default places keep remote references")
	} else {
		scripts = injected
	}

	caseJS, err := kase.SerializeJS()
	if err != nil {
		return "", err
	}
	return caseJS + "\n" + scripts, nil
}

// assembleMarkup folds the finished scripts into the player markup and
// applies the markup-level substitutions.
func (rw *Rewriter) assembleMarkup(kase *aao.Case, tpl *aao.Template, st *siteState, scripts string) (string, error) {
	markup := rw.removeAnalytics(tpl.Markup)
	markup = rw.inlineCSSLinks(markup, st.cssLinks)

	var headStyles []string
	markup, headStyles = rw.stripStyleIncludes(markup, st.styleIncs)
	headStyles = append(headStyles, st.scriptStyles...)
	markup = rw.insertHeadStyles(markup, headStyles)
	markup = rewriteSrcAttrs(markup, st.srcRepl)

	title := kase.Info.Title
	blocks := []phpBlock{
		{id: "common_render", detector: commonRenderDetector},
		{id: "language", detector: languageDetector, replacement: rw.Language},
		{id: "script", detector: scriptDetector,
			replacement: "<script type=\"text/javascript\">\n" + scripts + "\n</script>"},
		{id: "title", detector: titleDetector, replacement: title},
		{id: "heading", detector: headingDetector, replacement: title},
	}
	markup, err := transformPHPBlocks(markup, blocks, rw.logger())
	if err != nil {
		return "", err
	}

	markup = rewriteCSSURLs(markup, st.cssURLs)
	markup = rw.appendUserscripts(markup)
	return rw.scrubLiveEndpoints(markup), nil
}
