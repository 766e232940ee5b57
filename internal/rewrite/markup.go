package rewrite

import (
	"log/slog"
	"regexp"
	"strings"

	"caseport/internal/assetgraph"
	"caseport/internal/fetch"
)

const htmlEnd = "</html>"

// analyticsPattern matches the tracking snippet at the bottom of the
// player page. Offline copies must not phone home.
var analyticsPattern = regexp.MustCompile(`(?s)<script>.*?UA-.*?</script>`)

// liveEndpointPattern matches remaining references to the origin site in
// the emitted document. Rewritten references are already local; whatever
// is left would make the offline copy call home, so the scheme and host
// are dropped to turn them into dead relative paths.
var liveEndpointPattern = regexp.MustCompile(`(?:https?:)?//(?:www\.)?aaonline\.fr/`)

func (rw *Rewriter) removeAnalytics(markup string) string {
	if !analyticsPattern.MatchString(markup) {
		rw.logger().Warn("analytics snippet not found in player markup, skipping")
		return markup
	}
	return analyticsPattern.ReplaceAllString(markup, "")
}

// inlineCSSLinks replaces stylesheet links with the fetched stylesheet
// contents. References inside the inlined text are substituted later, by
// the url(...) pass over the whole document.
func (rw *Rewriter) inlineCSSLinks(doc string, cssLinks map[string]*fetch.Record) string {
	if len(cssLinks) == 0 {
		return doc
	}
	return assetgraph.CSSLinkPattern.ReplaceAllStringFunc(doc, func(match string) string {
		g := assetgraph.CSSLinkPattern.FindStringSubmatch(match)
		rec, ok := cssLinks[g[1]]
		if !ok || !rec.OK() {
			rw.logger().Warn("stylesheet was not fetched, leaving link in place",
				slog.String("href", g[1]))
			return match
		}
		return "<style>" + string(rec.Body) + "</style>"
	})
}

// stripStyleIncludes removes dynamic stylesheet inclusion calls from a
// document and returns the fetched stylesheet bodies for insertion into
// the markup head.
func (rw *Rewriter) stripStyleIncludes(doc string, styleIncs map[string]*fetch.Record) (string, []string) {
	var styles []string
	out := assetgraph.StyleIncludePattern.ReplaceAllStringFunc(doc, func(match string) string {
		g := assetgraph.StyleIncludePattern.FindStringSubmatch(match)
		rec, ok := styleIncs[g[1]]
		if !ok || !rec.OK() {
			rw.logger().Warn("included stylesheet was not fetched, leaving call in place",
				slog.String("name", g[1]))
			return match
		}
		styles = append(styles, string(rec.Body))
		return ""
	})
	return out, styles
}

// insertHeadStyles places stylesheet bodies at the end of the markup
// head.
func (rw *Rewriter) insertHeadStyles(markup string, styles []string) string {
	if len(styles) == 0 {
		return markup
	}
	pos := strings.Index(markup, "</head>")
	if pos < 0 {
		rw.logger().Warn("player markup has no head element, skipping style insertion")
		return markup
	}
	var b strings.Builder
	for _, style := range styles {
		b.WriteString("\n<style>")
		b.WriteString(style)
		b.WriteString("</style>")
	}
	return markup[:pos] + b.String() + markup[pos:]
}

// appendUserscripts inserts the configured script snippets in one script
// element before the document end.
func (rw *Rewriter) appendUserscripts(markup string) string {
	if len(rw.Userscripts) == 0 {
		return markup
	}
	pos := strings.LastIndex(markup, htmlEnd)
	if pos < 0 {
		rw.logger().Warn("player markup has no closing html tag, skipping userscripts")
		return markup
	}
	joined := strings.Join(rw.Userscripts, "\n")
	return markup[:pos] + "<script type=\"text/javascript\">" + joined + "</script>\n" + markup[pos:]
}

func (rw *Rewriter) scrubLiveEndpoints(doc string) string {
	count := len(liveEndpointPattern.FindAllString(doc, -1))
	if count == 0 {
		return doc
	}
	rw.logger().Debug("scrubbing live origin references", slog.Int("count", count))
	return liveEndpointPattern.ReplaceAllString(doc, "")
}
