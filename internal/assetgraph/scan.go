package assetgraph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"caseport/internal/aao"
)

// Patterns for asset references inside player documents. The rewriter
// runs the same patterns when it replaces the references, so they are
// exported.
var (
	CSSLinkPattern      = regexp.MustCompile(`<link rel="stylesheet" type="text/css" href="([^"]+\.css)"\s*/>`)
	StyleIncludePattern = regexp.MustCompile(`includeStyle\(['"](.*?)['"]\);`)
	SrcAttrPattern      = regexp.MustCompile(`(?:src=["']([^"']+)["']|\.src\s*=\s*['"]([^'"]*?)['"])`)
	CSSURLPattern       = regexp.MustCompile(`[:\s]url\("?([^")]*)"?\)`)
	HowlerPattern       = regexp.MustCompile(`includeScript\('howler\.js/howler\.min', false, '', function\(\)\{([^}]*?)\}\);`)
	LanguagePattern     = regexp.MustCompile(`(?s)Languages\.requestFiles\(\[([^\]]*)\], function\(\)\{\s*(.*?)\s*\}\);`)
)

// Extensions a scanned string must carry to count as an asset reference.
var allowedExtensions = map[string]struct{}{
	".png": {}, ".gif": {}, ".jpg": {}, ".jpeg": {}, ".webp": {},
	".bmp": {}, ".ico": {}, ".svg": {}, ".css": {}, ".js": {},
	".mp3": {}, ".wav": {}, ".opus": {}, ".ogg": {},
}

// Remote hosts scanned references may point at. Absolute URLs on hosts
// outside this set are left alone; the offline copy treats them as
// unavailable rather than fetching from arbitrary origins.
var allowedHosts = map[string]struct{}{
	"aaonline.fr":         {},
	"www.aaonline.fr":     {},
	"bitbucket.org":       {},
	"photobucket.com":     {},
	"i.photobucket.com":   {},
	"img.photobucket.com": {},
}

// scanDocument extracts asset references from one player document.
func (e *Enumerator) scanDocument(g *Graph, doc, content string) {
	for _, m := range CSSLinkPattern.FindAllStringSubmatch(content, -1) {
		e.addScanned(g, doc, KindCSSLink, m[1], m[1], RoleDocument)
	}
	for _, m := range StyleIncludePattern.FindAllStringSubmatch(content, -1) {
		e.addScanned(g, doc, KindStyleInclude, "CSS/"+m[1]+".css", m[1], RoleDocument)
	}
	for _, m := range SrcAttrPattern.FindAllStringSubmatch(content, -1) {
		value := m[1]
		if value == "" {
			value = m[2]
		}
		if strings.HasPrefix(value, "data:") {
			continue
		}
		role := RoleMarkup
		if doc == DocScripts {
			role = RoleScript
		}
		e.addScanned(g, doc, KindSrcAttr, value, value, role)
	}
	e.scanCSSURLs(g, doc, content)

	if doc != DocScripts {
		return
	}
	if m := LanguagePattern.FindStringSubmatch(content); m != nil {
		for _, name := range ParseLanguageList(m[1]) {
			file := fmt.Sprintf("%s/%s/%s.js", e.Paths.LangDir, e.Language, name)
			e.addScanned(g, doc, KindLanguage, file, name, RoleScript)
		}
	} else {
		e.logger().Warn("language loader not found in scripts")
	}
}

// ScanStylesheet extracts url(...) references from fetched stylesheet
// content. Stylesheets are only available after the first fetch wave, so
// this runs as a second enumeration pass.
func (e *Enumerator) ScanStylesheet(g *Graph, doc, content string) {
	e.scanCSSURLs(g, doc, content)
}

func (e *Enumerator) scanCSSURLs(g *Graph, doc, content string) {
	for _, m := range CSSURLPattern.FindAllStringSubmatch(content, -1) {
		value := m[1]
		if strings.HasPrefix(value, "data:") {
			continue
		}
		// The stylesheet carries one commented-out tick.png rule.
		if strings.HasSuffix(value, "/tick.png") {
			continue
		}
		file := value
		if !strings.HasPrefix(value, "http") {
			file = "CSS/" + value
		}
		e.addScanned(g, doc, KindCSSURL, file, value, RoleDocument)
	}
}

// scanEngineExtras registers engine files the scripts load dynamically:
// the howler.js sound library.
func (e *Enumerator) scanEngineExtras(g *Graph, tpl *aao.Template) {
	scripts := tpl.Common + "\n" + tpl.Modules
	if !HowlerPattern.MatchString(scripts) {
		e.logger().Warn("howler loader not found in scripts")
		return
	}
	target := fmt.Sprintf("%s/%s/Javascript/howler.js/howler.min.js",
		strings.TrimRight(e.EngineURL, "/"), tpl.Version)
	g.add(addSpec{
		value:    target,
		external: true,
		role:     RoleScript,
		site: Site{
			Source: SourceDocument,
			Doc:    DocScripts,
			Kind:   KindHowler,
		},
	})
}

// addScanned applies the extension and host allow-lists before adding a
// scanned reference to the graph.
func (e *Enumerator) addScanned(g *Graph, doc, kind, file, match string, role Role) {
	ext := strings.ToLower(path.Ext(stripQuery(file)))
	if _, ok := allowedExtensions[ext]; !ok {
		e.logger().Debug("scanned reference without known extension, skipping",
			slog.String("ref", match))
		return
	}
	if strings.HasPrefix(file, "http") {
		parsed, err := url.Parse(file)
		if err != nil || !hostAllowed(parsed.Hostname()) {
			e.logger().Debug("scanned reference on unknown host, skipping",
				slog.String("ref", match))
			return
		}
	}
	g.add(addSpec{
		value:    file,
		external: true,
		role:     role,
		site: Site{
			Source: SourceDocument,
			Doc:    doc,
			Kind:   kind,
			Match:  match,
		},
	})
}

func hostAllowed(host string) bool {
	_, ok := allowedHosts[strings.ToLower(host)]
	return ok
}

func stripQuery(file string) string {
	if i := strings.IndexAny(file, "?#"); i >= 0 {
		return file[:i]
	}
	return file
}

// ParseLanguageList decodes the single-quoted file list inside the
// language loader call. The rewriter parses the same list to merge the
// fetched files in load order.
func ParseLanguageList(list string) []string {
	var names []string
	if err := json.Unmarshal([]byte("["+strings.ReplaceAll(list, "'", `"`)+"]"), &names); err != nil {
		return nil
	}
	return names
}
