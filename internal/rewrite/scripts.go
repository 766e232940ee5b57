package rewrite

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"caseport/internal/assetgraph"
	"caseport/internal/fetch"
)

// howlerPreloadOption anchors the HTML5-audio toggle injection inside the
// sound engine configuration.
const howlerPreloadOption = "preload: true"

// preloadCallPattern matches the engine's default place preloading call.
// Preloading is pointless offline and errors on sprites that were never
// referenced, so the loop body is cut short instead.
var preloadCallPattern = regexp.MustCompile(`preloadPlaceImages\(default_places\[i\], img_container\)`)

// Getter functions the engine uses to build default asset URLs at
// runtime. Their bodies are replaced with static lookups over the fetched
// copies.
var (
	voiceGetterPattern  = regexp.MustCompile(`(?s)function getVoiceUrl\(voice_id, ext\)\s*\{(.*?)\n\}`)
	spriteGetterPattern = regexp.MustCompile(`(?s)function getDefaultSpriteUrl\(base, sprite_id, status\)\s*\{(.*?)\n\}`)
)

// lockPathPattern matches the psyche-lock image path expressions in the
// engine scripts: a concatenation ending in '<name>_' + <counter> +
// '.gif'. The counter keeps simultaneous locks distinct, so the rewritten
// expression must stay unique per counter value.
var lockPathPattern = regexp.MustCompile(
	`(?:[\w$.\[\]]+\s*\+\s*)*'[^']*?(fg_chains_appear|fg_chains_disappear|jfa_lock_appears|jfa_lock_explodes)_'(\s*\+\s*[\w$.\[\]]+)\s*\+\s*'\.gif'`)

// soundHowlerPattern qualifies bare SoundHowler references; the inlined
// howler build attaches to window rather than the module scope.
var soundHowlerPattern = regexp.MustCompile(`(^|[^.\w])SoundHowler\.`)

// langObjectPattern matches the engine's empty language table, replaced
// with the merged contents of the fetched language files.
var langObjectPattern = regexp.MustCompile(`var lang = new Object\(\);`)

// rewriteLanguage inlines the fetched language files: the empty language
// object becomes the merged table, the dynamic retrieval list is emptied,
// and its completion callback runs immediately instead.
func (rw *Rewriter) rewriteLanguage(scripts string, langRecs map[string]*fetch.Record) (string, error) {
	m := assetgraph.LanguagePattern.FindStringSubmatchIndex(scripts)
	if m == nil {
		return "", fmt.Errorf("language loader not found in scripts")
	}
	names := assetgraph.ParseLanguageList(scripts[m[2]:m[3]])
	merged := make(map[string]any)
	for _, name := range names {
		rec, ok := langRecs[name]
		if !ok || !rec.OK() {
			return "", fmt.Errorf("language file %q for %q was not fetched", name, rw.Language)
		}
		var table map[string]any
		if err := json.Unmarshal(rec.Body, &table); err != nil {
			return "", fmt.Errorf("language file %q: %w", name, err)
		}
		mergeJSON(merged, table)
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("marshal merged language table: %w", err)
	}

	callback := scripts[m[4]:m[5]]
	replacement := "Languages.requestFiles([], function(){});\n" + callback
	scripts = scripts[:m[0]] + replacement + scripts[m[1]:]

	if !langObjectPattern.MatchString(scripts) {
		return "", fmt.Errorf("language table declaration not found in scripts")
	}
	langDecl := "var lang = " + string(blob) + ";"
	return langObjectPattern.ReplaceAllStringFunc(scripts, func(string) string {
		return langDecl
	}), nil
}

// mergeJSON merges src into dst, recursing into objects and overwriting
// everything else.
func mergeJSON(dst, src map[string]any) {
	for key, value := range src {
		if srcObj, ok := value.(map[string]any); ok {
			if dstObj, ok := dst[key].(map[string]any); ok {
				mergeJSON(dstObj, srcObj)
				continue
			}
		}
		dst[key] = value
	}
}

// inlineHowler replaces the dynamic howler.js load with the fetched
// library followed by the original configuration callback, and injects
// the HTML5-audio option. Data-URI audio never hits CORS, so the option
// only applies to directory output.
func (rw *Rewriter) inlineHowler(scripts string, howlerRec *fetch.Record) string {
	m := assetgraph.HowlerPattern.FindStringSubmatchIndex(scripts)
	if m == nil {
		rw.logger().Warn("sound engine loader not found in scripts, skipping")
		return scripts
	}
	if howlerRec == nil || !howlerRec.OK() {
		rw.logger().Warn("sound engine library was not fetched, skipping inline")
		return scripts
	}
	configuration := scripts[m[2]:m[3]]
	scripts = scripts[:m[0]] + string(howlerRec.Body) + "\n" + configuration + scripts[m[1]:]

	if rw.SingleFile {
		if !rw.HTML5Audio {
			rw.logger().Warn("html5 audio toggle has no effect in single-file output, audio is embedded anyway")
		}
		return scripts
	}
	pos := strings.Index(scripts, howlerPreloadOption)
	if pos < 0 {
		rw.logger().Warn("sound engine preload option not found, skipping html5 toggle")
		return scripts
	}
	insert := pos + len(howlerPreloadOption)
	return scripts[:insert] + fmt.Sprintf(", html5: %t", rw.HTML5Audio) + scripts[insert:]
}

// rewriteVoiceGetter replaces the voice blip URL getter body with a
// static lookup over the fetched default voices. Keys are "blipID.ext".
func (rw *Rewriter) rewriteVoiceGetter(scripts string, voices map[string]string) string {
	m := voiceGetterPattern.FindStringSubmatchIndex(scripts)
	if m == nil {
		rw.logger().Warn("voice getter not found in scripts, skipping")
		return scripts
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, key := range sortedKeys(voices) {
		dot := strings.LastIndex(key, ".")
		if dot < 0 {
			continue
		}
		fmt.Fprintf(&b, "if (-voice_id === %s && ext === '%s') return '%s';\n",
			key[:dot], key[dot+1:], voices[key])
	}
	b.WriteString("return 'data:audio/wav;base64,';\n")
	return scripts[:m[2]] + b.String() + scripts[m[3]:]
}

// rewriteSpriteGetter replaces the default sprite URL getter body with a
// static lookup. Keys are "base/spriteID/status".
func (rw *Rewriter) rewriteSpriteGetter(scripts string, sprites map[string]string) string {
	m := spriteGetterPattern.FindStringSubmatchIndex(scripts)
	if m == nil {
		rw.logger().Warn("default sprite getter not found in scripts, some sprites may be missing")
		return scripts
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, key := range sortedKeys(sprites) {
		parts := strings.SplitN(key, "/", 3)
		if len(parts) != 3 {
			continue
		}
		fmt.Fprintf(&b, "if (base === '%s' && sprite_id === %s && status === '%s') return '%s';\n",
			parts[0], parts[1], parts[2], sprites[key])
	}
	b.WriteString("return 'data:image/gif;base64,';\n")
	return scripts[:m[2]] + b.String() + scripts[m[3]:]
}

// rewriteLockPaths repoints the psyche-lock image path expressions. The
// player requests each simultaneous lock under a distinct counter, so
// directory output relies on the numbered alias copies and single-file
// output keeps the counter inside the data URL's parameter section, where
// browsers ignore it.
func (rw *Rewriter) rewriteLockPaths(scripts string, lockRecs map[string]*fetch.Record) string {
	if !lockPathPattern.MatchString(scripts) {
		rw.logger().Warn("psyche lock paths not found in scripts, skipping")
		return scripts
	}
	return lockPathPattern.ReplaceAllStringFunc(scripts, func(match string) string {
		g := lockPathPattern.FindStringSubmatch(match)
		name, counter := g[1], g[2]
		rec, ok := lockRecs[name]
		if !ok || !rec.OK() {
			// Case shows no locks of this kind; any stand-in works.
			return match
		}
		if rw.SingleFile {
			return fmt.Sprintf("'data:%s'%s + ';base64,%s'",
				rec.MIME, counter, base64.StdEncoding.EncodeToString(rec.Body))
		}
		return fmt.Sprintf("'assets/%s_'%s + '.gif'", name, counter)
	})
}

// disablePreloading cuts the default place preloading loop short; every
// asset is already local.
func (rw *Rewriter) disablePreloading(scripts string) string {
	if !preloadCallPattern.MatchString(scripts) {
		rw.logger().Warn("place preloading not found in scripts, skipping")
		return scripts
	}
	replaced := false
	return preloadCallPattern.ReplaceAllStringFunc(scripts, func(match string) string {
		if replaced {
			return match
		}
		replaced = true
		return "return;"
	})
}

// rewriteSrcAttrs substitutes scanned src references with their local
// values wherever the scan pattern matches them.
func rewriteSrcAttrs(doc string, repl map[string]string) string {
	if len(repl) == 0 {
		return doc
	}
	return assetgraph.SrcAttrPattern.ReplaceAllStringFunc(doc, func(match string) string {
		g := assetgraph.SrcAttrPattern.FindStringSubmatch(match)
		value := g[1]
		if value == "" {
			value = g[2]
		}
		local, ok := repl[value]
		if !ok {
			return match
		}
		return strings.Replace(match, value, local, 1)
	})
}

// rewriteCSSURLs substitutes scanned url(...) references, covering both
// inlined stylesheets and script-assembled styles.
func rewriteCSSURLs(doc string, repl map[string]string) string {
	if len(repl) == 0 {
		return doc
	}
	return assetgraph.CSSURLPattern.ReplaceAllStringFunc(doc, func(match string) string {
		g := assetgraph.CSSURLPattern.FindStringSubmatch(match)
		local, ok := repl[g[1]]
		if !ok {
			return match
		}
		return strings.Replace(match, g[1], local, 1)
	})
}

func qualifySoundHowler(scripts string) string {
	return soundHowlerPattern.ReplaceAllString(scripts, "${1}window.SoundHowler.")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
