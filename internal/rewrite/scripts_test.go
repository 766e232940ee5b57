package rewrite

import (
	"encoding/base64"
	"strings"
	"testing"

	"caseport/internal/assetgraph"
	"caseport/internal/fetch"
)

func langRecord(body string) *fetch.Record {
	return &fetch.Record{
		Asset: &assetgraph.Asset{},
		Body:  []byte(body),
		MIME:  "text/javascript",
	}
}

func TestRewriteLanguageMergesFilesInOrder(t *testing.T) {
	scripts := "var lang = new Object();\n" +
		"Languages.requestFiles(['common', 'trial'], function(){\n\tlangReady();\n});\n"
	rw := &Rewriter{Language: "en"}
	out, err := rw.rewriteLanguage(scripts, map[string]*fetch.Record{
		"common": langRecord(`{"ok":"OK","menu":{"save":"Save"}}`),
		"trial":  langRecord(`{"menu":{"load":"Load"},"ok":"Fine"}`),
	})
	if err != nil {
		t.Fatalf("rewriteLanguage: %v", err)
	}
	if strings.Contains(out, "new Object()") {
		t.Fatal("empty language table still present")
	}
	for _, want := range []string{`"ok":"Fine"`, `"save":"Save"`, `"load":"Load"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("merged table missing %q in:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Languages.requestFiles([], function(){});") {
		t.Fatal("retrieval list not emptied")
	}
	if !strings.Contains(out, "langReady();") {
		t.Fatal("completion callback lost")
	}
}

func TestRewriteLanguageMissingFileFails(t *testing.T) {
	scripts := "var lang = new Object();\nLanguages.requestFiles(['common'], function(){ ready(); });\n"
	rw := &Rewriter{Language: "en"}
	if _, err := rw.rewriteLanguage(scripts, nil); err == nil {
		t.Fatal("missing language file must fail")
	}
}

func TestInlineHowler(t *testing.T) {
	scripts := "includeScript('howler.js/howler.min', false, '', function(){" +
		"SoundHowler.ready = true;});\n" +
		"var sound_options = {preload: true};\n"
	rec := &fetch.Record{Asset: &assetgraph.Asset{}, Body: []byte("/* howler build */"), MIME: "text/javascript"}

	rw := &Rewriter{HTML5Audio: true}
	out := rw.inlineHowler(scripts, rec)
	if !strings.Contains(out, "/* howler build */") {
		t.Fatal("library not inlined")
	}
	if strings.Contains(out, "includeScript") {
		t.Fatal("dynamic load still present")
	}
	if !strings.Contains(out, "preload: true, html5: true") {
		t.Fatalf("html5 toggle not injected:\n%s", out)
	}

	single := &Rewriter{SingleFile: true, HTML5Audio: true}
	out = single.inlineHowler(scripts, rec)
	if strings.Contains(out, "html5:") {
		t.Fatal("html5 toggle must not apply to single-file output")
	}
}

func TestQualifySoundHowler(t *testing.T) {
	in := "SoundHowler.play(x); foo.SoundHowler.play(y); window.SoundHowler.stop();"
	out := qualifySoundHowler(in)
	if !strings.HasPrefix(out, "window.SoundHowler.play(x);") {
		t.Fatalf("bare reference not qualified: %s", out)
	}
	if strings.Contains(out, "window.window.") || strings.Contains(out, "foo.window.") {
		t.Fatalf("already-qualified references were touched: %s", out)
	}
	if qualifySoundHowler(out) != out {
		t.Fatal("qualification is not idempotent")
	}
}

func TestRewriteGetters(t *testing.T) {
	scripts := "function getVoiceUrl(voice_id, ext)\n{\n\treturn cfg.voices_dir + (-voice_id) + '.' + ext;\n}\n" +
		"function getDefaultSpriteUrl(base, sprite_id, status)\n{\n\treturn cfg.picture_dir + base;\n}\n"
	rw := &Rewriter{}
	out := rw.rewriteVoiceGetter(scripts, map[string]string{
		"1.opus": "assets/voice_singleblip_1.opus",
		"2.wav":  "assets/voice_singleblip_2.wav",
	})
	if !strings.Contains(out, "if (-voice_id === 1 && ext === 'opus') return 'assets/voice_singleblip_1.opus';") {
		t.Fatalf("voice lookup missing:\n%s", out)
	}
	if !strings.Contains(out, "return 'data:audio/wav;base64,';") {
		t.Fatal("voice fallback missing")
	}

	out = rw.rewriteSpriteGetter(out, map[string]string{
		"Phoenix/2/talking": "assets/talking.gif",
	})
	if !strings.Contains(out, "if (base === 'Phoenix' && sprite_id === 2 && status === 'talking') return 'assets/talking.gif';") {
		t.Fatalf("sprite lookup missing:\n%s", out)
	}
	if !strings.Contains(out, "return 'data:image/gif;base64,';") {
		t.Fatal("sprite fallback missing")
	}
	if strings.Contains(out, "cfg.voices_dir") || strings.Contains(out, "cfg.picture_dir + base") {
		t.Fatal("original getter bodies still present")
	}
}

func TestRewriteLockPaths(t *testing.T) {
	scripts := "img.src = cfg.picture_dir + cfg.locks_subdir + 'jfa_lock_appears_' + lock_id + '.gif';\n"
	rec := &fetch.Record{
		Asset: &assetgraph.Asset{},
		Body:  []byte("GIF89a-lock"),
		MIME:  "image/gif",
	}
	locks := map[string]*fetch.Record{"jfa_lock_appears": rec}

	rw := &Rewriter{}
	out := rw.rewriteLockPaths(scripts, locks)
	if !strings.Contains(out, "img.src = 'assets/jfa_lock_appears_' + lock_id + '.gif';") {
		t.Fatalf("directory lock path not rewritten:\n%s", out)
	}

	single := &Rewriter{SingleFile: true}
	out = single.rewriteLockPaths(scripts, locks)
	b64 := base64.StdEncoding.EncodeToString(rec.Body)
	want := "'data:image/gif' + lock_id + ';base64," + b64 + "'"
	if !strings.Contains(out, want) {
		t.Fatalf("single-file lock path missing %q in:\n%s", want, out)
	}
}

func TestDisablePreloading(t *testing.T) {
	scripts := "for (var i in default_places) {\n\tpreloadPlaceImages(default_places[i], img_container);\n}\n"
	rw := &Rewriter{}
	out := rw.disablePreloading(scripts)
	if !strings.Contains(out, "return;;") {
		t.Fatalf("preload call not cut short:\n%s", out)
	}
}

func TestRewriteSrcAttrsAndCSSURLs(t *testing.T) {
	doc := `<img src="img/header/logo.png" /> spinner.src = 'img/general/spinner.gif';` +
		"\nbody { background: url(\"bg/court.jpg\") }"
	repl := map[string]string{
		"img/header/logo.png":     "assets/logo.png",
		"img/general/spinner.gif": "assets/spinner.gif",
	}
	out := rewriteSrcAttrs(doc, repl)
	if !strings.Contains(out, `src="assets/logo.png"`) || !strings.Contains(out, "spinner.src = 'assets/spinner.gif'") {
		t.Fatalf("src attributes not rewritten:\n%s", out)
	}
	out = rewriteCSSURLs(out, map[string]string{"bg/court.jpg": "assets/court.jpg"})
	if !strings.Contains(out, `url("assets/court.jpg")`) {
		t.Fatalf("css url not rewritten:\n%s", out)
	}
	if rewriteSrcAttrs(out, repl) != out {
		t.Fatal("src rewrite is not idempotent")
	}
}
