package aao

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func moduleScript(name, deps, initBody, rest string) string {
	return fmt.Sprintf(`Modules.load(new Object({
	name : '%s',
	dependencies : %s,
	init : function() {
%s
	}
}));

%s
Modules.complete('%s');
`, name, deps, initBody, rest, name)
}

func TestParseModule(t *testing.T) {
	text := moduleScript("frame_data", `['default_data', 'dom_loaded']`, "\t\tloadFrames();", "function loadFrames() {}")
	mod, err := parseModule("frame_data", text)
	if err != nil {
		t.Fatalf("parseModule: %v", err)
	}
	if len(mod.deps) != 2 {
		t.Fatalf("unexpected deps: %v", mod.deps)
	}
	if _, ok := mod.deps["default_data"]; !ok {
		t.Fatalf("missing dependency: %v", mod.deps)
	}
	if !strings.Contains(mod.init, "loadFrames();") {
		t.Fatalf("unexpected init body: %q", mod.init)
	}

	if _, err := parseModule("frame_data", "function loadFrames() {}"); err == nil {
		t.Fatal("expected error for script without a module declaration")
	}
	if _, err := parseModule("frame_data", moduleScript("other", `[]`, "", "")); err == nil {
		t.Fatal("expected error for mismatched module name")
	}
}

func TestCombineModulesOrdersDependenciesFirst(t *testing.T) {
	mods := map[string]*jsModule{}
	for _, spec := range []struct {
		name string
		deps []string
	}{
		{"player", []string{"frame_data", "dom_loaded"}},
		{"frame_data", []string{"default_data"}},
		{"default_data", nil},
	} {
		deps := make(map[string]struct{}, len(spec.deps))
		for _, d := range spec.deps {
			deps[d] = struct{}{}
		}
		text := moduleScript(spec.name, "[]", "\t\tinit_"+spec.name+"();", "function body_"+spec.name+"() {}")
		mods[spec.name] = &jsModule{name: spec.name, deps: deps, init: "init_" + spec.name + "();", content: text}
	}

	combined, err := combineModules(mods)
	if err != nil {
		t.Fatalf("combineModules: %v", err)
	}
	for name, dep := range map[string]string{"player": "frame_data", "frame_data": "default_data"} {
		if strings.Index(combined, "// "+dep+".js") > strings.Index(combined, "// "+name+".js") {
			t.Fatalf("%s emitted before its dependency %s:\n%s", name, dep, combined)
		}
	}
	if strings.Contains(combined, "Modules.load(") {
		t.Fatalf("module wrapper not stripped:\n%s", combined)
	}
	if strings.Contains(combined, "Modules.complete(") {
		t.Fatalf("completion call not stripped:\n%s", combined)
	}
	if !strings.Contains(combined, "initScripts.push(() => {init_player();});") {
		t.Fatalf("init body not queued:\n%s", combined)
	}
}

func TestCombineModulesRejectsUnsatisfiableDeps(t *testing.T) {
	mods := map[string]*jsModule{
		"player": {name: "player", deps: map[string]struct{}{"ghost": {}}},
	}
	_, err := combineModules(mods)
	if err == nil || !strings.Contains(err.Error(), "player") {
		t.Fatalf("expected unsatisfiable dependency error naming the module, got %v", err)
	}
}

func TestPlayerTemplate(t *testing.T) {
	defaultData := `var default_profiles_startup = JSON.parse("{\"Phoenix\/1\":1}");
var default_places = {"-1":{"background":{"image":"courtroom.jpg","external":0}}};
` + moduleScript("default_data", `[]`, "", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master/player.php":
			w.Write([]byte("<html><body>player page</body></html>"))
		case "/master/Javascript/common.js":
			w.Write([]byte("// shared preamble"))
		case "/master/Javascript/player.js":
			w.Write([]byte(moduleScript("player", `['frame_data', 'page_loaded']`, "\t\tstartPlayer();", "function startPlayer() {}")))
		case "/master/Javascript/frame_data.js":
			w.Write([]byte(moduleScript("frame_data", `['default_data']`, "", "")))
		case "/default_data.js.php":
			w.Write([]byte(defaultData))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, EngineURL: server.URL})
	tpl, err := client.PlayerTemplate(context.Background(), "master", 3)
	if err != nil {
		t.Fatalf("PlayerTemplate: %v", err)
	}
	if tpl.Markup != "<html><body>player page</body></html>" {
		t.Fatalf("unexpected markup: %q", tpl.Markup)
	}
	if !strings.Contains(tpl.Modules, "// default_data.js") || !strings.Contains(tpl.Modules, "// player.js") {
		t.Fatalf("missing combined modules:\n%s", tpl.Modules)
	}
	if tpl.DefaultData == nil {
		t.Fatal("default data not parsed")
	}
	if !tpl.DefaultData.HasStartup("Phoenix", 1) {
		t.Fatal("startup animation lookup failed")
	}
	if tpl.DefaultData.HasStartup("Phoenix", 2) {
		t.Fatal("startup lookup matched an absent sprite")
	}
	if _, ok := tpl.DefaultData.Places["-1"]; !ok {
		t.Fatalf("default places not parsed: %v", tpl.DefaultData.Places)
	}

	bundle, err := tpl.BundleScripts(&SitePaths{PictureDir: "pictures"})
	if err != nil {
		t.Fatalf("BundleScripts: %v", err)
	}
	for _, want := range []string{
		`"picture_dir":"pictures"`,
		"function getFileVersion",
		"// shared preamble",
		"let initScripts = [];",
		"window.addEventListener('load'",
	} {
		if !strings.Contains(bundle, want) {
			t.Fatalf("bundle missing %q:\n%s", want, bundle)
		}
	}
	if cfgIdx, commonIdx := strings.Index(bundle, "var cfg = "), strings.Index(bundle, "// shared preamble"); cfgIdx > commonIdx {
		t.Fatal("site configuration must precede the shared preamble")
	}
}
