package aao

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultData is the subset of engine default data the offline
// transformation needs: which default profiles have a startup animation,
// and the default place definitions.
type DefaultData struct {
	ProfilesStartup map[string]struct{}
	Places          map[string]any
}

// HasStartup reports whether the default sprite base/id pair has a startup
// animation.
func (d *DefaultData) HasStartup(base string, spriteID int64) bool {
	if d == nil {
		return false
	}
	_, ok := d.ProfilesStartup[fmt.Sprintf("%s/%d", base, spriteID)]
	return ok
}

func parseDefaultData(script string) (*DefaultData, error) {
	var startup map[string]any
	if err := extractEscapedJSON(defaultStartupPattern, script, &startup); err != nil {
		return nil, fmt.Errorf("default profile startup map: %w", err)
	}
	var places map[string]any
	if err := extractRawJSON(defaultPlacesPattern, script, &places); err != nil {
		return nil, fmt.Errorf("default places: %w", err)
	}
	startupSet := make(map[string]struct{}, len(startup))
	for key := range startup {
		startupSet[key] = struct{}{}
	}
	return &DefaultData{ProfilesStartup: startupSet, Places: places}, nil
}

// InjectDefaultPlaces re-serializes a default place table over the
// engine's shipped definition in script text.
func InjectDefaultPlaces(script string, places map[string]any) (string, error) {
	blob, err := json.Marshal(places)
	if err != nil {
		return "", fmt.Errorf("marshal default places: %w", err)
	}
	if !defaultPlacesPattern.MatchString(script) {
		return "", fmt.Errorf("default places: %w", errPatternNotMatched)
	}
	replacement := "var default_places = " + string(blob) + ";"
	return defaultPlacesPattern.ReplaceAllStringFunc(script, func(string) string {
		return replacement
	}), nil
}

// Template is one fetched player engine revision: the page markup, the
// shared preamble, the combined module scripts, and the default data the
// engine ships. A template is fetched once per distinct version in a run
// and shared by every case pinned to that version.
type Template struct {
	Version     string
	Markup      string
	Common      string
	Modules     string
	DefaultData *DefaultData
}

// jsModule is one engine script in the player's module system: a name,
// the names it depends on, an init body run after loading, and the rest
// of the script.
type jsModule struct {
	name    string
	deps    map[string]struct{}
	init    string
	content string
}

// Pseudo-dependencies satisfied by the browser rather than a script.
var builtinModuleDeps = map[string]struct{}{
	"dom_loaded":  {},
	"page_loaded": {},
}

func parseModule(name, text string) (*jsModule, error) {
	m := modulePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("module %s: declaration not found, engine script changed format", name)
	}
	if m[1] != name {
		return nil, fmt.Errorf("module %s: declares itself as %q", name, m[1])
	}
	var depList []string
	if err := json.Unmarshal([]byte(strings.ReplaceAll(m[2], "'", `"`)), &depList); err != nil {
		return nil, fmt.Errorf("module %s: dependency list: %w", name, err)
	}
	deps := make(map[string]struct{}, len(depList))
	for _, dep := range depList {
		deps[dep] = struct{}{}
	}
	return &jsModule{name: name, deps: deps, init: m[3], content: text}, nil
}

// PlayerTemplate fetches the player markup and the transitive closure of
// engine modules reachable from the player entry point, then combines the
// modules in dependency order. workers bounds the per-round fetch
// parallelism.
func (c *Client) PlayerTemplate(ctx context.Context, version string, workers int) (*Template, error) {
	if version == "" {
		version = DefaultPlayerVersion
	}
	if workers <= 0 {
		workers = 1
	}

	markup, err := c.PlayerMarkup(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("player markup: %w", err)
	}
	common, err := c.CommonScript(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("common script: %w", err)
	}

	modules := make(map[string]*jsModule)
	var defaultData *DefaultData
	targets := []string{"player"}
	for len(targets) > 0 {
		var (
			mu      sync.Mutex
			fetched []*jsModule
		)
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(workers)
		for _, name := range targets {
			if _, builtin := builtinModuleDeps[name]; builtin {
				continue
			}
			if _, seen := modules[name]; seen {
				continue
			}
			group.Go(func() error {
				text, err := c.ModuleScript(groupCtx, name, version)
				if err != nil {
					return fmt.Errorf("module %s: %w", name, err)
				}
				mod, err := parseModule(name, text)
				if err != nil {
					return err
				}
				if name == "default_data" {
					data, err := parseDefaultData(text)
					if err != nil {
						return err
					}
					mu.Lock()
					defaultData = data
					mu.Unlock()
				}
				mu.Lock()
				fetched = append(fetched, mod)
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}

		targets = targets[:0]
		for _, mod := range fetched {
			modules[mod.name] = mod
		}
		queued := make(map[string]struct{})
		for _, mod := range fetched {
			for dep := range mod.deps {
				if _, builtin := builtinModuleDeps[dep]; builtin {
					continue
				}
				if _, seen := modules[dep]; seen {
					continue
				}
				if _, dup := queued[dep]; dup {
					continue
				}
				queued[dep] = struct{}{}
				targets = append(targets, dep)
			}
		}
	}

	combined, err := combineModules(modules)
	if err != nil {
		return nil, err
	}
	if defaultData == nil {
		return nil, fmt.Errorf("player %s: default_data module never loaded", version)
	}

	c.logger.Debug("player template fetched",
		slog.String("version", version),
		slog.Int("modules", len(modules)))

	return &Template{
		Version:     version,
		Markup:      markup,
		Common:      common,
		Modules:     combined,
		DefaultData: defaultData,
	}, nil
}

// combineModules orders the modules so every dependency is emitted before
// its dependents, strips the module-system wrappers, and queues each init
// body for execution after page load.
func combineModules(modules map[string]*jsModule) (string, error) {
	satisfied := map[string]struct{}{"dom_loaded": {}, "page_loaded": {}}
	remaining := make([]*jsModule, 0, len(modules))
	for _, mod := range modules {
		remaining = append(remaining, mod)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].name < remaining[j].name })

	var b strings.Builder
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, mod := range remaining {
			if !depsSatisfied(mod.deps, satisfied) {
				next = append(next, mod)
				continue
			}
			progressed = true
			satisfied[mod.name] = struct{}{}
			fmt.Fprintf(&b, "// %s.js\n\n", mod.name)
			// Init bodies may contain return statements, so each one
			// becomes a deferred function executed after page load.
			fmt.Fprintf(&b, "initScripts.push(() => {%s});\n", mod.init)
			content := modulePattern.ReplaceAllString(mod.content, "\n")
			content = strings.ReplaceAll(content, fmt.Sprintf("Modules.complete('%s')", mod.name), "\n")
			b.WriteString(content)
			b.WriteString("\n")
		}
		if !progressed {
			names := make([]string, 0, len(next))
			for _, mod := range next {
				names = append(names, mod.name)
			}
			return "", fmt.Errorf("engine module set has unsatisfiable dependencies: %s", strings.Join(names, ", "))
		}
		remaining = next
	}
	return b.String(), nil
}

func depsSatisfied(deps, satisfied map[string]struct{}) bool {
	for dep := range deps {
		if _, ok := satisfied[dep]; !ok {
			return false
		}
	}
	return true
}

// BundleScripts assembles the full offline script corpus: the site
// configuration, a stubbed file-version helper, the shared preamble, and
// the combined modules wired to run their init bodies on page load.
func (t *Template) BundleScripts(paths *SitePaths) (string, error) {
	cfg, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("marshal site configuration: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "var cfg = %s;\n", cfg)
	b.WriteString("function getFileVersion(path_components)\n{\n\treturn '';\n}\n")
	b.WriteString(t.Common)
	b.WriteString("\n\nlet initScripts = [];\n")
	b.WriteString(t.Modules)
	b.WriteString("window.addEventListener('load', function() {\n\tinitScripts.forEach((x) => x());\n}, false);\n")
	return b.String(), nil
}
