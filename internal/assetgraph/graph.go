package assetgraph

import (
	"path"
	"regexp"
	"strings"

	"caseport/internal/config"
)

// Role classifies what an asset is used for. Classification drives
// extension hints and reporting, not fetching.
type Role string

const (
	RoleIcon       Role = "icon"
	RoleSprite     Role = "sprite"
	RoleEvidence   Role = "evidence"
	RoleBackground Role = "background"
	RolePopup      Role = "popup"
	RoleMusic      Role = "music"
	RoleSound      Role = "sound"
	RoleScript     Role = "script"
	RoleMarkup     Role = "markup"
	RoleDocument   Role = "document"
)

// Source identifies which data structure an occurrence site lives in.
type Source string

const (
	// SourceCaseData sites are JSON pointers into the case data.
	SourceCaseData Source = "case"
	// SourceDefaultPlaces sites are JSON pointers of the form
	// "/{placeID}/rest..." into the engine's default place table.
	SourceDefaultPlaces Source = "default_places"
	// SourceDefaultSprite sites key the engine's default sprite lookup
	// by "base/spriteID/kind".
	SourceDefaultSprite Source = "default_sprite"
	// SourceDefaultVoice sites key the engine's voice blip lookup by
	// "blipID.ext".
	SourceDefaultVoice Source = "default_voice"
	// SourcePsycheLock sites key the psyche-lock overlay lookup by name.
	SourcePsycheLock Source = "psyche_lock"
	// SourceDocument sites are textual occurrences inside a player
	// document, found by pattern scanning.
	SourceDocument Source = "document"
)

// Document names used for textual occurrence sites.
const (
	DocMarkup  = "markup"
	DocScripts = "scripts"
)

// Textual site kinds, matching the scan pattern that found them.
const (
	KindCSSLink      = "css_link"
	KindStyleInclude = "style_include"
	KindSrcAttr      = "src_attr"
	KindCSSURL       = "css_url"
	KindHowler       = "howler"
	KindLanguage     = "language"
)

// Site is one place an asset is referenced from.
type Site struct {
	Source  Source
	CaseID  int64
	Pointer string // JSON pointer, for case data and default places
	// FlagPointer names the sibling "external" flag that must be forced
	// to true once the asset is local. Empty when there is none.
	FlagPointer string
	Key         string // lookup key for default sprite/voice/lock sites
	Doc         string // document name for textual sites
	Kind        string // scan pattern kind for textual sites
	Match       string // raw matched reference text for textual sites
}

// Asset is one unique remote file, identified by its canonical URL.
type Asset struct {
	URL  string
	Role Role
	// Aliases are extra local filenames the bundler must provide as
	// copies of this asset (psyche locks are requested under numbered
	// names by the player).
	Aliases []string
	Sites   []Site
}

// Graph is a deduplicated set of assets keyed by canonical URL.
// Insertion order is preserved so downstream work is deterministic.
type Graph struct {
	baseURL  string
	httpMode string
	assets   []*Asset
	byURL    map[string]*Asset
}

// NewGraph creates an empty graph resolving relative references against
// the given site base URL, normalizing schemes per the HTTP handling mode.
func NewGraph(baseURL, httpMode string) *Graph {
	return &Graph{
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpMode: httpMode,
		byURL:    make(map[string]*Asset),
	}
}

// Assets returns the graph's assets in insertion order.
func (g *Graph) Assets() []*Asset { return g.assets }

// Len returns the number of unique assets.
func (g *Graph) Len() int { return len(g.assets) }

// Lookup returns the asset with the given canonical URL, or nil.
func (g *Graph) Lookup(url string) *Asset { return g.byURL[url] }

type addSpec struct {
	value      string
	components []string
	external   bool
	defaultExt string
	role       Role
	site       Site
	aliases    []string
}

// add registers one occurrence. References to a URL already in the graph
// accumulate on the existing asset.
func (g *Graph) add(spec addSpec) *Asset {
	file := strings.TrimSpace(spec.value)
	if file == "" {
		return nil
	}
	url := CanonicalURL(g.baseURL, file, spec.components, spec.external, spec.defaultExt, g.httpMode)
	asset := g.byURL[url]
	if asset == nil {
		asset = &Asset{URL: url, Role: spec.role}
		g.byURL[url] = asset
		g.assets = append(g.assets, asset)
	}
	asset.Sites = append(asset.Sites, spec.site)
	for _, alias := range spec.aliases {
		if !containsString(asset.Aliases, alias) {
			asset.Aliases = append(asset.Aliases, alias)
		}
	}
	return asset
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Runs of slashes after the scheme are collapsed; the origin tolerates
// them but they would break URL-keyed dedup.
var slashRunPattern = regexp.MustCompile(`([^:/])/{2,}`)

// CanonicalURL builds the canonical absolute URL for a referenced file.
// Non-external references are joined onto the base URL with the given
// path components; external references are used as-is when absolute and
// joined onto the base otherwise. The default extension is appended only
// when the reference carries none.
func CanonicalURL(base, file string, components []string, external bool, defaultExt string, httpMode string) string {
	file = strings.TrimSpace(file)
	if defaultExt != "" && path.Ext(path.Base(file)) == "" {
		file += "." + defaultExt
	}
	var url string
	switch {
	case !external:
		url = base + "/" + strings.Join(components, "/") + "/" + file
	case strings.HasPrefix(file, "http"):
		url = file
	default:
		url = base + "/" + strings.TrimLeft(file, "/")
	}
	url = slashRunPattern.ReplaceAllString(url, "$1/")
	if httpMode == config.HTTPRedirectToHTTPS && strings.HasPrefix(url, "http://") {
		url = "https://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
