package assetgraph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"caseport/internal/aao"
)

var spriteKinds = [3]string{"talking", "still", "startup"}

// Psyche-lock overlay files requested by the player whenever a dialogue
// displays locks.
var lockNames = [4]string{
	"fg_chains_appear",
	"jfa_lock_appears",
	"jfa_lock_explodes",
	"fg_chains_disappear",
}

// Voice blips are served in several encodings; the player probes them all.
var voiceExtensions = [3]string{"opus", "wav", "mp3"}

// Enumerator builds asset graphs for cases against one site layout and
// player template.
type Enumerator struct {
	BaseURL   string
	EngineURL string
	HTTPMode  string
	Language  string
	Paths     *aao.SitePaths
	Logger    *slog.Logger
}

func (e *Enumerator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Enumerate walks the case data and the player documents and returns the
// deduplicated graph of every remote asset the offline copy needs.
func (e *Enumerator) Enumerate(kase *aao.Case, tpl *aao.Template) (*Graph, error) {
	g := NewGraph(e.BaseURL, e.HTTPMode)

	e.collectDefaultSprites(g, kase, tpl.DefaultData)
	e.collectProfiles(g, kase)
	e.collectEvidence(g, kase)
	if err := e.collectPlaces(g, kase, tpl.DefaultData); err != nil {
		return nil, err
	}
	if err := e.collectPopups(g, kase); err != nil {
		return nil, err
	}
	if err := e.collectAudio(g, kase, "music", RoleMusic, e.Paths.MusicPath()); err != nil {
		return nil, err
	}
	if err := e.collectAudio(g, kase, "sounds", RoleSound, e.Paths.SoundPath()); err != nil {
		return nil, err
	}
	e.collectVoices(g)
	e.collectPsycheLocks(g, kase)

	e.scanDocument(g, DocMarkup, tpl.Markup)
	e.scanDocument(g, DocScripts, tpl.Common+"\n"+tpl.Modules)
	e.scanEngineExtras(g, tpl)

	e.logger().Debug("assets enumerated",
		slog.Int64("case_id", kase.ID()),
		slog.Int("assets", g.Len()))
	return g, nil
}

// collectDefaultSprites registers the engine default sprites the case
// frames actually use. Negative sprite IDs in frames denote defaults; the
// startup kind exists only for sprites listed in the engine startup table.
func (e *Enumerator) collectDefaultSprites(g *Graph, kase *aao.Case, defaults *aao.DefaultData) {
	bases := profileBases(kase)
	seen := make(map[string]struct{})
	for _, pair := range kase.UsedSprites() {
		profileID, spriteID := pair[0], pair[1]
		if spriteID >= 0 {
			continue
		}
		base, ok := bases[profileID]
		if !ok {
			e.logger().Warn("frame references unknown profile", slog.Int64("profile_id", profileID))
			continue
		}
		id := -spriteID
		key := fmt.Sprintf("%s/%d", base, id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		for _, kind := range spriteKinds {
			if kind == "startup" && !defaults.HasStartup(base, id) {
				continue
			}
			components, err := e.Paths.SpritePath(kind, base)
			if err != nil {
				e.logger().Warn("sprite path unavailable", slog.String("kind", kind))
				continue
			}
			g.add(addSpec{
				value:      fmt.Sprintf("%d.gif", id),
				components: components,
				role:       RoleSprite,
				site: Site{
					Source: SourceDefaultSprite,
					CaseID: kase.ID(),
					Key:    fmt.Sprintf("%s/%d/%s", base, id, kind),
				},
			})
		}
	}
}

func profileBases(kase *aao.Case) map[int64]string {
	bases := make(map[int64]string)
	for _, v := range arrayOf(kase.Data, "profiles") {
		profile := asObject(v)
		if profile == nil {
			continue
		}
		if id, ok := intOf(profile["id"]); ok {
			bases[id] = stringOf(profile["base"])
		}
	}
	return bases
}

// collectProfiles registers profile icons and custom sprites. A profile
// without a custom icon falls back to the origin's default icon for its
// character base.
func (e *Enumerator) collectProfiles(g *Graph, kase *aao.Case) {
	for i, v := range arrayOf(kase.Data, "profiles") {
		profile := asObject(v)
		if profile == nil {
			continue
		}
		icon := stringOf(profile["icon"])
		if icon == "" {
			if base := stringOf(profile["base"]); base != "" {
				icon = strings.Join(e.Paths.IconPath(), "/") + "/" + base + ".png"
			} else {
				icon = strings.Join(e.Paths.IconPath(), "/") + "/" + aao.DefaultIconFile
			}
		}
		g.add(addSpec{
			value:      icon,
			external:   true,
			defaultExt: "png",
			role:       RoleIcon,
			site: Site{
				Source:  SourceCaseData,
				CaseID:  kase.ID(),
				Pointer: fmt.Sprintf("/profiles/%d/icon", i),
			},
		})

		for j, cv := range arrayOf(profile, "custom_sprites") {
			custom := asObject(cv)
			if custom == nil {
				continue
			}
			for _, kind := range spriteKinds {
				value := stringOf(custom[kind])
				if value == "" {
					continue
				}
				g.add(addSpec{
					value:      value,
					external:   true,
					defaultExt: "gif",
					role:       RoleSprite,
					site: Site{
						Source:  SourceCaseData,
						CaseID:  kase.ID(),
						Pointer: fmt.Sprintf("/profiles/%d/custom_sprites/%d/%s", i, j, kind),
					},
				})
			}
		}
	}
}

// collectEvidence registers evidence icons and non-text check button
// payloads (images or sounds shown when the player checks evidence).
func (e *Enumerator) collectEvidence(g *Graph, kase *aao.Case) {
	for i, v := range arrayOf(kase.Data, "evidence") {
		evidence := asObject(v)
		if evidence == nil {
			continue
		}
		if icon := stringOf(evidence["icon"]); icon != "" {
			external, ok := evidence["icon_external"].(bool)
			if !ok {
				external = true
			}
			g.add(addSpec{
				value:      icon,
				components: e.Paths.EvidencePath(),
				external:   external,
				defaultExt: "png",
				role:       RoleEvidence,
				site: Site{
					Source:      SourceCaseData,
					CaseID:      kase.ID(),
					Pointer:     fmt.Sprintf("/evidence/%d/icon", i),
					FlagPointer: fmt.Sprintf("/evidence/%d/icon_external", i),
				},
			})
		}

		for j, cv := range arrayOf(evidence, "check_button_data") {
			check := asObject(cv)
			if check == nil {
				continue
			}
			kind := stringOf(check["type"])
			if kind == "" || kind == "text" {
				continue
			}
			g.add(addSpec{
				value:    stringOf(check["content"]),
				external: true,
				role:     RoleDocument,
				site: Site{
					Source:  SourceCaseData,
					CaseID:  kase.ID(),
					Pointer: fmt.Sprintf("/evidence/%d/check_button_data/%d/content", i, j),
				},
			})
		}
	}
}

// collectPlaces registers backgrounds and scenery objects for the case's
// own places plus the engine default places its frames use.
func (e *Enumerator) collectPlaces(g *Graph, kase *aao.Case, defaults *aao.DefaultData) error {
	for i, v := range arrayOf(kase.Data, "places") {
		place := asObject(v)
		if place == nil {
			continue
		}
		mk := func(rest string) Site {
			return Site{
				Source:  SourceCaseData,
				CaseID:  kase.ID(),
				Pointer: fmt.Sprintf("/places/%d/%s", i, rest),
			}
		}
		if err := e.collectPlace(g, place, mk); err != nil {
			return fmt.Errorf("place %d: %w", i, err)
		}
	}

	used := kase.UsedPlaces()
	ids := make([]string, 0, len(defaults.Places))
	for idStr := range defaults.Places {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := used[id]; ok {
			ids = append(ids, idStr)
		}
	}
	sort.Strings(ids)
	for _, idStr := range ids {
		place := asObject(defaults.Places[idStr])
		if place == nil {
			continue
		}
		mk := func(rest string) Site {
			return Site{
				Source:  SourceDefaultPlaces,
				CaseID:  kase.ID(),
				Pointer: "/" + idStr + "/" + rest,
			}
		}
		if err := e.collectPlace(g, place, mk); err != nil {
			return fmt.Errorf("default place %s: %w", idStr, err)
		}
	}
	return nil
}

func (e *Enumerator) collectPlace(g *Graph, place map[string]any, mk func(rest string) Site) error {
	if background := asObject(place["background"]); background != nil {
		// Default place backgrounds may be a plain color with no image.
		if _, hasImage := background["image"]; hasImage {
			external, ok := boolLike(background["external"])
			if !ok {
				return fmt.Errorf("background external flag is not a boolean")
			}
			site := mk("background/image")
			site.FlagPointer = mk("background/external").Pointer
			g.add(addSpec{
				value:      stringOf(background["image"]),
				components: e.Paths.BgPath(),
				external:   external,
				defaultExt: "jpg",
				role:       RoleBackground,
				site:       site,
			})
		}
	} else {
		e.logger().Warn("place without background")
	}

	for _, section := range []string{"background_objects", "foreground_objects"} {
		for i, v := range arrayOf(place, section) {
			object := asObject(v)
			if object == nil {
				continue
			}
			external, _ := boolLike(object["external"])
			if !external {
				e.logger().Warn("scenery object is not external, skipping", slog.String("section", section))
				continue
			}
			g.add(addSpec{
				value:    stringOf(object["image"]),
				external: true,
				role:     RoleBackground,
				site:     mk(fmt.Sprintf("%s/%d/image", section, i)),
			})
		}
	}
	return nil
}

func (e *Enumerator) collectPopups(g *Graph, kase *aao.Case) error {
	for i, v := range arrayOf(kase.Data, "popups") {
		popup := asObject(v)
		if popup == nil {
			continue
		}
		external, ok := popup["external"].(bool)
		if !ok {
			return fmt.Errorf("popup %d: external flag is not a boolean", i)
		}
		g.add(addSpec{
			value:      stringOf(popup["path"]),
			components: e.Paths.PopupPath(),
			external:   external,
			defaultExt: "gif",
			role:       RolePopup,
			site: Site{
				Source:      SourceCaseData,
				CaseID:      kase.ID(),
				Pointer:     fmt.Sprintf("/popups/%d/path", i),
				FlagPointer: fmt.Sprintf("/popups/%d/external", i),
			},
		})
	}
	return nil
}

func (e *Enumerator) collectAudio(g *Graph, kase *aao.Case, section string, role Role, components []string) error {
	for i, v := range arrayOf(kase.Data, section) {
		entry := asObject(v)
		if entry == nil {
			continue
		}
		external, ok := entry["external"].(bool)
		if !ok {
			return fmt.Errorf("%s %d: external flag is not a boolean", section, i)
		}
		g.add(addSpec{
			value:      stringOf(entry["path"]),
			components: components,
			external:   external,
			defaultExt: "mp3",
			role:       role,
			site: Site{
				Source:      SourceCaseData,
				CaseID:      kase.ID(),
				Pointer:     fmt.Sprintf("/%s/%d/path", section, i),
				FlagPointer: fmt.Sprintf("/%s/%d/external", section, i),
			},
		})
	}
	return nil
}

// collectVoices registers the fixed voice blip set. There are no custom
// voices, so every case needs the same files.
func (e *Enumerator) collectVoices(g *Graph) {
	for i := 1; i <= 3; i++ {
		for _, ext := range voiceExtensions {
			g.add(addSpec{
				value:      fmt.Sprintf("voice_singleblip_%d.%s", i, ext),
				components: e.Paths.VoicePath(),
				role:       RoleSound,
				site: Site{
					Source: SourceDefaultVoice,
					Key:    fmt.Sprintf("%d.%s", i, ext),
				},
			})
		}
	}
}

// collectPsycheLocks registers the lock overlays when any dialogue shows
// locks. The player requests each overlay under numbered names, so the
// bundler gets per-count aliases to provide as copies.
func (e *Enumerator) collectPsycheLocks(g *Graph, kase *aao.Case) {
	maxLocks := 0
	for _, sv := range arrayOf(kase.Data, "scenes") {
		scene := asObject(sv)
		if scene == nil {
			continue
		}
		for _, dv := range arrayOf(scene, "dialogues") {
			dialogue := asObject(dv)
			if dialogue == nil {
				continue
			}
			locks := asObject(dialogue["locks"])
			if locks == nil {
				continue
			}
			if display, ok := locks["locks_to_display"].([]any); ok && len(display) > maxLocks {
				maxLocks = len(display)
			}
		}
	}
	if maxLocks == 0 {
		return
	}
	for _, name := range lockNames {
		aliases := make([]string, 0, maxLocks)
		for i := 1; i <= maxLocks; i++ {
			aliases = append(aliases, fmt.Sprintf("%s_%d.gif", name, i))
		}
		g.add(addSpec{
			value:      name,
			components: e.Paths.LockPath(),
			defaultExt: "gif",
			role:       RoleSprite,
			aliases:    aliases,
			site: Site{
				Source: SourcePsycheLock,
				Key:    name,
			},
		})
	}
}

func arrayOf(m map[string]any, key string) []any {
	arr, _ := m[key].([]any)
	return arr
}

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case float64:
		return int64(t), true
	case int64:
		return t, true
	}
	return 0, false
}

// boolLike accepts booleans and the numeric flags older cases use.
func boolLike(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return false, false
		}
		return n == 1, true
	case float64:
		return t == 1, true
	}
	return false, false
}
