package aao

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caseport/internal/textutil"
)

// SequenceEntry is one case in a sequence.
type SequenceEntry struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Sequence is an ordered chain of connected cases.
type Sequence struct {
	Title string          `json:"title"`
	List  []SequenceEntry `json:"list"`
}

// EntryIDs returns the case IDs in this sequence, in order.
func (s *Sequence) EntryIDs() []int64 {
	if s == nil {
		return nil
	}
	ids := make([]int64, 0, len(s.List))
	for _, entry := range s.List {
		ids = append(ids, entry.ID)
	}
	return ids
}

// CaseInfo holds the metadata of a case.
type CaseInfo struct {
	Author       string      `json:"author"`
	AuthorID     int64       `json:"author_id"`
	CanRead      bool        `json:"can_read"`
	CanWrite     bool        `json:"can_write"`
	Format       string      `json:"format"`
	ID           int64       `json:"id"`
	Language     string      `json:"language"`
	LastEditUnix json.Number `json:"last_edit_date"`
	Sequence     *Sequence   `json:"sequence"`
	Title        string      `json:"title"`
}

// LastEdit returns the last edit time, or the zero time when unknown.
func (ci *CaseInfo) LastEdit() time.Time {
	secs, err := ci.LastEditUnix.Int64()
	if err != nil {
		if f, ferr := ci.LastEditUnix.Float64(); ferr == nil {
			secs = int64(f)
		} else {
			return time.Time{}
		}
	}
	return time.Unix(secs, 0).UTC()
}

// Case is a resolved case manifest: its metadata plus the decoded case
// data (frames, profiles, evidence, and every other structured section).
// Built once by the resolver and owned by a single run.
type Case struct {
	Info CaseInfo

	// InfoDoc is the raw decoded trial information, kept alongside the
	// typed view so re-serialization preserves fields we do not model.
	InfoDoc map[string]any

	// Data is the decoded initial trial data. Rewriting mutates it
	// through JSON pointers before serialization.
	Data map[string]any
}

// ID returns the trial ID of this case.
func (c *Case) ID() int64 {
	return c.Info.ID
}

// Filename returns the sanitized directory or file stem for this case's
// output, derived from the title.
func (c *Case) Filename() string {
	if strings.TrimSpace(c.Info.Title) == "" {
		return "case-" + strconv.FormatInt(c.Info.ID, 10)
	}
	return textutil.SanitizeFileName(textutil.FoldTitle(c.Info.Title))
}

// SerializeJS renders the case back into the JavaScript variables the
// player reads at startup.
func (c *Case) SerializeJS() (string, error) {
	info, err := json.Marshal(c.InfoDoc)
	if err != nil {
		return "", fmt.Errorf("marshal trial information: %w", err)
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return "", fmt.Errorf("marshal trial data: %w", err)
	}
	return fmt.Sprintf("var trial_information = %s;\nvar initial_trial_data = %s;\n", info, data), nil
}

// UsedSprites returns the (profile ID, sprite ID) pairs referenced by the
// case's frames. Non-positive sprite IDs denote engine default sprites.
func (c *Case) UsedSprites() [][2]int64 {
	frames, _ := c.Data["frames"].([]any)
	var pairs [][2]int64
	for _, raw := range frames {
		frame, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		characters, _ := frame["characters"].([]any)
		for _, rawChar := range characters {
			char, ok := rawChar.(map[string]any)
			if !ok {
				continue
			}
			profileID, okProfile := asInt64(char["profile_id"])
			spriteID, okSprite := asInt64(char["sprite_id"])
			if !okProfile || !okSprite {
				continue
			}
			pairs = append(pairs, [2]int64{profileID, spriteID})
		}
	}
	return pairs
}

// UsedPlaces returns the place IDs referenced by the case's frames.
// Negative IDs denote engine default places.
func (c *Case) UsedPlaces() map[int64]struct{} {
	frames, _ := c.Data["frames"].([]any)
	used := make(map[int64]struct{})
	for _, raw := range frames {
		frame, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := asInt64(frame["place"]); ok {
			used[id] = struct{}{}
		}
	}
	return used
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	default:
		return 0, false
	}
}
