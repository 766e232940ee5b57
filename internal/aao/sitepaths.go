package aao

import "fmt"

// SitePaths holds the directory layout of the origin server, as published
// by its bridge script. Asset URL construction for default resources goes
// through these paths.
type SitePaths struct {
	BgSubdir            string `json:"bg_subdir"`
	CacheDir            string `json:"cache_dir"`
	CSSDir              string `json:"css_dir"`
	DefaultPlacesSubdir string `json:"defaultplaces_subdir"`
	EvidenceSubdir      string `json:"evidence_subdir"`
	ForumPath           string `json:"forum_path"`
	IconSubdir          string `json:"icon_subdir"`
	JSDir               string `json:"js_dir"`
	LangDir             string `json:"lang_dir"`
	LocksSubdir         string `json:"locks_subdir"`
	MusicDir            string `json:"music_dir"`
	PictureDir          string `json:"picture_dir"`
	PopupsSubdir        string `json:"popups_subdir"`
	SiteName            string `json:"site_name"`
	SoundsDir           string `json:"sounds_dir"`
	StartupSubdir       string `json:"startup_subdir"`
	StillSubdir         string `json:"still_subdir"`
	TalkingSubdir       string `json:"talking_subdir"`
	TrialBackupsDir     string `json:"trialdata_backups_dir"`
	TrialDeletedDir     string `json:"trialdata_deleted_dir"`
	TrialDataDir        string `json:"trialdata_dir"`
	VoicesDir           string `json:"voices_dir"`
}

// Subdir returns the picture subdirectory for the given resource kind.
func (p *SitePaths) Subdir(kind string) (string, error) {
	switch kind {
	case "bg":
		return p.BgSubdir, nil
	case "defaultplaces":
		return p.DefaultPlacesSubdir, nil
	case "evidence":
		return p.EvidenceSubdir, nil
	case "icon":
		return p.IconSubdir, nil
	case "locks":
		return p.LocksSubdir, nil
	case "popups":
		return p.PopupsSubdir, nil
	case "startup":
		return p.StartupSubdir, nil
	case "still":
		return p.StillSubdir, nil
	case "talking":
		return p.TalkingSubdir, nil
	default:
		return "", fmt.Errorf("unknown picture subdirectory %q", kind)
	}
}

// SpritePath returns the path components for default sprites of the given
// kind (talking, still, startup) and character base.
func (p *SitePaths) SpritePath(kind, base string) ([]string, error) {
	sub, err := p.Subdir(kind)
	if err != nil {
		return nil, err
	}
	return []string{p.PictureDir, sub, base}, nil
}

// IconPath returns the path components for default profile icons.
func (p *SitePaths) IconPath() []string { return []string{p.PictureDir, p.IconSubdir} }

// EvidencePath returns the path components for default evidence icons.
func (p *SitePaths) EvidencePath() []string { return []string{p.PictureDir, p.EvidenceSubdir} }

// BgPath returns the path components for default backgrounds.
func (p *SitePaths) BgPath() []string { return []string{p.PictureDir, p.BgSubdir} }

// PopupPath returns the path components for default popups.
func (p *SitePaths) PopupPath() []string { return []string{p.PictureDir, p.PopupsSubdir} }

// MusicPath returns the path components for default music.
func (p *SitePaths) MusicPath() []string { return []string{p.MusicDir} }

// SoundPath returns the path components for default sounds.
func (p *SitePaths) SoundPath() []string { return []string{p.SoundsDir} }

// VoicePath returns the path components for voice blips.
func (p *SitePaths) VoicePath() []string { return []string{p.VoicesDir} }

// LockPath returns the path components for psyche-lock overlays.
func (p *SitePaths) LockPath() []string { return []string{p.PictureDir, p.LocksSubdir} }

// DefaultIconFile is the fallback profile icon served by the origin.
const DefaultIconFile = "Inconnu.png"
