package fetch

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"

	"caseport/internal/textutil"
)

// Namer assigns unique local filenames to downloaded assets. Names derive
// from the URL basename so output directories stay readable; collisions
// between distinct URLs get a short stable hash suffix. Safe for
// concurrent use.
type Namer struct {
	mu    sync.Mutex
	taken map[string]struct{}
}

func NewNamer() *Namer {
	return &Namer{taken: make(map[string]struct{})}
}

// Name returns the local filename for the given canonical URL. Calling it
// twice with the same URL in one batch yields two distinct names; callers
// dedup by URL before naming.
func (n *Namer) Name(rawURL string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	stem, ext := splitURLName(rawURL)
	name := stem + "." + ext
	if _, clash := n.taken[name]; clash {
		name = fmt.Sprintf("%s-%s.%s", stem, urlHash(rawURL), ext)
	}
	n.taken[name] = struct{}{}
	return name
}

// WithExtension re-derives a name with the sniffed extension, keeping the
// stem and collision behavior stable.
func (n *Namer) WithExtension(name, rawURL, ext string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	stem := name
	if i := strings.LastIndex(name, "."); i > 0 {
		stem = name[:i]
	}
	renamed := stem + "." + ext
	if renamed == name {
		return name
	}
	if _, clash := n.taken[renamed]; clash {
		renamed = fmt.Sprintf("%s-%s.%s", stem, urlHash(rawURL), ext)
	}
	n.taken[renamed] = struct{}{}
	return renamed
}

// splitURLName extracts a sanitized stem and query-stripped extension
// from a URL's last path segment.
func splitURLName(rawURL string) (string, string) {
	base := rawURL
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	stem, ext := base, ""
	if i := strings.LastIndex(base, "."); i > 0 {
		stem, ext = base[:i], base[i+1:]
	}
	stem = textutil.SanitizeFileName(stem)
	if stem == "" {
		stem = "asset"
	}
	ext = strings.ToLower(textutil.SanitizeFileName(ext))
	if ext == "" {
		ext = "bin"
	}
	return stem, ext
}

func urlHash(rawURL string) string {
	h := fnv.New32a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("%08x", h.Sum32())
}
