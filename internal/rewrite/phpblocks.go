package rewrite

import (
	"fmt"
	"log/slog"
	"regexp"
)

var phpBlockPattern = regexp.MustCompile(`(?s)<\?php(.*?)\?>`)

// phpBlock is one expected server-side block in the player markup,
// identified by a detector run against the block's source.
type phpBlock struct {
	id       string
	detector *regexp.Regexp
	// replacement substitutes the whole block, delimiters included.
	replacement string
}

// Detectors for the player's server-side blocks. A block none of these
// match is removed; the site adding one usually means the player format
// moved ahead of this tool.
var (
	commonRenderDetector = regexp.MustCompile(`include\('common_render\.php'\);`)
	languageDetector     = regexp.MustCompile(`echo language_backend\(.*\)`)
	scriptDetector       = regexp.MustCompile(`include\('bridge\.js\.php'\);`)
	titleDetector        = regexp.MustCompile(`echo 'Ace Attorney Online - Trial Player \(Loading\)';`)
	headingDetector      = regexp.MustCompile(`echo 'Loading trial \.\.\.';`)
)

// transformPHPBlocks replaces each expected server-side block in the
// markup with its offline substitute. Every expected block substitutes at
// most once; unexpected blocks are removed with a warning.
func transformPHPBlocks(source string, blocks []phpBlock, logger *slog.Logger) (string, error) {
	matches := phpBlockPattern.FindAllStringSubmatchIndex(source, -1)
	if len(matches) == 0 {
		logger.Warn("no server-side blocks found in player markup")
		return source, nil
	}

	visited := make(map[int]bool, len(blocks))
	var out []byte
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		text := source[m[2]:m[3]]

		matched := -1
		for i, block := range blocks {
			if visited[i] || !block.detector.MatchString(text) {
				continue
			}
			if matched >= 0 {
				return "", fmt.Errorf("server-side block at %d matches both %q and %q, player format changed",
					start, blocks[matched].id, block.id)
			}
			matched = i
		}

		replacement := ""
		if matched >= 0 {
			visited[matched] = true
			replacement = blocks[matched].replacement
		} else {
			logger.Warn("unexpected server-side block removed",
				slog.Int("start", start), slog.Int("end", end))
		}

		out = append(out, source[last:start]...)
		out = append(out, replacement...)
		last = end
	}
	out = append(out, source[last:]...)
	return string(out), nil
}
