package fetch

import (
	"bytes"
	"net/http"
	"strings"
)

// Extension fallbacks for MIME types http.DetectContentType reports.
var mimeExtensions = map[string]string{
	"image/png":       "png",
	"image/gif":       "gif",
	"image/jpeg":      "jpg",
	"image/webp":      "webp",
	"image/bmp":       "bmp",
	"image/svg+xml":   "svg",
	"audio/mpeg":      "mp3",
	"audio/wave":      "wav",
	"audio/aiff":      "aiff",
	"application/ogg": "ogg",
	"audio/flac":      "flac",
	"text/css":        "css",
	"text/javascript": "js",
	"text/html":       "html",
}

// MIME types implied by reference extensions, used both as a sniffing
// fallback and to detect extension/content mismatches.
var extensionMIMEs = map[string]string{
	"png":  "image/png",
	"gif":  "image/gif",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wave",
	"ogg":  "application/ogg",
	"opus": "application/ogg",
	"flac": "audio/flac",
	"css":  "text/css",
	"js":   "text/javascript",
	"html": "text/html",
}

// DetectMIME sniffs the payload's content type. The reference extension
// is consulted only when sniffing is inconclusive: text payloads (CSS and
// scripts both sniff as text/plain) and unknown binary formats.
func DetectMIME(body []byte, refExt string) string {
	mime := http.DetectContentType(body)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if mime == "application/octet-stream" {
		if audio := sniffAudio(body); audio != "" {
			return audio
		}
	}
	if mime == "application/octet-stream" || mime == "text/plain" {
		if byExt, ok := extensionMIMEs[strings.ToLower(refExt)]; ok {
			return byExt
		}
	}
	return mime
}

// sniffAudio covers audio signatures the standard sniffer misses: raw MP3
// frames without an ID3 header, and FLAC.
func sniffAudio(body []byte) string {
	if len(body) < 4 {
		return ""
	}
	if bytes.HasPrefix(body, []byte("fLaC")) {
		return "audio/flac"
	}
	// MPEG audio frame sync: eleven set bits.
	if body[0] == 0xFF && body[1]&0xE0 == 0xE0 {
		return "audio/mpeg"
	}
	return ""
}

// ExtensionForMIME returns the conventional extension for a sniffed MIME
// type, or "" when unknown.
func ExtensionForMIME(mime string) string {
	return mimeExtensions[mime]
}

// extensionMatchesMIME reports whether the extension plausibly describes
// content of the given MIME type. Unknown extensions match everything.
func extensionMatchesMIME(ext, mime string) bool {
	implied, ok := extensionMIMEs[strings.ToLower(ext)]
	if !ok {
		return true
	}
	return implied == mime
}
