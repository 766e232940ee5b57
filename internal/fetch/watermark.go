package fetch

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/url"
	"strings"

	_ "image/gif" // decode support for gif-hosted assets
)

// Photobucket stamps a banner overlay along the bottom edge of hosted
// images.
const (
	watermarkHost = "photobucket.com"
	bannerHeight  = 32
)

// HostedWithWatermark reports whether the asset URL points at a host that
// serves watermarked images.
func HostedWithWatermark(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == watermarkHost || strings.HasSuffix(host, "."+watermarkHost)
}

// StripWatermark crops the banner region from the bottom edge of an image
// payload and re-encodes it. On any decode or encode failure the original
// bytes are returned untouched; a missing watermark never fails a fetch.
// GIF payloads re-encode as PNG, so the returned MIME type may differ.
func StripWatermark(body []byte, mime string, logger *slog.Logger) ([]byte, string) {
	if !strings.HasPrefix(mime, "image/") {
		return body, mime
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		logger.Warn("watermark strip: undecodable image, keeping original", slog.Any("error", err))
		return body, mime
	}
	bounds := img.Bounds()
	if bounds.Dy() <= bannerHeight*2 {
		return body, mime
	}
	cropped := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()-bannerHeight))
	draw.Draw(cropped, cropped.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	outMIME := mime
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 90})
	default:
		// png, and gif which has no stdlib re-encoder worth the palette
		// loss.
		err = png.Encode(&buf, cropped)
		outMIME = "image/png"
	}
	if err != nil {
		logger.Warn("watermark strip: re-encode failed, keeping original", slog.Any("error", err))
		return body, mime
	}
	return buf.Bytes(), outMIME
}
