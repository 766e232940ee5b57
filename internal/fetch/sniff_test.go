package fetch

import "testing"

func TestDetectMIME(t *testing.T) {
	png := pngBytes(t, 4, 4)
	tests := []struct {
		name   string
		body   []byte
		refExt string
		want   string
	}{
		{"png magic", png, "png", "image/png"},
		{"id3 header", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), "mp3", "audio/mpeg"},
		{"raw mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x64, 0x00, 0x00}, "bin", "audio/mpeg"},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), "bin", "audio/flac"},
		{"css by extension", []byte("body { color: red; }"), "css", "text/css"},
		{"script by extension", []byte("var lang = {};"), "js", "text/javascript"},
		{"plain text, unknown ext", []byte("hello there"), "bin", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.body, tt.refExt); got != tt.want {
				t.Fatalf("DetectMIME = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtensionForMIME(t *testing.T) {
	if got := ExtensionForMIME("audio/mpeg"); got != "mp3" {
		t.Fatalf("ExtensionForMIME(audio/mpeg) = %q", got)
	}
	if got := ExtensionForMIME("application/x-unknown"); got != "" {
		t.Fatalf("unknown MIME should map to empty, got %q", got)
	}
}

func TestExtensionMatchesMIME(t *testing.T) {
	if !extensionMatchesMIME("jpeg", "image/jpeg") || !extensionMatchesMIME("jpg", "image/jpeg") {
		t.Fatal("jpg aliases should match image/jpeg")
	}
	if extensionMatchesMIME("png", "image/gif") {
		t.Fatal("png must not match image/gif")
	}
	if !extensionMatchesMIME("dat", "image/gif") {
		t.Fatal("unknown extensions match any MIME")
	}
}
