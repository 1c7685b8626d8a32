package qrshare

import (
	"bytes"
	"image/png"
	"testing"
)

// TestEncodePNGProducesDecodableImage renders a card and decodes it
// back, checking the requested size survived the round trip.
func TestEncodePNGProducesDecodableImage(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, "https://example.com/s/Ab3xYz", Options{TargetPx: 400}); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 400 {
		t.Fatalf("size = %dx%d, want 400x400", b.Dx(), b.Dy())
	}
}

// TestEncodePNGDefaults exercises the zero-value option path.
func TestEncodePNGDefaults(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, "https://example.com/s/000000", Options{}); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty output")
	}
}
