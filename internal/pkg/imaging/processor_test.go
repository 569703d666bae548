package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// webpFixture is a 1x1 lossy WebP (RIFF/VP8) image.
var webpFixture = []byte{
	0x52, 0x49, 0x46, 0x46, 0x24, 0x00, 0x00, 0x00,
	0x57, 0x45, 0x42, 0x50, 0x56, 0x50, 0x38, 0x20,
	0x18, 0x00, 0x00, 0x00, 0x30, 0x01, 0x00, 0x9d,
	0x01, 0x2a, 0x01, 0x00, 0x01, 0x00, 0x02, 0x00,
	0x34, 0x25, 0xa4, 0x00, 0x03, 0x70, 0x00, 0xfe,
	0xfb, 0x94, 0x00, 0x00,
}

func TestProcessWebP(t *testing.T) {
	p := NewProcessor(DefaultConfig())

	result, err := p.Process(bytes.NewReader(webpFixture))
	if err != nil {
		t.Fatalf("webp upload must decode: %v", err)
	}
	if result.Width != 1 || result.Height != 1 {
		t.Fatalf("expected 1x1, got %dx%d", result.Width, result.Height)
	}
	// No webp encoder exists, so the stored bytes are JPEG
	if result.ContentType != "image/jpeg" {
		t.Fatalf("webp must be re-encoded as jpeg, got %q", result.ContentType)
	}
	if _, format, err := image.Decode(bytes.NewReader(result.Data)); err != nil || format != "jpeg" {
		t.Fatalf("stored bytes must be valid jpeg, got format %q err %v", format, err)
	}
}

func TestProcessPNGKeepsFormat(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	p := NewProcessor(DefaultConfig())
	result, err := p.Process(&buf)
	if err != nil {
		t.Fatalf("process png: %v", err)
	}
	if result.ContentType != "image/png" {
		t.Fatalf("png must stay png, got %q", result.ContentType)
	}
}

func TestProcessRejectsGarbage(t *testing.T) {
	p := NewProcessor(DefaultConfig())
	if _, err := p.Process(bytes.NewReader([]byte("not an image at all"))); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateType(t *testing.T) {
	cases := []struct {
		filename string
		want     bool
	}{
		{"pet.jpg", true},
		{"pet.JPEG", true},
		{"pet.png", true},
		{"pet.gif", true},
		{"pet.webp", true},
		{"pet.bmp", false},
		{"pet.mp4", false},
		{"pet", false},
	}
	for _, tc := range cases {
		if got := ValidateType(tc.filename); got != tc.want {
			t.Errorf("ValidateType(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}
