package imagemeta

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func writeTestJPEG(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "test.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	path := writeTestJPEG(t, 320, 200)

	info, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if info.Width != 320 || info.Height != 200 {
		t.Errorf("Expected 320x200, got %dx%d", info.Width, info.Height)
	}
	// No EXIF payload: defaults, not errors
	if info.Meta.Orientation != 1 {
		t.Errorf("Expected default orientation 1, got %d", info.Meta.Orientation)
	}
	if info.Meta.ExifDatetime.Valid || info.Meta.FNumber.Valid || info.Meta.Latitude.Valid {
		t.Error("Expected absent EXIF fields to stay invalid")
	}
}

func TestExtractErrors(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("Expected error for missing file")
	}

	garbage := filepath.Join(t.TempDir(), "garbage.jpg")
	if err := os.WriteFile(garbage, []byte("not an image at all"), 0o644); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}
	if _, err := Extract(garbage); err == nil {
		t.Error("Expected error for undecodable file")
	}
}

func TestTransform(t *testing.T) {
	tests := []struct {
		orientation int
		angle       float64
		flip        bool
	}{
		{1, 0, false},
		{2, 0, true},
		{3, 180, false},
		{4, 180, true},
		{5, 270, true},
		{6, 270, false},
		{7, 90, true},
		{8, 90, false},
		{0, 0, false},
		{9, 0, false},
	}
	for _, tt := range tests {
		angle, flip := Transform(tt.orientation)
		if angle != tt.angle || flip != tt.flip {
			t.Errorf("Transform(%d) = (%v, %v), want (%v, %v)",
				tt.orientation, angle, flip, tt.angle, tt.flip)
		}
	}
}

func TestUpright(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))

	// Orientation 1 leaves the image alone
	out := Upright(img, 1)
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 2 {
		t.Errorf("Expected 4x2, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}

	// Orientation 6 swaps the axes
	out = Upright(img, 6)
	if out.Bounds().Dx() != 2 || out.Bounds().Dy() != 4 {
		t.Errorf("Expected 2x4 after rotation, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}

	// Orientation 3 keeps the axes
	out = Upright(img, 3)
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 2 {
		t.Errorf("Expected 4x2 after 180, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}
