package imagemeta

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/dkrugman/pf-aspect/internal/domain"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// exifTimeLayout is the timestamp format EXIF writers use.
const exifTimeLayout = "2006:01:02 15:04:05"

// Info is everything extracted from one media file's headers. Width and
// Height are display dimensions: for rotated orientations (5-8) the raw
// pixel axes are swapped.
type Info struct {
	Width  int
	Height int
	Meta   domain.Metadata
}

// Extract reads dimensions and EXIF metadata from a file on disk. A file
// without EXIF yields defaults (orientation 1, NULL fields) and is not an
// error; a file whose dimensions cannot be determined at all is.
func Extract(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info := &Info{Meta: domain.Metadata{Orientation: 1}}

	cfg, _, cfgErr := image.DecodeConfig(f)
	if cfgErr == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}

	decoded, exifErr := exif.Decode(f)
	if exifErr != nil {
		if cfgErr != nil {
			return nil, fmt.Errorf("failed to measure %s: %w", path, cfgErr)
		}
		return info, nil
	}
	fill(info, decoded)

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("failed to measure %s: %w", path, cfgErr)
	}
	if rotated(info.Meta.Orientation) {
		info.Width, info.Height = info.Height, info.Width
	}
	return info, nil
}

func fill(info *Info, decoded *exif.Exif) {
	m := &info.Meta

	if orientation, err := getInt(decoded, exif.Orientation); err == nil {
		m.Orientation = orientation
	}
	if info.Width == 0 || info.Height == 0 {
		// Undecodable container; fall back to the EXIF pixel dimensions.
		if w, err := getInt(decoded, exif.PixelXDimension); err == nil {
			info.Width = w
		}
		if h, err := getInt(decoded, exif.PixelYDimension); err == nil {
			info.Height = h
		}
	}

	if taken, err := getTime(decoded, exif.DateTimeOriginal); err == nil {
		m.ExifDatetime = domain.NullFloat(float64(taken.Unix()))
	} else if taken, err := getTime(decoded, exif.DateTime); err == nil {
		m.ExifDatetime = domain.NullFloat(float64(taken.Unix()))
	}

	if f, err := getRat(decoded, exif.FNumber); err == nil {
		m.FNumber = domain.NullFloat(f)
	}
	if s, err := getRatString(decoded, exif.ExposureTime); err == nil {
		m.ExposureTime = domain.NullString(s)
	}
	if iso, err := getInt(decoded, exif.ISOSpeedRatings); err == nil {
		m.ISO = domain.NullFloat(float64(iso))
	}
	if f, err := getRat(decoded, exif.FocalLength); err == nil {
		m.FocalLength = domain.NullString(fmt.Sprintf("%g", f))
	}
	if s, err := getString(decoded, exif.Make); err == nil {
		m.Make = domain.NullString(s)
	}
	if s, err := getString(decoded, exif.Model); err == nil {
		m.Model = domain.NullString(s)
	}
	if s, err := getString(decoded, exif.LensModel); err == nil {
		m.Lens = domain.NullString(s)
	}
	if s, err := getString(decoded, exif.ImageDescription); err == nil {
		m.Caption = domain.NullString(s)
	}

	if lat, lon, err := decoded.LatLong(); err == nil {
		m.Latitude = domain.NullFloat(lat)
		m.Longitude = domain.NullFloat(lon)
	}
}

func rotated(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

func getInt(decoded *exif.Exif, name exif.FieldName) (int, error) {
	tag, err := decoded.Get(name)
	if err != nil {
		return 0, err
	}
	return tag.Int(0)
}

func getString(decoded *exif.Exif, name exif.FieldName) (string, error) {
	tag, err := decoded.Get(name)
	if err != nil {
		return "", err
	}
	return tag.StringVal()
}

func getTime(decoded *exif.Exif, name exif.FieldName) (time.Time, error) {
	s, err := getString(decoded, name)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(exifTimeLayout, s, time.Local)
}

func getRat(decoded *exif.Exif, name exif.FieldName) (float64, error) {
	tag, err := decoded.Get(name)
	if err != nil {
		return 0, err
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return 0, err
	}
	if den == 0 {
		return 0, fmt.Errorf("zero denominator in %s", name)
	}
	return float64(num) / float64(den), nil
}

// getRatString renders a rational the way photographers read it: "1/250"
// for fractions, a bare number otherwise.
func getRatString(decoded *exif.Exif, name exif.FieldName) (string, error) {
	tag, err := decoded.Get(name)
	if err != nil {
		return "", err
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return "", err
	}
	if den == 0 {
		return "", fmt.Errorf("zero denominator in %s", name)
	}
	if den == 1 {
		return fmt.Sprintf("%d", num), nil
	}
	return fmt.Sprintf("%d/%d", num, den), nil
}

// Transform maps an EXIF orientation to the counter-clockwise rotation angle
// and horizontal flip that upright the pixels.
func Transform(orientation int) (angle float64, flip bool) {
	switch orientation {
	case 2:
		return 0, true
	case 3:
		return 180, false
	case 4:
		return 180, true
	case 5:
		return 270, true
	case 6:
		return 270, false
	case 7:
		return 90, true
	case 8:
		return 90, false
	default:
		return 0, false
	}
}

// Upright rotates and flips a decoded image so its pixels read top-left
// first, regardless of how the camera was held.
func Upright(img image.Image, orientation int) image.Image {
	angle, flip := Transform(orientation)
	if angle != 0 {
		img = imaging.Rotate(img, angle, color.Black)
	}
	if flip {
		img = imaging.FlipH(img)
	}
	return img
}
