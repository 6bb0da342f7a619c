package domain

import "database/sql"

// Orientation is the display category a normalized image lands in. It doubles
// as the terminal directory name under the pictures root.
type Orientation string

const (
	OrientationLandscape Orientation = "Landscape"
	OrientationPortrait  Orientation = "Portrait"
	OrientationSquare    Orientation = "Square"
)

// Classify picks the orientation category from pixel dimensions.
func Classify(width, height int) Orientation {
	switch {
	case width > height:
		return OrientationLandscape
	case height > width:
		return OrientationPortrait
	default:
		return OrientationSquare
	}
}

// NullString builds a valid sql.NullString, mapping "" to NULL.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NullFloat builds a valid sql.NullFloat64.
func NullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

// NullInt builds a valid sql.NullInt64.
func NullInt(i int64) sql.NullInt64 {
	return sql.NullInt64{Int64: i, Valid: true}
}
