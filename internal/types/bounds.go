package types

import "fmt"

// ViewBounds is the screen rectangle of the active view in device pixels.
// Width and Height are zero when only the position is being synchronized.
type ViewBounds struct {
	Left   int `json:"left" validate:"gte=-32768,lte=32767"`
	Top    int `json:"top" validate:"gte=-32768,lte=32767"`
	Width  int `json:"width,omitempty" validate:"gte=0,lte=32767"`
	Height int `json:"height,omitempty" validate:"gte=0,lte=32767"`
}

// HasSize reports whether the bounds carry a width and height.
func (b ViewBounds) HasSize() bool {
	return b.Width > 0 && b.Height > 0
}

func (b ViewBounds) String() string {
	if b.HasSize() {
		return fmt.Sprintf("%dx%d+%d+%d", b.Width, b.Height, b.Left, b.Top)
	}
	return fmt.Sprintf("+%d+%d", b.Left, b.Top)
}

// Offsets is an explicit content-area position in CSS pixels, used to skip layout measurement.
type Offsets struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Rect is a measured layout rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the point lies inside the rectangle (right and bottom edges excluded).
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Margins are per-edge adjustments applied to the measured content area.
type Margins struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}
