package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Orientation is a fixed rotation applied to captured frames
type Orientation string

const (
	OrientationNone Orientation = "none"
	OrientationCW90 Orientation = "cw90"
	OrientationCCW  Orientation = "ccw90"
	Orientation180  Orientation = "180"
)

// ParseOrientation validates an orientation name, empty means none
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(s); o {
	case "":
		return OrientationNone, nil
	case OrientationNone, OrientationCW90, OrientationCCW, Orientation180:
		return o, nil
	}
	return "", fmt.Errorf("invalid orientation: %s (use 'none', 'cw90', 'ccw90' or '180')", s)
}

func (o Orientation) rotateFlag() (gocv.RotateFlag, bool) {
	switch o {
	case OrientationCW90:
		return gocv.Rotate90Clockwise, true
	case OrientationCCW:
		return gocv.Rotate90CounterClockwise, true
	case Orientation180:
		return gocv.Rotate180Clockwise, true
	}
	return 0, false
}

func (o Orientation) swapsAxes() bool {
	return o == OrientationCW90 || o == OrientationCCW
}
