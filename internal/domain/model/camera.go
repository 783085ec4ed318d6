package model

import (
	"fmt"
	"math"

	"video-pipeline/internal/domain"
)

// CameraAxisLimit bounds every camera axis to [-10, 10].
const CameraAxisLimit = 10.0

// CameraControl holds the six camera axes.
//
//	horizontal: slide left(-)/right(+)
//	vertical:   slide down(-)/up(+)
//	pan:        pitch down(-)/up(+)
//	tilt:       yaw left(-)/right(+)
//	roll:       counter-clockwise(-)/clockwise(+)
//	zoom:       narrow(-)/wide(+)
type CameraControl struct {
	Horizontal float64 `json:"horizontal" yaml:"horizontal"`
	Vertical   float64 `json:"vertical" yaml:"vertical"`
	Pan        float64 `json:"pan" yaml:"pan"`
	Tilt       float64 `json:"tilt" yaml:"tilt"`
	Roll       float64 `json:"roll" yaml:"roll"`
	Zoom       float64 `json:"zoom" yaml:"zoom"`
}

func (c CameraControl) axes() [6]float64 {
	return [6]float64{c.Horizontal, c.Vertical, c.Pan, c.Tilt, c.Roll, c.Zoom}
}

// HasMovement is true when at least one axis is non-zero. Providers reject
// all-zero control blocks, so a camera without movement is omitted.
func (c CameraControl) HasMovement() bool {
	for _, v := range c.axes() {
		if v != 0 {
			return true
		}
	}
	return false
}

func (c CameraControl) Validate() error {
	names := [6]string{"horizontal", "vertical", "pan", "tilt", "roll", "zoom"}
	for i, v := range c.axes() {
		if math.IsNaN(v) || math.Abs(v) > CameraAxisLimit {
			return fmt.Errorf("%w: camera %s=%v outside ±%v", domain.ErrValidation, names[i], v, CameraAxisLimit)
		}
	}
	return nil
}

// Movement returns c when it has movement and nil otherwise.
func (c *CameraControl) Movement() *CameraControl {
	if c == nil || !c.HasMovement() {
		return nil
	}
	return c
}
