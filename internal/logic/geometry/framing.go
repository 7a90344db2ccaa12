package geometry

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/debug"
)

// ErrDegenerateDirection is returned by FrameArea when the camera sits
// directly above or below the center, so there is no horizontal direction
// to back away along. The camera is left untouched.
var ErrDegenerateDirection = errors.New("camera has no horizontal offset from the framed center")

// ErrInvalidFraming is returned for non-positive sizes or field of view.
var ErrInvalidFraming = errors.New("invalid framing parameters")

// FrameArea positions cam so that a region of extent sizeToFit around center
// fills the vertical field of view, keeping the camera's current horizontal
// direction from center. Clip planes are derived from boxSize.
//
//	halfSize = sizeToFit / 2
//	distance = halfSize / tan(fov / 2)
//	position = center + normalize(xz offset) × distance
//	near     = boxSize / 100, far = boxSize × 100
func FrameArea(sizeToFit, boxSize float32, center mgl32.Vec3, cam *camera.Camera) error {
	if sizeToFit <= 0 || boxSize <= 0 || cam.FOV <= 0 || cam.FOV >= 180 {
		return ErrInvalidFraming
	}
	halfSizeToFitOnScreen := sizeToFit * 0.5
	halfFovY := mgl32.DegToRad(cam.FOV * 0.5)
	distance := halfSizeToFitOnScreen / math32.Tan(halfFovY)

	offset := cam.Position.Sub(center)
	direction := mgl32.Vec3{offset.X(), 0, offset.Z()}
	l := direction.Len()
	if l == 0 || math32.IsNaN(l) {
		debug.Verbose("FrameArea: degenerate direction, camera at %v over %v", cam.Position, center)
		return ErrDegenerateDirection
	}
	direction = direction.Mul(1 / l)

	cam.Position = center.Add(direction.Mul(distance))
	cam.Near = boxSize / 100
	cam.Far = boxSize * 100
	cam.UpdateProjection()
	cam.LookAt(center)
	debug.Value("Framing distance", distance)
	return nil
}

// Frame fits a whole box into view: the on-screen size is the box diagonal
// times fitRatio.
func Frame(box Box, fitRatio float32, cam *camera.Camera) (size float32, err error) {
	if box.IsEmpty() {
		return 0, ErrInvalidFraming
	}
	size = box.Size().Len()
	return size, FrameArea(size*fitRatio, size, box.Center(), cam)
}
