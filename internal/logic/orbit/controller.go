package orbit

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/cjeanneret/FrameGo/internal/camera"
	"github.com/cjeanneret/FrameGo/internal/debug"
)

// polarEpsilon keeps the camera off the poles, where the up vector and the
// view direction would be parallel.
const polarEpsilon = 1e-3

// Controller orbits a camera around a target point.
// It's the layer between user input (drag, wheel, HTTP requests)
// and the camera itself.
type Controller struct {
	cam *camera.Camera

	MinDistance float32
	MaxDistance float32
}

func NewController(cam *camera.Camera) *Controller {
	return &Controller{
		cam:         cam,
		MinDistance: 0,
		MaxDistance: math32.Inf(1),
	}
}

// Target returns the point the camera orbits around.
func (c *Controller) Target() mgl32.Vec3 { return c.cam.Target }

// SetTarget moves the orbit center without moving the camera.
func (c *Controller) SetTarget(t mgl32.Vec3) {
	c.cam.LookAt(t)
}

// Update re-aims the camera at the target and clamps its distance.
func (c *Controller) Update() {
	offset := c.cam.Position.Sub(c.cam.Target)
	d := offset.Len()
	if d == 0 {
		return
	}
	if clamped := c.clamp(d); clamped != d {
		c.cam.Position = c.cam.Target.Add(offset.Mul(clamped / d))
	}
	c.cam.LookAt(c.cam.Target)
}

func (c *Controller) clamp(d float32) float32 {
	return math32.Max(c.MinDistance, math32.Min(c.MaxDistance, d))
}

// Rotate turns the camera around the target: azimuth about the world Y axis,
// polar from the Y axis. The polar angle stays within (0, 180) degrees.
func (c *Controller) Rotate(azimuthDeg, polarDeg float32) {
	offset := c.cam.Position.Sub(c.cam.Target)
	r, theta, phi := toSpherical(offset)
	if r == 0 {
		return
	}
	theta += mgl32.DegToRad(azimuthDeg)
	phi += mgl32.DegToRad(polarDeg)
	phi = mgl32.Clamp(phi, polarEpsilon, math32.Pi-polarEpsilon)
	c.cam.Position = c.cam.Target.Add(fromSpherical(r, theta, phi))
	debug.Trace("orbit rotate az=%.1f polar=%.1f -> %v", azimuthDeg, polarDeg, c.cam.Position)
	c.Update()
}

// Zoom scales the distance to the target by factor; factor < 1 moves closer.
// The result is clamped to [MinDistance, MaxDistance].
func (c *Controller) Zoom(factor float32) {
	if factor <= 0 {
		return
	}
	offset := c.cam.Position.Sub(c.cam.Target)
	d := offset.Len()
	if d == 0 {
		return
	}
	nd := c.clamp(d * factor)
	c.cam.Position = c.cam.Target.Add(offset.Mul(nd / d))
	debug.Trace("orbit zoom x%.3f -> distance %.3f", factor, nd)
	c.Update()
}

// toSpherical returns radius, azimuth around +Y measured from +Z,
// and polar angle from +Y.
func toSpherical(v mgl32.Vec3) (r, theta, phi float32) {
	r = v.Len()
	if r == 0 {
		return 0, 0, 0
	}
	theta = math32.Atan2(v.X(), v.Z())
	phi = math32.Acos(mgl32.Clamp(v.Y()/r, -1, 1))
	return r, theta, phi
}

func fromSpherical(r, theta, phi float32) mgl32.Vec3 {
	s := math32.Sin(phi) * r
	return mgl32.Vec3{s * math32.Sin(theta), math32.Cos(phi) * r, s * math32.Cos(theta)}
}
