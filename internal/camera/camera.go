package camera

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/cjeanneret/FrameGo/internal/config"
)

// Camera is a perspective camera. Position, Target and the clip planes are
// mutated by framing, orbit controls and viewport resizes; View and
// Projection are recomputed on demand.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	FOV    float32 // vertical field of view, degrees
	Aspect float32 // width / height
	Near   float32
	Far    float32

	projection mgl32.Mat4
}

// New creates a camera at position looking at target.
func New(fovDeg, aspect, near, far float32, position, target mgl32.Vec3) *Camera {
	c := &Camera{
		Position: position,
		Target:   target,
		Up:       mgl32.Vec3{0, 1, 0},
		FOV:      fovDeg,
		Aspect:   aspect,
		Near:     near,
		Far:      far,
	}
	c.UpdateProjection()
	return c
}

// FromConfig creates the initial camera described by cfg.
func FromConfig(cfg config.CameraConfig) *Camera {
	return New(
		float32(cfg.FOVDeg), float32(cfg.Aspect), float32(cfg.Near), float32(cfg.Far),
		vec3(cfg.Position), vec3(cfg.Target),
	)
}

func vec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// UpdateProjection recomputes the projection matrix after FOV, Aspect,
// Near or Far changed.
func (c *Camera) UpdateProjection() {
	c.projection = mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// SetAspect sets the aspect ratio and updates the projection.
func (c *Camera) SetAspect(aspect float32) {
	c.Aspect = aspect
	c.UpdateProjection()
}

// LookAt orients the camera towards target.
func (c *Camera) LookAt(target mgl32.Vec3) {
	c.Target = target
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// Projection returns the last computed projection matrix.
func (c *Camera) Projection() mgl32.Mat4 { return c.projection }

// ViewProjection returns Projection * View.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.projection.Mul4(c.View())
}

// Distance returns the distance from the camera to its target.
func (c *Camera) Distance() float32 {
	return c.Position.Sub(c.Target).Len()
}

// State is a JSON-friendly snapshot of the camera.
type State struct {
	Position [3]float32 `json:"position"`
	Target   [3]float32 `json:"target"`
	FOV      float32    `json:"fov_deg"`
	Aspect   float32    `json:"aspect"`
	Near     float32    `json:"near"`
	Far      float32    `json:"far"`
}

// State returns a snapshot of c.
func (c *Camera) State() State {
	return State{
		Position: c.Position,
		Target:   c.Target,
		FOV:      c.FOV,
		Aspect:   c.Aspect,
		Near:     c.Near,
		Far:      c.Far,
	}
}

func (c *Camera) String() string {
	return fmt.Sprintf("camera pos=%.3v target=%.3v fov=%.1f aspect=%.3f near=%.4g far=%.4g",
		c.Position, c.Target, c.FOV, c.Aspect, c.Near, c.Far)
}
