// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera provides the view/projection matrices for a frame and the
// billboard orientation derived from them. All sprite rendering shares
// one camera per pass.
type Camera struct {
	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3
	fovY     float32
	aspect   float32
	near     float32
	far      float32

	view       mgl32.Mat4
	projection mgl32.Mat4
}

func NewCamera(width, height uint32, fovY, near, far float32) *Camera {
	c := &Camera{
		position: mgl32.Vec3{0, 10, 10},
		target:   mgl32.Vec3{0, 0, 0},
		up:       mgl32.Vec3{0, 1, 0},
		fovY:     fovY,
		aspect:   float32(width) / float32(height),
		near:     near,
		far:      far,
	}
	c.update()
	return c
}

func (c *Camera) LookAt(eye, target mgl32.Vec3) {
	c.position = eye
	c.target = target
	c.update()
}

func (c *Camera) SetViewport(width, height uint32) {
	c.aspect = float32(width) / float32(height)
	c.update()
}

func (c *Camera) update() {
	c.view = mgl32.LookAtV(c.position, c.target, c.up)
	c.projection = mgl32.Perspective(c.fovY, c.aspect, c.near, c.far)
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.projection.Mul4(c.view)
}

func (c *Camera) NearPlane() float32 {
	return c.near
}

// BillboardMatrix builds the world matrix for a camera-facing quad of the
// given size centered at position, shifted by origin in billboard-local
// units.
func (c *Camera) BillboardMatrix(position, origin mgl32.Vec3, size mgl32.Vec2) mgl32.Mat4 {
	// The rows of the view rotation are the camera basis vectors in world
	// space.
	right := mgl32.Vec3{c.view.At(0, 0), c.view.At(0, 1), c.view.At(0, 2)}
	up := mgl32.Vec3{c.view.At(1, 0), c.view.At(1, 1), c.view.At(1, 2)}
	forward := right.Cross(up)

	rotation := mgl32.Mat4FromCols(
		right.Vec4(0),
		up.Vec4(0),
		forward.Vec4(0),
		mgl32.Vec4{0, 0, 0, 1},
	)
	return mgl32.Translate3D(position.X(), position.Y(), position.Z()).
		Mul4(rotation).
		Mul4(mgl32.Scale3D(size.X(), size.Y(), 1)).
		Mul4(mgl32.Translate3D(-origin.X(), -origin.Y(), -origin.Z()))
}

// Warp magnitudes are proportional to the billboard's world-space extent.
// The factors keep them inside the unit range the billboard shader
// normalizes its per-vertex weights to.
const (
	depthOffsetFactor = 0.5
	curvatureFactor   = 0.8
)

// DepthOffsetAndCurvature derives the per-instance warp magnitudes from
// the world matrix's scale columns.
func (c *Camera) DepthOffsetAndCurvature(world mgl32.Mat4, scaleX, scaleY float32) (depthOffset, curvature float32) {
	width := world.Col(0).Vec3().Len() * scaleX
	height := world.Col(1).Vec3().Len() * scaleY
	return -height * depthOffsetFactor, width * curvatureFactor
}

// Direction returns the camera's yaw octant, 0..7, used to pick the
// sprite direction that faces the viewer.
func (c *Camera) Direction() int {
	forward := c.target.Sub(c.position)
	yaw := math.Atan2(float64(forward.X()), float64(forward.Z()))
	octant := int(math.Round(yaw/(math.Pi/4))) % 8
	if octant < 0 {
		octant += 8
	}
	return octant
}
