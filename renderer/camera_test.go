// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraDirection(t *testing.T) {
	c := NewCamera(16, 16, mgl32.DegToRad(60), 0.5, 100)

	cases := []struct {
		eye  mgl32.Vec3
		want int
	}{
		{mgl32.Vec3{0, 5, -10}, 0},
		{mgl32.Vec3{-10, 5, -10}, 1},
		{mgl32.Vec3{-10, 5, 0}, 2},
		{mgl32.Vec3{-10, 5, 10}, 3},
		{mgl32.Vec3{0, 5, 10}, 4},
		{mgl32.Vec3{10, 5, 10}, 5},
		{mgl32.Vec3{10, 5, 0}, 6},
		{mgl32.Vec3{10, 5, -10}, 7},
	}
	for _, tc := range cases {
		c.LookAt(tc.eye, mgl32.Vec3{0, 0, 0})
		assert.Equal(t, tc.want, c.Direction(), "eye %v", tc.eye)
	}
}

func TestBillboardMatrix(t *testing.T) {
	c := NewCamera(16, 16, mgl32.DegToRad(60), 0.5, 100)
	// Looking down -z, the billboard plane is the world xy plane.
	c.LookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0})

	world := c.BillboardMatrix(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{}, mgl32.Vec2{2, 3})
	got := world.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	assert.InDelta(t, 3.0, got.X(), 1e-5)
	assert.InDelta(t, 5.0, got.Y(), 1e-5)
	assert.InDelta(t, 3.0, got.Z(), 1e-5)

	// The origin shifts the quad in billboard-local units before scaling.
	shifted := c.BillboardMatrix(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{1, 0, 0}, mgl32.Vec2{2, 3})
	gotShifted := shifted.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	assert.InDelta(t, 1.0, gotShifted.X(), 1e-5)
	assert.InDelta(t, 5.0, gotShifted.Y(), 1e-5)
}

func TestDepthOffsetAndCurvature(t *testing.T) {
	c := NewCamera(16, 16, mgl32.DegToRad(60), 0.5, 100)
	c.LookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0})

	world := c.BillboardMatrix(mgl32.Vec3{}, mgl32.Vec3{}, mgl32.Vec2{2, 3})
	depthOffset, curvature := c.DepthOffsetAndCurvature(world, 1, 1)
	assert.InDelta(t, -3*depthOffsetFactor, depthOffset, 1e-5, "depth offset follows the billboard height")
	assert.InDelta(t, 2*curvatureFactor, curvature, 1e-5, "curvature follows the billboard width")
}
