// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/safeish"
)

func TestVertexData(t *testing.T) {
	instance := renderer.InstanceRecord{
		TopLeft:     mgl32.Vec2{-1, 2},
		BottomLeft:  mgl32.Vec2{-1, 0},
		TopRight:    mgl32.Vec2{1, 2},
		BottomRight: mgl32.Vec2{1, 0},
		DepthExtra:  0.003,
	}

	corners := map[uint32]mgl32.Vec2{
		0: instance.TopLeft,
		1: instance.BottomLeft,
		2: instance.TopRight,
		3: instance.TopRight,
		4: instance.BottomLeft,
		5: instance.BottomRight,
	}
	uvs := map[uint32]mgl32.Vec2{
		0: {0, 0},
		1: {0, 1},
		2: {1, 0},
		3: {1, 0},
		4: {0, 1},
		5: {1, 1},
	}
	for i := uint32(0); i < 6; i++ {
		v := vertex_data(i, &instance)
		corner := corners[i]
		assert.Equal(t, corner.Vec3(1), v.Position, "vertex %d position", i)
		assert.Equal(t, uvs[i], v.UV, "vertex %d uv", i)
		assert.Equal(t, corner.Y()/2+instance.DepthExtra, v.DepthMultiplier, "vertex %d depth multiplier", i)
		assert.Equal(t, corner.X(), v.CurvatureMultiplier, "vertex %d curvature multiplier", i)
	}
}

func TestRotatedTextureCoordinates(t *testing.T) {
	input := fragmentInput{textureCoordinates: mgl32.Vec2{1, 0.5}}
	assert.Equal(t, mgl32.Vec2{1, 0.5}, rotated_texture_coordinates(input), "zero angle must not rotate")

	input.angle = math.Pi / 2
	got := rotated_texture_coordinates(input)
	assert.InDelta(t, 0.5, got.X(), 1e-6)
	assert.InDelta(t, 0.0, got.Y(), 1e-6)

	// Rotating a far corner pushes coordinates outside the unit square;
	// they have to come back clamped.
	input.textureCoordinates = mgl32.Vec2{1, 1}
	input.angle = math.Pi / 4
	got = rotated_texture_coordinates(input)
	assert.LessOrEqual(t, got.X(), float32(1))
	assert.GreaterOrEqual(t, got.Y(), float32(0))
}

func TestWarpedDepth(t *testing.T) {
	const nearPlane = 1.0
	input := fragmentInput{
		position:            mgl32.Vec4{0, 0, 0.5, 1},
		curvature:           0,
		originalCurvature:   1,
		depthOffset:         0.25,
		originalDepthOffset: -3,
	}

	linear := float32(nearPlane) / (0.5 + depth_epsilon)
	adjusted := 2 + linear - 2*0.5
	want := float32(nearPlane) / (adjusted + depth_epsilon)
	assert.InDelta(t, want, warped_depth(nearPlane, input), 1e-6)

	// The depth offset inputs must not influence the result.
	input.depthOffset = 17
	input.originalDepthOffset = 42
	assert.Equal(t, warped_depth(nearPlane, fragmentInput{
		position:          input.position,
		curvature:         input.curvature,
		originalCurvature: input.originalCurvature,
	}), warped_depth(nearPlane, input))
}

func TestDepthConversionRoundTrip(t *testing.T) {
	const nearPlane = 1.0
	for _, z := range []float32{0.1, 0.5, 0.9, 2} {
		got := non_linear_to_linear(nearPlane, linear_to_non_linear(nearPlane, z))
		assert.InEpsilon(t, z, got, 1e-3, "round trip of %g", z)
	}

	// Depths a hair below zero must not blow up on the epsilon-shifted
	// division.
	for _, f := range []float32{
		linear_to_non_linear(nearPlane, -1e-7),
		non_linear_to_linear(nearPlane, -1e-7),
	} {
		assert.False(t, math.IsNaN(float64(f)), "got NaN")
		assert.False(t, math.IsInf(float64(f), 0), "got Inf")
	}
}

func TestBillboardFragmentAlphaTest(t *testing.T) {
	atlas := CPUTexture{
		Width:  2,
		Height: 1,
		// Opaque white on the left, half-transparent on the right.
		Pixels: []uint32{0xffffffff, 0x80ffffff},
	}

	input := fragmentInput{
		position:           mgl32.Vec4{0, 0, 0.25, 1},
		textureCoordinates: mgl32.Vec2{0.25, 0.5},
	}
	depth, ok := billboard_fragment(1, atlas, input)
	assert.True(t, ok)
	assert.Equal(t, float32(0.25), depth, "the unwarped pass keeps the incoming depth")

	warpedDepth, ok := billboard_fragment_warped(1, atlas, input)
	assert.True(t, ok)
	assert.NotEqual(t, depth, warpedDepth)

	input.textureCoordinates = mgl32.Vec2{0.75, 0.5}
	_, ok = billboard_fragment(1, atlas, input)
	assert.False(t, ok, "non-opaque texels must be discarded")
}

func TestBillboardRasterization(t *testing.T) {
	uniforms := renderer.PassUniforms{
		// Map the corner space x in [-1, 1], y in [0, 2], z = 1 into
		// the middle of the clip volume.
		ViewProjection: mgl32.Translate3D(0, -0.5, 0).Mul4(mgl32.Scale3D(0.5, 0.5, 0.5)),
	}
	instances := []renderer.InstanceRecord{{
		World:       mgl32.Ident4(),
		TopLeft:     mgl32.Vec2{-1, 2},
		BottomLeft:  mgl32.Vec2{-1, 0},
		TopRight:    mgl32.Vec2{1, 2},
		BottomRight: mgl32.Vec2{1, 0},
		TextureSize: mgl32.Vec2{1, 1},
	}}

	// Opaque left half, transparent right half.
	atlas := CPUTexture{Width: 2, Height: 1, Pixels: []uint32{0xffffffff, 0x00000000}}
	target := &CPUDepthTarget{Width: 16, Height: 16, Depth: make([]float32, 16*16)}
	target.Clear(1)

	Billboard(1, false, []CPUBinding{
		CPUBuffer(safeish.AsBytes(&uniforms)),
		CPUBuffer(safeish.SliceCast[[]byte](instances)),
		atlas,
		target,
	})

	// The quad covers the middle of the target; its left half samples the
	// opaque texel and writes depth 0.5, its right half is discarded.
	left := target.Depth[8*16+5]
	right := target.Depth[8*16+10]
	assert.InDelta(t, 0.5, left, 1e-5, "left half must be shaded")
	assert.Equal(t, float32(1), right, "right half must stay cleared")

	// Shading again at a larger depth must not overwrite closer
	// fragments.
	uniforms.ViewProjection = mgl32.Translate3D(0, -0.5, 0).Mul4(mgl32.Scale3D(0.5, 0.5, 0.75))
	Billboard(1, false, []CPUBinding{
		CPUBuffer(safeish.AsBytes(&uniforms)),
		CPUBuffer(safeish.SliceCast[[]byte](instances)),
		atlas,
		target,
	})
	assert.InDelta(t, 0.5, target.Depth[8*16+5], 1e-5, "depth test must reject farther fragments")
}
