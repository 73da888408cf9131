// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"structs"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/constraints"
	"honnef.co/go/color"
)

// PassUniforms contains uniform data shared by all invocations of the
// billboard pass. It is rebuilt every frame.
//
// This data structure must be kept in sync with the definition in
// `shaders/billboard.wgsl`.
type PassUniforms struct {
	_ structs.HostLayout

	ViewProjection mgl32.Mat4
	AnimationTimer float32
	// Uniform buffers round struct sizes up to their alignment.
	_ [3]float32
}

// InstanceRecord describes one billboard quad. An array of these is bound
// as read-only storage for the duration of a draw call; records are
// immutable once uploaded.
//
// This data structure must be kept in sync with the definition in
// `shaders/billboard.wgsl`.
type InstanceRecord struct {
	_ structs.HostLayout

	World mgl32.Mat4
	// Corner coordinates, x in [-1, 1] (signed curvature weight), y in
	// [0, 2] (depth weight before normalization).
	TopLeft     mgl32.Vec2
	BottomLeft  mgl32.Vec2
	TopRight    mgl32.Vec2
	BottomRight mgl32.Vec2
	// Atlas sub-rectangle in normalized texture coordinates.
	TexturePosition mgl32.Vec2
	TextureSize     mgl32.Vec2
	DepthOffset     float32
	DepthExtra      float32
	// Angle is the in-plane rotation in radians.
	Angle     float32
	Curvature float32
	Mirror    uint32
	// TextureIndex is reserved for a future texture array binding. The
	// shaders carry it but don't read it.
	TextureIndex uint32
	Reserved0    uint32
	Reserved1    uint32
}

// Vertex is the assembled quad corner handed from vertex assembly to the
// billboard transform. It only exists per invocation and is never stored.
type Vertex struct {
	Position            mgl32.Vec3
	UV                  mgl32.Vec2
	DepthMultiplier     float32
	CurvatureMultiplier float32
}

// RenderParams selects the target dimensions and the pipeline constants
// for one frame.
type RenderParams struct {
	Width  uint32
	Height uint32
	// NearPlane is baked into the billboard pipeline as a creation-time
	// constant.
	NearPlane float32
	// SampleCount must equal the sample count of the accumulation and
	// revealage textures bound to the resolve pass.
	SampleCount    uint32
	AnimationTimer float32
	// BaseColor, when set, clears the resolve target before the pass
	// blends over it. When nil the target's existing contents are kept.
	BaseColor *color.Color
}

type BufferSize[T any] uint32

func NewBufferSize[T any](x uint32) BufferSize[T] {
	return BufferSize[T](max(x, 1))
}

func (s BufferSize[T]) sizeInBytes() uint32 {
	return uint32(s) * uint32(unsafe.Sizeof(*new(T)))
}

func nextMultipleOf[T constraints.Integer](x, y T) T {
	r := x % y
	if r == 0 {
		return x
	} else {
		return x + y - r
	}
}
