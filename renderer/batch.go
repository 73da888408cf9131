// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
)

// BillboardInstruction describes one sprite frame part to draw. The
// animation layer produces these; the batcher packs them into the GPU
// instance layout.
type BillboardInstruction struct {
	World       mgl32.Mat4
	TopLeft     mgl32.Vec2
	BottomLeft  mgl32.Vec2
	TopRight    mgl32.Vec2
	BottomRight mgl32.Vec2
	// Atlas sub-rectangle in normalized texture coordinates.
	TexturePosition mgl32.Vec2
	TextureSize     mgl32.Vec2
	DepthOffset     float32
	Curvature       float32
	Angle           float32
	Mirror          bool
}

// BatchRenderer collects the instances of one frame. It is reused across
// frames; Reset starts a new batch without releasing the backing storage.
type BatchRenderer struct {
	instances []InstanceRecord
}

func NewBatchRenderer() *BatchRenderer {
	return &BatchRenderer{}
}

func (b *BatchRenderer) Reset() {
	b.instances = b.instances[:0]
}

// Push appends one instance. partIndex orders the parts of a multi-part
// frame front to back through a constant depth bias.
func (b *BatchRenderer) Push(inst BillboardInstruction, partIndex int) {
	var mirror uint32
	if inst.Mirror {
		mirror = 1
	}
	b.instances = append(b.instances, InstanceRecord{
		World:           inst.World,
		TopLeft:         inst.TopLeft,
		BottomLeft:      inst.BottomLeft,
		TopRight:        inst.TopRight,
		BottomRight:     inst.BottomRight,
		TexturePosition: inst.TexturePosition,
		TextureSize:     inst.TextureSize,
		DepthOffset:     inst.DepthOffset,
		DepthExtra:      0.001 * float32(partIndex),
		Angle:           inst.Angle,
		Curvature:       inst.Curvature,
		Mirror:          mirror,
	})
}

// Instances returns the batch in submission order. The slice is only
// valid until the next Reset.
func (b *BatchRenderer) Instances() []InstanceRecord {
	return b.instances
}
