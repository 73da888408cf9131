// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package cpu provides CPU implementations of the render shaders.
//
// These shaders intentionally replicate the WGSL shaders on the CPU instead of
// using more CPU-friendly alternatives. They're a debug tool, not a viable
// fallback.
package cpu

import (
	"fmt"
	"unsafe"

	"honnef.co/go/jorangar/jmath"
	"honnef.co/go/safeish"
)

type CPUBinding interface {
	// One of CPUBuffer, CPUTexture, CPUTextureMSAA, *CPUDepthTarget
}

type CPUBuffer []byte

// CPUTexture holds RGBA8 texels, one uint32 per texel, red in the least
// significant byte.
type CPUTexture struct {
	Width  int
	Height int
	Pixels []uint32
}

// Load returns the texel at (x, y) as four channels in [0, 1]. Nearest
// sampling with clamping is the only filter the render shaders use.
func (t CPUTexture) Load(x, y int) [4]float32 {
	x = clampInt(x, 0, t.Width-1)
	y = clampInt(y, 0, t.Height-1)
	px := t.Pixels[y*t.Width+x]
	return [4]float32{
		float32(px&0xff) / 255,
		float32(px>>8&0xff) / 255,
		float32(px>>16&0xff) / 255,
		float32(px>>24&0xff) / 255,
	}
}

// Clear fills the texture with a single color, channels in [0, 1].
func (t CPUTexture) Clear(c [4]float32) {
	var px uint32
	for i, f := range c {
		px |= uint32(jmath.Clamp(f, 0, 1)*255+0.5) << (8 * i)
	}
	for i := range t.Pixels {
		t.Pixels[i] = px
	}
}

// CPUTextureMSAA holds multisampled float texels, sample-major per pixel:
// the texel at (x, y, s) lives at (y*Width+x)*Samples + s.
type CPUTextureMSAA struct {
	Width   int
	Height  int
	Samples int
	Texels  [][4]float32
}

func (t CPUTextureMSAA) Load(x, y, sample int) [4]float32 {
	return t.Texels[(y*t.Width+x)*t.Samples+sample]
}

// CPUDepthTarget is a depth attachment. Clear values and depth tests are
// the caller's responsibility; the shaders only compare and store.
type CPUDepthTarget struct {
	Width  int
	Height int
	Depth  []float32
}

func (t *CPUDepthTarget) Clear(depth float32) {
	for i := range t.Depth {
		t.Depth[i] = depth
	}
}

// XXX move this into safeish
func fromBytes[E any, T *E](b []byte) T {
	if uintptr(len(b)) < unsafe.Sizeof(*new(E)) {
		panic(fmt.Sprintf(
			"buffer of size %d cannot represent object of size %d", len(b), unsafe.Sizeof(*new(E))))
	}

	return safeish.Cast[T](&b[0])
}

func clampInt(x, lo, hi int) int {
	return min(max(x, lo), hi)
}
