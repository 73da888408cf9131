// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func msaaTexture(samples int, texels ...[4]float32) CPUTextureMSAA {
	return CPUTextureMSAA{Width: 1, Height: 1, Samples: samples, Texels: texels}
}

func TestOITResolveFragment(t *testing.T) {
	// Two samples: a red fragment with weight 0.5 and an empty sample.
	accumulation := msaaTexture(2, [4]float32{0.5, 0, 0, 0.5}, [4]float32{0, 0, 0, 0})
	revealage := msaaTexture(2, [4]float32{0.25, 0, 0, 0}, [4]float32{1, 0, 0, 0})

	average, ok := oit_resolve_fragment(accumulation, revealage, 0, 0)
	assert.True(t, ok)
	// The covered sample un-premultiplies to pure red; averaging with the
	// empty sample halves it.
	assert.InDelta(t, 0.5, average[0], 1e-6)
	assert.InDelta(t, 0.0, average[1], 1e-6)
	// Alpha is the average of 1-revealage.
	assert.InDelta(t, (0.75+0)/2, average[3], 1e-6)
}

func TestOITResolveFragmentDiscardsOpaque(t *testing.T) {
	accumulation := msaaTexture(1, [4]float32{1, 1, 1, 1})
	revealage := msaaTexture(1, [4]float32{0, 0, 0, 0})

	_, ok := oit_resolve_fragment(accumulation, revealage, 0, 0)
	assert.False(t, ok, "fully opaque pixels belong to the depth pass")
}

func TestOITResolveFragmentFourSamples(t *testing.T) {
	// A pixel fully covered on every one of four samples averages to
	// alpha 1 and belongs to the depth pass.
	red := [4]float32{1, 0, 0, 1}
	accumulation := msaaTexture(4, red, red, red, red)
	revealage := msaaTexture(4, [4]float32{}, [4]float32{}, [4]float32{}, [4]float32{})

	_, ok := oit_resolve_fragment(accumulation, revealage, 0, 0)
	assert.False(t, ok)
}

func TestOITResolveZeroWeight(t *testing.T) {
	// A zero accumulation weight must not divide by zero.
	accumulation := msaaTexture(1, [4]float32{0, 0, 0, 0})
	revealage := msaaTexture(1, [4]float32{1, 0, 0, 0})

	average, ok := oit_resolve_fragment(accumulation, revealage, 0, 0)
	assert.True(t, ok)
	assert.Equal(t, [4]float32{}, average)
}

func TestCPUTextureClear(t *testing.T) {
	target := CPUTexture{Width: 2, Height: 1, Pixels: make([]uint32, 2)}
	target.Clear([4]float32{1, 0, 0.5, 1})

	assert.Equal(t, uint32(0xFF8000FF), target.Pixels[0])
	assert.Equal(t, target.Pixels[0], target.Pixels[1])

	got := target.Load(1, 0)
	assert.Equal(t, float32(1), got[0])
	assert.InDelta(t, 0.5, got[2], 1/255.0)
	assert.Equal(t, float32(1), got[3])
}

func TestOITResolveBlends(t *testing.T) {
	// Green at half coverage over an opaque red target.
	accumulation := msaaTexture(1, [4]float32{0, 0.5, 0, 0.5})
	revealage := msaaTexture(1, [4]float32{0.5, 0, 0, 0})
	target := CPUTexture{Width: 1, Height: 1, Pixels: []uint32{0xff0000ff}}

	OITResolve([]CPUBinding{accumulation, revealage, target})

	got := target.Load(0, 0)
	assert.InDelta(t, 0.5, got[0], 1/255.0+1e-6, "red keeps half its weight")
	assert.InDelta(t, 0.5, got[1], 1/255.0+1e-6, "green blends in at half weight")
	assert.InDelta(t, 1.0, got[3], 1e-6, "alpha saturates over an opaque target")
}
