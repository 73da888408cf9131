// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"honnef.co/go/jorangar/jmath"
)

// oit_resolve_fragment matches the resolve shader's fs_main: average the
// weighted color sums across samples, un-premultiplying each sample by
// its weight. The second return value is false where the pass discards.
func oit_resolve_fragment(accumulation, revealage CPUTextureMSAA, x, y int) ([4]float32, bool) {
	var sum [4]float32
	for s := 0; s < accumulation.Samples; s++ {
		accum := accumulation.Load(x, y, s)
		reveal := revealage.Load(x, y, s)[0]
		weight := max(accum[3], 1e-5)
		sum[0] += accum[0] / weight
		sum[1] += accum[1] / weight
		sum[2] += accum[2] / weight
		sum[3] += 1 - reveal
	}
	n := float32(accumulation.Samples)
	average := [4]float32{sum[0] / n, sum[1] / n, sum[2] / n, sum[3] / n}

	// Fully opaque pixels were already shaded by the depth pass.
	if average[3] > 0.99 {
		return [4]float32{}, false
	}
	return average, true
}

// OITResolve resolves the translucency buffers into an RGBA8 target,
// blending over the target's existing contents. Resources are bound in
// draw-call order: accumulation, revealage, then the target.
func OITResolve(resources []CPUBinding) {
	accumulation := resources[0].(CPUTextureMSAA)
	revealage := resources[1].(CPUTextureMSAA)
	target := resources[2].(CPUTexture)

	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			average, ok := oit_resolve_fragment(accumulation, revealage, x, y)
			if !ok {
				continue
			}
			idx := y*target.Width + x
			dst := target.Load(x, y)
			a := average[3]
			var out uint32
			for c := 0; c < 3; c++ {
				blended := average[c]*a + dst[c]*(1-a)
				out |= uint32(jmath.Clamp(blended, 0, 1)*255+0.5) << (8 * c)
			}
			alpha := jmath.Clamp(a+dst[3]*(1-a), 0, 1)
			out |= uint32(alpha*255+0.5) << 24
			target.Pixels[idx] = out
		}
	}
}
