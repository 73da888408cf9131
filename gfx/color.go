// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

import (
	"honnef.co/go/color"
)

// RGBA is a straight-alpha color with channels in [0, 1]. Decoded clip
// tints and render parameters use it as their currency.
type RGBA struct {
	R, G, B, A float32
}

// FromCSS converts a CSS color to linear sRGB with straight alpha, the
// space the render passes blend in.
func FromCSS(c color.Color) RGBA {
	cc := c.Convert(color.LinearSRGB)
	return RGBA{
		R: float32(cc.Values[0]),
		G: float32(cc.Values[1]),
		B: float32(cc.Values[2]),
		A: float32(cc.Values[3]),
	}
}
