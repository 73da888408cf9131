// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

import (
	"image"
	"image/draw"
)

// Image wraps a decoded image for upload to the GPU.
type Image struct {
	Image image.Image
}

// RGBA8Data returns the image's pixels as tightly packed 8-bit RGBA with
// straight alpha, converting if necessary.
func (img Image) RGBA8Data() []byte {
	b := img.Image.Bounds()
	if n, ok := img.Image.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		return n.Pix
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img.Image, b.Min, draw.Src)
	return out.Pix
}
