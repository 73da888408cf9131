// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

import (
	"image"
	"testing"

	"honnef.co/go/color"
)

func TestFromCSS(t *testing.T) {
	// Colors already in linear sRGB pass through unchanged.
	got := FromCSS(color.Make(color.LinearSRGB, 0.25, 0.5, 0.75, 0.5))
	want := RGBA{0.25, 0.5, 0.75, 0.5}
	if got != want {
		t.Errorf("FromCSS(linear) = %+v, want %+v", got, want)
	}

	// Channel endpoints are fixed points of the sRGB transfer function.
	got = FromCSS(color.Make(color.SRGB, 1, 0, 0, 1))
	want = RGBA{1, 0, 0, 1}
	if got != want {
		t.Errorf("FromCSS(srgb red) = %+v, want %+v", got, want)
	}

	// Mid-gray must come out darker in linear space.
	got = FromCSS(color.Make(color.SRGB, 0.5, 0.5, 0.5, 1))
	if got.R >= 0.5 || got.R <= 0.2 {
		t.Errorf("FromCSS(srgb gray).R = %g, want roughly 0.214", got.R)
	}
	if got.A != 1 {
		t.Errorf("alpha = %g, want 1", got.A)
	}
}

func TestRGBA8Data(t *testing.T) {
	n := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	copy(n.Pix, []byte{
		255, 0, 0, 255, 0, 255, 0, 128,
		0, 0, 255, 0, 10, 20, 30, 40,
	})

	got := Image{Image: n}.RGBA8Data()
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	if &got[0] != &n.Pix[0] {
		t.Error("expected NRGBA pixels to be returned without copying")
	}

	// A subimage is not tightly packed and must be converted.
	sub := n.SubImage(image.Rect(1, 0, 2, 2)).(*image.NRGBA)
	got = Image{Image: sub}.RGBA8Data()
	want := []byte{0, 255, 0, 128, 10, 20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
