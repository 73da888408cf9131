// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"testing"
	"unsafe"
)

// The shaders address these structs by byte offset; the Go layout must
// match the WGSL layout exactly.

func TestPassUniformsLayout(t *testing.T) {
	var u PassUniforms
	if size := unsafe.Sizeof(u); size != 80 {
		t.Errorf("got size %d, want 80", size)
	}
	if off := unsafe.Offsetof(u.ViewProjection); off != 0 {
		t.Errorf("ViewProjection at offset %d, want 0", off)
	}
	if off := unsafe.Offsetof(u.AnimationTimer); off != 64 {
		t.Errorf("AnimationTimer at offset %d, want 64", off)
	}
}

func TestInstanceRecordLayout(t *testing.T) {
	var rec InstanceRecord
	if size := unsafe.Sizeof(rec); size != 144 {
		t.Errorf("got size %d, want 144", size)
	}

	offsets := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"World", unsafe.Offsetof(rec.World), 0},
		{"TopLeft", unsafe.Offsetof(rec.TopLeft), 64},
		{"BottomLeft", unsafe.Offsetof(rec.BottomLeft), 72},
		{"TopRight", unsafe.Offsetof(rec.TopRight), 80},
		{"BottomRight", unsafe.Offsetof(rec.BottomRight), 88},
		{"TexturePosition", unsafe.Offsetof(rec.TexturePosition), 96},
		{"TextureSize", unsafe.Offsetof(rec.TextureSize), 104},
		{"DepthOffset", unsafe.Offsetof(rec.DepthOffset), 112},
		{"DepthExtra", unsafe.Offsetof(rec.DepthExtra), 116},
		{"Angle", unsafe.Offsetof(rec.Angle), 120},
		{"Curvature", unsafe.Offsetof(rec.Curvature), 124},
		{"Mirror", unsafe.Offsetof(rec.Mirror), 128},
		{"TextureIndex", unsafe.Offsetof(rec.TextureIndex), 132},
		{"Reserved0", unsafe.Offsetof(rec.Reserved0), 136},
		{"Reserved1", unsafe.Offsetof(rec.Reserved1), 140},
	}
	for _, f := range offsets {
		if f.got != f.want {
			t.Errorf("%s at offset %d, want %d", f.name, f.got, f.want)
		}
	}
}
