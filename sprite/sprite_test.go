// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sprite

import (
	"strings"
	"testing"
)

func u16(v int) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

// buildSPR assembles an SPR file from parts.
func buildSPR(major, minor byte, parts ...[]byte) []byte {
	data := []byte{'S', 'P', minor, major}
	for _, p := range parts {
		data = append(data, p...)
	}
	return data
}

// palette fills entry 0 with magenta and entries 1..n with distinct
// grays, padding the rest of the 1024 bytes with zeros.
func palette() []byte {
	pal := make([]byte, 1024)
	copy(pal, []byte{255, 0, 255, 0})
	for i := 1; i < 256; i++ {
		pal[i*4+0] = byte(i)
		pal[i*4+1] = byte(i)
		pal[i*4+2] = byte(i)
	}
	return pal
}

func TestDecodeIndexed(t *testing.T) {
	// Version 2.0: palette frames are stored as raw indices.
	data := buildSPR(2, 0,
		u16(1), // palette frames
		u16(0), // true-color frames
		u16(2), u16(2), []byte{0, 1, 2, 1},
		palette(),
	)

	s, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != (Version{Major: 2, Minor: 0}) {
		t.Errorf("version = %s, want 2.0", s.Version)
	}
	if s.PaletteCount != 1 || len(s.Images) != 1 {
		t.Fatalf("got %d palette frames, %d images", s.PaletteCount, len(s.Images))
	}

	img := s.Images[0]
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	// Index 0 decodes to transparent, everything else is opaque.
	want := []byte{
		255, 0, 255, 0, 1, 1, 1, 255,
		2, 2, 2, 255, 1, 1, 1, 255,
	}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, img.Pix[i], want[i])
		}
	}
}

func TestDecodeRLE(t *testing.T) {
	// Version 2.1: palette frames are zero-run encoded.
	encoded := []byte{0, 2, 3, 0, 1} // two zeros, literal 3, one zero
	data := buildSPR(2, 1,
		u16(1),
		u16(0),
		u16(2), u16(2), u16(len(encoded)), encoded,
		palette(),
	)

	s, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	img := s.Images[0]
	wantAlpha := []byte{0, 0, 255, 0}
	for i, alpha := range wantAlpha {
		if img.Pix[i*4+3] != alpha {
			t.Errorf("pixel %d alpha = %d, want %d", i, img.Pix[i*4+3], alpha)
		}
	}
	if img.Pix[2*4+0] != 3 {
		t.Errorf("pixel 2 red = %d, want 3", img.Pix[2*4+0])
	}
}

func TestDecodeTrueColor(t *testing.T) {
	// True-color frames are ABGR with rows bottom to top.
	data := buildSPR(2, 0,
		u16(0),
		u16(1),
		u16(1), u16(2), []byte{
			40, 30, 20, 10, // bottom row: A=40 B=30 G=20 R=10
			80, 70, 60, 50, // top row:    A=80 B=70 G=60 R=50
		},
	)

	s, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	img := s.Images[0]
	want := []byte{
		50, 60, 70, 80, // top row in RGBA
		10, 20, 30, 40,
	}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, img.Pix[i], want[i])
		}
	}
}

func TestDecodeVersion11(t *testing.T) {
	// 1.1 files have no true-color count field.
	data := buildSPR(1, 1,
		u16(1),
		u16(1), u16(1), []byte{5},
		palette(),
	)

	s, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(s.Images))
	}
	if got := s.Images[0].Pix[3]; got != 255 {
		t.Errorf("alpha = %d, want 255", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "invalid signature"},
		{"bad signature", []byte("MUCH"), "invalid signature"},
		{"bad version", buildSPR(9, 0), "unsupported version"},
		{"truncated", buildSPR(2, 0, u16(1), u16(0), u16(4), u16(4)), "truncated"},
		{
			"missing palette",
			buildSPR(2, 0, u16(1), u16(0), u16(1), u16(1), []byte{0}),
			"missing palette",
		},
		{
			"zero run",
			buildSPR(2, 1, u16(1), u16(0), u16(2), u16(2), u16(2), []byte{0, 0}, palette()),
			"zero-length run",
		},
		{
			"run overflow",
			buildSPR(2, 1, u16(1), u16(0), u16(1), u16(1), u16(2), []byte{0, 9}, palette()),
			"run exceeds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}
