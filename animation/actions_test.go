// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package animation

import (
	"encoding/binary"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func u16b(v int) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func u32b(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func i32b(v int32) []byte {
	return u32b(uint32(v))
}

func f32b(v float32) []byte {
	return u32b(math.Float32bits(v))
}

// buildACT assembles an ACT file from parts.
func buildACT(major, minor byte, parts ...[]byte) []byte {
	data := []byte{'A', 'C', minor, major}
	for _, p := range parts {
		data = append(data, p...)
	}
	return data
}

func reserved() []byte {
	return make([]byte, 10)
}

func ranges() []byte {
	var b []byte
	for i := int32(0); i < 8; i++ {
		b = append(b, i32b(i)...)
	}
	return b
}

func TestDecodeActionsV20(t *testing.T) {
	data := buildACT(2, 0,
		u16b(1), reserved(),
		u32b(1), // motions
		ranges(),
		u32b(1), // clips
		i32b(5), i32b(-3), i32b(2), u32b(1), // position, sprite, mirror
		u32b(0x80FF40C0),                    // color ABGR packed
		f32b(2), i32b(90), i32b(1),          // zoom, angle, sprite type
		i32b(7), // event id
	)

	a, err := DecodeActions(data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Version.Major != 2 || a.Version.Minor != 0 {
		t.Errorf("version = %s, want 2.0", a.Version)
	}
	if len(a.Actions) != 1 || len(a.Actions[0].Motions) != 1 {
		t.Fatalf("got %d actions", len(a.Actions))
	}

	motion := a.Actions[0].Motions[0]
	if motion.Range1 != [4]int32{0, 1, 2, 3} || motion.Range2 != [4]int32{4, 5, 6, 7} {
		t.Errorf("ranges = %v, %v", motion.Range1, motion.Range2)
	}
	if motion.EventID != 7 {
		t.Errorf("event id = %d, want 7", motion.EventID)
	}
	if len(motion.SpriteClips) != 1 {
		t.Fatalf("got %d clips", len(motion.SpriteClips))
	}

	clip := motion.SpriteClips[0]
	if clip.Position != image.Pt(5, -3) {
		t.Errorf("position = %v", clip.Position)
	}
	if clip.SpriteNumber != 2 || !clip.Mirror {
		t.Errorf("sprite = %d, mirror = %v", clip.SpriteNumber, clip.Mirror)
	}
	if clip.Color.R != 0xC0/255.0 || clip.Color.G != 0x40/255.0 || clip.Color.B != 0xFF/255.0 || clip.Color.A != 0x80/255.0 {
		t.Errorf("color = %v", clip.Color)
	}
	if clip.Zoom != (mgl32.Vec2{2, 2}) {
		t.Errorf("zoom = %v, want uniform 2", clip.Zoom)
	}
	if got, want := clip.Angle, float32(math.Pi/2); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("angle = %v, want %v", got, want)
	}

	// 2.0 predates the delay table.
	if len(a.Delays) != 1 || a.Delays[0] != DefaultDelay {
		t.Errorf("delays = %v", a.Delays)
	}
}

func TestDecodeActionsV25(t *testing.T) {
	data := buildACT(2, 5,
		u16b(1), reserved(),
		u32b(1),
		ranges(),
		u32b(1),
		i32b(0), i32b(0), i32b(0), u32b(0),
		u32b(0xFFFFFFFF),
		f32b(1), f32b(3), // split zoom
		i32b(0), i32b(0),
		i32b(12), i32b(34), // explicit size
		i32b(-1),                            // event id
		u32b(1),                             // attach points
		i32b(0), i32b(8), i32b(9), i32b(2),  // reserved, position, attribute
		u32b(1), append([]byte("atk\x00"), make([]byte, 36)...), // events
		f32b(2.5), // delays
	)

	a, err := DecodeActions(data)
	if err != nil {
		t.Fatal(err)
	}

	clip := a.Actions[0].Motions[0].SpriteClips[0]
	if clip.Zoom != (mgl32.Vec2{1, 3}) {
		t.Errorf("zoom = %v, want split 1,3", clip.Zoom)
	}
	if clip.Size != image.Pt(12, 34) {
		t.Errorf("size = %v", clip.Size)
	}

	motion := a.Actions[0].Motions[0]
	if motion.EventID != -1 {
		t.Errorf("event id = %d, want -1", motion.EventID)
	}
	if len(motion.AttachPoints) != 1 {
		t.Fatalf("got %d attach points", len(motion.AttachPoints))
	}
	if motion.AttachPoints[0].Position != image.Pt(8, 9) || motion.AttachPoints[0].Attribute != 2 {
		t.Errorf("attach point = %+v", motion.AttachPoints[0])
	}

	if len(a.Events) != 1 || a.Events[0] != "atk" {
		t.Errorf("events = %v", a.Events)
	}
	if len(a.Delays) != 1 || a.Delays[0] != 2.5 {
		t.Errorf("delays = %v", a.Delays)
	}
}

func TestDecodeActionsErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "invalid signature"},
		{"bad signature", []byte("SPAC"), "invalid signature"},
		{"bad version", buildACT(9, 0), "unsupported version"},
		{"truncated", buildACT(2, 0, u16b(1), reserved(), u32b(1), ranges()), "implausible clip count"},
		{"implausible actions", buildACT(2, 0, u16b(1 << 13)), "implausible action count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeActions(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}
