// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package animation

import (
	"fmt"
	"image"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"honnef.co/go/jorangar/gfx"
	"honnef.co/go/jorangar/internal/bytestream"
	"honnef.co/go/jorangar/sprite"
)

// Actions is a decoded ACT file. Every action holds one motion sequence
// per direction; the sprite clips inside a motion reference frames of the
// sprite file that accompanies the ACT.
type Actions struct {
	Version sprite.Version
	Actions []Action
	Events  []string
	// Delays holds the per-action frame delay. Files older than 2.2
	// don't store delays; they default to 4.
	Delays []float32
}

type Action struct {
	Motions []Motion
}

type Motion struct {
	// Range1 and Range2 are hit and attack boxes. They don't influence
	// rendering but are kept for completeness.
	Range1, Range2 [4]int32
	SpriteClips    []SpriteClip
	// EventID indexes into Actions.Events, -1 if the motion has none.
	EventID      int32
	AttachPoints []AttachPoint
}

type SpriteClip struct {
	Position image.Point
	// SpriteNumber selects a frame of the sprite file, -1 for an empty
	// clip.
	SpriteNumber int32
	Mirror       bool
	Color        gfx.RGBA
	Zoom         mgl32.Vec2
	// Angle is the clip's rotation in radians. The file stores degrees.
	Angle      float32
	SpriteType int32
	Size       image.Point
}

type AttachPoint struct {
	Position  image.Point
	Attribute int32
}

const maxActionCount = 1 << 12

// DefaultDelay is the per-action frame delay assumed for files that
// predate the delay table.
const DefaultDelay = 4.0

// LoadActions reads and decodes the ACT file at path.
func LoadActions(path string) (*Actions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("animation: read %s: %w", path, err)
	}
	a, err := DecodeActions(data)
	if err != nil {
		return nil, fmt.Errorf("animation: decode %s: %w", path, err)
	}
	return a, nil
}

// DecodeActions parses an ACT file.
func DecodeActions(data []byte) (*Actions, error) {
	if len(data) < 4 || data[0] != 'A' || data[1] != 'C' {
		return nil, fmt.Errorf("invalid signature")
	}
	// The version is stored minor byte first.
	version := sprite.Version{Major: data[3], Minor: data[2]}
	if version.Major < 1 || version.Major > 2 {
		return nil, fmt.Errorf("unsupported version %s", version)
	}

	r := bytestream.New(data[4:])
	actionCount := int(r.ReadU16())
	if actionCount > maxActionCount {
		return nil, fmt.Errorf("implausible action count %d", actionCount)
	}
	r.Skip(10) // reserved

	actions := make([]Action, actionCount)
	for i := range actions {
		motionCount := int(r.ReadU32())
		if r.Short() || motionCount > maxActionCount {
			return nil, fmt.Errorf("action %d: implausible motion count %d", i, motionCount)
		}
		motions := make([]Motion, motionCount)
		for j := range motions {
			motion, err := decodeMotion(r, version)
			if err != nil {
				return nil, fmt.Errorf("action %d, motion %d: %w", i, j, err)
			}
			motions[j] = motion
		}
		actions[i].Motions = motions
	}

	var events []string
	if version.AtLeast(2, 1) {
		eventCount := int(r.ReadU32())
		if r.Short() || eventCount > maxActionCount {
			return nil, fmt.Errorf("implausible event count %d", eventCount)
		}
		events = make([]string, eventCount)
		for i := range events {
			events[i] = r.ReadString(40)
		}
	}

	delays := make([]float32, actionCount)
	if version.AtLeast(2, 2) {
		for i := range delays {
			delays[i] = r.ReadF32()
		}
	} else {
		for i := range delays {
			delays[i] = DefaultDelay
		}
	}

	if r.Short() {
		return nil, fmt.Errorf("truncated file")
	}
	return &Actions{
		Version: version,
		Actions: actions,
		Events:  events,
		Delays:  delays,
	}, nil
}

func decodeMotion(r *bytestream.Reader, version sprite.Version) (Motion, error) {
	var motion Motion
	for i := range motion.Range1 {
		motion.Range1[i] = r.ReadI32()
	}
	for i := range motion.Range2 {
		motion.Range2[i] = r.ReadI32()
	}

	clipCount := int(r.ReadU32())
	if r.Short() || clipCount > maxActionCount {
		return motion, fmt.Errorf("implausible clip count %d", clipCount)
	}
	motion.SpriteClips = make([]SpriteClip, clipCount)
	for i := range motion.SpriteClips {
		motion.SpriteClips[i] = decodeSpriteClip(r, version)
	}

	motion.EventID = -1
	if version.AtLeast(2, 0) {
		motion.EventID = r.ReadI32()
	}

	if version.AtLeast(2, 3) {
		pointCount := int(r.ReadU32())
		if r.Short() || pointCount > maxActionCount {
			return motion, fmt.Errorf("implausible attach point count %d", pointCount)
		}
		motion.AttachPoints = make([]AttachPoint, pointCount)
		for i := range motion.AttachPoints {
			r.ReadI32() // reserved
			x := r.ReadI32()
			y := r.ReadI32()
			motion.AttachPoints[i] = AttachPoint{
				Position:  image.Pt(int(x), int(y)),
				Attribute: r.ReadI32(),
			}
		}
	}
	return motion, nil
}

func decodeSpriteClip(r *bytestream.Reader, version sprite.Version) SpriteClip {
	clip := SpriteClip{
		Zoom:  mgl32.Vec2{1, 1},
		Color: gfx.RGBA{},
	}
	x := r.ReadI32()
	y := r.ReadI32()
	clip.Position = image.Pt(int(x), int(y))
	clip.SpriteNumber = r.ReadI32()
	clip.Mirror = r.ReadU32() != 0

	if version.AtLeast(2, 0) {
		packed := r.ReadU32()
		clip.Color = gfx.RGBA{
			R: float32(packed&0xFF) / 255,
			G: float32(packed>>8&0xFF) / 255,
			B: float32(packed>>16&0xFF) / 255,
			A: float32(packed>>24&0xFF) / 255,
		}
		if version.AtLeast(2, 4) {
			clip.Zoom = mgl32.Vec2{r.ReadF32(), r.ReadF32()}
		} else {
			zoom := r.ReadF32()
			clip.Zoom = mgl32.Vec2{zoom, zoom}
		}
		degrees := r.ReadI32()
		clip.Angle = float32(degrees) / 360 * 2 * math.Pi
		clip.SpriteType = r.ReadI32()
	}
	if version.AtLeast(2, 5) {
		w := r.ReadI32()
		h := r.ReadI32()
		clip.Size = image.Pt(int(w), int(h))
	}
	return clip
}
