// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package animation decodes ACT action files and turns them, together
// with their sprite files, into renderable billboard frames.
//
// An entity is described by one or more sprite/action pairs (a player
// has separate head and body files). Generation merges the sprite clips
// of every pair's motion into a single frame quad and normalizes all
// frames of an action to a common size, so that the renderer can treat
// a frame as one billboard with per-part sub-rectangles.
package animation

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"honnef.co/go/curve"

	"honnef.co/go/jorangar/gfx"
	"honnef.co/go/jorangar/jmath"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/jorangar/sprite"
)

type EntityType uint8

const (
	EntityMonster EntityType = iota
	EntityPlayer
	EntityNPC
)

// Pair couples an action file with the sprite file its clips index.
type Pair struct {
	Sprite  *sprite.Sprite
	Actions *Actions
}

// FramePart places one sprite image inside a merged frame. Offset and
// Size are in frame pixels; a negative PairIndex marks the placeholder
// part of an empty frame.
type FramePart struct {
	PairIndex    int
	SpriteNumber int
	Offset       image.Point
	Size         image.Point
	Mirror       bool
	Angle        float32
	// Color is the clip's tint. The depth pass ignores it; like the
	// motion ranges it is kept for completeness.
	Color gfx.RGBA
}

// Frame is the merged quad of one motion. Offset is the quad's center
// relative to the entity origin; RemoveOffset is the shift that frame
// normalization applied, which the corner math undoes again.
type Frame struct {
	Offset       image.Point
	Size         image.Point
	RemoveOffset image.Point
	Parts        []FramePart

	// set during merging only
	topLeft image.Point
}

// Animation holds the frames of one action/direction combination.
type Animation struct {
	Frames []Frame
}

// Data is the generated animation set of one entity.
type Data struct {
	Pairs      []Pair
	Animations []Animation
	Delays     []float32
	EntityType EntityType

	// atlas placements per pair, indexed by sprite number
	allocations [][]sprite.Allocation
}

// NewData generates the merged, normalized frames for the given pairs.
// All pairs must describe the same entity; the first pair's action
// count and delays drive the result.
func NewData(pairs []Pair, entityType EntityType) (*Data, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("animation: no sprite/action pairs")
	}

	// First pass: one merged frame per pair, action, and non-empty
	// motion.
	perPair := make([][][]Frame, len(pairs))
	for pairIndex, pair := range pairs {
		actionFrames := make([][]Frame, 0, len(pair.Actions.Actions))
		for actionIndex, action := range pair.Actions.Actions {
			frames := make([]Frame, 0, len(action.Motions))
			for motionIndex, motion := range action.Motions {
				if len(motion.SpriteClips) == 0 {
					// Empty motions are dropped entirely, shifting
					// later motions forward. Entity files don't mix
					// empty and filled motions within an action, so
					// this doesn't desynchronize pairs in practice.
					continue
				}
				var clipFrames []Frame
				for _, clip := range motion.SpriteClips {
					if clip.SpriteNumber < 0 {
						continue
					}
					if int(clip.SpriteNumber) >= len(pair.Sprite.Images) {
						return nil, fmt.Errorf("animation: action %d, motion %d references sprite %d of %d",
							actionIndex, motionIndex, clip.SpriteNumber, len(pair.Sprite.Images))
					}
					bounds := pair.Sprite.Images[clip.SpriteNumber].Bounds()
					size := image.Pt(
						int(jmath.Floor32(float32(bounds.Dx())*clip.Zoom.X())),
						int(jmath.Floor32(float32(bounds.Dy())*clip.Zoom.Y())),
					)

					offset := clip.Position
					// Player bodies anchor to the head's attach point.
					if entityType == EntityPlayer && pairIndex == 1 && len(motion.AttachPoints) == 1 {
						if parent, ok := motionAt(pairs[0].Actions, actionIndex, motionIndex); ok && len(parent.AttachPoints) > 0 {
							offset = offset.Add(parent.AttachPoints[0].Position.Sub(motion.AttachPoints[0].Position))
						}
					}

					part := FramePart{
						PairIndex:    pairIndex,
						SpriteNumber: int(clip.SpriteNumber),
						Offset:       offset,
						Size:         size,
						Mirror:       clip.Mirror,
						Angle:        clip.Angle,
						Color:        clip.Color,
					}
					clipFrames = append(clipFrames, Frame{
						Offset: offset,
						Size:   size,
						Parts:  []FramePart{part},
					})
				}
				frames = append(frames, mergeFrames(clipFrames))
			}
			actionFrames = append(actionFrames, frames)
		}
		perPair[pairIndex] = actionFrames
	}

	// Second pass: merge the pairs' frames per motion and normalize each
	// action to a single frame size.
	actionCount := len(pairs[0].Actions.Actions)
	animations := make([]Animation, 0, actionCount)
	for actionIndex := 0; actionIndex < actionCount; actionIndex++ {
		motionCount := len(pairs[0].Actions.Actions[actionIndex].Motions)
		frames := make([]Frame, 0, motionCount)
		for motionIndex := 0; motionIndex < motionCount; motionIndex++ {
			var generate []Frame
			for pairIndex := range pairs {
				if actionIndex >= len(perPair[pairIndex]) || motionIndex >= len(perPair[pairIndex][actionIndex]) {
					continue
				}
				generate = append(generate, perPair[pairIndex][actionIndex][motionIndex])
			}
			frames = append(frames, mergeFrames(generate))
		}
		normalizeFrames(frames)
		animations = append(animations, Animation{Frames: frames})
	}

	return &Data{
		Pairs:      pairs,
		Animations: animations,
		Delays:     pairs[0].Actions.Delays,
		EntityType: entityType,
	}, nil
}

func motionAt(a *Actions, actionIndex, motionIndex int) (*Motion, bool) {
	if actionIndex >= len(a.Actions) || motionIndex >= len(a.Actions[actionIndex].Motions) {
		return nil, false
	}
	return &a.Actions[actionIndex].Motions[motionIndex], true
}

// mergeFrames combines frames into one whose quad is the union of their
// bounds. Offsets address the center pixel of a quad, so the bounds of a
// frame start at offset - (size-1)/2.
func mergeFrames(frames []Frame) Frame {
	if len(frames) == 0 {
		// A motion whose clips are all empty still occupies a frame
		// slot; give it a transparent pixel.
		return Frame{
			Size:  image.Pt(1, 1),
			Parts: []FramePart{{PairIndex: -1, SpriteNumber: -1, Size: image.Pt(1, 1)}},
		}
	}

	one := image.Pt(1, 1)
	for i := range frames {
		f := &frames[i]
		f.topLeft = f.Offset.Sub(f.Size.Sub(one).Div(2))
	}

	topLeft := frames[0].topLeft
	bottomRight := frames[0].topLeft.Add(frames[0].Size)
	for _, f := range frames[1:] {
		topLeft.X = min(topLeft.X, f.topLeft.X)
		topLeft.Y = min(topLeft.Y, f.topLeft.Y)
		bottomRight.X = max(bottomRight.X, f.topLeft.X+f.Size.X)
		bottomRight.Y = max(bottomRight.Y, f.topLeft.Y+f.Size.Y)
	}
	size := bottomRight.Sub(topLeft)

	var parts []FramePart
	for i := range frames {
		parts = append(parts, frames[i].Parts...)
	}

	return Frame{
		Size:   size,
		Offset: image.Pt(topLeft.X+(size.X-1)/2, topLeft.Y+(size.Y-1)/2),
		Parts:  parts,
	}
}

// normalizeFrames gives all frames of an action the same size and
// offset, so that a running animation doesn't jitter. Every frame is
// shifted into the positive quadrant; the shift is recorded in
// RemoveOffset.
func normalizeFrames(frames []Frame) {
	if len(frames) == 0 {
		return
	}
	var maxSize image.Point
	minOffset := frames[0].Offset
	var maxOffset image.Point
	for _, f := range frames {
		maxSize.X = max(maxSize.X, f.Size.X)
		maxSize.Y = max(maxSize.Y, f.Size.Y)
		minOffset.X = min(minOffset.X, f.Offset.X)
		minOffset.Y = min(minOffset.Y, f.Offset.Y)
		maxOffset.X = max(maxOffset.X, f.Offset.X)
		maxOffset.Y = max(maxOffset.Y, f.Offset.Y)
	}
	// The extra 2 pixels absorb the off-by-one of centering quads with
	// even extents.
	shift := maxOffset.Sub(minOffset).Add(image.Pt(2, 2))
	size := maxSize.Add(shift)

	for i := range frames {
		f := &frames[i]
		for j := range f.Parts {
			f.Parts[j].Offset = f.Parts[j].Offset.Add(shift)
		}
		f.Offset = minOffset.Add(shift)
		f.Size = size
		f.RemoveOffset = shift
	}
}

// RegisterSprites queues every pair's sprite frames with the atlas and
// resolves their placements once the atlas has been built. The returned
// finish function must be called after [sprite.Atlas.Build].
func (d *Data) RegisterSprites(atlas *sprite.Atlas) (finish func() error) {
	ids := make([][]sprite.AllocationID, len(d.Pairs))
	for i, pair := range d.Pairs {
		ids[i] = make([]sprite.AllocationID, len(pair.Sprite.Images))
		for j, img := range pair.Sprite.Images {
			ids[i][j] = atlas.Register(img)
		}
	}
	return func() error {
		d.allocations = make([][]sprite.Allocation, len(ids))
		for i := range ids {
			d.allocations[i] = make([]sprite.Allocation, len(ids[i]))
			for j, id := range ids[i] {
				alloc, ok := atlas.Allocation(id)
				if !ok {
					return fmt.Errorf("animation: atlas has no allocation for pair %d, sprite %d", i, j)
				}
				d.allocations[i][j] = alloc
			}
		}
		return nil
	}
}

// State tracks the progress of an entity's current action.
type State struct {
	Action int
	// Time is the milliseconds since the action started.
	Time uint32
	// Factor scales the per-action frame delay; zero selects the
	// default speed.
	Factor float32
	// Duration, when nonzero, stretches the whole animation over a
	// fixed span of milliseconds instead of using the frame delay.
	Duration uint32
}

// The sprite files were authored for a fixed-function pipeline; the
// magic constants below map their pixel units into world space.
const (
	spriteScale    = 0.7
	pixelsPerWorld = 10.0
)

// Render pushes one batch instruction per part of the current frame.
// headDirection turns the sprite relative to the camera's yaw octant.
func (d *Data) Render(batch *renderer.BatchRenderer, camera *renderer.Camera, position mgl32.Vec3, state *State, headDirection int) {
	if d.allocations == nil {
		panic("animation: RegisterSprites has not completed")
	}

	direction := (camera.Direction() + headDirection) % 8
	aa := state.Action*8 + direction
	delay := float32(DefaultDelay)
	if len(d.Delays) > 0 {
		delay = d.Delays[aa%len(d.Delays)]
	}
	animation := &d.Animations[aa%len(d.Animations)]
	if len(animation.Frames) == 0 {
		return
	}

	factor := delay * 50
	if state.Factor != 0 {
		factor = delay * (state.Factor / 5)
	}
	var frameTime uint32
	if state.Duration != 0 {
		frameTime = state.Time * uint32(len(animation.Frames)) / state.Duration
	} else {
		frameTime = uint32(float32(state.Time) / factor)
	}
	time := int(frameTime) % len(animation.Frames)

	frame := &animation.Frames[time]
	// Action 0 is the idle head bobbing; players keep a still pose.
	if d.EntityType == EntityPlayer && state.Action == 0 {
		frame = &animation.Frames[0]
	}

	// The offset addresses the frame's center; shift down by half the
	// height so position ends up at the entity's feet.
	anchor := mgl32.Vec2{
		float32(animation.Frames[0].Offset.X),
		float32(animation.Frames[0].Offset.Y) + float32((animation.Frames[time].Size.Y-1)/2),
	}.Mul(1.0 / pixelsPerWorld)
	origin := mgl32.Vec3{-anchor.X(), anchor.Y(), 0}
	size := mgl32.Vec2{
		float32(frame.Size.X) * spriteScale / pixelsPerWorld,
		float32(frame.Size.Y) * spriteScale / pixelsPerWorld,
	}

	world := camera.BillboardMatrix(position, origin, size)
	depthOffset, curvature := camera.DepthOffsetAndCurvature(world, spriteScale, spriteScale)

	one := image.Pt(1, 1)
	for i, part := range frame.Parts {
		if part.PairIndex < 0 {
			continue
		}
		alloc := d.allocations[part.PairIndex][part.SpriteNumber]

		// The part's placement inside the frame, as an affine that maps
		// the unit square onto the part's pixel extent.
		extent := part.Size.Sub(one)
		oldOrigin := frame.Offset.Sub(frame.Size.Sub(frame.RemoveOffset).Sub(one).Div(2))
		newOrigin := part.Offset.Sub(part.Size.Sub(one).Div(2))
		topLeft := newOrigin.Sub(oldOrigin)
		placement := curve.Affine{
			float64(extent.X), 0,
			0, float64(extent.Y),
			float64(topLeft.X), float64(topLeft.Y),
		}

		texPos := mgl32.Vec2{}
		texPos[0], texPos[1] = alloc.Position()
		texSize := mgl32.Vec2{}
		texSize[0], texSize[1] = alloc.Size()

		batch.Push(renderer.BillboardInstruction{
			World:           world,
			TopLeft:         cornerCoordinate(placement, 0, 0, frame.Size),
			BottomLeft:      cornerCoordinate(placement, 0, 1, frame.Size),
			TopRight:        cornerCoordinate(placement, 1, 0, frame.Size),
			BottomRight:     cornerCoordinate(placement, 1, 1, frame.Size),
			TexturePosition: texPos,
			TextureSize:     texSize,
			DepthOffset:     depthOffset,
			Curvature:       curvature,
			Angle:           part.Angle,
			Mirror:          part.Mirror,
		}, i)
	}
}

// cornerCoordinate transforms a unit-square corner through the part
// placement and converts the resulting frame pixel into the billboard's
// corner domain: x in [-1, 1] left to right, y in [2, 0] top to bottom.
func cornerCoordinate(placement curve.Affine, u, v float64, frameSize image.Point) mgl32.Vec2 {
	c := placement.Coefficients()
	px := c[0]*u + c[2]*v + c[4]
	py := c[1]*u + c[3]*v + c[5]
	return mgl32.Vec2{
		float32(px/float64(frameSize.X)-0.5) * 2,
		2 - float32(py/float64(frameSize.Y))*2,
	}
}
