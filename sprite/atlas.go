// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package sprite

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/bits"
	"sort"

	"github.com/google/uuid"
	"honnef.co/go/curve"
)

// AllocationID identifies a registered image within an [Atlas].
type AllocationID string

// Allocation describes where a registered image ended up in the built
// atlas.
type Allocation struct {
	ID AllocationID
	// Rect is the image's pixel region inside the atlas, excluding
	// padding.
	Rect image.Rectangle
	// UV is the same region in normalized texture coordinates.
	UV curve.Rect
}

// Position returns the top-left corner of the UV region.
func (a Allocation) Position() (float32, float32) {
	return float32(a.UV.X0), float32(a.UV.Y0)
}

// Size returns the extent of the UV region.
func (a Allocation) Size() (float32, float32) {
	return float32(a.UV.X1 - a.UV.X0), float32(a.UV.Y1 - a.UV.Y0)
}

// Atlas packs images into a single texture. Images are registered first,
// then Build places them all at once; allocations can be looked up
// afterwards. Entries are padded by one pixel on each side so that
// sampling at frame edges cannot bleed into neighbours.
type Atlas struct {
	padding     int
	entries     []atlasEntry
	allocations map[AllocationID]Allocation
	image       *image.NRGBA
}

type atlasEntry struct {
	id  AllocationID
	img image.Image
}

func NewAtlas() *Atlas {
	return &Atlas{padding: 1}
}

// Register queues an image for packing. The returned ID resolves to an
// [Allocation] once Build has run.
func (a *Atlas) Register(img image.Image) AllocationID {
	id := AllocationID(uuid.NewString())
	a.entries = append(a.entries, atlasEntry{id: id, img: img})
	return id
}

// Build packs all registered images and composites them into the atlas
// texture. It must be called exactly once, after all registrations.
func (a *Atlas) Build() error {
	if a.image != nil {
		return fmt.Errorf("sprite: atlas already built")
	}
	if len(a.entries) == 0 {
		return fmt.Errorf("sprite: atlas has no entries")
	}

	// Shelf packing: sort by height so each shelf stays densely filled,
	// then place entries left to right, opening a new shelf when the
	// current one runs out of room.
	order := make([]int, len(a.entries))
	for i := range order {
		order[i] = i
	}
	pad := 2 * a.padding
	totalArea := 0
	maxWidth := 0
	for _, e := range a.entries {
		b := e.img.Bounds()
		totalArea += (b.Dx() + pad) * (b.Dy() + pad)
		maxWidth = max(maxWidth, b.Dx()+pad)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return a.entries[order[i]].img.Bounds().Dy() > a.entries[order[j]].img.Bounds().Dy()
	})

	atlasWidth := nextPow2(max(maxWidth, int(math.Ceil(math.Sqrt(float64(totalArea))))))

	type placement struct {
		index int
		rect  image.Rectangle
	}
	placements := make([]placement, 0, len(a.entries))
	x, y, shelfHeight := 0, 0, 0
	for _, index := range order {
		b := a.entries[index].img.Bounds()
		w, h := b.Dx()+pad, b.Dy()+pad
		if x+w > atlasWidth {
			x = 0
			y += shelfHeight
			shelfHeight = 0
		}
		placements = append(placements, placement{
			index: index,
			rect: image.Rect(
				x+a.padding, y+a.padding,
				x+a.padding+b.Dx(), y+a.padding+b.Dy(),
			),
		})
		x += w
		shelfHeight = max(shelfHeight, h)
	}
	atlasHeight := nextPow2(y + shelfHeight)

	a.image = image.NewNRGBA(image.Rect(0, 0, atlasWidth, atlasHeight))
	a.allocations = make(map[AllocationID]Allocation, len(a.entries))
	for _, p := range placements {
		entry := a.entries[p.index]
		draw.Draw(a.image, p.rect, entry.img, entry.img.Bounds().Min, draw.Src)
		a.allocations[entry.id] = Allocation{
			ID:   entry.id,
			Rect: p.rect,
			UV: curve.Rect{
				X0: float64(p.rect.Min.X) / float64(atlasWidth),
				Y0: float64(p.rect.Min.Y) / float64(atlasHeight),
				X1: float64(p.rect.Max.X) / float64(atlasWidth),
				Y1: float64(p.rect.Max.Y) / float64(atlasHeight),
			},
		}
	}
	a.entries = nil
	return nil
}

// Allocation returns the placement of a registered image. It returns
// false before Build has run or for unknown IDs.
func (a *Atlas) Allocation(id AllocationID) (Allocation, bool) {
	alloc, ok := a.allocations[id]
	return alloc, ok
}

// Image returns the built atlas texture, or nil before Build has run.
func (a *Atlas) Image() *image.NRGBA {
	return a.image
}

func nextPow2(v int) int {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(v-1))
}
