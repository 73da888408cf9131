// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package sprite decodes SPR sprite archives and packs their frames into
// texture atlases.
//
// An SPR file contains two runs of frames: palette frames, stored as 8-bit
// indices into a 256-entry palette at the end of the file, and true-color
// frames, stored as 32-bit pixels. Both decode to straight-alpha RGBA;
// palette index 0 is transparent.
package sprite

import (
	"fmt"
	"image"
	"os"

	"honnef.co/go/jorangar/internal/bytestream"
)

// Version is a file format revision, such as 2.1.
type Version struct {
	Major, Minor uint8
}

func (v Version) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Sprite is a decoded SPR file.
type Sprite struct {
	Version Version
	// PaletteCount is the number of frames at the start of Images that
	// were decoded from the palette section.
	PaletteCount int
	// Images holds the palette frames followed by the true-color frames.
	Images []*image.NRGBA
}

const (
	maxFrameCount     = 1 << 12
	maxFrameDimension = 1 << 13
)

// Load reads and decodes the SPR file at path.
func Load(path string) (*Sprite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sprite: read %s: %w", path, err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("sprite: decode %s: %w", path, err)
	}
	return s, nil
}

// Decode parses an SPR file.
func Decode(data []byte) (*Sprite, error) {
	if len(data) < 4 || data[0] != 'S' || data[1] != 'P' {
		return nil, fmt.Errorf("invalid signature")
	}
	// The version is stored minor byte first.
	version := Version{Major: data[3], Minor: data[2]}
	if version.Major < 1 || version.Major > 2 {
		return nil, fmt.Errorf("unsupported version %s", version)
	}

	r := bytestream.New(data[4:])
	paletteCount := int(r.ReadU16())
	rgbaCount := 0
	if version.AtLeast(1, 2) {
		rgbaCount = int(r.ReadU16())
	}
	if paletteCount > maxFrameCount || rgbaCount > maxFrameCount {
		return nil, fmt.Errorf("implausible frame count %d+%d", paletteCount, rgbaCount)
	}

	type indexedFrame struct {
		width, height int
		indices       []byte
	}
	indexed := make([]indexedFrame, paletteCount)
	for i := range indexed {
		width := int(r.ReadU16())
		height := int(r.ReadU16())
		if width > maxFrameDimension || height > maxFrameDimension {
			return nil, fmt.Errorf("implausible frame size %dx%d", width, height)
		}
		var indices []byte
		if version.AtLeast(2, 1) {
			encoded := r.ReadBytes(int(r.ReadU16()))
			var err error
			indices, err = decodeRLE(encoded, width*height)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		} else {
			indices = r.ReadBytes(width * height)
		}
		indexed[i] = indexedFrame{width, height, indices}
	}

	images := make([]*image.NRGBA, paletteCount, paletteCount+rgbaCount)
	for i := 0; i < rgbaCount; i++ {
		width := int(r.ReadU16())
		height := int(r.ReadU16())
		if width > maxFrameDimension || height > maxFrameDimension {
			return nil, fmt.Errorf("implausible frame size %dx%d", width, height)
		}
		images = append(images, decodeTrueColor(width, height, r.ReadBytes(4*width*height)))
	}

	// The palette sits at the end of the file, after all frame data.
	var palette []byte
	if r.Remaining() >= 1024 {
		palette = r.ReadBytes(1024)
	}
	if r.Short() {
		return nil, fmt.Errorf("truncated file")
	}
	if paletteCount > 0 && palette == nil {
		return nil, fmt.Errorf("missing palette")
	}

	// Palette frames can only be colorized now that the palette is known.
	for i, frame := range indexed {
		images[i] = decodeIndexed(frame.width, frame.height, frame.indices, palette)
	}

	return &Sprite{
		Version:      version,
		PaletteCount: paletteCount,
		Images:       images,
	}, nil
}

// decodeRLE expands the zero-run encoding used by 2.1 palette frames: a
// zero byte is followed by the run length, every other byte is literal.
func decodeRLE(encoded []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	for i := 0; i < len(encoded); {
		b := encoded[i]
		i++
		if b != 0 {
			out = append(out, b)
			continue
		}
		if i == len(encoded) {
			return nil, fmt.Errorf("run length missing")
		}
		n := int(encoded[i])
		i++
		if n == 0 {
			return nil, fmt.Errorf("zero-length run")
		}
		if len(out)+n > want {
			return nil, fmt.Errorf("run exceeds frame size")
		}
		for j := 0; j < n; j++ {
			out = append(out, 0)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d pixels, want %d", len(out), want)
	}
	return out, nil
}

func decodeIndexed(width, height int, indices []byte, palette []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, index := range indices {
		var alpha byte
		if index != 0 {
			alpha = 255
		}
		img.Pix[i*4+0] = palette[int(index)*4+0]
		img.Pix[i*4+1] = palette[int(index)*4+1]
		img.Pix[i*4+2] = palette[int(index)*4+2]
		img.Pix[i*4+3] = alpha
	}
	return img
}

// decodeTrueColor converts a true-color frame to RGBA. Frames are stored
// as ABGR with rows running bottom to top.
func decodeTrueColor(width, height int, data []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if len(data) < 4*width*height {
		// Short read; Decode reports the truncation.
		return img
	}
	for y := 0; y < height; y++ {
		src := data[(height-1-y)*width*4:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			dst[x*4+0] = src[x*4+3]
			dst[x*4+1] = src[x*4+2]
			dst[x*4+2] = src[x*4+1]
			dst[x*4+3] = src[x*4+0]
		}
	}
	return img
}
