// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/color"

	"honnef.co/go/jorangar/profiler"
)

type nopGroup struct{}

func (nopGroup) Start(string) profiler.ProfilerGroup { return nopGroup{} }
func (nopGroup) End()                                {}

var testShaders = &FullShaders{Billboard: 1, OITResolve: 2}

func testParams() *RenderParams {
	return &RenderParams{
		Width:       16,
		Height:      16,
		NearPlane:   1,
		SampleCount: 4,
	}
}

func TestRenderBillboardsRecording(t *testing.T) {
	rd := New()
	camera := NewCamera(16, 16, 1, 0.5, 100)
	atlas := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	instances := []InstanceRecord{{}}
	depthTarget := NewImageProxy(16, 16, Depth32Float)

	recording := &Recording{}
	rd.RenderBillboards(recording, testShaders, testParams(), camera, instances, atlas, depthTarget, nopGroup{})

	require.Len(t, recording.Commands, 6)
	uniform, ok := recording.Commands[0].(*UploadUniform)
	require.True(t, ok)
	assert.Len(t, uniform.Data, 80)

	upload, ok := recording.Commands[1].(*Upload)
	require.True(t, ok)
	assert.Len(t, upload.Data, 144)

	img, ok := recording.Commands[2].(*UploadImage)
	require.True(t, ok)
	assert.Equal(t, Rgba8Srgb, img.Image.Format)

	draw, ok := recording.Commands[3].(*Draw)
	require.True(t, ok)
	assert.Equal(t, testShaders.Billboard, draw.Shader)
	assert.Equal(t, uint32(6), draw.VertexCount)
	assert.Equal(t, uint32(1), draw.InstanceCount)
	require.Len(t, draw.Bindings, 4)
	assert.Equal(t, ResourceProxyKindSampler, draw.Bindings[0].Kind)
	require.NotNil(t, draw.DepthTarget)
	assert.Equal(t, depthTarget.ID, draw.DepthTarget.ID)
	assert.Empty(t, draw.Targets, "the depth pass has no color attachments")
	assert.False(t, draw.Load)
	assert.Equal(t, float32(1), draw.ClearDepth)
	require.Len(t, draw.Overrides, 1)
	assert.Equal(t, "near_plane", draw.Overrides[0].Name)
	assert.Equal(t, 1.0, draw.Overrides[0].Value)

	_, ok = recording.Commands[4].(*FreeBuffer)
	assert.True(t, ok)
	_, ok = recording.Commands[5].(*FreeBuffer)
	assert.True(t, ok)
}

func TestRenderBillboardsAtlasCache(t *testing.T) {
	rd := New()
	camera := NewCamera(16, 16, 1, 0.5, 100)
	atlas := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	depthTarget := NewImageProxy(16, 16, Depth32Float)

	count := func(rec *Recording) int {
		n := 0
		for _, cmd := range rec.Commands {
			if _, ok := cmd.(*UploadImage); ok {
				n++
			}
		}
		return n
	}

	first := &Recording{}
	rd.RenderBillboards(first, testShaders, testParams(), camera, nil, atlas, depthTarget, nopGroup{})
	assert.Equal(t, 1, count(first))

	second := &Recording{}
	rd.RenderBillboards(second, testShaders, testParams(), camera, nil, atlas, depthTarget, nopGroup{})
	assert.Equal(t, 0, count(second), "a known atlas image must not be uploaded again")
}

func TestRenderBillboardsEmptyBatch(t *testing.T) {
	rd := New()
	camera := NewCamera(16, 16, 1, 0.5, 100)
	atlas := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	depthTarget := NewImageProxy(16, 16, Depth32Float)

	recording := &Recording{}
	rd.RenderBillboards(recording, testShaders, testParams(), camera, nil, atlas, depthTarget, nopGroup{})

	var draw *Draw
	var upload *Upload
	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *Draw:
			draw = cmd
		case *Upload:
			upload = cmd
		}
	}
	require.NotNil(t, draw)
	require.NotNil(t, upload)
	assert.Equal(t, uint32(0), draw.InstanceCount)
	assert.NotEmpty(t, upload.Data, "storage bindings cannot be empty")
	assert.Zero(t, len(upload.Data)%16)
}

func TestRenderBillboardsAtlasSubimage(t *testing.T) {
	rd := New()
	camera := NewCamera(16, 16, 1, 0.5, 100)
	full := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	copy(full.Pix[full.PixOffset(1, 1):], []byte{255, 0, 0, 255})
	atlas := full.SubImage(image.Rect(1, 1, 3, 3)).(*image.NRGBA)
	depthTarget := NewImageProxy(16, 16, Depth32Float)

	recording := &Recording{}
	rd.RenderBillboards(recording, testShaders, testParams(), camera, nil, atlas, depthTarget, nopGroup{})

	var upload *UploadImage
	for _, cmd := range recording.Commands {
		if cmd, ok := cmd.(*UploadImage); ok {
			upload = cmd
		}
	}
	require.NotNil(t, upload)
	assert.Equal(t, uint32(2), upload.Image.Width)
	assert.Equal(t, uint32(2), upload.Image.Height)
	// The subimage's stride spans the full parent; the upload has to be
	// tightly packed.
	require.Len(t, upload.Data, 2*2*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, upload.Data[:4])
}

func TestRenderResolveRecording(t *testing.T) {
	rd := New()
	accumulation := NewImageProxyMSAA(16, 16, Rgba16Float, 4)
	revealage := NewImageProxyMSAA(16, 16, R8, 4)
	target := NewImageProxy(16, 16, Rgba8)

	recording := &Recording{}
	rd.RenderResolve(recording, testShaders, testParams(), accumulation, revealage, target, nopGroup{})

	require.Len(t, recording.Commands, 1)
	draw, ok := recording.Commands[0].(*Draw)
	require.True(t, ok)
	assert.Equal(t, testShaders.OITResolve, draw.Shader)
	assert.Equal(t, uint32(6), draw.VertexCount)
	assert.Equal(t, uint32(1), draw.InstanceCount)
	require.Len(t, draw.Bindings, 2)
	assert.Equal(t, accumulation.ID, draw.Bindings[0].ImageProxy.ID)
	assert.Equal(t, revealage.ID, draw.Bindings[1].ImageProxy.ID)
	require.Len(t, draw.Targets, 1)
	assert.Equal(t, target.ID, draw.Targets[0].ID)
	assert.True(t, draw.Load, "the resolve blends over existing contents")
	require.Len(t, draw.Overrides, 1)
	assert.Equal(t, "MSAA_SAMPLE_COUNT", draw.Overrides[0].Name)
	assert.Equal(t, 4.0, draw.Overrides[0].Value)
}

func TestRenderResolveBaseColor(t *testing.T) {
	rd := New()
	accumulation := NewImageProxyMSAA(16, 16, Rgba16Float, 4)
	revealage := NewImageProxyMSAA(16, 16, R8, 4)
	target := NewImageProxy(16, 16, Rgba8)

	params := testParams()
	bg := color.Make(color.SRGB, 1, 0, 0, 0.5)
	params.BaseColor = &bg

	recording := &Recording{}
	rd.RenderResolve(recording, testShaders, params, accumulation, revealage, target, nopGroup{})

	require.Len(t, recording.Commands, 1)
	draw, ok := recording.Commands[0].(*Draw)
	require.True(t, ok)
	assert.False(t, draw.Load, "a base color replaces the target's contents")
	// Channel endpoints survive the conversion to linear exactly; alpha
	// passes through.
	assert.Equal(t, [4]float32{1, 0, 0, 0.5}, draw.ClearColor)
}
