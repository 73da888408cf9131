// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"image"

	"honnef.co/go/jorangar/gfx"
	"honnef.co/go/jorangar/profiler"
	"honnef.co/go/safeish"
)

type FullShaders struct {
	Billboard  ShaderID
	OITResolve ShaderID
}

// Renderer records the two sprite passes. It caches atlas uploads across
// frames, keyed by the image value.
type Renderer struct {
	// OPT(dh): there is currently no way to delete images. We should a) track
	// when an image was last used b) total VRAM usage and garbage collect
	// images. Once Go supports weak pointers, we'll also want to delete images
	// that were garbage collected.
	images map[image.Image]ImageProxy
}

func New() *Renderer {
	return &Renderer{
		images: make(map[image.Image]ImageProxy),
	}
}

func (rd *Renderer) uploadImage(recording *Recording, img *image.NRGBA) ImageProxy {
	if proxy, ok := rd.images[img]; ok {
		return proxy
	}
	b := img.Bounds()
	proxy := recording.UploadImage(uint32(b.Dx()), uint32(b.Dy()), Rgba8Srgb, gfx.Image{Image: img}.RGBA8Data())
	rd.images[img] = proxy
	return proxy
}

// RenderBillboards records the billboard depth pass: six vertices per
// instance, rendered into depthTarget with the atlas texture bound. The
// returned recording borrows instances until it has been executed.
func (rd *Renderer) RenderBillboards(
	recording *Recording,
	shaders *FullShaders,
	params *RenderParams,
	camera *Camera,
	instances []InstanceRecord,
	atlas *image.NRGBA,
	depthTarget ImageProxy,
	pgroup profiler.ProfilerGroup,
) {
	pgroup = pgroup.Start("RenderBillboards")
	defer pgroup.End()

	uniforms := PassUniforms{
		ViewProjection: camera.ViewProjection(),
		AnimationTimer: params.AnimationTimer,
	}
	uniformBuf := recording.UploadUniform("billboard uniforms", safeish.AsBytes(&uniforms))

	instanceSize := NewBufferSize[InstanceRecord](uint32(len(instances)))
	instanceData := safeish.SliceCast[[]byte](instances)
	if len(instanceData) < int(instanceSize.sizeInBytes()) {
		// Zero instances still need a non-empty binding.
		instanceData = make([]byte, nextMultipleOf(instanceSize.sizeInBytes(), 16))
	}
	instanceBuf := recording.Upload("billboard instances", instanceData)

	atlasProxy := rd.uploadImage(recording, atlas)

	recording.Draw(Draw{
		Shader:        shaders.Billboard,
		VertexCount:   6,
		InstanceCount: uint32(len(instances)),
		Bindings: []ResourceProxy{
			NearestSampler(),
			uniformBuf.Resource(),
			instanceBuf.Resource(),
			atlasProxy.Resource(),
		},
		Overrides: []OverrideValue{
			{Name: "near_plane", Value: float64(params.NearPlane)},
		},
		DepthTarget: &depthTarget,
		ClearDepth:  1,
	})

	recording.FreeBuffer(uniformBuf)
	recording.FreeBuffer(instanceBuf)
}

// RenderResolve records the translucency resolve pass: one fullscreen
// quad averaging the per-sample accumulation and revealage data into
// target. The pass output blends over the target's existing contents,
// unless params' BaseColor asks for the target to be cleared first.
func (rd *Renderer) RenderResolve(
	recording *Recording,
	shaders *FullShaders,
	params *RenderParams,
	accumulation ImageProxy,
	revealage ImageProxy,
	target ImageProxy,
	pgroup profiler.ProfilerGroup,
) {
	pgroup = pgroup.Start("RenderResolve")
	defer pgroup.End()

	load := params.BaseColor == nil
	var clear [4]float32
	if !load {
		cc := gfx.FromCSS(*params.BaseColor)
		clear = [4]float32{cc.R, cc.G, cc.B, cc.A}
	}

	recording.Draw(Draw{
		Shader:        shaders.OITResolve,
		VertexCount:   6,
		InstanceCount: 1,
		Bindings: []ResourceProxy{
			accumulation.Resource(),
			revealage.Resource(),
		},
		Overrides: []OverrideValue{
			{Name: "MSAA_SAMPLE_COUNT", Value: float64(params.SampleCount)},
		},
		Targets:    []ImageProxy{target},
		Load:       load,
		ClearColor: clear,
	})
}
