package wgpu_engine

import (
	"fmt"
	"image"
	"reflect"

	"honnef.co/go/jorangar/engine/wgpu_engine/shaders"
	"honnef.co/go/jorangar/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/wgpu"
)

type RendererOptions struct {
	// SurfaceFormat is required for RenderToSurface; leave zero for
	// surfaceless use.
	SurfaceFormat wgpu.TextureFormat
	UseCPU        bool
	// WarpedDepth selects the fragment path that returns the
	// curvature-adjusted depth instead of the raw one.
	WarpedDepth bool
}

func (eng *Engine) newFullShaders() *renderer.FullShaders {
	cpuImpls := map[string]*cpuShader{
		"billboard": {shader: func(overrides map[string]float64, resources []cpu.CPUBinding) {
			nearPlane := float32(1)
			if v, ok := overrides["near_plane"]; ok {
				nearPlane = float32(v)
			}
			cpu.Billboard(nearPlane, eng.WarpedDepth, resources)
		}},
		"oit_resolve": {shader: func(overrides map[string]float64, resources []cpu.CPUBinding) {
			cpu.OITResolve(resources)
		}},
	}

	var out renderer.FullShaders
	outV := reflect.ValueOf(&out).Elem()
	v := reflect.ValueOf(&shaders.Collection).Elem()
	for i := range v.NumField() {
		fieldName := v.Type().Field(i).Name
		outField := outV.FieldByName(fieldName)
		if !outField.IsValid() {
			continue
		}
		shader := v.Field(i).Interface().(shaders.RenderShader)
		if len(shader.WGSL) == 0 {
			panic(fmt.Sprintf("shader %q has no code", shader.Name))
		}
		id := eng.addShader(shader.Name, shader, cpuImpls[shader.Name])
		outField.Set(reflect.ValueOf(id))
	}
	return &out
}

type blitPipeline struct {
	BindLayout *wgpu.BindGroupLayout
	Pipeline   *wgpu.RenderPipeline
}

func newBlitPipeline(dev *wgpu.Device, format wgpu.TextureFormat) *blitPipeline {
	const src = `
			@vertex
			fn vs_main(@builtin(vertex_index) ix: u32) -> @builtin(position) vec4<f32> {
				// Generate a full screen quad in normalized device coordinates
				var vertex = vec2(-1.0, 1.0);
				switch ix {
					case 1u: {
						vertex = vec2(-1.0, -1.0);
					}
					case 2u, 4u: {
						vertex = vec2(1.0, -1.0);
					}
					case 5u: {
						vertex = vec2(1.0, 1.0);
					}
					default: {}
				}
				return vec4(vertex, 0.0, 1.0);
			}

			@group(0) @binding(0)
			var resolve_output: texture_2d<f32>;

			@fragment
			fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
				let rgba_sep = textureLoad(resolve_output, vec2<i32>(pos.xy), 0);
				return vec4(rgba_sep.rgb * rgba_sep.a, rgba_sep.a);
			}`

	shader := dev.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  "blit shaders",
		Source: wgpu.ShaderSourceWGSL(src),
	})
	bindLayout := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Visibility: wgpu.ShaderStageFragment,
				Binding:    0,
				Texture: &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
					Multisampled:  false,
				},
			},
		},
	})
	pipelineLayout := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "blit pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindLayout},
	})
	pipeline := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "blit pipeline",
		Layout: pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeBack,
		},
		Multisample: &wgpu.MultisampleState{
			Count:                  1,
			Mask:                   ^uint32(0),
			AlphaToCoverageEnabled: false,
		},
	})
	return &blitPipeline{
		BindLayout: bindLayout,
		Pipeline:   pipeline,
	}
}

type targetTexture struct {
	View   *wgpu.TextureView
	Width  uint32
	Height uint32
}

func newTargetTexture(dev *wgpu.Device, width, height uint32) *targetTexture {
	tex := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label: "target texture",
		Size: wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		Format:        wgpu.TextureFormatRGBA8Unorm,
	})
	defer tex.Release()
	view := tex.CreateView(nil)
	return &targetTexture{
		View:   view,
		Width:  width,
		Height: height,
	}
}

func imageFormatToWGPU(f renderer.ImageFormat) wgpu.TextureFormat {
	switch f {
	case renderer.Rgba8:
		return wgpu.TextureFormatRGBA8Unorm
	case renderer.Rgba8Srgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case renderer.Rgba16Float:
		return wgpu.TextureFormatRGBA16Float
	case renderer.R8:
		return wgpu.TextureFormatR8Unorm
	case renderer.Depth32Float:
		return wgpu.TextureFormatDepth32Float
	default:
		panic(fmt.Sprintf("unhandled value %d", f))
	}
}

// RenderDepthToTexture records the billboard depth pass for the given
// instances and executes it into texture, which must be a Depth32Float
// attachment of params' dimensions.
func (eng *Engine) RenderDepthToTexture(
	queue *wgpu.Queue,
	rd *renderer.Renderer,
	params *renderer.RenderParams,
	camera *renderer.Camera,
	instances []renderer.InstanceRecord,
	atlas *image.NRGBA,
	texture *wgpu.TextureView,
	pgroup *ProfilerGroup,
) renderer.ImageProxy {
	pgroup = pgroup.Nest("RenderDepthToTexture")
	defer pgroup.End()

	recording := &renderer.Recording{}
	depthTarget := renderer.NewImageProxy(params.Width, params.Height, renderer.Depth32Float)
	rd.RenderBillboards(recording, eng.fullShaders, params, camera, instances, atlas, depthTarget, pgroup)

	var externalResources []ExternalResource
	if texture != nil {
		externalResources = append(externalResources, ExternalImage{
			Proxy: depthTarget,
			View:  texture,
		})
	}
	eng.RunRecording(queue, recording, externalResources, "render_depth", pgroup)
	return depthTarget
}

// RenderResolveToTexture records the translucency resolve pass over the
// given multisampled inputs and executes it into texture.
func (eng *Engine) RenderResolveToTexture(
	queue *wgpu.Queue,
	rd *renderer.Renderer,
	params *renderer.RenderParams,
	accumulation ExternalImage,
	revealage ExternalImage,
	format renderer.ImageFormat,
	texture *wgpu.TextureView,
	pgroup *ProfilerGroup,
) renderer.ImageProxy {
	pgroup = pgroup.Nest("RenderResolveToTexture")
	defer pgroup.End()

	recording := &renderer.Recording{}
	target := renderer.NewImageProxy(params.Width, params.Height, format)
	rd.RenderResolve(recording, eng.fullShaders, params, accumulation.Proxy, revealage.Proxy, target, pgroup)

	externalResources := []ExternalResource{accumulation, revealage}
	if texture != nil {
		externalResources = append(externalResources, ExternalImage{
			Proxy: target,
			View:  texture,
		})
	}
	eng.RunRecording(queue, recording, externalResources, "render_resolve", pgroup)
	return target
}

// RenderToSurface resolves into an intermediate target and blits it to
// the surface.
func (eng *Engine) RenderToSurface(
	queue *wgpu.Queue,
	rd *renderer.Renderer,
	params *renderer.RenderParams,
	accumulation ExternalImage,
	revealage ExternalImage,
	surface *wgpu.SurfaceTexture,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RenderToSurface")
	defer pgroup.End()

	width := params.Width
	height := params.Height
	if eng.target == nil {
		eng.target = newTargetTexture(eng.Device, width, height)
	} else if eng.target.Width != width || eng.target.Height != height {
		eng.target.View.Release()
		eng.target = newTargetTexture(eng.Device, width, height)
	}

	ency := eng.Device.CreateCommandEncoder(nil)
	span := pgroup.Begin(ency, "total")
	cmdy := ency.Finish(nil)
	defer cmdy.Release()
	queue.Submit(cmdy)

	eng.RenderResolveToTexture(queue, rd, params, accumulation, revealage, renderer.Rgba8, eng.target.View, pgroup)

	surfaceView := surface.Texture.CreateView(nil)
	defer surfaceView.Release()

	bindGroup := eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: eng.blit.BindLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding:     0,
				TextureView: eng.target.View,
			},
		},
	})
	defer bindGroup.Release()

	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "blitter"})
	defer encoder.Release()
	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       surfaceView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 255},
			},
		},
		TimestampWrites: pgroup.Render("blit"),
	})
	defer renderPass.Release()

	renderPass.SetPipeline(eng.blit.Pipeline)
	renderPass.SetBindGroup(0, bindGroup, nil)
	renderPass.Draw(6, 1, 0, 0)
	renderPass.End()

	span.End(encoder)
	cmd := encoder.Finish(nil)
	defer cmd.Release()
	queue.Submit(cmd)
}
