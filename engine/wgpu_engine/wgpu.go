package wgpu_engine

// OPT reuse bind groups

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"honnef.co/go/jorangar/engine/wgpu_engine/shaders"
	"honnef.co/go/jorangar/engine/wgpu_engine/shaders/cpu"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/wgpu"
)

type Engine struct {
	Device      *wgpu.Device
	shaders     []shader
	pool        resourcePool
	UseCPU      bool
	WarpedDepth bool

	nearestSampler *wgpu.Sampler
	fullShaders    *renderer.FullShaders
	blit           *blitPipeline
	target         *targetTexture

	// CPU materializations of images survive across recordings so that
	// results can be read back after RunRecording.
	cpuImages map[renderer.ResourceID]cpu.CPUBinding
}

type wgpuShader struct {
	label            string
	source           shaders.RenderShader
	fragmentEntry    string
	bindGroupLayouts []*wgpu.BindGroupLayout
	pipelineLayout   *wgpu.PipelineLayout
	// Pipelines are cached per baked constant values and attachment
	// configuration.
	pipelines map[pipelineKey]*wgpu.RenderPipeline
}

type cpuShader struct {
	shader func(overrides map[string]float64, resources []cpu.CPUBinding)
}

type shader struct {
	Label string
	WGPU  *wgpuShader
	CPU   *cpuShader
}

func (s shader) Select() any {
	if s.CPU != nil {
		return s.CPU
	} else if s.WGPU != nil {
		return s.WGPU
	} else {
		panic(fmt.Sprintf("no available shader for %s", s.Label))
	}
}

type pipelineKey struct {
	overrides   string
	targets     string
	sampleCount uint32
}

func drawPipelineKey(cmd *renderer.Draw) pipelineKey {
	var sb strings.Builder
	for _, o := range cmd.Overrides {
		sb.WriteString(o.Name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(o.Value, 'g', -1, 64))
		sb.WriteByte(';')
	}
	var tb strings.Builder
	for _, t := range cmd.Targets {
		fmt.Fprintf(&tb, "%d;", t.Format)
	}
	var samples uint32 = 1
	if cmd.DepthTarget != nil {
		tb.WriteString("depth;")
		samples = max(samples, cmd.DepthTarget.Samples)
	}
	for _, t := range cmd.Targets {
		samples = max(samples, t.Samples)
	}
	return pipelineKey{
		overrides:   sb.String(),
		targets:     tb.String(),
		sampleCount: samples,
	}
}

type ExternalResource interface {
	// One of ExternalBuffer and ExternalImage
}

type ExternalBuffer struct {
	Proxy  renderer.BufferProxy
	Buffer *wgpu.Buffer
}

type ExternalImage struct {
	Proxy renderer.ImageProxy
	View  *wgpu.TextureView
}

type materializedBuffer interface {
	// One of wgpu.Buffer and []byte
}

type bindMapBuffer struct {
	Buffer materializedBuffer
	Label  string
}

type bindMapImage struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

type bindMap struct {
	bufMap   map[renderer.ResourceID]*bindMapBuffer
	imageMap map[renderer.ResourceID]*bindMapImage
}

type bufferProperties struct {
	size   uint64
	usages wgpu.BufferUsage
}

type resourcePool struct {
	bufs map[bufferProperties][]*wgpu.Buffer
}

type transientBindMap struct {
	bufs   map[renderer.ResourceID]transientBuf
	images map[renderer.ResourceID]*wgpu.TextureView
}

type transientBufKind int

const (
	transientBufKindBytes transientBufKind = iota + 1
	transientBufKindBuffer
)

type transientBuf struct {
	kind   transientBufKind
	bytes  []byte
	buffer *wgpu.Buffer
}

func New(dev *wgpu.Device, options *RendererOptions) *Engine {
	eng := &Engine{
		Device: dev,
		pool: resourcePool{
			bufs: make(map[bufferProperties][]*wgpu.Buffer),
		},
		UseCPU:      options.UseCPU,
		WarpedDepth: options.WarpedDepth,
		cpuImages:   make(map[renderer.ResourceID]cpu.CPUBinding),
	}
	if dev != nil {
		eng.nearestSampler = dev.CreateSampler(&wgpu.SamplerDescriptor{
			Label:        "nearest sampler",
			AddressModeU: wgpu.AddressModeClampToEdge,
			AddressModeV: wgpu.AddressModeClampToEdge,
			AddressModeW: wgpu.AddressModeClampToEdge,
			MagFilter:    wgpu.FilterModeNearest,
			MinFilter:    wgpu.FilterModeNearest,
			MipmapFilter: wgpu.MipmapFilterModeNearest,
		})
	}
	eng.fullShaders = eng.newFullShaders()
	if dev != nil && options.SurfaceFormat != 0 {
		eng.blit = newBlitPipeline(eng.Device, options.SurfaceFormat)
	}
	return eng
}

func (eng *Engine) FullShaders() *renderer.FullShaders {
	return eng.fullShaders
}

func (eng *Engine) addShader(
	label string,
	source shaders.RenderShader,
	cpuImpl *cpuShader,
) renderer.ShaderID {
	id := renderer.ShaderID(len(eng.shaders))
	if eng.UseCPU {
		if cpuImpl == nil {
			panic(fmt.Sprintf("no CPU shader for %s", label))
		}
		eng.shaders = append(eng.shaders, shader{Label: label, CPU: cpuImpl})
		return id
	}

	fragmentEntry := "fs_main"
	if eng.WarpedDepth && label == "billboard" {
		fragmentEntry = "fs_main_warped"
	}

	// One bind group layout per group, including empty groups below the
	// highest used index.
	numGroups := uint32(0)
	for _, b := range source.Bindings {
		numGroups = max(numGroups, b.Group+1)
	}
	layouts := make([]*wgpu.BindGroupLayout, numGroups)
	for group := range numGroups {
		var entries []wgpu.BindGroupLayoutEntry
		for _, b := range source.Bindings {
			if b.Group != group {
				continue
			}
			entry := wgpu.BindGroupLayoutEntry{
				Binding:    b.Binding,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			}
			switch b.Type {
			case shaders.Uniform:
				entry.Buffer = &wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				}
			case shaders.BufReadOnly:
				entry.Buffer = &wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeReadOnlyStorage,
				}
			case shaders.Texture:
				entry.Texture = &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
					Multisampled:  false,
				}
			case shaders.TextureMSAA:
				entry.Texture = &wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
					Multisampled:  true,
				}
			case shaders.Sampler:
				entry.Sampler = &wgpu.SamplerBindingLayout{
					Type: wgpu.SamplerBindingTypeNonFiltering,
				}
			default:
				panic(fmt.Sprintf("invalid bind type %d", b.Type))
			}
			entries = append(entries, entry)
		}
		layouts[group] = eng.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Entries: entries,
		})
	}
	pipelineLayout := eng.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: layouts,
	})

	eng.shaders = append(eng.shaders, shader{
		Label: label,
		WGPU: &wgpuShader{
			label:            label,
			source:           source,
			fragmentEntry:    fragmentEntry,
			bindGroupLayouts: layouts,
			pipelineLayout:   pipelineLayout,
			pipelines:        make(map[pipelineKey]*wgpu.RenderPipeline),
		},
	})
	return id
}

func (eng *Engine) pipelineForDraw(s *wgpuShader, cmd *renderer.Draw) *wgpu.RenderPipeline {
	key := drawPipelineKey(cmd)
	if pipeline, ok := s.pipelines[key]; ok {
		return pipeline
	}

	overrides := make(map[string]float64, len(cmd.Overrides))
	for _, o := range cmd.Overrides {
		overrides[o.Name] = o.Value
	}
	wgsl, err := s.source.WithOverrides(overrides)
	if err != nil {
		panic(fmt.Sprintf("baking constants for %s: %s", s.label, err))
	}
	module := eng.Device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  s.label,
		Source: wgpu.ShaderSourceWGSL(wgsl),
	})

	targets := make([]wgpu.ColorTargetState, len(cmd.Targets))
	for i, t := range cmd.Targets {
		targets[i] = wgpu.ColorTargetState{
			Format: imageFormatToWGPU(t.Format),
			Blend: &wgpu.BlendState{
				Color: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorSrcAlpha,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
				Alpha: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorOne,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
			},
			WriteMask: wgpu.ColorWriteMaskAll,
		}
	}
	var depthStencil *wgpu.DepthStencilState
	if cmd.DepthTarget != nil {
		depthStencil = &wgpu.DepthStencilState{
			Format:            imageFormatToWGPU(cmd.DepthTarget.Format),
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
		}
	}

	pipeline := eng.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  s.label,
		Layout: s.pipelineLayout,
		Vertex: &wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: s.fragmentEntry,
			Targets:    targets,
		},
		Primitive: &wgpu.PrimitiveState{
			Topology:         wgpu.PrimitiveTopologyTriangleList,
			StripIndexFormat: ^wgpu.IndexFormat(0),
			FrontFace:        wgpu.FrontFaceCCW,
			CullMode:         wgpu.CullModeNone,
		},
		DepthStencil: depthStencil,
		Multisample: &wgpu.MultisampleState{
			Count:                  key.sampleCount,
			Mask:                   ^uint32(0),
			AlphaToCoverageEnabled: false,
		},
	})
	module.Release()
	s.pipelines[key] = pipeline
	return pipeline
}

func (eng *Engine) RunRecording(
	queue *wgpu.Queue,
	recording *renderer.Recording,
	externalResources []ExternalResource,
	label string,
	pgroup *ProfilerGroup,
) {
	pgroup = pgroup.Nest("RunRecording")
	defer pgroup.End()

	if eng.UseCPU {
		eng.runRecordingCPU(recording)
		return
	}

	freeBufs := map[renderer.ResourceID]struct{}{}
	freeImages := map[renderer.ResourceID]struct{}{}
	transientMap := newTransientBindMap(externalResources)
	bindMap := bindMap{
		bufMap:   make(map[renderer.ResourceID]*bindMapBuffer),
		imageMap: make(map[renderer.ResourceID]*bindMapImage),
	}

	encoder := eng.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			bufProxy := cmd.Buffer
			bytes := cmd.Data
			transientMap.bufs[bufProxy.ID] = transientBuf{kind: transientBufKindBytes, bytes: bytes}
			usage := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst | wgpu.BufferUsageStorage
			buf := eng.pool.getBuf(bufProxy.Size, bufProxy.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, bytes)
			bindMap.insertBuf(bufProxy, buf)

		case *renderer.UploadUniform:
			bufProxy := cmd.Buffer
			bytes := cmd.Data
			transientMap.bufs[bufProxy.ID] = transientBuf{kind: transientBufKindBytes, bytes: bytes}
			usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			buf := eng.pool.getBuf(bufProxy.Size, bufProxy.Name, usage, eng.Device)
			queue.WriteBuffer(buf, 0, bytes)
			bindMap.insertBuf(bufProxy, buf)

		case *renderer.UploadImage:
			imageProxy := cmd.Image
			bytes := cmd.Data
			format := imageFormatToWGPU(imageProxy.Format)
			blockSize, ok := format.BlockCopySize(wgpu.TextureAspectAll)
			if !ok {
				panic("image format must have a valid block size")
			}
			texture := eng.Device.CreateTexture(&wgpu.TextureDescriptor{
				Size: wgpu.Extent3D{
					Width:              imageProxy.Width,
					Height:             imageProxy.Height,
					DepthOrArrayLayers: 1,
				},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     wgpu.TextureDimension2D,
				Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
				Format:        format,
			})
			textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
				Dimension:       wgpu.TextureViewDimension2D,
				Aspect:          wgpu.TextureAspectAll,
				MipLevelCount:   ^uint32(0),
				ArrayLayerCount: ^uint32(0),
				Format:          format,
			})
			queue.WriteTexture(
				&wgpu.ImageCopyTexture{
					Texture: texture,
					Aspect:  wgpu.TextureAspectAll,
				},
				bytes,
				&wgpu.TextureDataLayout{
					BytesPerRow:  imageProxy.Width * blockSize,
					RowsPerImage: ^uint32(0),
				},
				&wgpu.Extent3D{
					Width:              imageProxy.Width,
					Height:             imageProxy.Height,
					DepthOrArrayLayers: 1,
				},
			)
			bindMap.insertImage(imageProxy.ID, texture, textureView)

		case *renderer.Draw:
			shader := eng.shaders[cmd.Shader]
			switch s := shader.Select().(type) {
			case *wgpuShader:
				eng.encodeDraw(queue, encoder, &bindMap, &transientMap, s, cmd, pgroup)
			default:
				panic(fmt.Sprintf("unhandled type %T", s))
			}

		case *renderer.FreeBuffer:
			freeBufs[cmd.Buffer.ID] = struct{}{}

		case *renderer.FreeImage:
			freeImages[cmd.Image.ID] = struct{}{}

		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}

	cmd := encoder.Finish(nil)
	encoder.Release()
	queue.Submit(cmd)
	cmd.Release()

	for id := range freeBufs {
		if buf, ok := bindMap.bufMap[id]; ok {
			delete(bindMap.bufMap, id)
			if gpuBuf, ok := buf.Buffer.(*wgpu.Buffer); ok {
				props := bufferProperties{
					size:   gpuBuf.Size(),
					usages: gpuBuf.Usage(),
				}
				eng.pool.bufs[props] = append(eng.pool.bufs[props], gpuBuf)
			}
		}
	}
	for id := range freeImages {
		if tex, ok := bindMap.imageMap[id]; ok {
			delete(bindMap.imageMap, id)
			// TODO: have a pool to avoid needless re-allocation
			tex.texture.Release()
			tex.view.Release()
		}
	}
}

func (eng *Engine) encodeDraw(
	queue *wgpu.Queue,
	encoder *wgpu.CommandEncoder,
	bindMap *bindMap,
	transientMap *transientBindMap,
	s *wgpuShader,
	cmd *renderer.Draw,
	pgroup *ProfilerGroup,
) {
	pipeline := eng.pipelineForDraw(s, cmd)
	bindGroups := transientMap.createBindGroups(
		bindMap,
		&eng.pool,
		eng,
		queue,
		s,
		cmd.Bindings,
	)

	colorAttachments := make([]wgpu.RenderPassColorAttachment, len(cmd.Targets))
	for i, t := range cmd.Targets {
		view := transientMap.materializeImage(bindMap, eng, t, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
		loadOp := wgpu.LoadOpClear
		if cmd.Load {
			loadOp = wgpu.LoadOpLoad
		}
		colorAttachments[i] = wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  loadOp,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(cmd.ClearColor[0]),
				G: float64(cmd.ClearColor[1]),
				B: float64(cmd.ClearColor[2]),
				A: float64(cmd.ClearColor[3]),
			},
		}
	}
	var depthAttachment *wgpu.RenderPassDepthStencilAttachment
	if cmd.DepthTarget != nil {
		view := transientMap.materializeImage(bindMap, eng, *cmd.DepthTarget, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
		depthLoadOp := wgpu.LoadOpClear
		if cmd.Load {
			depthLoadOp = wgpu.LoadOpLoad
		}
		depthAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     depthLoadOp,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: cmd.ClearDepth,
		}
	}

	rpass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:                  s.label,
		ColorAttachments:       colorAttachments,
		DepthStencilAttachment: depthAttachment,
		TimestampWrites:        pgroup.Render(s.label),
	})
	rpass.SetPipeline(pipeline)
	for group, bindGroup := range bindGroups {
		rpass.SetBindGroup(uint32(group), bindGroup, nil)
	}
	rpass.Draw(cmd.VertexCount, cmd.InstanceCount, 0, 0)
	rpass.End()
	for _, bindGroup := range bindGroups {
		if bindGroup != nil {
			bindGroup.Release()
		}
	}
	rpass.Release()
}

func (m *bindMap) insertBuf(proxy renderer.BufferProxy, buffer *wgpu.Buffer) {
	m.bufMap[proxy.ID] = &bindMapBuffer{
		Buffer: buffer,
		Label:  proxy.Name,
	}
}

func (m *bindMap) getGPUBuf(id renderer.ResourceID) (*wgpu.Buffer, bool) {
	mbuf, ok := m.bufMap[id]
	if !ok {
		return nil, false
	}
	buf, ok := mbuf.Buffer.(*wgpu.Buffer)
	return buf, ok
}

func (m *bindMap) insertImage(id renderer.ResourceID, image *wgpu.Texture, imageView *wgpu.TextureView) {
	m.imageMap[id] = &bindMapImage{image, imageView}
}

func (pool *resourcePool) getBuf(
	size uint64,
	name string,
	usage wgpu.BufferUsage,
	dev *wgpu.Device,
) *wgpu.Buffer {
	const sizeClassBits = 1

	roundedSize := poolSizeClass(size, sizeClassBits)
	props := bufferProperties{
		size:   roundedSize,
		usages: usage,
	}
	if bufVec, ok := pool.bufs[props]; ok {
		if len(bufVec) > 0 {
			buf := bufVec[len(bufVec)-1]
			bufVec = bufVec[:len(bufVec)-1]
			pool.bufs[props] = bufVec
			return buf
		}
	}
	return dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: name,
		Size:  roundedSize,
		Usage: usage,
	})
}

func poolSizeClass(x uint64, numBits uint32) uint64 {
	if x > 1<<numBits {
		a := bits.LeadingZeros64(x - 1)
		b := (x - 1) | (((math.MaxUint64 / 2) >> numBits) >> a)
		return b + 1
	} else {
		return 1 << numBits
	}
}

func (b *bindMapBuffer) uploadIfNeeded(
	proxy renderer.BufferProxy,
	dev *wgpu.Device,
	queue *wgpu.Queue,
	pool *resourcePool,
) {
	cpuBuf, ok := b.Buffer.([]byte)
	if !ok {
		return
	}
	usage := wgpu.BufferUsageCopySrc |
		wgpu.BufferUsageCopyDst |
		wgpu.BufferUsageStorage
	buf := pool.getBuf(proxy.Size, proxy.Name, usage, dev)
	queue.WriteBuffer(buf, 0, cpuBuf)
	b.Buffer = buf
}

func newTransientBindMap(externalResources []ExternalResource) transientBindMap {
	bufs := map[renderer.ResourceID]transientBuf{}
	images := map[renderer.ResourceID]*wgpu.TextureView{}
	for _, res := range externalResources {
		switch res := res.(type) {
		case ExternalBuffer:
			bufs[res.Proxy.ID] = transientBuf{kind: transientBufKindBuffer, buffer: res.Buffer}
		case ExternalImage:
			images[res.Proxy.ID] = res.View
		}
	}
	return transientBindMap{
		bufs:   bufs,
		images: images,
	}
}

// materializeImage returns a view for the proxy, creating the texture
// with the given usage if no upload or external resource provided one.
func (m *transientBindMap) materializeImage(
	bindMap *bindMap,
	eng *Engine,
	proxy renderer.ImageProxy,
	usage wgpu.TextureUsage,
) *wgpu.TextureView {
	if view, ok := m.images[proxy.ID]; ok {
		return view
	}
	if img, ok := bindMap.imageMap[proxy.ID]; ok {
		return img.view
	}
	format := imageFormatToWGPU(proxy.Format)
	texture := eng.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size: wgpu.Extent3D{
			Width:              proxy.Width,
			Height:             proxy.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   max(proxy.Samples, 1),
		Dimension:     wgpu.TextureDimension2D,
		Usage:         usage,
		Format:        format,
	})
	textureView := texture.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		Aspect:          wgpu.TextureAspectAll,
		MipLevelCount:   ^uint32(0),
		ArrayLayerCount: ^uint32(0),
		Format:          format,
	})
	bindMap.imageMap[proxy.ID] = &bindMapImage{texture, textureView}
	return textureView
}

// createBindGroups builds one bind group per group index of the shader's
// binding table. Draw bindings are matched to table entries by order.
func (m *transientBindMap) createBindGroups(
	bindMap *bindMap,
	pool *resourcePool,
	eng *Engine,
	queue *wgpu.Queue,
	s *wgpuShader,
	bindings []renderer.ResourceProxy,
) []*wgpu.BindGroup {
	if len(bindings) != len(s.source.Bindings) {
		panic(fmt.Sprintf("shader %s needs %d bindings, got %d", s.label, len(s.source.Bindings), len(bindings)))
	}

	for _, proxy := range bindings {
		switch proxy.Kind {
		case renderer.ResourceProxyKindBuffer:
			if _, ok := m.bufs[proxy.BufferProxy.ID]; ok {
				continue
			}
			if o, ok := bindMap.bufMap[proxy.BufferProxy.ID]; ok {
				o.uploadIfNeeded(proxy.BufferProxy, eng.Device, queue, pool)
			} else {
				usage := wgpu.BufferUsageCopySrc |
					wgpu.BufferUsageCopyDst |
					wgpu.BufferUsageStorage
				buf := pool.getBuf(proxy.Size, proxy.Name, usage, eng.Device)
				bindMap.bufMap[proxy.BufferProxy.ID] = &bindMapBuffer{
					Buffer: buf,
					Label:  proxy.Name,
				}
			}
		case renderer.ResourceProxyKindImage:
			m.materializeImage(bindMap, eng, proxy.ImageProxy, wgpu.TextureUsageTextureBinding|wgpu.TextureUsageCopyDst|wgpu.TextureUsageRenderAttachment)
		case renderer.ResourceProxyKindSampler:
			// Engine-owned, nothing to materialize.
		default:
			panic(fmt.Sprintf("unhandled type %d", proxy.Kind))
		}
	}

	groups := make([]*wgpu.BindGroup, len(s.bindGroupLayouts))
	entries := make([][]wgpu.BindGroupEntry, len(s.bindGroupLayouts))
	for i, proxy := range bindings {
		slot := s.source.Bindings[i]
		entry := wgpu.BindGroupEntry{
			Binding: slot.Binding,
			Size:    ^uint64(0),
		}
		switch proxy.Kind {
		case renderer.ResourceProxyKindBuffer:
			var buf *wgpu.Buffer
			if b, ok := m.bufs[proxy.BufferProxy.ID]; ok && b.kind == transientBufKindBuffer {
				buf = b.buffer
			} else {
				var ok bool
				buf, ok = bindMap.getGPUBuf(proxy.BufferProxy.ID)
				if !ok {
					panic("unexpected ok == false")
				}
			}
			entry.Buffer = buf
		case renderer.ResourceProxyKindImage:
			view, ok := m.images[proxy.ImageProxy.ID]
			if !ok {
				img, ok := bindMap.imageMap[proxy.ImageProxy.ID]
				if !ok {
					panic("unexpected ok == false")
				}
				view = img.view
			}
			entry.TextureView = view
		case renderer.ResourceProxyKindSampler:
			entry.Sampler = eng.nearestSampler
		default:
			panic(fmt.Sprintf("unhandled type %T", proxy))
		}
		entries[slot.Group] = append(entries[slot.Group], entry)
	}
	for group, layout := range s.bindGroupLayouts {
		groups[group] = eng.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout:  layout,
			Entries: entries[group],
		})
	}
	return groups
}

// runRecordingCPU executes the recording with the cpu package's shader
// implementations. Buffers live for the duration of the recording; image
// materializations persist on the engine for later readback.
func (eng *Engine) runRecordingCPU(recording *renderer.Recording) {
	bufs := map[renderer.ResourceID][]byte{}

	for _, cmd := range recording.Commands {
		switch cmd := cmd.(type) {
		case *renderer.Upload:
			bufs[cmd.Buffer.ID] = cmd.Data
		case *renderer.UploadUniform:
			bufs[cmd.Buffer.ID] = cmd.Data
		case *renderer.UploadImage:
			eng.cpuImages[cmd.Image.ID] = cpuTextureFromRGBA(cmd.Image, cmd.Data)
		case *renderer.Draw:
			shader := eng.shaders[cmd.Shader]
			switch s := shader.Select().(type) {
			case *cpuShader:
				resources := eng.cpuDrawResources(bufs, cmd)
				overrides := make(map[string]float64, len(cmd.Overrides))
				for _, o := range cmd.Overrides {
					overrides[o.Name] = o.Value
				}
				s.shader(overrides, resources)
			default:
				panic(fmt.Sprintf("unhandled type %T", s))
			}
		case *renderer.FreeBuffer:
			delete(bufs, cmd.Buffer.ID)
		case *renderer.FreeImage:
			delete(eng.cpuImages, cmd.Image.ID)
		default:
			panic(fmt.Sprintf("unhandled command %T", cmd))
		}
	}
}

// cpuDrawResources assembles the resource list for a CPU draw: the
// bindings in table order minus the sampler, followed by the depth
// target and the color targets.
func (eng *Engine) cpuDrawResources(bufs map[renderer.ResourceID][]byte, cmd *renderer.Draw) []cpu.CPUBinding {
	var resources []cpu.CPUBinding
	for _, proxy := range cmd.Bindings {
		switch proxy.Kind {
		case renderer.ResourceProxyKindBuffer:
			data, ok := bufs[proxy.BufferProxy.ID]
			if !ok {
				panic(fmt.Sprintf("buffer %q was never uploaded", proxy.Name))
			}
			resources = append(resources, cpu.CPUBuffer(data))
		case renderer.ResourceProxyKindImage:
			resources = append(resources, eng.cpuImage(proxy.ImageProxy, cmd))
		case renderer.ResourceProxyKindSampler:
			// Nearest sampling is hardcoded in the CPU shaders.
		default:
			panic(fmt.Sprintf("unhandled type %d", proxy.Kind))
		}
	}
	if cmd.DepthTarget != nil {
		resources = append(resources, eng.cpuImage(*cmd.DepthTarget, cmd))
	}
	for _, t := range cmd.Targets {
		resources = append(resources, eng.cpuImage(t, cmd))
	}
	return resources
}

func isColorTarget(cmd *renderer.Draw, id renderer.ResourceID) bool {
	for _, t := range cmd.Targets {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (eng *Engine) cpuImage(proxy renderer.ImageProxy, cmd *renderer.Draw) cpu.CPUBinding {
	if img, ok := eng.cpuImages[proxy.ID]; ok {
		if !cmd.Load {
			switch target := img.(type) {
			case *cpu.CPUDepthTarget:
				if cmd.DepthTarget != nil && proxy.ID == cmd.DepthTarget.ID {
					target.Clear(cmd.ClearDepth)
				}
			case cpu.CPUTexture:
				if isColorTarget(cmd, proxy.ID) {
					target.Clear(cmd.ClearColor)
				}
			}
		}
		return img
	}

	var img cpu.CPUBinding
	switch {
	case proxy.Format == renderer.Depth32Float:
		target := &cpu.CPUDepthTarget{
			Width:  int(proxy.Width),
			Height: int(proxy.Height),
			Depth:  make([]float32, proxy.Width*proxy.Height),
		}
		if cmd.DepthTarget != nil && proxy.ID == cmd.DepthTarget.ID {
			target.Clear(cmd.ClearDepth)
		}
		img = target
	case proxy.Samples > 1:
		img = cpu.CPUTextureMSAA{
			Width:   int(proxy.Width),
			Height:  int(proxy.Height),
			Samples: int(proxy.Samples),
			Texels:  make([][4]float32, proxy.Width*proxy.Height*proxy.Samples),
		}
	default:
		target := cpu.CPUTexture{
			Width:  int(proxy.Width),
			Height: int(proxy.Height),
			Pixels: make([]uint32, proxy.Width*proxy.Height),
		}
		if isColorTarget(cmd, proxy.ID) && !cmd.Load {
			target.Clear(cmd.ClearColor)
		}
		img = target
	}
	eng.cpuImages[proxy.ID] = img
	return img
}

// CPUDepthTarget returns the CPU materialization of a depth image. It
// only returns true in CPU mode, after a recording has drawn to the
// proxy.
func (eng *Engine) CPUDepthTarget(proxy renderer.ImageProxy) (*cpu.CPUDepthTarget, bool) {
	img, ok := eng.cpuImages[proxy.ID].(*cpu.CPUDepthTarget)
	return img, ok
}

// CPUTexture returns the CPU materialization of a color image.
func (eng *Engine) CPUTexture(proxy renderer.ImageProxy) (cpu.CPUTexture, bool) {
	img, ok := eng.cpuImages[proxy.ID].(cpu.CPUTexture)
	return img, ok
}

// SeedCPUImage installs an externally built CPU resource, such as
// pre-rasterized accumulation and revealage textures for the resolve
// pass.
func (eng *Engine) SeedCPUImage(proxy renderer.ImageProxy, img cpu.CPUBinding) {
	eng.cpuImages[proxy.ID] = img
}

func cpuTextureFromRGBA(proxy renderer.ImageProxy, data []byte) cpu.CPUTexture {
	pixels := make([]uint32, proxy.Width*proxy.Height)
	for i := range pixels {
		pixels[i] = uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
	}
	return cpu.CPUTexture{
		Width:  int(proxy.Width),
		Height: int(proxy.Height),
		Pixels: pixels,
	}
}
