// Copyright 2025 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package jorangar renders billboarded sprite entities with a
// depth-warped depth pass and a weighted blended order-independent
// transparency resolve pass.
//
// The package ties the layers together: the animation package turns
// sprite and action files into per-frame billboard instructions, the
// renderer package batches them and records the passes, and
// engine/wgpu_engine executes recordings on a wgpu device or, for
// debugging, on the CPU.
package jorangar

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"honnef.co/go/wgpu"

	"honnef.co/go/jorangar/animation"
	"honnef.co/go/jorangar/engine/wgpu_engine"
	"honnef.co/go/jorangar/renderer"
)

type RendererOptions = wgpu_engine.RendererOptions

// Entity is one animated sprite to draw.
type Entity struct {
	Data     *animation.Data
	Position mgl32.Vec3
	State    animation.State
	// HeadDirection turns the sprite relative to the camera's yaw
	// octant.
	HeadDirection int
}

// Frame is everything needed to draw one frame's worth of sprites. The
// atlas must hold the sprite frames of all entities' animation data.
type Frame struct {
	Camera   *renderer.Camera
	Atlas    *image.NRGBA
	Entities []Entity
}

// Renderer ties the batcher, the pass recorder, and the engine together.
// It is not safe for concurrent use.
type Renderer struct {
	options RendererOptions
	engine  *wgpu_engine.Engine
	rd      *renderer.Renderer
	batch   *renderer.BatchRenderer
}

func NewRenderer(dev *wgpu.Device, options RendererOptions) *Renderer {
	return &Renderer{
		options: options,
		engine:  wgpu_engine.New(dev, &options),
		rd:      renderer.New(),
		batch:   renderer.NewBatchRenderer(),
	}
}

// Engine exposes the underlying engine, for profiler wiring and for
// reading back CPU-mode render targets.
func (r *Renderer) Engine() *wgpu_engine.Engine {
	return r.engine
}

func (r *Renderer) batchFrame(frame *Frame) []renderer.InstanceRecord {
	r.batch.Reset()
	for i := range frame.Entities {
		e := &frame.Entities[i]
		e.Data.Render(r.batch, frame.Camera, e.Position, &e.State, e.HeadDirection)
	}
	return r.batch.Instances()
}

// RenderDepth batches the frame's entities and draws their billboards
// into texture, which must be a Depth32Float attachment of params'
// dimensions. In CPU mode texture may be nil; the result is read back
// through [wgpu_engine.Engine.CPUDepthTarget].
func (r *Renderer) RenderDepth(
	queue *wgpu.Queue,
	frame *Frame,
	params *renderer.RenderParams,
	texture *wgpu.TextureView,
	pgroup *wgpu_engine.ProfilerGroup,
) renderer.ImageProxy {
	instances := r.batchFrame(frame)
	return r.engine.RenderDepthToTexture(queue, r.rd, params, frame.Camera, instances, frame.Atlas, texture, pgroup)
}

// RenderResolve averages the multisampled accumulation and revealage
// textures and blends the result over texture.
func (r *Renderer) RenderResolve(
	queue *wgpu.Queue,
	params *renderer.RenderParams,
	accumulation wgpu_engine.ExternalImage,
	revealage wgpu_engine.ExternalImage,
	format renderer.ImageFormat,
	texture *wgpu.TextureView,
	pgroup *wgpu_engine.ProfilerGroup,
) renderer.ImageProxy {
	return r.engine.RenderResolveToTexture(queue, r.rd, params, accumulation, revealage, format, texture, pgroup)
}

// RenderToSurface resolves into an intermediate target and blits it to
// the surface. RendererOptions.SurfaceFormat must be set.
func (r *Renderer) RenderToSurface(
	queue *wgpu.Queue,
	params *renderer.RenderParams,
	accumulation wgpu_engine.ExternalImage,
	revealage wgpu_engine.ExternalImage,
	surface *wgpu.SurfaceTexture,
	pgroup *wgpu_engine.ProfilerGroup,
) {
	r.engine.RenderToSurface(queue, r.rd, params, accumulation, revealage, surface, pgroup)
}
