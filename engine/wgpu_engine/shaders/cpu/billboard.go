// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package cpu

import (
	"github.com/go-gl/mathgl/mgl32"
	"honnef.co/go/jorangar/jmath"
	"honnef.co/go/jorangar/renderer"
	"honnef.co/go/safeish"
)

const depth_epsilon = 1e-5

func vertex_data(vertex_index uint32, instance *renderer.InstanceRecord) renderer.Vertex {
	var corner mgl32.Vec2
	var uv mgl32.Vec2
	switch vertex_index {
	case 0:
		corner = instance.TopLeft
		uv = mgl32.Vec2{0, 0}
	case 1, 4:
		corner = instance.BottomLeft
		uv = mgl32.Vec2{0, 1}
	case 2, 3:
		corner = instance.TopRight
		uv = mgl32.Vec2{1, 0}
	default:
		corner = instance.BottomRight
		uv = mgl32.Vec2{1, 1}
	}
	return renderer.Vertex{
		Position:            mgl32.Vec3{corner.X(), corner.Y(), 1},
		UV:                  uv,
		DepthMultiplier:     corner.Y()/2 + instance.DepthExtra,
		CurvatureMultiplier: corner.X(),
	}
}

// fragmentInput mirrors the billboard shader's interpolated vertex output.
// position.z is the window-space depth.
type fragmentInput struct {
	position            mgl32.Vec4
	textureCoordinates  mgl32.Vec2
	depthOffset         float32
	curvature           float32
	originalDepthOffset float32
	originalCurvature   float32
	angle               float32
}

func linear_to_non_linear(near_plane, linear_depth float32) float32 {
	return near_plane / (linear_depth + depth_epsilon)
}

func non_linear_to_linear(near_plane, non_linear_depth float32) float32 {
	return near_plane / (non_linear_depth + depth_epsilon)
}

func warped_depth(near_plane float32, input fragmentInput) float32 {
	// NOTE: the depth offset term is dead; only the curvature term feeds
	// the adjusted depth.
	scaled_depth_offset := input.depthOffset * input.depthOffset * input.originalDepthOffset
	scaled_curvature_offset := (0.5 - input.curvature*input.curvature) * input.originalCurvature
	linear_z := non_linear_to_linear(near_plane, input.position.Z())
	adjusted_linear_z := 2.0 + linear_z - scaled_curvature_offset*2.0
	_ = scaled_depth_offset
	return jmath.Clamp(linear_to_non_linear(near_plane, adjusted_linear_z), 0, 1)
}

func rotated_texture_coordinates(input fragmentInput) mgl32.Vec2 {
	if jmath.Abs32(input.angle) <= 1e-4 {
		return input.textureCoordinates
	}
	s := jmath.Sin32(input.angle)
	c := jmath.Cos32(input.angle)
	cx := input.textureCoordinates.X() - 0.5
	cy := input.textureCoordinates.Y() - 0.5
	return mgl32.Vec2{
		jmath.Clamp(cx*c+cy*s+0.5, 0, 1),
		jmath.Clamp(-cx*s+cy*c+0.5, 0, 1),
	}
}

func sample_nearest(atlas CPUTexture, uv mgl32.Vec2) [4]float32 {
	x := int(jmath.Floor32(uv.X() * float32(atlas.Width)))
	y := int(jmath.Floor32(uv.Y() * float32(atlas.Height)))
	return atlas.Load(x, y)
}

// billboard_fragment matches fs_main: the warp is computed and dropped,
// the unmodified depth is kept.
func billboard_fragment(near_plane float32, atlas CPUTexture, input fragmentInput) (float32, bool) {
	diffuse_color := sample_nearest(atlas, rotated_texture_coordinates(input))
	if diffuse_color[3] != 1.0 {
		return 0, false
	}
	_ = warped_depth(near_plane, input)
	return input.position.Z(), true
}

func billboard_fragment_warped(near_plane float32, atlas CPUTexture, input fragmentInput) (float32, bool) {
	diffuse_color := sample_nearest(atlas, rotated_texture_coordinates(input))
	if diffuse_color[3] != 1.0 {
		return 0, false
	}
	return warped_depth(near_plane, input), true
}

type billboardVertexOutput struct {
	clip                mgl32.Vec4
	textureCoordinates  mgl32.Vec2
	depthMultiplier     float32
	curvatureMultiplier float32
}

// Billboard rasterizes the billboard depth pass. Resources are bound in
// draw-call order, minus the sampler: uniforms, instances, atlas texture,
// depth target. Fragments pass a less-than depth test against the target.
func Billboard(near_plane float32, warped bool, resources []CPUBinding) {
	uniforms := fromBytes[renderer.PassUniforms](resources[0].(CPUBuffer))
	instances := safeish.SliceCast[[]renderer.InstanceRecord](resources[1].(CPUBuffer))
	atlas := resources[2].(CPUTexture)
	target := resources[3].(*CPUDepthTarget)

	for i := range instances {
		instance := &instances[i]
		mvp := uniforms.ViewProjection.Mul4(instance.World)

		var outputs [6]billboardVertexOutput
		for v := range outputs {
			vertex := vertex_data(uint32(v), instance)
			uv := vertex.UV
			if instance.Mirror != 0 {
				uv[0] = 1 - uv[0]
			}
			outputs[v] = billboardVertexOutput{
				clip:                mvp.Mul4x1(vertex.Position.Vec4(1)),
				textureCoordinates:  instance.TexturePosition.Add(mgl32.Vec2{uv.X() * instance.TextureSize.X(), uv.Y() * instance.TextureSize.Y()}),
				depthMultiplier:     vertex.DepthMultiplier,
				curvatureMultiplier: vertex.CurvatureMultiplier,
			}
		}

		rasterizeBillboardTriangle(near_plane, warped, instance, atlas, target, outputs[0], outputs[1], outputs[2])
		rasterizeBillboardTriangle(near_plane, warped, instance, atlas, target, outputs[3], outputs[4], outputs[5])
	}
}

func rasterizeBillboardTriangle(
	near_plane float32,
	warped bool,
	instance *renderer.InstanceRecord,
	atlas CPUTexture,
	target *CPUDepthTarget,
	v0, v1, v2 billboardVertexOutput,
) {
	// No near-plane clipping; quads straddling the camera plane get
	// dropped whole. Good enough for a debug rasterizer.
	if v0.clip.W() <= 0 || v1.clip.W() <= 0 || v2.clip.W() <= 0 {
		return
	}

	type screenVertex struct {
		x, y, z, invW float32
	}
	toScreen := func(v billboardVertexOutput) screenVertex {
		invW := 1 / v.clip.W()
		return screenVertex{
			x:    (v.clip.X()*invW*0.5 + 0.5) * float32(target.Width),
			y:    (0.5 - v.clip.Y()*invW*0.5) * float32(target.Height),
			z:    v.clip.Z() * invW,
			invW: invW,
		}
	}
	s0, s1, s2 := toScreen(v0), toScreen(v1), toScreen(v2)

	area := (s1.x-s0.x)*(s2.y-s0.y) - (s1.y-s0.y)*(s2.x-s0.x)
	if area == 0 {
		return
	}

	x0 := clampInt(int(jmath.Floor32(min(s0.x, min(s1.x, s2.x)))), 0, target.Width-1)
	x1 := clampInt(int(jmath.Ceil32(max(s0.x, max(s1.x, s2.x)))), 0, target.Width-1)
	y0 := clampInt(int(jmath.Floor32(min(s0.y, min(s1.y, s2.y)))), 0, target.Height-1)
	y1 := clampInt(int(jmath.Ceil32(max(s0.y, max(s1.y, s2.y)))), 0, target.Height-1)

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			px := float32(x) + 0.5
			py := float32(y) + 0.5
			e0 := ((s2.x-s1.x)*(py-s1.y) - (s2.y-s1.y)*(px-s1.x)) / area
			e1 := ((s0.x-s2.x)*(py-s2.y) - (s0.y-s2.y)*(px-s2.x)) / area
			e2 := 1 - e0 - e1
			if e0 < 0 || e1 < 0 || e2 < 0 {
				continue
			}

			depth := e0*s0.z + e1*s1.z + e2*s2.z
			invW := e0*s0.invW + e1*s1.invW + e2*s2.invW
			interp := func(a0, a1, a2 float32) float32 {
				return (e0*a0*s0.invW + e1*a1*s1.invW + e2*a2*s2.invW) / invW
			}
			input := fragmentInput{
				position: mgl32.Vec4{px, py, depth, invW},
				textureCoordinates: mgl32.Vec2{
					interp(v0.textureCoordinates.X(), v1.textureCoordinates.X(), v2.textureCoordinates.X()),
					interp(v0.textureCoordinates.Y(), v1.textureCoordinates.Y(), v2.textureCoordinates.Y()),
				},
				depthOffset:         interp(v0.depthMultiplier, v1.depthMultiplier, v2.depthMultiplier),
				curvature:           interp(v0.curvatureMultiplier, v1.curvatureMultiplier, v2.curvatureMultiplier),
				originalDepthOffset: instance.DepthOffset,
				originalCurvature:   instance.Curvature,
				angle:               instance.Angle,
			}

			var fragDepth float32
			var ok bool
			if warped {
				fragDepth, ok = billboard_fragment_warped(near_plane, atlas, input)
			} else {
				fragDepth, ok = billboard_fragment(near_plane, atlas, input)
			}
			if !ok {
				continue
			}
			// Writing frag_depth forces the depth test after the
			// fragment runs.
			idx := y*target.Width + x
			if fragDepth >= target.Depth[idx] {
				continue
			}
			target.Depth[idx] = fragDepth
		}
	}
}
