package renderer

import (
	"fmt"
	"sync/atomic"
)

var resourceID atomic.Uint64

func nextResourceID() ResourceID {
	return ResourceID(resourceID.Add(1))
}

type ResourceID uint64

type ResourceProxyKind int

const (
	ResourceProxyKindBuffer ResourceProxyKind = iota + 1
	ResourceProxyKindImage
	ResourceProxyKindSampler
)

type ResourceProxy struct {
	Kind ResourceProxyKind
	BufferProxy
	ImageProxy
}

// NearestSampler refers to the engine-owned nearest-neighbor sampler. It
// has no backing resource of its own.
func NearestSampler() ResourceProxy {
	return ResourceProxy{Kind: ResourceProxyKindSampler}
}

type Recording struct {
	Commands []Command
}

func (rec *Recording) push(cmd Command) {
	rec.Commands = append(rec.Commands, cmd)
}

func (rec *Recording) Upload(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&Upload{buf, data})
	return buf
}

func (rec *Recording) UploadUniform(name string, data []byte) BufferProxy {
	buf := NewBufferProxy(uint64(len(data)), name)
	rec.push(&UploadUniform{buf, data})
	return buf
}

func (rec *Recording) UploadImage(width, height uint32, format ImageFormat, data []byte) ImageProxy {
	imageProxy := NewImageProxy(width, height, format)
	rec.push(&UploadImage{imageProxy, data})
	return imageProxy
}

func (rec *Recording) Draw(draw Draw) {
	rec.push(&draw)
}

func (rec *Recording) FreeBuffer(buf BufferProxy) {
	rec.push(&FreeBuffer{buf})
}

func (rec *Recording) FreeImage(image ImageProxy) {
	rec.push(&FreeImage{image})
}

func (rec *Recording) FreeResource(resource ResourceProxy) {
	switch resource.Kind {
	case ResourceProxyKindBuffer:
		rec.FreeBuffer(resource.BufferProxy)
	case ResourceProxyKindImage:
		rec.FreeImage(resource.ImageProxy)
	default:
		panic(fmt.Sprintf("unhandled type %T", resource))
	}
}

func NewBufferProxy(size uint64, name string) BufferProxy {
	id := nextResourceID()
	return BufferProxy{size, id, name}
}

func NewImageProxy(width, height uint32, format ImageFormat) ImageProxy {
	id := nextResourceID()
	return ImageProxy{
		Width:   width,
		Height:  height,
		Format:  format,
		Samples: 1,
		ID:      id,
	}
}

// NewImageProxyMSAA creates a proxy for a multisampled texture, such as
// the accumulation and revealage inputs of the resolve pass.
func NewImageProxyMSAA(width, height uint32, format ImageFormat, samples uint32) ImageProxy {
	p := NewImageProxy(width, height, format)
	p.Samples = samples
	return p
}

type BufferProxy struct {
	Size uint64
	ID   ResourceID
	Name string
}

func (p BufferProxy) Resource() ResourceProxy {
	return ResourceProxy{
		Kind:        ResourceProxyKindBuffer,
		BufferProxy: p,
	}
}

type ImageFormat int

const (
	Rgba8 ImageFormat = iota
	Rgba8Srgb
	Rgba16Float
	R8
	Depth32Float
)

type ImageProxy struct {
	Width   uint32
	Height  uint32
	Format  ImageFormat
	Samples uint32
	ID      ResourceID
}

func (p ImageProxy) Resource() ResourceProxy {
	return ResourceProxy{
		Kind:       ResourceProxyKindImage,
		ImageProxy: p,
	}
}

type ShaderID int

type Command interface {
	isCommand()
}

func (*Upload) isCommand()        {}
func (*UploadUniform) isCommand() {}
func (*UploadImage) isCommand()   {}
func (*Draw) isCommand()          {}
func (*FreeBuffer) isCommand()    {}
func (*FreeImage) isCommand()     {}

type Upload struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadUniform struct {
	Buffer BufferProxy
	Data   []byte
}

type UploadImage struct {
	Image ImageProxy
	Data  []byte
}

// OverrideValue bakes one pipeline constant into a shader at pipeline
// creation time.
type OverrideValue struct {
	Name  string
	Value float64
}

// Draw records one instanced render pass invocation. Bindings must match
// the shader's declared binding table in order.
type Draw struct {
	Shader        ShaderID
	VertexCount   uint32
	InstanceCount uint32
	Bindings      []ResourceProxy
	Overrides     []OverrideValue

	// Targets are the color attachments; a depth-only pass leaves them
	// empty.
	Targets     []ImageProxy
	DepthTarget *ImageProxy

	// Load keeps the target's existing contents instead of clearing.
	Load       bool
	ClearColor [4]float32
	ClearDepth float32
}

type FreeBuffer struct {
	Buffer BufferProxy
}

type FreeImage struct {
	Image ImageProxy
}
