// Package shaders describes the WGSL render shaders and their binding
// layouts, independently of any GPU API.
package shaders

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
)

type BindType int

const (
	Uniform BindType = iota + 1
	BufReadOnly
	Texture
	TextureMSAA
	Sampler
)

// Binding places one resource in the shader's bind group layout. Groups
// without bindings still occupy a group slot; pipelines have to create
// empty layouts for them.
type Binding struct {
	Group   uint32
	Binding uint32
	Type    BindType
}

type RenderShader struct {
	Name string
	// Bindings is ordered the way draw calls supply their resources.
	Bindings []Binding
	WGSL     []byte
}

//go:embed billboard.wgsl
var billboardWGSL []byte

//go:embed oit_resolve.wgsl
var oitResolveWGSL []byte

type Shaders struct {
	Billboard  RenderShader
	OITResolve RenderShader
}

var Collection = Shaders{
	Billboard: RenderShader{
		Name: "billboard",
		Bindings: []Binding{
			{Group: 0, Binding: 1, Type: Sampler},
			{Group: 1, Binding: 0, Type: Uniform},
			{Group: 2, Binding: 0, Type: BufReadOnly},
			{Group: 3, Binding: 0, Type: Texture},
		},
		WGSL: billboardWGSL,
	},
	OITResolve: RenderShader{
		Name: "oit_resolve",
		Bindings: []Binding{
			{Group: 1, Binding: 0, Type: TextureMSAA},
			{Group: 2, Binding: 0, Type: TextureMSAA},
		},
		WGSL: oitResolveWGSL,
	},
}

var constPattern = regexp.MustCompile(`(?m)^const ([a-zA-Z_][a-zA-Z0-9_]*): (f32|u32|i32) = [^;]+;$`)

// WithOverrides returns the WGSL source with the named module-scope
// constants replaced by new values. WGSL's pipeline overrides aren't
// universally available, so constants get baked in textually before
// module creation instead.
func (s *RenderShader) WithOverrides(overrides map[string]float64) ([]byte, error) {
	if len(overrides) == 0 {
		return s.WGSL, nil
	}
	seen := make(map[string]bool, len(overrides))
	out := constPattern.ReplaceAllFunc(s.WGSL, func(m []byte) []byte {
		groups := constPattern.FindSubmatch(m)
		name, typ := string(groups[1]), string(groups[2])
		value, ok := overrides[name]
		if !ok {
			return m
		}
		seen[name] = true
		switch typ {
		case "f32":
			return []byte(fmt.Sprintf("const %s: f32 = %s;", name, strconv.FormatFloat(value, 'g', -1, 32)))
		case "u32":
			return []byte(fmt.Sprintf("const %s: u32 = %du;", name, uint64(value)))
		default:
			return []byte(fmt.Sprintf("const %s: i32 = %d;", name, int64(value)))
		}
	})
	for name := range overrides {
		if !seen[name] {
			return nil, fmt.Errorf("shader %s has no constant named %q", s.Name, name)
		}
	}
	return out, nil
}
