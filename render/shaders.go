package render

import _ "embed"

//go:embed shaders/composite.wgsl
var compositeShaderSource string

//go:embed shaders/present.wgsl
var presentShaderSource string
