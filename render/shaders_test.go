package render

import (
	"strings"
	"testing"

	"github.com/gogpu/naga"
)

// compileWGSL compiles a shader to SPIR-V via naga, skipping on known
// naga limitations, and verifies the SPIR-V magic number.
func compileWGSL(t *testing.T, name, src string) {
	t.Helper()
	if src == "" {
		t.Fatalf("%s shader source is empty", name)
	}

	spirvBytes, err := naga.Compile(src)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "runtime-sized arrays not yet implemented") {
			t.Skip("Skipping: naga doesn't yet support runtime-sized arrays")
		}
		if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("failed to compile %s shader: %v", name, err)
	}

	if len(spirvBytes) < 4 {
		t.Fatalf("%s: SPIR-V too short (%d bytes)", name, len(spirvBytes))
	}
	magic := uint32(spirvBytes[0]) |
		uint32(spirvBytes[1])<<8 |
		uint32(spirvBytes[2])<<16 |
		uint32(spirvBytes[3])<<24
	if magic != 0x07230203 {
		t.Errorf("%s: invalid SPIR-V magic: 0x%08X, want 0x07230203", name, magic)
	}
}

func TestCompositeShaderCompilation(t *testing.T) {
	compileWGSL(t, "composite", compositeShaderSource)
}

func TestPresentShaderCompilation(t *testing.T) {
	compileWGSL(t, "present", presentShaderSource)
}

func TestShaderBindingsMatchLayout(t *testing.T) {
	// The Go-side bind group layout mirrors @binding annotations; a
	// missing binding in either place breaks at runtime only, so pin the
	// shader side here.
	for _, b := range []string{
		"@group(0) @binding(0)",
		"@group(0) @binding(1)",
		"@group(0) @binding(2)",
		"@group(0) @binding(3)",
		"@group(0) @binding(4)",
	} {
		if !strings.Contains(compositeShaderSource, b) {
			t.Errorf("composite shader missing %q", b)
		}
	}
	if !strings.Contains(compositeShaderSource, "@workgroup_size(16, 16)") {
		t.Error("composite workgroup size does not match the dispatch math")
	}
	if !strings.Contains(presentShaderSource, "vs_main") || !strings.Contains(presentShaderSource, "fs_main") {
		t.Error("present shader entry points missing")
	}
}
