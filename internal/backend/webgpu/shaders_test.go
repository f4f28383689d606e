package webgpu

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var bindingRE = regexp.MustCompile(`@binding\((\d+)\)`)

func TestShaders_Layout(t *testing.T) {
	for name, code := range shaders {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 1, strings.Count(code, "fn main("))
			assert.Contains(t, code, "@workgroup_size(256)")

			bindings := bindingRE.FindAllStringSubmatch(code, -1)
			for i, b := range bindings {
				assert.Equal(t, fmt.Sprint(i), b[1], "bindings are numbered in order")
			}
			last := fmt.Sprintf("@binding(%d) var<uniform> params", len(bindings)-1)
			assert.Contains(t, code, last, "uniform block comes last")
		})
	}
}

func TestWorkgroups(t *testing.T) {
	tests := []struct {
		n    int
		x, y uint32
	}{
		{0, 0, 0},
		{1, 1, 1},
		{256, 1, 1},
		{257, 2, 1},
		{65535 * 256, 65535, 1},
		{65535*256 + 1, 65535, 2},
	}
	for _, tt := range tests {
		x, y := workgroups(tt.n)
		assert.Equal(t, tt.x, x, "n=%d", tt.n)
		assert.Equal(t, tt.y, y, "n=%d", tt.n)
		assert.GreaterOrEqual(t, int(x)*int(y)*workgroupSize, tt.n)
	}
}
