package structured_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tir-org/tir/structured"
)

func TestGenerateLibraryCallName(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			src: `func(%0: f32, %1: buffer<4x8xf32>) {
  structured.fill ins(%0 : f32) outs(%1 : buffer<4x8xf32>)
}
`,
			want: "structured_fill_f32_view4x8xf32",
		},
		{
			src: `func(%0: buffer<?x?xf32>, %1: buffer<?x?xf32>) {
  structured.copy ins(%0 : buffer<?x?xf32>) outs(%1 : buffer<?x?xf32>)
}
`,
			want: "structured_copy_viewsxsxf32_viewsxsxf32",
		},
		{
			src: `func(%0: tensor<4xf32>, %1: tensor<4xf32>) {
  %2 = structured.generic {indexing_maps = ["(d0) -> (d0)", "(d0) -> (d0)"], iterators = ["parallel"]} ins(%0 : tensor<4xf32>) init(%1 : tensor<4xf32>) {
    ^(%3: f32, %4: f32):
    structured.yield %3 : f32
  } -> tensor<4xf32>
}
`,
			want: "structured_generic_tensor4xf32_tensor4xf32",
		},
		{
			src: `func(%0: buffer<3x8x16xf32>, %1: buffer<1x?x8xf32>, %2: buffer<1x?x16xf32>) {
  structured.conv ins(%0 : buffer<3x8x16xf32>, %1 : buffer<1x?x8xf32>) outs(%2 : buffer<1x?x16xf32>)
}
`,
			want: "structured_conv_view3x8x16xf32_view1xsx8xf32_view1xsx16xf32",
		},
	}
	for _, test := range tests {
		b := roundTrip(t, test.src)
		op := firstStructured(t, b)
		require.Equal(t, test.want, structured.GenerateLibraryCallName(op), test.want)
	}
}
