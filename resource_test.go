package rhi

import "testing"

func TestBoundResourceEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundResource
		want bool
	}{
		{
			name: "identical uniform buffers",
			a:    UniformBufferBinding(1, 0, 256),
			b:    UniformBufferBinding(1, 0, 256),
			want: true,
		},
		{
			name: "different offsets",
			a:    UniformBufferBinding(1, 0, 256),
			b:    UniformBufferBinding(1, 256, 256),
			want: false,
		},
		{
			name: "different kinds same buffer",
			a:    UniformBufferBinding(1, 0, 256),
			b:    StorageBufferBinding(1, 0, 256),
			want: false,
		},
		{
			name: "identical combined texture samplers",
			a:    CombinedTextureSamplerBinding(7, 3),
			b:    CombinedTextureSamplerBinding(7, 3),
			want: true,
		},
		{
			name: "combined sampler differs",
			a:    CombinedTextureSamplerBinding(7, 3),
			b:    CombinedTextureSamplerBinding(7, 4),
			want: false,
		},
		{
			name: "equal texture arrays",
			a:    SampledTextureArrayBinding([]TextureID{1, 2, 3}),
			b:    SampledTextureArrayBinding([]TextureID{1, 2, 3}),
			want: true,
		},
		{
			name: "texture arrays differ in one element",
			a:    SampledTextureArrayBinding([]TextureID{1, 2, 3}),
			b:    SampledTextureArrayBinding([]TextureID{1, 9, 3}),
			want: false,
		},
		{
			name: "texture arrays differ in length",
			a:    SampledTextureArrayBinding([]TextureID{1, 2}),
			b:    SampledTextureArrayBinding([]TextureID{1, 2, 3}),
			want: false,
		},
		{
			name: "empty slots are equal",
			a:    BoundResource{},
			b:    BoundResource{},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(&tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundResourceMatchesDynamicOffset(t *testing.T) {
	a := UniformBufferBinding(1, 0, 256)
	b := UniformBufferBinding(1, 512, 256)

	if a.Equal(&b) {
		t.Fatal("bindings with different offsets must not be equal")
	}
	if !a.Matches(&b, true) {
		t.Error("dynamic-offset slots must match on handle and size only")
	}
	if a.Matches(&b, false) {
		t.Error("static slots must compare the offset")
	}

	c := UniformBufferBinding(1, 0, 128)
	if a.Matches(&c, true) {
		t.Error("a size change must not match, even on dynamic slots")
	}

	d := UniformBufferBinding(2, 0, 256)
	if a.Matches(&d, true) {
		t.Error("a different buffer must not match")
	}
}
