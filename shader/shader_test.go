// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"errors"
	"testing"
)

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		meta    Metadata
		wantErr error
	}{
		{
			name: "valid vertex metadata",
			meta: Metadata{
				Stage: StageVertex,
				Bindings: []Binding{
					{Set: 0, Slot: 0, Type: ResourceUniformBuffer, Count: 1, Name: "object"},
					{Set: 2, Slot: 1, Type: ResourceUniformBuffer, Count: 1, Name: "camera"},
				},
				PushConstantSize: 64,
			},
		},
		{
			name: "empty metadata is valid",
			meta: Metadata{Stage: StageFragment},
		},
		{
			name: "set out of range",
			meta: Metadata{
				Stage: StageFragment,
				Bindings: []Binding{
					{Set: SetCount, Slot: 0, Type: ResourceSampledTexture, Count: 1},
				},
			},
			wantErr: ErrSetOutOfRange,
		},
		{
			name: "slot out of range",
			meta: Metadata{
				Stage: StageFragment,
				Bindings: []Binding{
					{Set: 1, Slot: PerSetBindings, Type: ResourceSampledTexture, Count: 1},
				},
			},
			wantErr: ErrSlotOutOfRange,
		},
		{
			name: "zero array count",
			meta: Metadata{
				Stage: StageCompute,
				Bindings: []Binding{
					{Set: 0, Slot: 0, Type: ResourceStorageBuffer, Count: 0},
				},
			},
			wantErr: ErrZeroArrayCount,
		},
		{
			name: "duplicate binding",
			meta: Metadata{
				Stage: StageCompute,
				Bindings: []Binding{
					{Set: 1, Slot: 3, Type: ResourceStorageBuffer, Count: 1},
					{Set: 1, Slot: 3, Type: ResourceUniformBuffer, Count: 1},
				},
			},
			wantErr: ErrDuplicateBinding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStageMask(t *testing.T) {
	mask := StageVertex.Mask() | StageFragment.Mask()
	if !mask.Has(StageVertex) {
		t.Error("mask should contain vertex stage")
	}
	if !mask.Has(StageFragment) {
		t.Error("mask should contain fragment stage")
	}
	if mask.Has(StageCompute) {
		t.Error("mask should not contain compute stage")
	}
}

func TestResourceTypeIsBuffer(t *testing.T) {
	tests := []struct {
		typ  ResourceType
		want bool
	}{
		{ResourceUniformBuffer, true},
		{ResourceStorageBuffer, true},
		{ResourceSampledTexture, false},
		{ResourceStorageTexture, false},
		{ResourceSampler, false},
		{ResourceAccelerationStructure, false},
	}
	for _, tt := range tests {
		if got := tt.typ.IsBuffer(); got != tt.want {
			t.Errorf("%v.IsBuffer() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
