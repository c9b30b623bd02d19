package fireflower

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchIsReplace(t *testing.T) {
	assert.True(t, Patch{BSSSize: NoBSS}.IsReplace())
	assert.False(t, Patch{BSSSize: 0x100}.IsReplace())
}

func TestSortFixupsOrdering(t *testing.T) {
	fixups := []Fixup{
		{Kind: FixupHook, Hook: Hook{Target: TargetARM9}},
		{Kind: FixupPatch, Patch: Patch{Target: TargetARM7, BSSSize: 0x10}},
		{Kind: FixupPatch, Patch: Patch{Target: TargetARM9, BSSSize: 0x100}},
		{Kind: FixupPatch, Patch: Patch{Target: TargetARM9, BSSSize: 0x20}},
		{Kind: FixupHook, Hook: Hook{Target: TargetARM7}},
	}
	SortFixups(fixups)

	// Ascending target: every ARM9 (0) entry precedes every ARM7 (1) entry.
	sawARM7 := false
	for _, fx := range fixups {
		target := fx.Patch.Target
		if fx.Kind == FixupHook {
			target = fx.Hook.Target
		}
		if target == TargetARM7 {
			sawARM7 = true
		}
		if sawARM7 {
			assert.Equal(t, TargetARM7, target)
		}
	}

	// Within ARM9, Patches precede Hooks, and patches sort by descending bssSize.
	assert.Equal(t, FixupPatch, fixups[0].Kind)
	assert.Equal(t, FixupPatch, fixups[1].Kind)
	assert.Equal(t, uint32(0x100), fixups[0].Patch.BSSSize)
	assert.Equal(t, uint32(0x20), fixups[1].Patch.BSSSize)
	assert.Equal(t, FixupHook, fixups[2].Kind)
}

func TestAssembleFixupsSorts(t *testing.T) {
	patches9 := []Patch{{Target: TargetARM9, BSSSize: 0x40}}
	hooks9 := map[string]*Hook{"h9": {Target: TargetARM9, Kind: HookKindHook}}
	fixups := AssembleFixups(patches9, nil, hooks9, nil, nil, nil)
	assert.Len(t, fixups, 2)
	assert.Equal(t, FixupPatch, fixups[0].Kind)
	assert.Equal(t, FixupHook, fixups[1].Kind)
}
