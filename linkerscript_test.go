package fireflower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLinkerScriptPlacesObjectsAndReserve(t *testing.T) {
	in := &LinkerScriptInput{
		Processor:   TargetARM9,
		Objects:     map[CodeTarget][]string{TargetARM9: {"build/main.o"}},
		SafeReserve: map[CodeTarget]uint32{TargetARM9: 40},
		Replace:     map[string]*Hook{},
		Start:       0x02004000,
		End:         0x02100000,
	}
	script, err := GenerateLinkerScript(in)
	require.NoError(t, err)
	assert.Contains(t, script, "MEMORY")
	assert.Contains(t, script, "arm9 (rwx) : ORIGIN = 0x02004000, LENGTH = 0xFC000")
	assert.Contains(t, script, "ldpatch (rwx) : ORIGIN = 0, LENGTH = 1000000")
	assert.Contains(t, script, `"build/main.o"`)
	assert.Contains(t, script, ". += 0x28;")
	assert.Contains(t, script, ".safe.* .hook.* .rlnk.*")
	assert.Contains(t, script, "> arm9\n")
	assert.Contains(t, script, "*(.*)")
}

func TestGenerateLinkerScriptEmitsOverlayRegionsAndConsumesReplaceHooks(t *testing.T) {
	replace := map[string]*Hook{
		"patch_0x02100000": {Target: TargetARM9, Kind: HookKindReplace, HookAddress: 0x02100000},
		"other_arm7":       {Target: TargetARM7, Kind: HookKindReplace, HookAddress: 0x02380000},
		"not_replace":      {Target: TargetARM9, Kind: HookKindHook, HookAddress: 0x02001000},
	}
	in := &LinkerScriptInput{
		Processor: TargetARM9,
		Objects:   map[CodeTarget][]string{TargetARM9: {"build/main.o"}},
		Replace:   replace,
		Start:     0x02004000,
		End:       0x02100000,
	}
	script, err := GenerateLinkerScript(in)
	require.NoError(t, err)
	assert.True(t, strings.Contains(script, ".over.arm9.02100000 0x02100000"))
	assert.True(t, strings.Contains(script, "AT>ldpatch"))
	assert.False(t, strings.Contains(script, "02380000"))
	assert.False(t, strings.Contains(script, "over_arm9_02100000"))

	// The emitted ARM9 Replace hook is consumed; the ARM7 one and the
	// non-Replace hook are left for their own script generation.
	_, stillThere := replace["patch_0x02100000"]
	assert.False(t, stillThere)
	_, arm7StillThere := replace["other_arm7"]
	assert.True(t, arm7StillThere)
	_, hookStillThere := replace["not_replace"]
	assert.True(t, hookStillThere)
}

func TestGenerateLinkerScriptIncludesSymbolsFile(t *testing.T) {
	in := &LinkerScriptInput{
		Processor:   TargetARM9,
		Objects:     map[CodeTarget][]string{TargetARM9: {"a.o"}},
		SymbolsFile: "symbols9.x",
	}
	script, err := GenerateLinkerScript(in)
	require.NoError(t, err)
	assert.Contains(t, script, `INCLUDE "symbols9.x"`)
}
