package fireflower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarkerSectionName(t *testing.T) {
	kind, target, addr, ok := parseMarkerSectionName(".hook.arm9.02001000")
	require.True(t, ok)
	assert.Equal(t, HookKindHook, kind)
	assert.Equal(t, TargetARM9, target)
	assert.Equal(t, uint32(0x02001000), addr)

	kind, target, addr, ok = parseMarkerSectionName(".over.ov7_3.02380100")
	require.True(t, ok)
	assert.Equal(t, HookKindReplace, kind)
	assert.Equal(t, OV7(3), target)
	assert.Equal(t, uint32(0x02380100), addr)
}

func TestParseMarkerSectionNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{".hook.arm9", ".hook.arm9.notHex", ".bogus.arm9.1000", ".hook.arm12.1000"} {
		_, _, _, ok := parseMarkerSectionName(name)
		assert.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestMarkerKind(t *testing.T) {
	for prefix, want := range map[string]HookKind{
		"hook": HookKindHook,
		"rlnk": HookKindLink,
		"safe": HookKindSafe,
		"over": HookKindReplace,
	} {
		kind, ok := markerKind(prefix)
		require.True(t, ok)
		assert.Equal(t, want, kind)
	}
	_, ok := markerKind("nope")
	assert.False(t, ok)
}

func TestHookKindString(t *testing.T) {
	assert.Equal(t, "hook", HookKindHook.String())
	assert.Equal(t, "rlnk", HookKindLink.String())
	assert.Equal(t, "safe", HookKindSafe.String())
	assert.Equal(t, "over", HookKindReplace.String())
}
