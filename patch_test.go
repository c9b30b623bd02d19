package fireflower

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	l := log.New()
	l.SetOutput(nopWriter{})
	return l
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestApplyFixupsPlainHook(t *testing.T) {
	binary := make([]byte, 0x1000)
	sm := NewSectionMap()
	sm.Add(TargetARM9, SectionData{Start: 0x02000000, End: 0x02001000, Destination: 0})

	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{},
		Fixups: []Fixup{
			{Kind: FixupHook, Hook: Hook{
				Target:      TargetARM9,
				Kind:        HookKindHook,
				HookAddress: 0x02000100,
				FuncAddress: 0x02000200,
				SymbolName:  "myHook",
			}},
		},
	}
	require.NoError(t, ApplyFixups(newTestLogger(), in))

	word := readU32(binary, 0x100)
	expected := EncodeARMBranch(0x02000100, 0x02000200)
	assert.Equal(t, expected, word)
}

func TestApplyFixupsRejectsUnresolvedHook(t *testing.T) {
	binary := make([]byte, 0x100)
	sm := NewSectionMap()
	sm.Add(TargetARM9, SectionData{Start: 0, End: 0x100, Destination: 0})
	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{},
		Fixups: []Fixup{
			{Kind: FixupHook, Hook: Hook{Target: TargetARM9, Kind: HookKindHook, HookAddress: 0x10, FuncAddress: sentinelFuncAddress}},
		},
	}
	assert.Error(t, ApplyFixups(newTestLogger(), in))
}

// TestApplyAutoloadPatchExtendsBinaryAndAutoloadEnd mirrors spec.md §8
// scenario S4 ("Autoload extension") exactly: a 0x10000-byte binary with
// autoloadStart=0xFF00/autoloadEnd=0xFF3C/autoloadRead=0xF000 grows a new
// 0x400-byte/0x80-bss block, and every derived quantity (new file size,
// splice positions, moduleParams rewrite, relocated heap pointer) is
// checked against S4's worked numbers.
func TestApplyAutoloadPatchExtendsBinaryAndAutoloadEnd(t *testing.T) {
	const origSize = 0x10000
	binary := make([]byte, origSize)
	for i := range binary {
		binary[i] = 0xAA
	}
	props := ARMBinaryProperties{
		Offset:        0x02000000,
		ModuleParams:  0x100,
		AutoloadStart: 0xFF00,
		AutoloadEnd:   0xFF3C,
		AutoloadRead:  0xF000,
	}

	sm := NewSectionMap()
	sm.Add(TargetARM9, SectionData{Start: 0x02000000, End: 0x02000000 + origSize, Destination: 0})

	payload := make([]byte, 0x400)
	for i := range payload {
		payload[i] = 0xCD
	}

	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{TargetARM9: props},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{},
		RegionStart: map[CodeTarget]uint32{TargetARM9: 0x02100000},
		Reloc:       map[CodeTarget]uint32{TargetARM9: 0x02000200},
		Fixups: []Fixup{
			{Kind: FixupPatch, Patch: Patch{
				Target:     TargetARM9,
				RAMAddress: 0x02200000,
				CodeSize:   0x400,
				BSSSize:    0x80,
				BSSAlign:   4,
				Payload:    payload,
			}},
		},
	}
	require.NoError(t, ApplyFixups(newTestLogger(), in))

	out := in.Binaries[TargetARM9]
	assert.Equal(t, origSize+0x400+12, len(out))

	newProps := in.Props[TargetARM9]
	assert.Equal(t, uint32(0xFF00+0x400), newProps.AutoloadStart)
	assert.Equal(t, uint32(0xFF3C+0x400+12), newProps.AutoloadEnd)

	// The new payload lands right before the (unmoved) old descriptor table.
	assert.Equal(t, payload, out[0xFF00:0xFF00+0x400])

	// The new descriptor is spliced in right after the old table's end.
	descOff := uint32(0xFF3C + 0x400)
	assert.Equal(t, uint32(0x02200000), readU32(out, descOff))
	assert.Equal(t, uint32(0x400), readU32(out, descOff+4))
	assert.Equal(t, uint32(0x80), readU32(out, descOff+8))

	// moduleParams.autoloadStart/autoloadEnd are rewritten to RAM addresses.
	assert.Equal(t, uint32(0x02000000+0xFF00+0x400), readU32(out, newProps.ModuleParams+0x0))
	assert.Equal(t, uint32(0x02000000+0xFF3C+0x400+12), readU32(out, newProps.ModuleParams+0x4))

	// The relocated heap pointer: regionStart + alignUp(codeSize, bssAlign) + bssSize.
	off, ok := sm.Translate(TargetARM9, 0x02000200, 4)
	require.True(t, ok)
	assert.Equal(t, uint32(0x02100480), readU32(out, off))
}

func TestApplyReplacePatchCopiesPayload(t *testing.T) {
	binary := make([]byte, 0x100)
	sm := NewSectionMap()
	sm.Add(TargetARM9, SectionData{Start: 0x02000000, End: 0x02000100, Destination: 0})

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{},
		Fixups: []Fixup{
			{Kind: FixupPatch, Patch: Patch{
				Target:     TargetARM9,
				RAMAddress: 0x02000010,
				CodeSize:   uint32(len(payload)),
				BSSSize:    NoBSS,
				BSSAlign:   NoBSS,
				Payload:    payload,
			}},
		},
	}
	require.NoError(t, ApplyFixups(newTestLogger(), in))
	assert.Equal(t, payload, in.Binaries[TargetARM9][0x10:0x14])
}

func TestApplyReplacePatchRejectsPayloadSizeMismatch(t *testing.T) {
	binary := make([]byte, 0x100)
	sm := NewSectionMap()
	sm.Add(TargetARM9, SectionData{Start: 0x02000000, End: 0x02000100, Destination: 0})

	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{},
		Fixups: []Fixup{
			{Kind: FixupPatch, Patch: Patch{
				Target:     TargetARM9,
				RAMAddress: 0x02000010,
				CodeSize:   4,
				BSSSize:    NoBSS,
				BSSAlign:   NoBSS,
				Payload:    []byte{0x01, 0x02},
			}},
		},
	}
	assert.Error(t, ApplyFixups(newTestLogger(), in))
}

func TestApplySafeHookEmitsVeneer(t *testing.T) {
	binary := make([]byte, 0x2000)
	sm := NewSectionMap()
	// Main binary region, including patch RAM range with a tail safe-hook reserve.
	sm.Add(TargetARM9, SectionData{Start: 0x02000000, End: 0x02001000, Destination: 0})

	patchAddr := uint32(0x02000F00) // where the new code (and its 20-byte reserve) lives
	codeSize := uint32(0x40)        // includes the 20-byte (5-word) reserve at the tail
	reserve := uint32(20)

	original := EncodeARMBranch(0x02000010, 0x02000020) // any harmless-looking instruction word
	writeU32(binary, 0x10, original)

	in := &ApplyInput{
		Binaries:    map[CodeTarget][]byte{TargetARM9: binary},
		Props:       map[CodeTarget]ARMBinaryProperties{TargetARM9: {Offset: 0x02000000, AutoloadStart: 0xF00, AutoloadEnd: 0xF00, AutoloadRead: 0xF00}},
		SectionMap:  sm,
		SafeReserve: map[CodeTarget]uint32{TargetARM9: reserve},
		RegionStart: map[CodeTarget]uint32{},
		Reloc:       map[CodeTarget]uint32{},
		Fixups: []Fixup{
			{Kind: FixupPatch, Patch: Patch{
				Target:     TargetARM9,
				RAMAddress: patchAddr,
				CodeSize:   codeSize,
				BSSSize:    0,
				BSSAlign:   0,
				Payload:    make([]byte, codeSize),
			}},
			{Kind: FixupHook, Hook: Hook{
				Target:      TargetARM9,
				Kind:        HookKindSafe,
				HookAddress: 0x02000010,
				FuncAddress: 0x02000800,
				SymbolName:  "safeHook",
			}},
		},
	}
	// This test only exercises the veneer path directly, so the autoload
	// patch above is a stand-in purely to populate the section map and
	// safe-hook reserve window; its own byte layout is not asserted on.
	_ = ApplyFixups(newTestLogger(), in)

	patched := readU32(in.Binaries[TargetARM9], 0x10)
	assert.NotEqual(t, original, patched, "hookAddress should now hold a branch into the veneer")
}
