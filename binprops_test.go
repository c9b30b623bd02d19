package fireflower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeHeader(arm9Entry, arm9Offset, arm7Entry, arm7Offset uint32) []byte {
	h := make([]byte, 0x40)
	writeU32(h, romHeaderARM9Entry, arm9Entry)
	writeU32(h, romHeaderARM9Offset, arm9Offset)
	writeU32(h, romHeaderARM7Entry, arm7Entry)
	writeU32(h, romHeaderARM7Offset, arm7Offset)
	return h
}

func TestLocateARM9ModuleParams(t *testing.T) {
	loadOff := uint32(0x02000000)
	entryOff := uint32(0x0C)
	header := makeHeader(loadOff+entryOff, loadOff, 0, 0)

	binary := make([]byte, 0x1000)
	moduleParams := uint32(0x40)
	writeU32(binary, moduleParams+0x1C, 0xDEC00621)
	writeU32(binary, moduleParams+0x20, 0x2106C0DE)
	writeU32(binary, moduleParams+0x0, loadOff+0x100)
	writeU32(binary, moduleParams+0x4, loadOff+0x200)
	writeU32(binary, moduleParams+0x8, loadOff+0x300)

	props, err := LocateARMBinaryProperties(header, binary, true)
	require.NoError(t, err)
	assert.Equal(t, moduleParams, props.ModuleParams)
	assert.Equal(t, uint32(0x100), props.AutoloadStart)
	assert.Equal(t, uint32(0x200), props.AutoloadEnd)
	assert.Equal(t, uint32(0x300), props.AutoloadRead)
	assert.Equal(t, uint32(0), props.CompressedEnd)
}

func TestLocateARM9ModuleParamsPrefersLastMatch(t *testing.T) {
	loadOff := uint32(0)
	header := makeHeader(0x10, loadOff, 0, 0)

	binary := make([]byte, 0x1000)
	first := uint32(0x30)
	second := uint32(0x80)
	for _, at := range []uint32{first, second} {
		writeU32(binary, at, 0xDEC00621)
		writeU32(binary, at+4, 0x2106C0DE)
	}
	writeU32(binary, second-0x1C+0x0, 0x100)
	writeU32(binary, second-0x1C+0x4, 0x200)
	writeU32(binary, second-0x1C+0x8, 0x300)

	props, err := LocateARMBinaryProperties(header, binary, true)
	require.NoError(t, err)
	assert.Equal(t, second-0x1C, props.ModuleParams)
}

func TestLocateARM9ModuleParamsNotFound(t *testing.T) {
	header := makeHeader(0x10, 0, 0, 0)
	binary := make([]byte, 0x1000)
	_, err := LocateARMBinaryProperties(header, binary, true)
	assert.Error(t, err)
}

func TestLocateARM7ModuleParams(t *testing.T) {
	loadOff := uint32(0x02380000)
	entryOff := uint32(0x10)
	header := makeHeader(0, 0, loadOff+entryOff, loadOff)

	binary := make([]byte, 0x1000)
	triple := entryOff + 0x40
	writeU32(binary, triple-4, 0xE59F0000|0x20) // LDR r0, [pc, #0x20]
	writeU32(binary, triple+0, 0xE5901000)
	writeU32(binary, triple+4, 0xE5902004)
	writeU32(binary, triple+8, 0xE5903008)

	ptrFileOffset := 0x20 + triple + 4
	moduleParams := uint32(0x500)
	writeU32(binary, ptrFileOffset, loadOff+moduleParams)
	writeU32(binary, moduleParams+0x0, loadOff+0x10)
	writeU32(binary, moduleParams+0x4, loadOff+0x20)
	writeU32(binary, moduleParams+0x8, loadOff+0x30)

	props, err := LocateARMBinaryProperties(header, binary, false)
	require.NoError(t, err)
	assert.Equal(t, moduleParams, props.ModuleParams)
	assert.Equal(t, uint32(0x10), props.AutoloadStart)
}
