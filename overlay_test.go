package fireflower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayTableRoundTrip(t *testing.T) {
	original := &OverlayTable{Entries: []OverlayEntry{
		{OverlayID: 0, RAMStart: 0x02100000, CodeSize: 0x1000, BSSSize: 0x200, FileID: 3, Flags: 0x01000400},
		{OverlayID: 1, RAMStart: 0x02101000, CodeSize: 0x2000, BSSSize: 0, FileID: 4, Flags: 0x800},
	}}
	data := original.Encode()
	assert.Len(t, data, 2*overlayEntrySize)

	decoded, err := DecodeOverlayTable(data)
	require.NoError(t, err)
	assert.Equal(t, original.Entries, decoded.Entries)
}

func TestOverlayTableByID(t *testing.T) {
	table := &OverlayTable{Entries: []OverlayEntry{
		{OverlayID: 5, RAMStart: 0x1234},
	}}
	e := table.ByID(5)
	require.NotNil(t, e)
	assert.Equal(t, uint32(0x1234), e.RAMStart)
	assert.Nil(t, table.ByID(6))
}

func TestOverlayEntryFlagAccessors(t *testing.T) {
	e := OverlayEntry{Flags: overlayFlagCompressed | overlayFlagVerify | 0x1234}
	assert.True(t, e.Compressed())
	assert.True(t, e.VerifyFlag())
	assert.Equal(t, uint32(0x1234), e.FileSize())
}

func TestSetSavedSizeClearsCompressBit(t *testing.T) {
	e := OverlayEntry{Flags: overlayFlagCompressed | overlayFlagVerify | 0xAAAA}
	e.SetSavedSize(0x5000)
	assert.False(t, e.Compressed())
	assert.True(t, e.VerifyFlag())
	assert.Equal(t, uint32(0x5000), e.FileSize())
}

func TestDecodeOverlayTableRejectsMisalignedSize(t *testing.T) {
	_, err := DecodeOverlayTable(make([]byte, overlayEntrySize+1))
	assert.Error(t, err)
}
