package fireflower

import "fmt"

const overlayEntrySize = 32

const (
	overlayFlagCompressed uint32 = 1 << 24
	overlayFlagVerify     uint32 = 1 << 25
	overlayFlagSizeMask   uint32 = 0x00FFFFFF
)

// OverlayEntry is one 32-byte row of an overlay table (spec.md §3 and §6).
type OverlayEntry struct {
	OverlayID       uint32
	RAMStart        uint32
	CodeSize        uint32
	BSSSize         uint32
	StaticInitStart uint32
	StaticInitEnd   uint32
	FileID          uint32
	Flags           uint32
}

// Compressed reports whether the overlay was originally BLZ-compressed
// (bit 24 of Flags).
func (e OverlayEntry) Compressed() bool {
	return e.Flags&overlayFlagCompressed != 0
}

// VerifyFlag reports bit 25. Per spec.md §9, this is decoded and
// preserved on round-trip but never consulted for any decision.
func (e OverlayEntry) VerifyFlag() bool {
	return e.Flags&overlayFlagVerify != 0
}

// FileSize returns the low 24 bits of Flags, the on-disk file size.
func (e OverlayEntry) FileSize() uint32 {
	return e.Flags & overlayFlagSizeMask
}

func decodeOverlayEntry(b []byte) OverlayEntry {
	return OverlayEntry{
		OverlayID:       readU32(b, 0),
		RAMStart:        readU32(b, 4),
		CodeSize:        readU32(b, 8),
		BSSSize:         readU32(b, 12),
		StaticInitStart: readU32(b, 16),
		StaticInitEnd:   readU32(b, 20),
		FileID:          readU32(b, 24),
		Flags:           readU32(b, 28),
	}
}

func (e OverlayEntry) encode(b []byte) {
	writeU32(b, 0, e.OverlayID)
	writeU32(b, 4, e.RAMStart)
	writeU32(b, 8, e.CodeSize)
	writeU32(b, 12, e.BSSSize)
	writeU32(b, 16, e.StaticInitStart)
	writeU32(b, 20, e.StaticInitEnd)
	writeU32(b, 24, e.FileID)
	writeU32(b, 28, e.Flags)
}

// OverlayTable is the decoded overlay table file (<proc>ovt.bin).
type OverlayTable struct {
	Entries []OverlayEntry
}

// DecodeOverlayTable parses a raw overlay table buffer into rows.
func DecodeOverlayTable(data []byte) (*OverlayTable, error) {
	if len(data)%overlayEntrySize != 0 {
		return nil, fmt.Errorf("fireflower: overlay table size %d is not a multiple of %d", len(data), overlayEntrySize)
	}
	t := &OverlayTable{}
	for off := 0; off < len(data); off += overlayEntrySize {
		t.Entries = append(t.Entries, decodeOverlayEntry(data[off:off+overlayEntrySize]))
	}
	return t, nil
}

// Encode serializes the table back to its raw on-disk form.
func (t *OverlayTable) Encode() []byte {
	out := make([]byte, len(t.Entries)*overlayEntrySize)
	for i, e := range t.Entries {
		e.encode(out[i*overlayEntrySize : (i+1)*overlayEntrySize])
	}
	return out
}

// ByID returns a pointer to the entry with the given overlay id, or nil.
func (t *OverlayTable) ByID(id uint32) *OverlayEntry {
	for i := range t.Entries {
		if t.Entries[i].OverlayID == id {
			return &t.Entries[i]
		}
	}
	return nil
}

// SetSavedSize rewrites an overlay entry's flags after saving: the
// compress bit is cleared (spec.md §3 "On save, the compress bit is
// cleared") and the low 24 bits are rewritten to the current file size.
func (e *OverlayEntry) SetSavedSize(fileSize uint32) {
	e.Flags = (e.Flags &^ overlayFlagCompressed &^ overlayFlagSizeMask) | (fileSize & overlayFlagSizeMask)
}
