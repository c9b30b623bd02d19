package fireflower

import "encoding/binary"

// The NDS ARM binaries, overlay tables, and linked ELFs are all
// little-endian regardless of host byte order. These helpers make that
// explicit at every call site instead of relying on a reinterpret-cast
// idiom, per the pointer/offset discipline in spec.md §9.

func readU16(b []byte, off uint32) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

func readU32(b []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func writeU16(b []byte, off uint32, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

func writeU32(b []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}
