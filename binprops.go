package fireflower

import "fmt"

// ARMBinaryProperties describes the crt0-placed module-params descriptor
// inside an ARM binary (spec.md §3, §4.F). All addresses except Offset and
// ModuleParams are translated from RAM addresses to in-file offsets
// relative to the binary's load offset.
type ARMBinaryProperties struct {
	// Offset is the binary's RAM load address (from the ROM header).
	Offset uint32
	// ModuleParams is the in-file offset of the module-params block.
	ModuleParams uint32
	// AutoloadStart/End/Read are in-file offsets.
	AutoloadStart uint32
	AutoloadEnd   uint32
	AutoloadRead  uint32
	// CompressedEnd is the in-file offset of the compressed-data end
	// marker, or 0 if the binary is uncompressed.
	CompressedEnd uint32
}

const (
	romHeaderARM9Entry  = 0x24
	romHeaderARM9Offset = 0x28
	romHeaderARM9Size   = 0x2C
	romHeaderARM7Entry  = 0x34
	romHeaderARM7Offset = 0x38
	romHeaderARM7Size   = 0x3C

	arm9ScanWindow = 0x400
	arm7ScanWindow = 0x1A0
)

// LocateARMBinaryProperties finds moduleParams inside a raw ARM binary by
// signature scan and decodes the autoload-list pointers, implementing
// spec.md §4.F.
func LocateARMBinaryProperties(header, binary []byte, isARM9 bool) (ARMBinaryProperties, error) {
	var entryOff, loadOff uint32
	if isARM9 {
		entryOff = readU32(header, romHeaderARM9Entry)
		loadOff = readU32(header, romHeaderARM9Offset)
	} else {
		entryOff = readU32(header, romHeaderARM7Entry)
		loadOff = readU32(header, romHeaderARM7Offset)
	}
	entryFileOffset := entryOff - loadOff

	moduleParams, found := locateModuleParams(binary, entryFileOffset, loadOff, isARM9)
	if !found {
		return ARMBinaryProperties{}, fmt.Errorf("fireflower: failed to find crt0 module params")
	}

	props := ARMBinaryProperties{
		Offset:        loadOff,
		ModuleParams:  moduleParams,
		AutoloadStart: readU32(binary, moduleParams+0x0) - loadOff,
		AutoloadEnd:   readU32(binary, moduleParams+0x4) - loadOff,
		AutoloadRead:  readU32(binary, moduleParams+0x8) - loadOff,
	}
	compressedEnd := readU32(binary, moduleParams+0x14)
	if compressedEnd != 0 {
		compressedEnd -= loadOff
	}
	props.CompressedEnd = compressedEnd
	return props, nil
}

// DecodeAutoloadRows parses the crt0 autoload-list entries between
// AutoloadStart and AutoloadEnd into per-row SectionData, assuming each
// row's code payload is laid out contiguously in the file starting at
// AutoloadRead, in list order (spec.md §4.G: "seed the SectionMap with
// one entry per autoload list row").
func DecodeAutoloadRows(binary []byte, props ARMBinaryProperties) []SectionData {
	var rows []SectionData
	cursor := props.AutoloadRead
	for off := props.AutoloadStart; off+autoloadEntrySize <= props.AutoloadEnd; off += autoloadEntrySize {
		ramAddress := readU32(binary, off)
		codeSize := readU32(binary, off+4)
		rows = append(rows, SectionData{Start: ramAddress, End: ramAddress + codeSize, Destination: cursor})
		cursor += codeSize
	}
	return rows
}

func locateModuleParams(binary []byte, entryFileOffset, loadOff uint32, isARM9 bool) (uint32, bool) {
	if isARM9 {
		return locateARM9ModuleParams(binary, entryFileOffset)
	}
	return locateARM7ModuleParams(binary, entryFileOffset, loadOff)
}

// locateARM9ModuleParams scans [entryOffset, entryOffset+0x400) for the
// literal word pair 0xDEC00621, 0x2106C0DE; moduleParams is that address
// minus 0x1C. The original source keeps scanning past the first match
// (the loop never breaks), so the last match in range wins; we preserve
// that behavior.
func locateARM9ModuleParams(binary []byte, entryFileOffset uint32) (uint32, bool) {
	found := false
	var moduleParams uint32
	size := uint32(len(binary))
	limit := entryFileOffset + arm9ScanWindow
	if limit > size-4 {
		limit = size - 4
	}
	for i := entryFileOffset; i < limit; i += 4 {
		a := readU32(binary, i)
		b := readU32(binary, i+4)
		if a == 0xDEC00621 && b == 0x2106C0DE {
			moduleParams = i - 0x1C
			found = true
		}
	}
	return moduleParams, found
}

// locateARM7ModuleParams scans [entryOffset, entryOffset+0x1A0) for the
// literal word triple 0xE5901000, 0xE5902004, 0xE5903008, preceded by a
// PC-relative load (0xE59F0000 | imm12) whose target is a forward pointer
// to moduleParams.
func locateARM7ModuleParams(binary []byte, entryFileOffset, loadOff uint32) (uint32, bool) {
	found := false
	var moduleParams uint32
	size := uint32(len(binary))
	limit := entryFileOffset + arm7ScanWindow
	if limit > size-8 {
		limit = size - 8
	}
	for i := entryFileOffset; i < limit; i += 4 {
		if i == 0 {
			continue
		}
		a := readU32(binary, i)
		b := readU32(binary, i+4)
		c := readU32(binary, i+8)
		if a != 0xE5901000 || b != 0xE5902004 || c != 0xE5903008 {
			continue
		}
		load := readU32(binary, i-4)
		if load&0xFFFFF000 != 0xE59F0000 {
			continue
		}
		imm12 := load & 0xFFF
		ptrFileOffset := imm12 + i + 4
		if ptrFileOffset >= size {
			continue
		}
		target := readU32(binary, ptrFileOffset) - loadOff
		if target >= size {
			continue
		}
		moduleParams = target
		found = true
	}
	return moduleParams, found
}
