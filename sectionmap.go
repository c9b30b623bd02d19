package fireflower

// SectionData is a half-open RAM range [Start, End) plus the destination
// offset into the in-memory binary buffer it maps to. Several SectionData
// entries per target represent the contiguous autoload sections loaded at
// boot (spec.md §3).
type SectionData struct {
	Start       uint32
	End         uint32
	Destination uint32
}

func (s SectionData) contains(address, size uint32) bool {
	return address >= s.Start && address+size <= s.End
}

// SectionMap owns, for the lifetime of one Patch Applicator run, the
// per-target collection of SectionData used to translate RAM addresses
// into offsets in the in-memory binary buffer (spec.md §9 "Section-map
// ownership").
type SectionMap struct {
	sections map[CodeTarget][]SectionData
}

// NewSectionMap returns an empty SectionMap.
func NewSectionMap() *SectionMap {
	return &SectionMap{sections: make(map[CodeTarget][]SectionData)}
}

// Add registers one SectionData for target. The invariant that ranges for
// a single buffer never overlap is the caller's responsibility (autoload
// rows are inherently disjoint in a well-formed binary).
func (m *SectionMap) Add(target CodeTarget, data SectionData) {
	m.sections[target] = append(m.sections[target], data)
}

// Translate finds the SectionData whose range contains [address,
// address+size) for target and returns the corresponding offset into the
// binary buffer. Per spec.md §4.G, an out-of-range access is reported to
// the caller as !ok, not an error — the caller decides to warn and skip.
func (m *SectionMap) Translate(target CodeTarget, address, size uint32) (offset uint32, ok bool) {
	for _, sec := range m.sections[target] {
		if sec.contains(address, size) {
			return address - sec.Start + sec.Destination, true
		}
	}
	return 0, false
}

// Write copies data into binary at address, translated through the
// SectionMap. A range outside every SectionData is a warning, not a
// fatal error.
func (m *SectionMap) Write(logger logWarner, target CodeTarget, address uint32, data []byte, binary []byte) {
	off, ok := m.Translate(target, address, uint32(len(data)))
	if !ok {
		logger.Warnf("address 0x%08X (%d bytes) on target %s is outside every known section; write skipped", address, len(data), target)
		return
	}
	copy(binary[off:off+uint32(len(data))], data)
}

// ReadWord reads a little-endian u32 at address on target.
func (m *SectionMap) ReadWord(logger logWarner, target CodeTarget, address uint32, binary []byte) uint32 {
	off, ok := m.Translate(target, address, 4)
	if !ok {
		logger.Warnf("address 0x%08X on target %s is outside every known section; read as 0", address, target)
		return 0
	}
	return readU32(binary, off)
}

// WriteWord writes a little-endian u32 value at address on target.
func (m *SectionMap) WriteWord(logger logWarner, target CodeTarget, address uint32, value uint32, binary []byte) {
	off, ok := m.Translate(target, address, 4)
	if !ok {
		logger.Warnf("address 0x%08X on target %s is outside every known section; write skipped", address, target)
		return
	}
	writeU32(binary, off, value)
}

// WriteHalfword writes a little-endian u16 value at address on target.
func (m *SectionMap) WriteHalfword(logger logWarner, target CodeTarget, address uint32, value uint16, binary []byte) {
	off, ok := m.Translate(target, address, 2)
	if !ok {
		logger.Warnf("address 0x%08X on target %s is outside every known section; write skipped", address, target)
		return
	}
	writeU16(binary, off, value)
}

// logWarner is the minimal logging surface SectionMap needs, satisfied by
// *logrus.Logger and *logrus.Entry alike.
type logWarner interface {
	Warnf(format string, args ...interface{})
}
