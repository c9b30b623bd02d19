package fireflower

import (
	"debug/elf"
	"fmt"
	"sort"
	"strings"
)

// NoBSS marks a Patch as a Replace-style raw patch (from a .over.*
// section) rather than an autoload-extension patch, per spec.md §3.
const NoBSS uint32 = 0xFFFFFFFF

// Patch is (target, ramAddress, fileOffsetInElf, codeSize, bssSize,
// bssAlign), per spec.md §3.
type Patch struct {
	Target     CodeTarget
	RAMAddress uint32
	FileOffset uint32
	CodeSize   uint32
	BSSSize    uint32
	BSSAlign   uint32
	// Payload carries the raw section bytes read from the linked ELF: the
	// .over.<target>.<addr> section for a Replace-style patch, or the
	// .text.<target> section for an autoload-extension patch.
	Payload []byte
}

// IsReplace reports whether this Patch is a Replace-style raw patch
// rather than an autoload-extension patch.
func (p Patch) IsReplace() bool {
	return p.BSSSize == NoBSS
}

// FixupKind distinguishes a Fixup's underlying variant.
type FixupKind int

const (
	FixupPatch FixupKind = iota
	FixupHook
)

// Fixup is the Patch ⊕ Hook sum type (spec.md §3).
type Fixup struct {
	Kind  FixupKind
	Patch Patch
	Hook  Hook
}

func (f Fixup) target() CodeTarget {
	if f.Kind == FixupPatch {
		return f.Patch.Target
	}
	return f.Hook.Target
}

// kindRank orders Patches before Hooks within one target (spec.md §4.E
// sort order item 2: "the autoload-extending patch is applied first;
// otherwise no hook can hit a new-code address").
func (f Fixup) kindRank() int {
	if f.Kind == FixupPatch {
		return 0
	}
	return 1
}

func (f Fixup) bssSizeForSort() int64 {
	if f.Kind != FixupPatch {
		return -1
	}
	if f.Patch.BSSSize == NoBSS {
		return -1
	}
	return int64(f.Patch.BSSSize)
}

// SortFixups applies the total order from spec.md §4.E: ascending by code
// target, then Patches before Hooks, then (within two patches of one
// target) descending by bssSize.
func SortFixups(fixups []Fixup) {
	sort.SliceStable(fixups, func(i, j int) bool {
		a, b := fixups[i], fixups[j]
		if a.target() != b.target() {
			return a.target() < b.target()
		}
		if a.kindRank() != b.kindRank() {
			return a.kindRank() < b.kindRank()
		}
		return a.bssSizeForSort() > b.bssSizeForSort()
	})
}

// ResolveELF implements spec.md §4.E for one linked ELF (arm9.elf or
// arm7.elf): it extracts Patch entries from .text.<target>/.bss.<target>
// sections and .over.<target>.<addr> sections, then fills in FuncAddress
// for every Hook in hooks whose symbol name matches a defined symbol.
func ResolveELF(path string, hooks map[string]*Hook) (patches []Patch, overPatches []Patch, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("fireflower: opening %s: %w", path, err)
	}
	defer f.Close()

	patchByTarget := make(map[CodeTarget]*Patch)

	for _, sec := range f.Sections {
		switch {
		case strings.HasPrefix(sec.Name, ".text."):
			target, err := ParseCodeTarget(strings.TrimPrefix(sec.Name, ".text."))
			if err != nil {
				continue
			}
			payload, err := sec.Data()
			if err != nil {
				return nil, nil, fmt.Errorf("fireflower: reading %s from %s: %w", sec.Name, path, err)
			}
			patchByTarget[target] = &Patch{
				Target:     target,
				RAMAddress: uint32(sec.Addr),
				FileOffset: uint32(sec.Offset),
				CodeSize:   uint32(sec.Size),
				BSSSize:    0,
				BSSAlign:   0,
				Payload:    payload,
			}
		case strings.HasPrefix(sec.Name, ".bss."):
			target, err := ParseCodeTarget(strings.TrimPrefix(sec.Name, ".bss."))
			if err != nil {
				continue
			}
			if p, ok := patchByTarget[target]; ok {
				p.BSSSize = uint32(sec.Size)
				p.BSSAlign = uint32(sec.Addralign)
			}
		case strings.HasPrefix(sec.Name, ".over."):
			kind, target, addr, ok := parseMarkerSectionName(sec.Name)
			if !ok || kind != HookKindReplace {
				continue
			}
			payload, err := sec.Data()
			if err != nil {
				return nil, nil, fmt.Errorf("fireflower: reading %s from %s: %w", sec.Name, path, err)
			}
			overPatches = append(overPatches, Patch{
				Target:     target,
				RAMAddress: addr,
				FileOffset: uint32(sec.Offset),
				CodeSize:   uint32(sec.Size),
				BSSSize:    NoBSS,
				BSSAlign:   NoBSS,
				Payload:    payload,
			})
		}
	}

	for _, p := range patchByTarget {
		patches = append(patches, *p)
	}

	syms, err := f.Symbols()
	if err != nil {
		return nil, nil, fmt.Errorf("fireflower: reading symbols from %s: %w", path, err)
	}
	for _, sym := range syms {
		hook, ok := hooks[sym.Name]
		if !ok || hook.FuncAddress != sentinelFuncAddress {
			continue
		}
		hook.FuncAddress = uint32(sym.Value)
	}
	return patches, overPatches, nil
}

// AssembleFixups builds and sorts the final Fixup list from both
// processors' resolved patches and hooks, per spec.md §4.E: "fixups =
// elfBinaries.values() ⊕ hooksArm7 ⊕ hooksArm9 ⊕ overPatches".
func AssembleFixups(patches9, over9 []Patch, hooks9 map[string]*Hook, patches7, over7 []Patch, hooks7 map[string]*Hook) []Fixup {
	var fixups []Fixup
	for _, p := range patches9 {
		fixups = append(fixups, Fixup{Kind: FixupPatch, Patch: p})
	}
	for _, p := range patches7 {
		fixups = append(fixups, Fixup{Kind: FixupPatch, Patch: p})
	}
	for _, h := range hooks7 {
		fixups = append(fixups, Fixup{Kind: FixupHook, Hook: *h})
	}
	for _, h := range hooks9 {
		fixups = append(fixups, Fixup{Kind: FixupHook, Hook: *h})
	}
	for _, p := range over9 {
		fixups = append(fixups, Fixup{Kind: FixupPatch, Patch: p})
	}
	for _, p := range over7 {
		fixups = append(fixups, Fixup{Kind: FixupPatch, Patch: p})
	}
	SortFixups(fixups)
	return fixups
}
