package fireflower

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// autoloadEntrySize is the width of one crt0 autoload descriptor: the
// block's RAM address, its code size, and its bss size (spec.md §4.G).
const autoloadEntrySize = 12

// safeVeneerWords is the instruction count of a safe-hook veneer: the
// relocated original instruction, PUSH, BL/BLX, POP, and the branch back
// to hookAddress+4 (spec.md §4.G, "Safe-hook veneer").
const safeVeneerWords = 5

// ApplyInput gathers everything the Patch Applicator needs for one ROM:
// the raw binary buffers keyed by CodeTarget (the two main binaries plus
// every patched overlay), their crt0 properties, overlay tables, and the
// fully sorted fixup list from the ELF Resolver.
type ApplyInput struct {
	Binaries      map[CodeTarget][]byte
	Props         map[CodeTarget]ARMBinaryProperties // keyed by TargetARM9/TargetARM7
	OverlayTables map[CodeTarget]*OverlayTable        // keyed by TargetARM9/TargetARM7
	SectionMap    *SectionMap
	SafeReserve   map[CodeTarget]uint32
	// RegionStart is cfg.Patch.<proc>.Start, the fixed RAM origin of the
	// processor's patch region, keyed by TargetARM9/TargetARM7. It feeds
	// the heap-pointer relocation formula in applyAutoloadPatch.
	RegionStart map[CodeTarget]uint32
	// Reloc is cfg.Patch.<proc>.Reloc, the fixed RAM address the
	// relocated heap pointer is written to, keyed by TargetARM9/TargetARM7.
	Reloc  map[CodeTarget]uint32
	Fixups []Fixup
}

// veneerCursor tracks where the next safe-hook veneer is written inside
// one target's reserved tail region.
type veneerCursor struct {
	next uint32
	end  uint32
}

// ApplyFixups walks the sorted Fixup list and mutates in.Binaries in
// place, implementing the Patch Applicator (spec.md §4.G). Fixups must
// already be in the order SortFixups produces: every target's
// autoload-extension Patch (if any) comes before that target's Hooks, so
// a hook can safely address newly-added code.
func ApplyFixups(logger *log.Logger, in *ApplyInput) error {
	cursors := make(map[CodeTarget]*veneerCursor)

	for _, fx := range in.Fixups {
		switch fx.Kind {
		case FixupPatch:
			if err := applyPatch(logger, in, fx.Patch, cursors); err != nil {
				return err
			}
		case FixupHook:
			if err := applyHook(logger, in, fx.Hook, cursors); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyPatch(logger *log.Logger, in *ApplyInput, p Patch, cursors map[CodeTarget]*veneerCursor) error {
	if p.IsReplace() {
		return applyReplacePatch(logger, in, p)
	}
	return applyAutoloadPatch(logger, in, p, cursors)
}

// applyReplacePatch copies a .over.<target>.<addr> section's bytes
// straight into the binary at its forced RAM address.
func applyReplacePatch(logger *log.Logger, in *ApplyInput, p Patch) error {
	binary := in.Binaries[p.Target]
	if binary == nil {
		return fmt.Errorf("fireflower: no binary loaded for target %s", p.Target)
	}
	if p.CodeSize == 0 {
		return nil
	}
	if uint32(len(p.Payload)) != p.CodeSize {
		return fmt.Errorf("fireflower: replace patch at target %s address 0x%08X: payload is %d bytes, want %d", p.Target, p.RAMAddress, len(p.Payload), p.CodeSize)
	}
	logger.Debugf("applying replace patch at target %s address 0x%08X (%d bytes)", p.Target, p.RAMAddress, p.CodeSize)
	in.SectionMap.Write(logger, p.Target, p.RAMAddress, p.Payload, binary)
	return nil
}

// applyAutoloadPatch splices a new autoload block (new compiled code plus
// its bss reservation) onto a target's autoload list, per spec.md §4.G
// "autoload-list mutation". The block's compiled code is inserted right
// before the existing descriptor table (growing the file by CodeSize),
// and a new 12-byte descriptor is inserted right after the existing
// table's last entry (growing the file by a further 12 bytes), so the
// table itself never needs to move: only autoloadStart/autoloadEnd grow,
// and both are rewritten into the binary's moduleParams block. Finally
// the relocated heap pointer is recomputed and written to its configured
// fixed RAM address.
func applyAutoloadPatch(logger *log.Logger, in *ApplyInput, p Patch, cursors map[CodeTarget]*veneerCursor) error {
	if p.Target.IsOverlay() && p.Target.IsARM7() {
		return fmt.Errorf("fireflower: ARM7 overlay %s cannot carry an autoload-extension patch", p.Target)
	}
	if uint32(len(p.Payload)) != p.CodeSize {
		return fmt.Errorf("fireflower: autoload patch at target %s address 0x%08X: payload is %d bytes, want %d", p.Target, p.RAMAddress, len(p.Payload), p.CodeSize)
	}

	processor := processorOf(p.Target)
	props, ok := in.Props[processor]
	if !ok {
		return fmt.Errorf("fireflower: no crt0 properties for processor of target %s", p.Target)
	}
	binary := in.Binaries[processor]
	if binary == nil {
		return fmt.Errorf("fireflower: no binary loaded for processor of target %s", p.Target)
	}

	insertPayload := props.AutoloadStart
	insertDescriptor := props.AutoloadEnd

	descriptor := make([]byte, autoloadEntrySize)
	writeU32(descriptor, 0, p.RAMAddress)
	writeU32(descriptor, 4, p.CodeSize)
	writeU32(descriptor, 8, p.BSSSize)

	extended := make([]byte, 0, len(binary)+int(p.CodeSize)+autoloadEntrySize)
	extended = append(extended, binary[:insertPayload]...)
	extended = append(extended, p.Payload...)
	extended = append(extended, binary[insertPayload:insertDescriptor]...)
	extended = append(extended, descriptor...)
	extended = append(extended, binary[insertDescriptor:]...)
	in.Binaries[processor] = extended

	newAutoloadStart := props.AutoloadStart + p.CodeSize
	newAutoloadEnd := props.AutoloadEnd + p.CodeSize + autoloadEntrySize
	props.AutoloadStart = newAutoloadStart
	props.AutoloadEnd = newAutoloadEnd
	in.Props[processor] = props

	writeU32(extended, props.ModuleParams+0x0, newAutoloadStart+props.Offset)
	writeU32(extended, props.ModuleParams+0x4, newAutoloadEnd+props.Offset)

	in.SectionMap.Add(p.Target, SectionData{
		Start:       p.RAMAddress,
		End:         p.RAMAddress + p.CodeSize,
		Destination: insertPayload,
	})

	grown := p.CodeSize
	if p.BSSAlign > 0 {
		grown = alignUp(grown, p.BSSAlign)
	}
	if reloc, ok := in.Reloc[processor]; ok && reloc != 0 {
		heapWord := in.RegionStart[processor] + grown + p.BSSSize
		in.SectionMap.WriteWord(logger, processor, reloc, heapWord, extended)
	}

	if reserve := in.SafeReserve[p.Target]; reserve > 0 {
		cursors[p.Target] = &veneerCursor{
			next: p.RAMAddress + p.CodeSize - reserve,
			end:  p.RAMAddress + p.CodeSize,
		}
	}

	logger.Infof("extended autoload for %s by %d+%d bytes at 0x%08X", p.Target, p.CodeSize, autoloadEntrySize, insertPayload)
	return nil
}

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func processorOf(t CodeTarget) CodeTarget {
	if t.IsARM7() {
		return TargetARM7
	}
	return TargetARM9
}

// applyHook dispatches a resolved Hook to the appropriate opcode
// synthesis and writes the result through the SectionMap.
func applyHook(logger *log.Logger, in *ApplyInput, h Hook, cursors map[CodeTarget]*veneerCursor) error {
	if h.FuncAddress == sentinelFuncAddress {
		return fmt.Errorf("fireflower: hook %q on target %s never resolved a function address", h.SymbolName, h.Target)
	}
	processor := processorOf(h.Target)
	binary := in.Binaries[processor]

	switch h.Kind {
	case HookKindHook, HookKindLink:
		code, err := SynthesizeHook(h.Kind, h.HookAddress, h.FuncAddress)
		if err != nil {
			return fmt.Errorf("fireflower: hook %q: %w", h.SymbolName, err)
		}
		in.SectionMap.Write(logger, h.Target, h.HookAddress&^1, code, in.Binaries[h.Target])
		return nil

	case HookKindSafe:
		return applySafeHook(logger, in, h, cursors, binary)
	}
	return fmt.Errorf("fireflower: hook %q has unexpected kind %v", h.SymbolName, h.Kind)
}

// applySafeHook emits a five-word veneer (original instruction relocated,
// PUSH, BL/BLX to funcAddress, POP, branch back) into the target's
// reserved tail region, then overwrites hookAddress with a branch into
// that veneer. The relocated instruction is checked with
// CheckSafeInstruction and any finding is logged as a warning only;
// emission proceeds regardless, matching spec.md §4.H.
func applySafeHook(logger *log.Logger, in *ApplyInput, h Hook, cursors map[CodeTarget]*veneerCursor, binary []byte) error {
	if h.HookAddress&1 != 0 {
		return fmt.Errorf("fireflower: safe hook %q at 0x%08X must be ARM-mode", h.SymbolName, h.HookAddress)
	}
	cursor, ok := cursors[h.Target]
	if !ok || cursor.next+safeVeneerWords*4 > cursor.end {
		return fmt.Errorf("fireflower: no safe-hook reserve space left for target %s", h.Target)
	}
	veneerAddr := cursor.next
	cursor.next += safeVeneerWords * 4

	site := in.Binaries[h.Target]
	original := in.SectionMap.ReadWord(logger, h.Target, h.HookAddress, site)
	for _, w := range CheckSafeInstruction(original) {
		logger.Warnf("safe hook %q at 0x%08X: %s", h.SymbolName, h.HookAddress, w)
	}

	call, err := SynthesizeHook(HookKindLink, veneerAddr+8, h.FuncAddress)
	if err != nil {
		return fmt.Errorf("fireflower: safe hook %q: %w", h.SymbolName, err)
	}
	back := EncodeARMBranch(veneerAddr+16, h.HookAddress+4)

	in.SectionMap.WriteWord(logger, h.Target, veneerAddr, original, binary)
	in.SectionMap.WriteWord(logger, h.Target, veneerAddr+4, EncodePush(), binary)
	in.SectionMap.Write(logger, h.Target, veneerAddr+8, call, binary)
	in.SectionMap.WriteWord(logger, h.Target, veneerAddr+12, EncodePop(), binary)
	in.SectionMap.WriteWord(logger, h.Target, veneerAddr+16, back, binary)

	branchIn := EncodeARMBranch(h.HookAddress, veneerAddr)
	in.SectionMap.WriteWord(logger, h.Target, h.HookAddress, branchIn, site)

	logger.Debugf("safe hook %q: veneer at 0x%08X for call to 0x%08X", h.SymbolName, veneerAddr, h.FuncAddress)
	return nil
}
