package fireflower

import (
	"fmt"
	"strconv"
	"strings"
)

// CodeTarget identifies where a compiled object, hook, or patch belongs:
// the main ARM9 binary, the main ARM7 binary, or a numbered overlay of
// either processor. The numeric ranges are part of the on-disk contract
// (linker script region names, fixup sort order) and must not change.
type CodeTarget uint32

const (
	// TargetARM9 is the main ARM9 binary.
	TargetARM9 CodeTarget = 0
	// TargetARM7 is the main ARM7 binary.
	TargetARM7 CodeTarget = 1

	ov9Base CodeTarget = 1000
	ov7Base CodeTarget = 2000
)

// OV9 returns the code target for ARM9 overlay id.
func OV9(id uint32) CodeTarget { return ov9Base + CodeTarget(id) }

// OV7 returns the code target for ARM7 overlay id.
func OV7(id uint32) CodeTarget { return ov7Base + CodeTarget(id) }

// IsARM9 reports whether the target belongs to the ARM9 processor (the
// main binary or one of its overlays).
func (t CodeTarget) IsARM9() bool {
	return t == TargetARM9 || (t >= ov9Base && t < ov7Base)
}

// IsARM7 reports whether the target belongs to the ARM7 processor.
func (t CodeTarget) IsARM7() bool {
	return t == TargetARM7 || t >= ov7Base
}

// IsOverlay reports whether the target is a numbered overlay rather than
// a main binary.
func (t CodeTarget) IsOverlay() bool {
	return t >= ov9Base
}

// IsBinary reports whether the target is one of the two main binaries.
func (t CodeTarget) IsBinary() bool {
	return t == TargetARM9 || t == TargetARM7
}

// OverlayID returns the overlay number. Only valid when IsOverlay is true.
func (t CodeTarget) OverlayID() uint32 {
	if t >= ov7Base {
		return uint32(t - ov7Base)
	}
	return uint32(t - ov9Base)
}

// String renders the target in the textual form the config and linker
// scripts use: "arm9", "arm7", "ov9_<n>", "ov7_<n>".
func (t CodeTarget) String() string {
	switch {
	case t == TargetARM9:
		return "arm9"
	case t == TargetARM7:
		return "arm7"
	case t >= ov7Base:
		return fmt.Sprintf("ov7_%d", t.OverlayID())
	case t >= ov9Base:
		return fmt.Sprintf("ov9_%d", t.OverlayID())
	default:
		return fmt.Sprintf("invalid_target_%d", uint32(t))
	}
}

// ParseCodeTarget parses the textual form of a CodeTarget, rejecting any
// string that isn't exactly "arm9", "arm7", or "ov{9,7}_<decimal>".
func ParseCodeTarget(s string) (CodeTarget, error) {
	switch s {
	case "arm9":
		return TargetARM9, nil
	case "arm7":
		return TargetARM7, nil
	}
	var base CodeTarget
	var rest string
	switch {
	case strings.HasPrefix(s, "ov9_"):
		base, rest = ov9Base, s[len("ov9_"):]
	case strings.HasPrefix(s, "ov7_"):
		base, rest = ov7Base, s[len("ov7_"):]
	default:
		return 0, fmt.Errorf("fireflower: invalid code target %q", s)
	}
	if rest == "" {
		return 0, fmt.Errorf("fireflower: invalid code target %q: missing overlay id", s)
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("fireflower: invalid code target %q: %w", s, err)
	}
	return base + CodeTarget(id), nil
}
