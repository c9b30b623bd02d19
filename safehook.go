package fireflower

import "fmt"

// CheckSafeInstruction classifies a 32-bit ARM opcode and returns warning
// strings for any construct unsafe to blindly relocate into a safe-hook
// veneer (spec.md §4.H). The rules mirror the ARMv5TE encoding groups in
// bits 27..25; emission still proceeds regardless of any warning.
func CheckSafeInstruction(opcode uint32) []string {
	condition := opcode >> 28
	group := (opcode & 0x0E000000) >> 25

	if condition == 0xF {
		if group == 5 {
			return []string{fmt.Sprintf("branch instruction 0x%08X potentially unsafe: broken branch offset", opcode)}
		}
		return nil
	}

	bit4 := opcode&0x10 != 0
	bit7 := opcode&0x80 != 0
	ext47 := (opcode & 0xF0) >> 4
	sbit := opcode&0x100000 != 0
	code3 := (opcode & 0x1E00000) >> 21
	reg0 := (opcode & 0xF0000) >> 16
	reg1 := (opcode & 0xF000) >> 12

	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	switch group {
	case 0:
		switch {
		case sbit && !bit4:
			warn("data processing instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case sbit && !bit7 && bit4:
			warn("data processing instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case sbit && ext47 == 0x9 && ((code3&0xE) == 0 || (code3&0xC) == 4):
			warn("multiply instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case !sbit && code3 == 9 && ext47 == 1:
			warn("branch exchange instruction 0x%08X has potential side-effects: orphaned code block after instruction", opcode)
		case !sbit && (code3&0xD) == 9 && ext47 == 0:
			warn("PSR move instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case !sbit && (code3&0xC) == 8 && ext47 == 5:
			warn("saturating ALU instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case !sbit && code3 == 9 && ext47 == 7:
			warn("breakpoint instruction 0x%08X potentially unsafe: breakpoint out of place", opcode)
		case !sbit && ((code3 == 8 && (ext47&0x9) == 8) || (code3 == 9 && (ext47&0xB) == 8)):
			warn("signed multiply (type 2) instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case bit4 && ext47 > 9 && (reg0 == 0xF || reg1 == 0xF):
			warn("load/store instruction 0x%08X potentially unsafe: broken PC-relative expression", opcode)
		case bit4 && !bit7 && (((code3&0xC) == 0x1000 && sbit) || (code3&0xC) != 0x1000) && (reg0 == 0xF || reg1 == 0xF):
			warn("data processing instruction 0x%08X potentially unsafe: broken PC-relative expression", opcode)
		}
	case 1:
		switch {
		case sbit:
			warn("load/store instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		case (code3 & 0xD) == 9:
			warn("PSR move instruction 0x%08X potentially unsafe: CPSR non-secured", opcode)
		}
	case 2:
		if reg0 == 0xF || reg1 == 0xF {
			warn("load/store instruction 0x%08X potentially unsafe: broken PC-relative expression", opcode)
		}
	case 3:
		// Never warn.
	case 4:
		if opcode&(1<<15) != 0 {
			warn("load/store multiple instruction 0x%08X potentially unsafe: PC used in register list", opcode)
		}
	case 5:
		warn("branch instruction 0x%08X potentially unsafe: broken branch offset", opcode)
	case 6:
		warn("coprocessor load/store instruction 0x%08X potentially unsafe: broken PC-relative expression", opcode)
	case 7:
		if reg0 == 0xF || reg1 == 0xF {
			warn("coprocessor load/store instruction 0x%08X potentially unsafe: broken PC-relative expression", opcode)
		}
	}
	return warnings
}
