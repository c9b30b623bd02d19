package fireflower

import "fmt"

// ARM/Thumb opcode encodings used by hook and veneer synthesis. Grounded
// on the ARMv5TE condition/op encodings the original fireflower.cpp uses;
// the bit layout is architectural, not a choice this project made.
const (
	condAL uint32 = 0xE << 28

	armOpB    uint32 = 0x0A000000
	armOpBL   uint32 = 0x0B000000
	armOpBLX  uint32 = 0xFA000000
	armOpPush uint32 = 0x09200000
	armOpPop  uint32 = 0x08B00000

	thumbBL0  uint16 = 0xF000
	thumbBL1  uint16 = 0xF800
	thumbBLX1 uint16 = 0xE800

	pushPopRegList uint32 = 0xD5FFF // r0-r12, r14
)

// thumbMode reports whether an address's low bit marks it as Thumb code,
// and returns the address with that bit stripped.
func thumbMode(address uint32) (isThumb bool, stripped uint32) {
	return address&1 != 0, address &^ 1
}

func signed24(v int32) uint32 {
	return uint32(v) & 0xFFFFFF
}

// EncodeARMBranch synthesizes COND_AL | B | signed24((func-hook-8)/4), the
// plain ARM-to-ARM unconditional branch used by Hook-kind hooks (spec.md
// §4.G, scenario S1).
func EncodeARMBranch(hookAddress, funcAddress uint32) uint32 {
	offset := (int32(funcAddress) - int32(hookAddress) - 8) / 4
	return condAL | armOpB | signed24(offset)
}

// EncodeARMLink synthesizes COND_AL | BL | signed24((func-hook-8)/4), the
// ARM-to-ARM branch-with-link used by Link-kind hooks.
func EncodeARMLink(hookAddress, funcAddress uint32) uint32 {
	offset := (int32(funcAddress) - int32(hookAddress) - 8) / 4
	return condAL | armOpBL | signed24(offset)
}

// EncodeARMToThumbBLX synthesizes the ARM-to-Thumb long branch-with-link
// via BLX(immediate), used when a Link hook sits in ARM code and calls a
// Thumb function (spec.md §4.G, scenario S3).
func EncodeARMToThumbBLX(hookAddress, funcAddress uint32) uint32 {
	offset := (int32(funcAddress&^1) - int32(hookAddress) - 8) / 4
	halfwordBit := (funcAddress % 4) / 2
	return armOpBLX | (halfwordBit << 23) | signed24(offset)
}

// EncodeThumbLongBranch synthesizes the 32-bit Thumb BL/BLX instruction
// pair spanning two halfwords at hookAddress. blx selects whether the
// second halfword uses the BLX1 (ARM target) or BL1 (Thumb target)
// encoding. Returns the two halfwords in program order (spec.md §4.G,
// scenario S2).
func EncodeThumbLongBranch(hookAddress, funcAddress uint32, blx bool) (hi, lo uint16) {
	offset := (int32(funcAddress&^1) - int32(hookAddress) - 4) / 2
	hi = thumbBL0 | uint16((offset&0x3FF800)>>11)
	if blx {
		lo = thumbBLX1 | uint16(offset&0x7FF)
	} else {
		lo = thumbBL1 | uint16(offset&0x7FF)
	}
	return hi, lo
}

// EncodePush synthesizes the ARM PUSH {r0-r12,lr} used to save caller
// context at the head of a safe-hook veneer.
func EncodePush() uint32 {
	return condAL | armOpPush | pushPopRegList
}

// EncodePop synthesizes the matching ARM POP {r0-r12,lr}.
func EncodePop() uint32 {
	return condAL | armOpPop | pushPopRegList
}

// SynthesizeHook computes the machine code to write at hookAddress for a
// plain Hook or Link kind hook (Safe is handled separately by the Patch
// Applicator, since it needs the veneer block's address). Returns the
// 4 bytes to write, little-endian; a Thumb BL/BLX pair is packed into the
// same 4-byte word.
func SynthesizeHook(kind HookKind, hookAddress, funcAddress uint32) ([]byte, error) {
	hookThumb, hookAddr := thumbMode(hookAddress)
	funcThumb, funcAddr := thumbMode(funcAddress)

	switch kind {
	case HookKindHook:
		if hookThumb || funcThumb {
			return nil, fmt.Errorf("fireflower: cannot synthesize plain branch across an ARM/Thumb mode boundary at 0x%08X", hookAddress)
		}
		op := EncodeARMBranch(hookAddr, funcAddr)
		return u32LE(op), nil

	case HookKindLink:
		switch {
		case !hookThumb && !funcThumb:
			return u32LE(EncodeARMLink(hookAddr, funcAddr)), nil
		case !hookThumb && funcThumb:
			return u32LE(EncodeARMToThumbBLX(hookAddr, funcAddress)), nil
		case hookThumb && !funcThumb:
			hi, lo := EncodeThumbLongBranch(hookAddr, funcAddr, true)
			return thumbPairLE(hi, lo), nil
		default:
			hi, lo := EncodeThumbLongBranch(hookAddr, funcAddr, false)
			return thumbPairLE(hi, lo), nil
		}
	}
	return nil, fmt.Errorf("fireflower: SynthesizeHook called with non-branch hook kind %v", kind)
}

func u32LE(v uint32) []byte {
	b := make([]byte, 4)
	writeU32(b, 0, v)
	return b
}

// thumbPairLE packs two Thumb halfwords into the 32-bit little-endian word
// the linked binary actually stores: opcode1<<16 | opcode0, matching the
// original writeWord(currentTarget, hookAddress, opcode1<<16|opcode0,...)
// call.
func thumbPairLE(hi, lo uint16) []byte {
	word := uint32(lo)<<16 | uint32(hi)
	return u32LE(word)
}
