package fireflower

import (
	"fmt"
	"sort"
	"strings"
)

// LinkerScriptInput gathers everything the Linker-Script Generator
// (spec.md §4.C) needs for one processor: the live object files destined
// for that processor's regions, the accumulated safe-hook reserve, and
// the Replace-kind hooks to turn into forced .over.* placements.
type LinkerScriptInput struct {
	Processor   CodeTarget // TargetARM9 or TargetARM7
	Objects     map[CodeTarget][]string
	SafeReserve map[CodeTarget]uint32
	Replace     map[string]*Hook
	Start       uint32 // cfg.Patch.<proc>.Start: the processor's patch region origin
	End         uint32 // cfg.Patch.<proc>.End: the processor's patch region bound
	SymbolsFile string // INCLUDE'd GNU ld symbol file, or ""
}

// ldpatchScratchSize is the LMA-only scratch region every Replace-hook
// section spills its file bytes into (fireflower.cpp:1157-1161), so its
// VMA placement at the literal hook address never has to compete with the
// processor's real patch region for space.
const ldpatchScratchSize = 1000000

// regionName returns the MEMORY/SECTIONS region name for a code target,
// e.g. "arm9", "ov9_7".
func regionName(t CodeTarget) string {
	return t.String()
}

// GenerateLinkerScript emits a GNU ld linker script placing every live
// object into its processor's shared patch region, reserving safePatch
// space, and forcing Replace-kind hook targets to their literal hook
// address via the "ldpatch" scratch region, per spec.md §4.C. As a side
// effect it removes every emitted Replace hook from in, since the ELF
// Resolver (§4.E) never resolves a funcAddress for a Replace hook once
// its section placement has been generated.
func GenerateLinkerScript(in *LinkerScriptInput) (string, error) {
	var sb strings.Builder

	if in.SymbolsFile != "" {
		fmt.Fprintf(&sb, "INCLUDE %q\n\n", in.SymbolsFile)
	}

	procRegion := regionName(in.Processor)

	sb.WriteString("MEMORY\n{\n")
	fmt.Fprintf(&sb, "    %s (rwx) : ORIGIN = 0x%08X, LENGTH = 0x%X\n", procRegion, in.Start, in.End-in.Start)
	fmt.Fprintf(&sb, "    ldpatch (rwx) : ORIGIN = 0, LENGTH = %d\n", ldpatchScratchSize)
	sb.WriteString("}\n\n")

	sameProcessor := func(t CodeTarget) bool {
		if in.Processor.IsARM9() {
			return t.IsARM9()
		}
		return t.IsARM7()
	}

	var targets []CodeTarget
	for t := range in.Objects {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	var replaceTargets []CodeTarget
	replaceByTarget := make(map[CodeTarget][]*Hook)
	for _, h := range in.Replace {
		if h.Kind != HookKindReplace || !sameProcessor(h.Target) {
			continue
		}
		replaceByTarget[h.Target] = append(replaceByTarget[h.Target], h)
	}
	for t := range replaceByTarget {
		replaceTargets = append(replaceTargets, t)
	}
	sort.Slice(replaceTargets, func(i, j int) bool { return replaceTargets[i] < replaceTargets[j] })
	for _, t := range replaceTargets {
		hooks := replaceByTarget[t]
		sort.Slice(hooks, func(i, j int) bool { return hooks[i].HookAddress < hooks[j].HookAddress })
	}

	sb.WriteString("SECTIONS\n{\n")
	for _, t := range targets {
		fmt.Fprintf(&sb, "    .text.%s :\n    {\n", t)
		for _, obj := range in.Objects[t] {
			fmt.Fprintf(&sb, "        %q (.text .text.* .rodata .rodata.* .init .init_array .ARM.exidx* .safe.* .hook.* .rlnk.*)\n", obj)
		}
		if reserve := in.SafeReserve[t]; reserve > 0 {
			fmt.Fprintf(&sb, "        . += 0x%X; /* safe-hook veneer reserve */\n", reserve)
		}
		fmt.Fprintf(&sb, "    } > %s\n\n", procRegion)

		fmt.Fprintf(&sb, "    .bss.%s :\n    {\n", t)
		for _, obj := range in.Objects[t] {
			fmt.Fprintf(&sb, "        %q (.bss .bss.* COMMON)\n", obj)
		}
		fmt.Fprintf(&sb, "    } > %s\n\n", procRegion)
	}

	for _, t := range replaceTargets {
		for _, h := range replaceByTarget[t] {
			fmt.Fprintf(&sb, "    .over.%s.%08x 0x%08X : SUBALIGN(1)\n    {\n        KEEP(*(.over.%s.%08x))\n    } > %s AT>ldpatch\n\n",
				t, h.HookAddress, h.HookAddress&^1, t, h.HookAddress, procRegion)
		}
	}

	sb.WriteString("    /DISCARD/ :\n    {\n        *(.*)\n    }\n}\n")

	for name, h := range in.Replace {
		if h.Kind != HookKindReplace || !sameProcessor(h.Target) {
			continue
		}
		delete(in.Replace, name)
	}

	return sb.String(), nil
}
