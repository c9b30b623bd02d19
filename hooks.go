package fireflower

import (
	"debug/elf"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// HookKind is the kind of marker section a hook was collected from.
type HookKind int

const (
	HookKindHook HookKind = iota
	HookKindLink
	HookKindSafe
	HookKindReplace
)

func (k HookKind) String() string {
	switch k {
	case HookKindHook:
		return "hook"
	case HookKindLink:
		return "rlnk"
	case HookKindSafe:
		return "safe"
	case HookKindReplace:
		return "over"
	}
	return "unknown"
}

// sentinelFuncAddress marks a Hook whose function address has not yet
// been resolved by the ELF Resolver (§4.E).
const sentinelFuncAddress = 0xFFFFFFFF

// Hook is (target, kind, hookAddress, funcAddress) per spec.md §3. The low
// bit of either address encodes Thumb mode.
type Hook struct {
	Target       CodeTarget
	Kind         HookKind
	HookAddress  uint32
	FuncAddress  uint32
	SymbolName   string
}

func markerKind(prefix string) (HookKind, bool) {
	switch prefix {
	case "hook":
		return HookKindHook, true
	case "rlnk":
		return HookKindLink, true
	case "safe":
		return HookKindSafe, true
	case "over":
		return HookKindReplace, true
	}
	return 0, false
}

// parseMarkerSectionName splits ".hook.<target>.<hexaddr>" style names into
// their three dotted parts.
func parseMarkerSectionName(name string) (kind HookKind, target CodeTarget, address uint32, ok bool) {
	trimmed := strings.TrimPrefix(name, ".")
	parts := strings.SplitN(trimmed, ".", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	kind, ok = markerKind(parts[0])
	if !ok {
		return 0, 0, 0, false
	}
	target, err := ParseCodeTarget(parts[1])
	if err != nil {
		return 0, 0, 0, false
	}
	addr, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return kind, target, uint32(addr), true
}

// HookTables holds the process-wide hook maps, partitioned by processor
// per spec.md §4.D, plus the accumulated safe-hook reserve per target
// needed by the Linker-Script Generator.
type HookTables struct {
	ARM9        map[string]*Hook
	ARM7        map[string]*Hook
	SafeReserve map[CodeTarget]uint32
}

func newHookTables() *HookTables {
	return &HookTables{
		ARM9:        make(map[string]*Hook),
		ARM7:        make(map[string]*Hook),
		SafeReserve: make(map[CodeTarget]uint32),
	}
}

// CollectHooks scans every compiled object file for marker sections and
// their defined symbols, implementing spec.md §4.D.
func CollectHooks(logger *log.Logger, objectPaths []string) (*HookTables, error) {
	tables := newHookTables()
	for _, path := range objectPaths {
		if err := collectHooksFromObject(logger, path, tables); err != nil {
			return nil, fmt.Errorf("fireflower: collecting hooks from %s: %w", path, err)
		}
	}
	return tables, nil
}

func collectHooksFromObject(logger *log.Logger, path string, tables *HookTables) error {
	f, err := elf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hookSections := make(map[elf.SectionIndex]*Hook)

	for i, sec := range f.Sections {
		if !strings.HasPrefix(sec.Name, ".hook") &&
			!strings.HasPrefix(sec.Name, ".rlnk") &&
			!strings.HasPrefix(sec.Name, ".safe") &&
			!strings.HasPrefix(sec.Name, ".over") {
			continue
		}
		kind, target, address, ok := parseMarkerSectionName(sec.Name)
		if !ok {
			logger.Warnf("%s: invalid marker section name %q", path, sec.Name)
			continue
		}
		if kind == HookKindSafe {
			if address&1 != 0 {
				logger.Warnf("%s: safe hook at 0x%08X must be ARM-mode (even address)", path, address)
				continue
			}
			tables.SafeReserve[target] += 20
		}
		hookSections[elf.SectionIndex(i)] = &Hook{
			Target:      target,
			Kind:        kind,
			HookAddress: address,
			FuncAddress: sentinelFuncAddress,
		}
	}

	if len(hookSections) == 0 {
		return nil
	}

	syms, err := f.Symbols()
	if err != nil {
		return fmt.Errorf("reading symbol table: %w", err)
	}
	for _, sym := range syms {
		hook, ok := hookSections[sym.Section]
		if !ok {
			continue
		}
		if sym.Value >= 2 {
			continue
		}
		if strings.HasPrefix(sym.Name, "$") {
			continue
		}
		hook.SymbolName = sym.Name
		table := tables.ARM9
		if hook.Target.IsARM7() {
			table = tables.ARM7
		}
		table[sym.Name] = hook
	}
	return nil
}
