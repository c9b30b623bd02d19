package fireflower

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Build runs one full fireflower build against the config at configPath,
// implementing the lifecycle in spec.md §3: discover and compile sources,
// collect hooks, link each processor, resolve fixups against the linked
// ELFs, back up and patch the original binaries/overlays, and write the
// patched ROM tree. verbose raises the logger to debug level.
func Build(configPath string, verbose bool) error {
	logger := newLogger(verbose, os.Stderr)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Build.PreBuild != "" {
		logger.Infof("running pre-build command")
		if err := runShellCommand(cfg.Build.PreBuild); err != nil {
			return fmt.Errorf("fireflower: pre-build command failed: %w", err)
		}
	}

	trackerPath := filepath.Join(cfg.Build.Build, ".ffcdeps")
	prevTracker, err := LoadDependencyTracker(trackerPath)
	if err != nil {
		return err
	}
	configChanged, err := prevTracker.ConfigChanged(configPath)
	if err != nil {
		return err
	}
	nextTracker := NewDependencyTracker()
	if nanos, err := statNanos(configPath); err == nil {
		nextTracker.ConfigMtime = nanos
	}

	sources, err := DiscoverSources(cfg)
	if err != nil {
		return err
	}

	objsByTarget := make(map[CodeTarget][]string)
	liveObjects := make(map[string]bool)
	var dirty []SourceFile
	for _, src := range sources {
		objPath, err := ObjectPathFor(cfg, src.Path)
		if err != nil {
			return err
		}
		objsByTarget[src.Target] = append(objsByTarget[src.Target], objPath)
		liveObjects[objPath] = true

		depPath := depPathFor(objPath)
		needs, err := prevTracker.NeedsRecompile(src.Path, depPath, configChanged)
		if err != nil {
			return err
		}
		if needs {
			dirty = append(dirty, src)
		} else {
			nextTracker.CarryForward(prevTracker, src.Path)
			if f, err := os.Open(depPath); err == nil {
				headers, perr := ParseDepFile(f)
				f.Close()
				if perr == nil {
					for _, hdr := range headers {
						nextTracker.CarryForward(prevTracker, hdr)
					}
				}
			}
		}
	}

	cmds, err := BuildCompileCommands(cfg, dirty)
	if err != nil {
		return err
	}
	gcc := NewRunner(filepath.Join(cfg.Build.Toolchain, "ff-gcc", "bin", cfg.Build.Executables.GCC))
	ok, err := RunScheduler(logger, cmds, gcc, cfg.Jobs(), cfg.Build.IsPedantic())
	if !ok {
		if err != nil {
			return err
		}
		return fmt.Errorf("fireflower: compilation failed")
	}
	for _, cmd := range cmds {
		if err := nextTracker.StampFromDepFile(cmd.Source.Path, cmd.DepPath); err != nil {
			return err
		}
	}
	if err := SweepOrphans(cfg.Build.Build, liveObjects); err != nil {
		return err
	}
	if err := nextTracker.Save(trackerPath); err != nil {
		return err
	}

	var allObjects []string
	for obj := range liveObjects {
		allObjects = append(allObjects, obj)
	}
	hookTables, err := CollectHooks(logger, allObjects)
	if err != nil {
		return err
	}

	elf9, err := linkProcessor(logger, cfg, TargetARM9, objsByTarget, hookTables, cfg.Build.Symbols9)
	if err != nil {
		return err
	}
	elf7, err := linkProcessor(logger, cfg, TargetARM7, objsByTarget, hookTables, cfg.Build.Symbols7)
	if err != nil {
		return err
	}

	patches9, over9, err := ResolveELF(elf9, hookTables.ARM9)
	if err != nil {
		return err
	}
	patches7, over7, err := ResolveELF(elf7, hookTables.ARM7)
	if err != nil {
		return err
	}

	fixups := AssembleFixups(patches9, over9, hookTables.ARM9, patches7, over7, hookTables.ARM7)

	if err := applyToROM(logger, cfg, fixups, hookTables.SafeReserve); err != nil {
		return err
	}

	if cfg.Build.PostBuild != "" {
		logger.Infof("running post-build command")
		if err := runShellCommand(cfg.Build.PostBuild); err != nil {
			return fmt.Errorf("fireflower: post-build command failed: %w", err)
		}
	}

	logger.Infof("build complete")
	return nil
}

func depPathFor(objPath string) string {
	ext := filepath.Ext(objPath)
	return objPath[:len(objPath)-len(ext)] + ".d"
}

// runShellCommand executes a pre/post-build command string through the
// platform shell, the way the teacher's prebuild hook invokes arbitrary
// user scripts rather than a fixed argv.
func runShellCommand(command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// linkProcessor generates the linker script for one processor, writes it
// to the build directory, and invokes the configured linker against it.
// Replace-kind hooks destined for this processor are consumed (removed
// from hookTables) as a side effect of script generation.
func linkProcessor(logger *log.Logger, cfg *Config, processor CodeTarget, objsByTarget map[CodeTarget][]string, hookTables *HookTables, symbolsFile string) (string, error) {
	sameProcessor := func(t CodeTarget) bool {
		if processor.IsARM9() {
			return t.IsARM9()
		}
		return t.IsARM7()
	}
	objects := make(map[CodeTarget][]string)
	for t, objs := range objsByTarget {
		if sameProcessor(t) {
			objects[t] = objs
		}
	}

	var start, end uint32
	var replace map[string]*Hook
	if processor.IsARM9() {
		replace = hookTables.ARM9
		if cfg.Patch.ARM9 != nil {
			start = uint32(cfg.Patch.ARM9.Start)
			end = uint32(cfg.Patch.ARM9.End)
		}
	} else {
		replace = hookTables.ARM7
		if cfg.Patch.ARM7 != nil {
			start = uint32(cfg.Patch.ARM7.Start)
			end = uint32(cfg.Patch.ARM7.End)
		}
	}

	symbolsPath := ""
	if symbolsFile != "" {
		symbolsPath = symbolsFile
	}

	script, err := GenerateLinkerScript(&LinkerScriptInput{
		Processor:   processor,
		Objects:     objects,
		SafeReserve: hookTables.SafeReserve,
		Replace:     replace,
		Start:       start,
		End:         end,
		SymbolsFile: symbolsPath,
	})
	if err != nil {
		return "", err
	}

	scriptPath := filepath.Join(cfg.Build.Build, processor.String()+".ld")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("fireflower: writing linker script: %w", err)
	}

	elfPath := filepath.Join(cfg.Build.Build, processor.String()+".elf")
	ld := NewRunner(filepath.Join(cfg.Build.Toolchain, "ff-gcc", "bin", cfg.Build.Executables.LD))
	logger.Infof("linking %s", elfPath)
	if err := ld.Run("-T", scriptPath, "-o", elfPath); err != nil {
		return "", fmt.Errorf("fireflower: linking %s: %w", processor, err)
	}
	return elfPath, nil
}

// applyToROM backs up, patches, and writes out every binary and overlay
// touched by fixups, implementing the tail of spec.md §4.G and §11's
// backup/extraction step.
func applyToROM(logger *log.Logger, cfg *Config, fixups []Fixup, safeReserve map[CodeTarget]uint32) error {
	targets := make(map[CodeTarget]bool)
	for _, fx := range fixups {
		if fx.Kind == FixupPatch {
			targets[fx.Patch.Target] = true
		} else {
			targets[fx.Hook.Target] = true
		}
	}

	binaries := make(map[CodeTarget][]byte)
	props := make(map[CodeTarget]ARMBinaryProperties)
	overlayTables := make(map[CodeTarget]*OverlayTable)
	sm := NewSectionMap()

	header, err := os.ReadFile(filepath.Join(cfg.Build.Filesystem, "header.bin"))
	if err != nil {
		return fmt.Errorf("fireflower: reading ROM header: %w", err)
	}

	for processor, isARM9 := range map[CodeTarget]bool{TargetARM9: true, TargetARM7: false} {
		name := processor.String() + ".bin"
		compressed := false
		if pc := patchConfigFor(cfg, processor); pc != nil {
			compressed = pc.Compress
		}
		data, err := EnsureBackup(logger, cfg.Build.Backup, name, filepath.Join(cfg.Build.Filesystem, name), compressed, DefaultBLZCodec)
		if err != nil {
			return err
		}
		binaries[processor] = data

		p, err := LocateARMBinaryProperties(header, data, isARM9)
		if err != nil {
			return err
		}
		props[processor] = p
		for _, row := range DecodeAutoloadRows(data, p) {
			sm.Add(processor, row)
		}
		sm.Add(processor, SectionData{Start: p.Offset, End: p.Offset + uint32(len(data)), Destination: 0})

		ovtPath := filepath.Join(cfg.Build.Filesystem, processor.String()+"ovt.bin")
		if ovtData, err := os.ReadFile(ovtPath); err == nil {
			table, err := DecodeOverlayTable(ovtData)
			if err != nil {
				return fmt.Errorf("fireflower: decoding overlay table %s: %w", ovtPath, err)
			}
			overlayTables[processor] = table
		}
	}

	for target := range targets {
		if !target.IsOverlay() {
			continue
		}
		processor := processorOf(target)
		table := overlayTables[processor]
		if table == nil {
			return fmt.Errorf("fireflower: fixup targets overlay %s but no overlay table was loaded", target)
		}
		entry := table.ByID(target.OverlayID())
		if entry == nil {
			return fmt.Errorf("fireflower: overlay table has no entry for %s", target)
		}
		dir, name := overlayFileName(processor, target.OverlayID())
		data, err := EnsureBackup(logger, filepath.Join(cfg.Build.Backup, dir), name,
			filepath.Join(cfg.Build.Filesystem, dir, name), entry.Compressed(), DefaultBLZCodec)
		if err != nil {
			return err
		}
		binaries[target] = data
		sm.Add(target, SectionData{Start: entry.RAMStart, End: entry.RAMStart + entry.CodeSize, Destination: 0})
	}

	regionStart := make(map[CodeTarget]uint32)
	reloc := make(map[CodeTarget]uint32)
	for _, processor := range []CodeTarget{TargetARM9, TargetARM7} {
		if pc := patchConfigFor(cfg, processor); pc != nil {
			regionStart[processor] = uint32(pc.Start)
			reloc[processor] = uint32(pc.Reloc)
		}
	}

	in := &ApplyInput{
		Binaries:      binaries,
		Props:         props,
		OverlayTables: overlayTables,
		SectionMap:    sm,
		SafeReserve:   safeReserve,
		RegionStart:   regionStart,
		Reloc:         reloc,
		Fixups:        fixups,
	}
	if err := ApplyFixups(logger, in); err != nil {
		return err
	}

	for _, processor := range []CodeTarget{TargetARM9, TargetARM7} {
		name := processor.String() + ".bin"
		outPath := filepath.Join(cfg.Build.Output, name)
		compressed := false
		if pc := patchConfigFor(cfg, processor); pc != nil {
			compressed = pc.Compress
		}
		if err := WriteOutput(outPath, in.Binaries[processor], compressed, DefaultBLZCodec, nil, 0, false); err != nil {
			return fmt.Errorf("fireflower: writing %s: %w", outPath, err)
		}
		info, err := os.Stat(outPath)
		if err != nil {
			return fmt.Errorf("fireflower: reading size of %s: %w", outPath, err)
		}
		rewriteHeaderSize(header, processor, uint32(info.Size()))
	}

	headerOut := filepath.Join(cfg.Build.Output, "header.bin")
	if err := os.WriteFile(headerOut, header, 0o644); err != nil {
		return fmt.Errorf("fireflower: writing %s: %w", headerOut, err)
	}

	// Overlay recompression defaults to "preserve uncompressed" (spec.md
	// §12 Open Question: the original's overlay compress-on-save path was
	// disabled); it follows the same per-processor compress flag as the
	// main binary rather than introducing a second config knob.
	for target := range targets {
		if !target.IsOverlay() {
			continue
		}
		processor := processorOf(target)
		compress := false
		if pc := patchConfigFor(cfg, processor); pc != nil {
			compress = pc.Compress
		}
		dir, name := overlayFileName(processor, target.OverlayID())
		outPath := filepath.Join(cfg.Build.Output, dir, name)
		if err := WriteOutput(outPath, in.Binaries[target], compress, DefaultBLZCodec, overlayTables[processor], target.OverlayID(), true); err != nil {
			return fmt.Errorf("fireflower: writing %s: %w", outPath, err)
		}
	}

	for processor, table := range overlayTables {
		ovtOut := filepath.Join(cfg.Build.Output, processor.String()+"ovt.bin")
		if err := os.WriteFile(ovtOut, table.Encode(), 0o644); err != nil {
			return fmt.Errorf("fireflower: writing %s: %w", ovtOut, err)
		}
	}

	return nil
}

// overlayFileName returns the backup/filesystem/output-relative directory
// and file name for one overlay, following the layout spec.md §11 names:
// <backup>/overlay{7,9}/overlay{7,9}_<id>.bin.
func overlayFileName(processor CodeTarget, id uint32) (dir, name string) {
	n := "9"
	if processor.IsARM7() {
		n = "7"
	}
	dir = "overlay" + n
	name = fmt.Sprintf("overlay%s_%d.bin", n, id)
	return dir, name
}

// rewriteHeaderSize updates the ROM header's binary-size field for
// processor to match the patched binary's final size, per spec.md §6
// "Persisted state".
func rewriteHeaderSize(header []byte, processor CodeTarget, size uint32) {
	if processor.IsARM9() {
		writeU32(header, romHeaderARM9Size, size)
	} else {
		writeU32(header, romHeaderARM7Size, size)
	}
}

func patchConfigFor(cfg *Config, processor CodeTarget) *ProcessorPatchConfig {
	if processor.IsARM9() {
		return cfg.Patch.ARM9
	}
	return cfg.Patch.ARM7
}
