package fireflower

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// SourceFile is one (target, source path) pair discovered from the
// `main.<target>` config lists or the `main.default-target` scan.
type SourceFile struct {
	Target CodeTarget
	Path   string
}

var compilableExtensions = map[string]bool{
	".cpp": true,
	".c":   true,
	".s":   true,
	".S":   true,
}

// DiscoverSources walks config.Main, expanding directory entries and
// collecting every otherwise-unclaimed compilable source under
// build.source into main.default-target, per spec.md §6.
func DiscoverSources(cfg *Config) ([]SourceFile, error) {
	var sources []SourceFile
	claimed := make(map[string]bool)

	var targetNames []string
	for name := range cfg.Main {
		if name != defaultTargetKey {
			targetNames = append(targetNames, name)
		}
	}
	sort.Strings(targetNames)

	for _, name := range targetNames {
		target, err := ParseCodeTarget(name)
		if err != nil {
			return nil, fmt.Errorf("fireflower: main config: %w", err)
		}
		paths, err := expandSourcePaths(cfg.Main[name])
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			claimed[p] = true
			sources = append(sources, SourceFile{Target: target, Path: p})
		}
	}

	defaultTarget := TargetARM9
	if len(cfg.Main[defaultTargetKey]) > 0 {
		paths, err := expandSourcePaths(cfg.Main[defaultTargetKey])
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			claimed[p] = true
			sources = append(sources, SourceFile{Target: defaultTarget, Path: p})
		}
	}

	err := filepath.Walk(cfg.Build.Source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !compilableExtensions[filepath.Ext(path)] {
			return nil
		}
		if claimed[path] {
			return nil
		}
		sources = append(sources, SourceFile{Target: defaultTarget, Path: path})
		claimed[path] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fireflower: scanning default target: %w", err)
	}
	return sources, nil
}

// expandSourcePaths turns a mix of file and directory entries into a flat
// list of compilable file paths, recursing into directories.
func expandSourcePaths(entries []string) ([]string, error) {
	var out []string
	for _, entry := range entries {
		info, err := os.Stat(entry)
		if err != nil {
			return nil, fmt.Errorf("fireflower: main entry %s: %w", entry, err)
		}
		if !info.IsDir() {
			out = append(out, entry)
			continue
		}
		err = filepath.Walk(entry, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && compilableExtensions[filepath.Ext(path)] {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CompileCommand is one fully-resolved compiler invocation.
type CompileCommand struct {
	Source     SourceFile
	ObjectPath string
	DepPath    string
	Args       []string
}

func languageFlags(flags FlagsConfig, ext string) (string, string) {
	switch ext {
	case ".cpp":
		return flags.Cpp, "__FFC_LANG_CPP"
	case ".c":
		return flags.C, "__FFC_LANG_C"
	case ".s", ".S":
		return flags.Asm, "__FFC_LANG_ASM"
	}
	return "", ""
}

func archFlags(flags FlagsConfig, target CodeTarget) (string, string) {
	if target.IsARM9() {
		return flags.ARM9, "9"
	}
	return flags.ARM7, "7"
}

// ObjectPathFor returns the build-output path for a source file, mirroring
// the source tree layout under build.build.
func ObjectPathFor(cfg *Config, src string) (string, error) {
	rel, err := filepath.Rel(cfg.Build.Source, src)
	if err != nil {
		return "", fmt.Errorf("fireflower: source %s is not under build.source: %w", src, err)
	}
	return filepath.Join(cfg.Build.Build, strings.TrimSuffix(rel, filepath.Ext(rel))+".o"), nil
}

// BuildCompileCommands constructs the command line for each dirty source,
// per spec.md §4.B.
func BuildCompileCommands(cfg *Config, dirty []SourceFile) ([]CompileCommand, error) {
	gcc := filepath.Join(cfg.Build.Toolchain, "ff-gcc", "bin", cfg.Build.Executables.GCC)
	ffcHeader := filepath.Join(cfg.Build.Toolchain, "internal", "ffc.h")
	fidHeader := filepath.Join(cfg.Build.Toolchain, "internal", "fid.h")

	cmds := make([]CompileCommand, 0, len(dirty))
	for _, src := range dirty {
		objPath, err := ObjectPathFor(cfg, src.Path)
		if err != nil {
			return nil, err
		}
		depPath := strings.TrimSuffix(objPath, ".o") + ".d"

		langFlags, langMacro := languageFlags(cfg.Build.Flags, filepath.Ext(src.Path))
		aFlags, archNum := archFlags(cfg.Build.Flags, src.Target)

		var args []string
		if langFlags != "" {
			args = append(args, strings.Fields(langFlags)...)
		}
		if aFlags != "" {
			args = append(args, strings.Fields(aFlags)...)
		}
		for _, inc := range cfg.Build.IncludeDirectories {
			args = append(args, "-I"+inc)
		}
		args = append(args, "-include", ffcHeader, "-include", fidHeader)
		args = append(args, fmt.Sprintf("-D%s", langMacro))
		args = append(args, fmt.Sprintf("-D__FFC_ARCH_NUM=%s", archNum))
		args = append(args, "-MD", "-MF", depPath)
		args = append(args, "-c", src.Path, "-o", objPath)

		cmds = append(cmds, CompileCommand{
			Source:     src,
			ObjectPath: objPath,
			DepPath:    depPath,
			Args:       append([]string{gcc}, args...),
		})
	}
	return cmds, nil
}

// RunScheduler fans out the given commands across a bounded worker pool,
// per spec.md §4.B's failure policy: in pedantic mode, the first non-zero
// exit cancels further scheduling; otherwise every command runs and the
// final result is the logical AND of successes.
func RunScheduler(logger *log.Logger, cmds []CompileCommand, gcc *Runner, workers int, pedantic bool) (ok bool, err error) {
	if workers < 1 {
		workers = 1
	}
	var next int64
	var success int32 = 1
	var running int32 = 1
	var firstErr error
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if atomic.LoadInt32(&running) == 0 {
					return
				}
				i := atomic.AddInt64(&next, 1) - 1
				if i >= int64(len(cmds)) {
					return
				}
				cmd := cmds[i]
				logger.Infof("compiling %s", cmd.Source.Path)
				runErr := gcc.RunArgs(cmd.Args)
				if runErr != nil {
					logger.Errorf("compile failed for %s: %v", cmd.Source.Path, runErr)
					atomic.StoreInt32(&success, 0)
					mu.Lock()
					if firstErr == nil {
						firstErr = runErr
					}
					mu.Unlock()
					if pedantic {
						atomic.StoreInt32(&running, 0)
					}
				}
			}
		}()
	}
	wg.Wait()

	ok = atomic.LoadInt32(&success) == 1
	if !ok && pedantic {
		return false, firstErr
	}
	return ok, nil
}
