package fireflower

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPathFor(t *testing.T) {
	cfg := &Config{Build: BuildConfig{Source: "src", Build: "build"}}
	obj, err := ObjectPathFor(cfg, filepath.Join("src", "foo", "bar.cpp"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("build", "foo", "bar.o"), obj)
}

func TestLanguageFlags(t *testing.T) {
	flags := FlagsConfig{Cpp: "-std=c++17", C: "-std=c11", Asm: "-x assembler-with-cpp"}
	f, macro := languageFlags(flags, ".cpp")
	assert.Equal(t, "-std=c++17", f)
	assert.Equal(t, "__FFC_LANG_CPP", macro)

	_, macro = languageFlags(flags, ".s")
	assert.Equal(t, "__FFC_LANG_ASM", macro)
}

func TestArchFlags(t *testing.T) {
	flags := FlagsConfig{ARM9: "-march=armv5te", ARM7: "-march=armv4t"}
	f, num := archFlags(flags, TargetARM9)
	assert.Equal(t, "-march=armv5te", f)
	assert.Equal(t, "9", num)

	_, num = archFlags(flags, TargetARM7)
	assert.Equal(t, "7", num)
}

func TestBuildCompileCommandsConstructsArgs(t *testing.T) {
	cfg := &Config{
		Build: BuildConfig{
			Source:      "src",
			Build:       "build",
			Toolchain:   "tc",
			Executables: ExecutablesConfig{GCC: "gcc"},
			Flags:       FlagsConfig{Cpp: "-std=c++17", ARM9: "-march=armv5te"},
		},
	}
	dirty := []SourceFile{{Target: TargetARM9, Path: filepath.Join("src", "main.cpp")}}
	cmds, err := BuildCompileCommands(cfg, dirty)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0].Args, "-std=c++17")
	assert.Contains(t, cmds[0].Args, "-march=armv5te")
	assert.Contains(t, cmds[0].Args, "-D__FFC_LANG_CPP")
	assert.Contains(t, cmds[0].Args, "-D__FFC_ARCH_NUM=9")
}

func TestDiscoverSourcesUsesMainEntriesAndDefaultScan(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	claimed := filepath.Join(src, "hook.cpp")
	unclaimed := filepath.Join(src, "other.cpp")
	require.NoError(t, os.WriteFile(claimed, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(unclaimed, []byte("x"), 0o644))

	cfg := &Config{
		Build: BuildConfig{Source: src},
		Main:  map[string][]string{"arm7": {claimed}},
	}
	sources, err := DiscoverSources(cfg)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	byPath := make(map[string]CodeTarget)
	for _, s := range sources {
		byPath[s.Path] = s.Target
	}
	assert.Equal(t, TargetARM7, byPath[claimed])
	assert.Equal(t, TargetARM9, byPath[unclaimed])
}

func TestRunSchedulerRunsEveryCommandAndReportsFailure(t *testing.T) {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	cmds := []CompileCommand{
		{Source: SourceFile{Path: "ok.cpp"}, Args: []string{"true"}},
		{Source: SourceFile{Path: "bad.cpp"}, Args: []string{"false"}},
	}
	ok, err := RunScheduler(logger, cmds, NewRunner(""), 2, false)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestRunSchedulerPedanticStopsOnFirstFailure(t *testing.T) {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	cmds := []CompileCommand{
		{Source: SourceFile{Path: "bad.cpp"}, Args: []string{"false"}},
	}
	ok, err := RunScheduler(logger, cmds, NewRunner(""), 1, true)
	assert.False(t, ok)
	assert.Error(t, err)
}
