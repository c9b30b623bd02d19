package fireflower

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"runtime"

	"github.com/xyproto/env/v2"
)

// HexUint32 decodes from a JSON string holding a hex value, with or
// without the 0x prefix ("0x02004000" or "2004000"), or from a plain JSON
// number, which is read as decimal.
// spec.md §1 treats the JSON loader as an external collaborator and only
// specifies the resulting typed record; HexUint32 is the one piece of
// decoding logic that record needs, since encoding/json has no native hex
// number type.
type HexUint32 uint32

func (h *HexUint32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var v uint32
		if _, err := fmt.Sscanf(s, "0x%x", &v); err == nil {
			*h = HexUint32(v)
			return nil
		}
		if _, err := fmt.Sscanf(s, "%x", &v); err == nil {
			*h = HexUint32(v)
			return nil
		}
		return fmt.Errorf("fireflower: malformed hex value %q", s)
	}
	var v uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("fireflower: malformed hex value: %w", err)
	}
	*h = HexUint32(v)
	return nil
}

// ExecutablesConfig names the compiler/linker executables, resolved
// relative to <toolchain>/ff-gcc/bin/ per spec.md §6.
type ExecutablesConfig struct {
	GCC string `json:"gcc"`
	LD  string `json:"ld"`
}

// FlagsConfig holds the per-language and per-architecture flag strings
// concatenated into each compile command line.
type FlagsConfig struct {
	Cpp  string `json:"c++"`
	C    string `json:"c"`
	Asm  string `json:"asm"`
	ARM9 string `json:"arm9"`
	ARM7 string `json:"arm7"`
}

// BuildConfig is the `build` section of the configuration record.
type BuildConfig struct {
	IncludeDirectories  []string          `json:"include-directories"`
	Source              string            `json:"source"`
	Filesystem          string            `json:"filesystem"`
	Toolchain           string            `json:"toolchain"`
	Backup              string            `json:"backup"`
	Build               string            `json:"build"`
	Output              string            `json:"output"`
	Symbols7            string            `json:"symbols7,omitempty"`
	Symbols9            string            `json:"symbols9,omitempty"`
	PreBuild            string            `json:"pre-build,omitempty"`
	PostBuild           string            `json:"post-build,omitempty"`
	Executables         ExecutablesConfig `json:"executables"`
	Flags               FlagsConfig       `json:"flags"`
	Pedantic            *bool             `json:"pedantic,omitempty"`
	AllowEabiExtensions bool              `json:"allow-eabi-extensions,omitempty"`
	Library             string            `json:"library,omitempty"`
	Jobs                int               `json:"jobs,omitempty"`
}

// IsPedantic returns the effective pedantic setting, defaulting to true.
func (b BuildConfig) IsPedantic() bool {
	if b.Pedantic == nil {
		return true
	}
	return *b.Pedantic
}

// ProcessorPatchConfig is one processor's `patch.<proc>` section.
type ProcessorPatchConfig struct {
	Reloc    HexUint32 `json:"reloc"`
	Start    HexUint32 `json:"start"`
	End      HexUint32 `json:"end"`
	Compress bool      `json:"compress,omitempty"`
}

// PatchConfig is the `patch` section. A nil pointer means that processor
// is not patched at all.
type PatchConfig struct {
	ARM9 *ProcessorPatchConfig `json:"arm9,omitempty"`
	ARM7 *ProcessorPatchConfig `json:"arm7,omitempty"`
}

var fileIDSymbolPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config is the fully decoded configuration record described in spec.md §6.
type Config struct {
	Build  BuildConfig         `json:"build"`
	Patch  PatchConfig         `json:"patch"`
	Main   map[string][]string `json:"main"`
	FileID map[string]string   `json:"file-id"`
}

const defaultTargetKey = "default-target"

// LoadConfig reads and validates the configuration record at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fireflower: reading config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("fireflower: parsing config: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets a handful of environment variables override
// config defaults, the way a CI pipeline commonly needs to without
// checking out a different JSON file per runner.
func (c *Config) applyEnvOverrides() {
	c.Build.Toolchain = env.Str("FFC_TOOLCHAIN", c.Build.Toolchain)
	c.Build.Build = env.Str("FFC_BUILD_DIR", c.Build.Build)
	if c.Build.Jobs == 0 {
		c.Build.Jobs = env.Int("FFC_JOBS", runtime.NumCPU())
	}
}

func (c *Config) validate() error {
	if c.Build.Source == "" {
		return fmt.Errorf("fireflower: config: build.source is required")
	}
	if c.Build.Filesystem == "" {
		return fmt.Errorf("fireflower: config: build.filesystem is required")
	}
	if c.Build.Toolchain == "" {
		return fmt.Errorf("fireflower: config: build.toolchain is required")
	}
	if c.Build.AllowEabiExtensions && c.Build.Library == "" {
		return fmt.Errorf("fireflower: config: build.library is required when allow-eabi-extensions is true")
	}
	for symbol := range c.FileID {
		if !fileIDSymbolPattern.MatchString(symbol) {
			return fmt.Errorf("fireflower: config: invalid file-id symbol %q", symbol)
		}
	}
	for name := range c.Main {
		if name == defaultTargetKey {
			continue
		}
		if _, err := ParseCodeTarget(name); err != nil {
			return fmt.Errorf("fireflower: config: invalid main target %q: %w", name, err)
		}
	}
	return nil
}

// Jobs returns the effective worker-pool size for the compile scheduler.
func (c *Config) Jobs() int {
	if c.Build.Jobs > 0 {
		return c.Build.Jobs
	}
	return 8
}
