package fireflower

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DependencyTracker persists file-modification timestamps across builds so
// the Compile Scheduler (§4.B) only recompiles sources that actually
// changed. Implements spec.md §4.A.
type DependencyTracker struct {
	// ConfigMtime is the tracked mtime of the JSON config file itself, in
	// nanoseconds since the epoch.
	ConfigMtime int64
	// Mtimes maps a tracked file path (source or header) to its mtime in
	// nanoseconds, as of the last successful build that touched it.
	Mtimes map[string]int64
}

// NewDependencyTracker returns an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{Mtimes: make(map[string]int64)}
}

// statNanos returns the file's modification time in nanoseconds with the
// full precision the filesystem offers, which os.Stat's second-granularity
// ModTime() cannot guarantee on every platform the x/sys/unix call targets.
func statNanos(path string) (int64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	sec, nsec := st.Mtim.Unix()
	return sec*int64(1e9) + nsec, nil
}

// fileExists is a small helper distinguishing "stat failed because the
// file is gone" from other stat errors, which the tracker treats alike
// (both count as "not present" for invalidation purposes).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadDependencyTracker loads the binary sidecar at path. A missing file
// yields a fresh, empty tracker rather than an error (first build ever).
func LoadDependencyTracker(path string) (*DependencyTracker, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewDependencyTracker(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fireflower: opening tracker %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	t := NewDependencyTracker()

	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return t, nil
		}
		return nil, fmt.Errorf("fireflower: reading tracker header: %w", err)
	}
	t.ConfigMtime = int64(binary.LittleEndian.Uint64(header[:]))

	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("fireflower: reading tracker entry length: %w", err)
		}
		pathLen := binary.LittleEndian.Uint16(lenBuf[:])
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, fmt.Errorf("fireflower: reading tracker entry path: %w", err)
		}
		var mtimeBuf [8]byte
		if _, err := io.ReadFull(r, mtimeBuf[:]); err != nil {
			return nil, fmt.Errorf("fireflower: reading tracker entry mtime: %w", err)
		}
		path := string(pathBytes)
		if !fileExists(path) {
			// Orphaned entry: the file no longer exists. Discard it.
			continue
		}
		t.Mtimes[path] = int64(binary.LittleEndian.Uint64(mtimeBuf[:]))
	}
	return t, nil
}

// Save writes the tracker to its binary sidecar at path.
func (t *DependencyTracker) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fireflower: creating tracker %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(t.ConfigMtime))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	for path, mtime := range t.Mtimes {
		if len(path) > 0xFFFF {
			return fmt.Errorf("fireflower: tracker path too long: %s", path)
		}
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(path)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.WriteString(path); err != nil {
			return err
		}
		var mtimeBuf [8]byte
		binary.LittleEndian.PutUint64(mtimeBuf[:], uint64(mtime))
		if _, err := w.Write(mtimeBuf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ConfigChanged reports whether the JSON config's current mtime differs
// from the tracker's recorded mtime (spec.md §4.A rule 1: full rebuild).
func (t *DependencyTracker) ConfigChanged(configPath string) (bool, error) {
	nanos, err := statNanos(configPath)
	if err != nil {
		return false, fmt.Errorf("fireflower: stat config: %w", err)
	}
	return nanos != t.ConfigMtime, nil
}

// NeedsRecompile implements spec.md §4.A: a source requires recompilation
// iff the config changed, the source is new to the tracker, the source's
// mtime has advanced, or its .d sidecar is missing/stale/references a
// vanished header.
func (t *DependencyTracker) NeedsRecompile(source, depPath string, configChanged bool) (bool, error) {
	if configChanged {
		return true, nil
	}
	recorded, ok := t.Mtimes[source]
	if !ok {
		return true, nil
	}
	current, err := statNanos(source)
	if err != nil {
		return false, fmt.Errorf("fireflower: stat source %s: %w", source, err)
	}
	if current > recorded {
		return true, nil
	}
	deps, err := os.Open(depPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("fireflower: opening dep file %s: %w", depPath, err)
	}
	defer deps.Close()
	headers, err := ParseDepFile(deps)
	if err != nil {
		return false, fmt.Errorf("fireflower: parsing dep file %s: %w", depPath, err)
	}
	for _, hdr := range headers {
		if hdr == source {
			continue
		}
		recordedHdr, ok := t.Mtimes[hdr]
		if !ok {
			return true, nil
		}
		currentHdr, err := statNanos(hdr)
		if err != nil {
			// Header no longer exists.
			return true, nil
		}
		if currentHdr != recordedHdr {
			return true, nil
		}
	}
	return false, nil
}

// StampFromDepFile updates the tracker with the current mtime of every
// file the just-produced .d sidecar references, including the source
// itself. Called after a successful compile.
func (t *DependencyTracker) StampFromDepFile(source, depPath string) error {
	nanos, err := statNanos(source)
	if err != nil {
		return fmt.Errorf("fireflower: stat source %s: %w", source, err)
	}
	t.Mtimes[source] = nanos

	f, err := os.Open(depPath)
	if err != nil {
		return fmt.Errorf("fireflower: opening dep file %s: %w", depPath, err)
	}
	defer f.Close()
	headers, err := ParseDepFile(f)
	if err != nil {
		return fmt.Errorf("fireflower: parsing dep file %s: %w", depPath, err)
	}
	for _, hdr := range headers {
		hn, err := statNanos(hdr)
		if err != nil {
			continue
		}
		t.Mtimes[hdr] = hn
	}
	return nil
}

// CarryForward copies the previously-recorded mtime for a skipped
// (up-to-date) source into the new snapshot, so the tracker remains a
// complete picture of every known file even though this build never
// touched it.
func (t *DependencyTracker) CarryForward(prev *DependencyTracker, source string) {
	if m, ok := prev.Mtimes[source]; ok {
		t.Mtimes[source] = m
	}
}

// SweepOrphans implements spec.md §4.A's orphan sweep: after scheduling,
// any object file under buildDir whose path was not referenced by any
// source in the current config is deleted, together with its .d sibling
// and any now-empty directories it leaves behind.
func SweepOrphans(buildDir string, liveObjects map[string]bool) error {
	var orphans []string
	err := filepath.Walk(buildDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".o" {
			return nil
		}
		if !liveObjects[path] {
			orphans = append(orphans, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fireflower: walking build dir: %w", err)
	}
	for _, obj := range orphans {
		if err := os.Remove(obj); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fireflower: removing orphan object %s: %w", obj, err)
		}
		dep := strings.TrimSuffix(obj, ".o") + ".d"
		_ = os.Remove(dep)
	}
	return pruneEmptyDirs(buildDir)
}

// pruneEmptyDirs removes directories under root left empty by the orphan
// sweep, walking bottom-up so a chain of now-empty parents is collapsed
// in one pass.
func pruneEmptyDirs(root string) error {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest paths first so a parent can become empty after its child
	// is removed within the same sweep.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil {
			continue
		}
		if len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return nil
}
