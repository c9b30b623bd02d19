package fireflower

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// nobackupSentinel is the name of the marker file EnsureBackup looks for
// in a backup directory. Nothing here creates it; its presence only
// changes the debug message EnsureBackup logs.
const nobackupSentinel = ".nobackup"

// EnsureBackup copies the named binary or overlay file from source into
// backupDir/name the first time it's needed, and returns the bytes to
// patch from (decompressed, if the original was BLZ-compressed). The copy
// is made only when backupDir/name does not exist yet; an existing backup
// is never overwritten, whether or not the sentinel file is present, so a
// hand-edited backup survives repeated builds.
func EnsureBackup(logger *log.Logger, backupDir, name, source string, compressed bool, codec BLZCodec) ([]byte, error) {
	backupPath := filepath.Join(backupDir, name)

	if _, err := os.Stat(backupPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := copyFile(source, backupPath); err != nil {
			return nil, err
		}
		logger.Debugf("backed up %s to %s", source, backupPath)
	} else if sentinelExists(backupDir) {
		logger.Debugf("%s exists and %s is present; leaving backup untouched", backupPath, nobackupSentinel)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if compressed {
		decompressed, err := codec.Decompress(data)
		if err != nil {
			return nil, err
		}
		return decompressed, nil
	}
	return data, nil
}

func sentinelExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, nobackupSentinel))
	return err == nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// WriteOutput writes a patched binary or overlay to its output path,
// recompressing with codec first if the processor's patch config asked
// for compression and rewriting the overlay table's size/flags entry
// when an overlay table + id are given.
func WriteOutput(path string, data []byte, compress bool, codec BLZCodec, overlays *OverlayTable, overlayID uint32, hasOverlay bool) error {
	out := data
	if compress {
		compressed, err := codec.Compress(data)
		if err != nil {
			return err
		}
		out = compressed
	}
	if hasOverlay && overlays != nil {
		if e := overlays.ByID(overlayID); e != nil {
			e.SetSavedSize(uint32(len(out)))
			if compress {
				e.Flags |= overlayFlagCompressed
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
