package fireflower

import (
	"fmt"
	"sort"
	"strings"
)

// GenerateFileIDHeader renders the forced-include header (fid.h) that
// defines one uint16 constant per config.FileID symbol, resolved against
// the filesystem's file-allocation table, per spec.md §11 "file-ID symbol
// generation". ids maps a filesystem path (as it appears in config.FileID
// values) to its assigned file ID.
func GenerateFileIDHeader(fileID map[string]string, ids map[string]uint16) (string, error) {
	var names []string
	for name := range fileID {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("#pragma once\n\n")
	sb.WriteString("namespace FID {\n")
	for _, name := range names {
		path := fileID[name]
		id, ok := ids[path]
		if !ok {
			return "", fmt.Errorf("fireflower: file-id symbol %q references unknown filesystem path %q", name, path)
		}
		fmt.Fprintf(&sb, "    constexpr unsigned short %s = %d;\n", name, id)
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}
