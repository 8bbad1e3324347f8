package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vtsingaras/orct/internal/nv/model"
)

// updateBytesPerLine bounds how many decimal bytes one continuation line
// of the update script carries.
const updateBytesPerLine = 16

// WriteUpdateScript emits a shell fragment that applies every item via
// the external nvimgr tool. Byte sequences split across backslash
// continuation lines; each item ends with a blank line.
func WriteUpdateScript(w io.Writer, snap *model.Snapshot) error {
	if _, err := fmt.Fprintln(w, "#!/bin/sh"); err != nil {
		return err
	}
	fmt.Fprintln(w)

	for _, id := range snap.NumberedIDs() {
		v := snap.Numbered[id]
		writeUpdateItem(w, fmt.Sprintf("%d", id), v.Data)
	}

	merged := append(snap.NVItems.Values(), snap.Provisioning.Values()...)
	merged = append(merged, snap.Backup.Values()...)
	sort.SliceStable(merged, func(i, j int) bool {
		return strings.ToLower(merged[i].Path) < strings.ToLower(merged[j].Path)
	})
	for _, v := range merged {
		writeUpdateItem(w, v.Path, v.Data)
	}
	return nil
}

func writeUpdateItem(w io.Writer, key string, data []byte) {
	fmt.Fprintf(w, "nvimgr --item %s %d \\\n", key, len(data))
	for start := 0; start < len(data); start += updateBytesPerLine {
		end := start + updateBytesPerLine
		if end > len(data) {
			end = len(data)
		}
		parts := make([]string, end-start)
		for i, b := range data[start:end] {
			parts[i] = fmt.Sprintf("%d", b)
		}
		line := "  " + strings.Join(parts, " ")
		if end < len(data) {
			line += " \\"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
