// Package render turns finalised snapshots into their user-facing forms:
// the ordered text listing, the update shell script, structured exports,
// and two-file diffing.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
)

// Printer renders a snapshot as human-readable text. At verbosity 1 and
// above the three EFS stores print separately instead of merged.
type Printer struct {
	W       io.Writer
	Verbose int
}

// Print renders the whole snapshot.
func (p *Printer) Print(snap *model.Snapshot) {
	fmt.Fprintf(p.W, "file version: %d.%d.%d\n",
		snap.Version.Major, snap.Version.Minor, snap.Version.Revision)
	fmt.Fprintf(p.W, "mobile phone number: %d\n", snap.Mobile.ModelNo)
	fmt.Fprintf(p.W, "mobile sw version: %s\n", snap.Mobile.SWVersion)
	fmt.Fprintln(p.W)

	for _, id := range snap.NumberedIDs() {
		p.printNumbered(snap.Numbered[id])
	}

	if p.Verbose >= 1 {
		p.printStore("NV_Items", snap.NVItems)
		p.printStore("Provisioning_Item_Files", snap.Provisioning)
		p.printStore("EFS_Backup", snap.Backup)
		return
	}

	merged := append(snap.NVItems.Values(), snap.Provisioning.Values()...)
	merged = append(merged, snap.Backup.Values()...)
	sort.SliceStable(merged, func(i, j int) bool {
		return strings.ToLower(merged[i].Path) < strings.ToLower(merged[j].Path)
	})
	for _, v := range merged {
		p.printEfs(v)
	}
}

func (p *Printer) printStore(name string, store *model.EfsStore) {
	fmt.Fprintf(p.W, "%s:\n", name)
	for _, v := range store.SortedByPath() {
		p.printEfs(v)
	}
	fmt.Fprintln(p.W)
}

func (p *Printer) printNumbered(v *model.NumberedValue) {
	if v.Name != "" {
		fmt.Fprintf(p.W, "NV item %d (%s):\n", v.ID, v.Name)
	} else {
		fmt.Fprintf(p.W, "NV item %d:\n", v.ID)
	}
	p.printBody(v.Params, v.Data)
}

func (p *Printer) printEfs(v *model.EfsValue) {
	fmt.Fprintf(p.W, "EFS item %s:\n", v.Path)
	p.printBody(v.Params, v.Data)
}

// printBody lists member values, falling back to a byte dump when the
// schema never described the item.
func (p *Printer) printBody(params []model.Param, data []byte) {
	if len(params) == 0 {
		if len(data) > 0 {
			fmt.Fprintf(p.W, "  data: %s\n", dumpBytes(data))
		}
		return
	}
	for _, param := range params {
		name := param.Name
		if name == "" {
			name = param.Type
		}
		fmt.Fprintf(p.W, "  %s: %s\n", name, formatVal(param))
	}
}

// dumpBytes renders an undescribed payload, preferring ASCII when the
// bytes read as text.
func dumpBytes(data []byte) string {
	if s, ok := nvbin.Uint8OrASCII(data); ok {
		return s
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return strings.Join(parts, " ")
}

func formatVal(p model.Param) string {
	switch v := p.Val.(type) {
	case nil:
		return dumpBytes(p.Data)
	case string:
		return v
	case []int64:
		return joinInts(v)
	case []uint64:
		return joinUints(v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = fmt.Sprintf("%v", e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinInts(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

func joinUints(vals []uint64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

// CollectErrors gathers the run-level and per-item diagnostics in the
// order they were produced, for the final stderr block.
func CollectErrors(snap *model.Snapshot) []string {
	out := append([]string(nil), snap.Errors...)
	for _, id := range snap.NumberedIDs() {
		v := snap.Numbered[id]
		for _, e := range v.Errors {
			out = append(out, fmt.Sprintf("item %d: %s", id, e))
		}
	}
	for _, store := range []*model.EfsStore{snap.NVItems, snap.Provisioning, snap.Backup} {
		for _, v := range store.Values() {
			for _, e := range v.Errors {
				out = append(out, fmt.Sprintf("item %s: %s", v.Path, e))
			}
		}
	}
	return out
}
