// Package transform walks the loaded master data against the schema
// catalog, marshals every item, and partitions EFS items into the three
// QCN stores.
package transform

import (
	"fmt"
	"sort"

	compression "github.com/vtsingaras/orct/internal/common/compressionutil"
	"github.com/vtsingaras/orct/internal/nv/marshal"
	"github.com/vtsingaras/orct/internal/nv/master"
	"github.com/vtsingaras/orct/internal/nv/model"
)

// Apply marshals every master item against the catalog and returns the
// finalised snapshot. Item-level problems land on the items; only the
// run-level lists of the inputs are merged into the snapshot.
func Apply(cat *model.Catalog, m *master.Master) *model.Snapshot {
	snap := model.NewSnapshot()
	snap.Errors = append(snap.Errors, cat.Errors...)
	snap.Errors = append(snap.Errors, m.Errors...)

	for _, id := range numberedIDs(m) {
		v := m.Numbered[id]
		var members []model.Member
		if item := cat.Numbered[id]; item != nil {
			members = item.Members
			if v.Name == "" {
				v.Name = item.Name
			}
		}
		params, data, errs := marshal.Marshal(members, v.Raw, v.Encoding)
		v.Params = params
		v.Data = data
		v.Errors = append(v.Errors, errs...)
		snap.Numbered[id] = v
	}

	ordinals := map[*model.EfsStore]int{}
	for _, path := range m.EfsPaths() {
		v := m.Efs(path)
		item := cat.Efs[path]
		var members []model.Member
		if item != nil {
			members = item.Members
		}
		params, data, errs := marshal.Marshal(members, v.Raw, v.Encoding)
		if item != nil && item.VariableSize {
			trimmed, trimErrs := marshal.TrimVariableSize(params)
			data = trimmed
			errs = append(errs, trimErrs...)
		}
		if item != nil && item.Compressed {
			compressed, err := compression.CompressZlib(data)
			if err != nil {
				errs = append(errs, err.Error())
			} else {
				data = compressed
			}
		}
		v.Params = params
		v.Data = data
		v.Errors = append(v.Errors, errs...)

		store := snap.NVItems
		switch {
		case v.Provisioning:
			store = snap.Provisioning
		case v.Backup:
			store = snap.Backup
		}
		store.Put(fmt.Sprintf("%08X", ordinals[store]), v)
		ordinals[store]++
	}

	return snap
}

func numberedIDs(m *master.Master) []int {
	ids := make([]int, 0, len(m.Numbered))
	for id := range m.Numbered {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
