package transform

import (
	compression "github.com/vtsingaras/orct/internal/common/compressionutil"
	"github.com/vtsingaras/orct/internal/nv/marshal"
	"github.com/vtsingaras/orct/internal/nv/model"
)

// Decode enriches a container-sourced snapshot with member-level values
// by decoding every payload against the catalog. Items the schema does
// not describe keep their raw bytes for the printer's dump fallback.
func Decode(snap *model.Snapshot, cat *model.Catalog) {
	for _, v := range snap.Numbered {
		item := cat.Numbered[v.ID]
		if item == nil {
			continue
		}
		if v.Name == "" {
			v.Name = item.Name
		}
		params, errs := marshal.Unmarshal(item.Members, v.Data)
		v.Params = params
		v.Errors = append(v.Errors, errs...)
	}

	for _, store := range []*model.EfsStore{snap.NVItems, snap.Provisioning, snap.Backup} {
		for _, v := range store.Values() {
			item := cat.Efs[v.Path]
			if item == nil {
				continue
			}
			data := v.Data
			if item.Compressed {
				plain, err := compression.ExtractZlib(data)
				if err != nil {
					v.Errors = append(v.Errors, err.Error())
					continue
				}
				data = plain
			}
			params, errs := marshal.Unmarshal(item.Members, data)
			v.Params = params
			v.Errors = append(v.Errors, errs...)
		}
	}
}
