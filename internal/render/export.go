package render

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
	"howett.net/plist"

	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/nv/model"
)

// Export renders the snapshot as a structured document: "json", "yaml"
// or "plist".
func Export(w io.Writer, snap *model.Snapshot, format string) error {
	doc := exportTree(snap)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	case "plist":
		data, err := plist.MarshalIndent(doc, plist.XMLFormat, "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("%w: unknown export format %q", errors.ErrUsage, format)
}

func exportTree(snap *model.Snapshot) map[string]interface{} {
	numbered := make(map[string]interface{}, len(snap.Numbered))
	for _, id := range snap.NumberedIDs() {
		v := snap.Numbered[id]
		numbered[fmt.Sprintf("%d", id)] = map[string]interface{}{
			"name":   v.Name,
			"index":  v.Index,
			"values": exportParams(v.Params, v.Data),
			"errors": v.Errors,
		}
	}

	out := map[string]interface{}{
		"file_version": map[string]interface{}{
			"major":    snap.Version.Major,
			"minor":    snap.Version.Minor,
			"revision": snap.Version.Revision,
		},
		"mobile_property_info": map[string]interface{}{
			"efs":          snap.Mobile.Efs,
			"model_no":     snap.Mobile.ModelNo,
			"major_rev":    snap.Mobile.MajorRev,
			"minor_rev":    snap.Mobile.MinorRev,
			"sw_version":   snap.Mobile.SWVersion,
			"qpst_version": snap.Mobile.QPSTVersion,
		},
		"nv_item_array":           numbered,
		"nv_items":                exportStore(snap.NVItems),
		"provisioning_item_files": exportStore(snap.Provisioning),
		"efs_backup":              exportStore(snap.Backup),
		"errors":                  snap.Errors,
	}
	return out
}

func exportStore(store *model.EfsStore) map[string]interface{} {
	out := make(map[string]interface{}, store.Len())
	for _, key := range store.Keys() {
		v := store.Get(key)
		out[key] = map[string]interface{}{
			"path":   v.Path,
			"index":  v.Index,
			"values": exportParams(v.Params, v.Data),
			"errors": v.Errors,
		}
	}
	return out
}

func exportParams(params []model.Param, data []byte) interface{} {
	if len(params) == 0 {
		bytes := make([]int, len(data))
		for i, b := range data {
			bytes[i] = int(b)
		}
		return bytes
	}
	out := make([]map[string]interface{}, 0, len(params))
	for _, p := range params {
		out = append(out, map[string]interface{}{
			"name":  p.Name,
			"type":  p.Type,
			"value": p.Val,
		})
	}
	return out
}
