package qcn

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/richardlehane/mscfb"

	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
)

// structural storage names the walk descends through without reporting.
var knownStorages = map[string]bool{
	"00000000":                true,
	"default":                 true,
	"Provisioning_Item_Files": true,
	"NV_Items":                true,
	"EFS_Backup":              true,
	"NV_NUMBERED_ITEMS":       true,
	"EFS_Dir":                 true,
	"EFS_Data":                true,
}

// Read parses a QCN compound file into a snapshot. Item-level problems
// are collected on the snapshot; a broken container is fatal.
func Read(ra io.ReaderAt) (*model.Snapshot, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}

	snap := model.NewSnapshot()
	// dir and data documents arrive independently; pair them per store
	// ordinal after the walk.
	paths := map[string]map[string][]byte{}
	datas := map[string]map[string][]byte{}
	// mscfb can build the Path of sibling storages' children on one shared
	// backing array, so the EFS_Dir/EFS_Data element of a document's Path
	// may name the wrong sibling. The walk lists each storage right before
	// its children, so the last EFS storage seen is the real parent.
	efsDir := ""

	for entry, walkErr := doc.Next(); walkErr != io.EOF; entry, walkErr = doc.Next() {
		if walkErr != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrFormat, walkErr)
		}
		body := make([]byte, entry.Size)
		if entry.Size > 0 {
			if _, err := io.ReadFull(entry, body); err != nil {
				snap.AddError(fmt.Sprintf("unreadable stream %s: %v", entryPath(entry), err))
				continue
			}
		}

		parent := ""
		if len(entry.Path) > 0 {
			parent = entry.Path[len(entry.Path)-1]
		}
		if entry.Size == 0 && (entry.Name == "EFS_Dir" || entry.Name == "EFS_Data") {
			efsDir = entry.Name
		} else if parent == "EFS_Dir" || parent == "EFS_Data" {
			parent = efsDir
		}

		switch {
		case parent == "EFS_Dir" && len(entry.Path) >= 2:
			store := entry.Path[len(entry.Path)-2]
			if paths[store] == nil {
				paths[store] = map[string][]byte{}
			}
			paths[store][entry.Name] = body
		case parent == "EFS_Data" && len(entry.Path) >= 2:
			store := entry.Path[len(entry.Path)-2]
			if datas[store] == nil {
				datas[store] = map[string][]byte{}
			}
			datas[store][entry.Name] = body
		case entry.Name == "File_Version" && len(entry.Path) == 0:
			readFileVersion(snap, body)
		case entry.Name == "Mobile_Property_Info":
			readMobileProperty(snap, body)
		case entry.Name == "NV_ITEM_ARRAY":
			readNumbered(snap, body)
		case entry.Size == 0 && knownStorages[entry.Name]:
			// structural storage node
		default:
			snap.Unprocessed = append(snap.Unprocessed, entryPath(entry))
		}
	}

	fillStore(snap, snap.Provisioning, "Provisioning_Item_Files", paths, datas, false)
	fillStore(snap, snap.NVItems, "NV_Items", paths, datas, false)
	fillStore(snap, snap.Backup, "EFS_Backup", paths, datas, true)
	return snap, nil
}

// ReadFile parses a QCN file from disk.
func ReadFile(path string) (*model.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	defer f.Close()
	return Read(f)
}

// fillStore pairs the EFS_Dir and EFS_Data documents of one store under
// their shared ordinal names, in name order.
func fillStore(snap *model.Snapshot, store *model.EfsStore, name string,
	paths, datas map[string]map[string][]byte, backup bool) {

	dirDocs := paths[name]
	dataDocs := datas[name]
	for _, ordinal := range sortedKeys(dirDocs) {
		raw := dirDocs[ordinal]
		path := string(raw)
		if backup {
			if len(raw) > len(efsBackupPathPrefix) {
				// the prefix consumed the original leading byte
				path = "/" + string(raw[len(efsBackupPathPrefix):])
			} else {
				snap.AddError(fmt.Sprintf("%s/%s: path shorter than the backup prefix", name, ordinal))
			}
		}
		path = strings.TrimRight(path, "\x00")
		data, ok := dataDocs[ordinal]
		if !ok {
			snap.AddError(fmt.Sprintf("%s/%s: EFS_Dir document without EFS_Data sibling", name, ordinal))
		}
		store.Put(ordinal, &model.EfsValue{
			Path:         path,
			Index:        1,
			Provisioning: name == "Provisioning_Item_Files",
			Backup:       backup,
			Data:         data,
		})
	}
	for _, ordinal := range sortedKeys(dataDocs) {
		if _, ok := dirDocs[ordinal]; !ok {
			snap.AddError(fmt.Sprintf("%s/%s: EFS_Data document without EFS_Dir sibling", name, ordinal))
		}
	}
}

func readFileVersion(snap *model.Snapshot, body []byte) {
	rest := body
	var vals [3]uint16
	for i := range vals {
		var v uint64
		var err error
		rest, v, err = nvbin.UnpackUint(rest, 2)
		if err != nil {
			snap.AddError(fmt.Sprintf("File_Version: %v", err))
			return
		}
		vals[i] = uint16(v)
	}
	snap.Version = model.FileVersion{Major: vals[0], Minor: vals[1], Revision: vals[2]}
}

func readMobileProperty(snap *model.Snapshot, body []byte) {
	rest := body
	fail := func(err error) {
		snap.AddError(fmt.Sprintf("Mobile_Property_Info: %v", err))
	}
	rest, efs, err := nvbin.UnpackUint(rest, 4)
	if err != nil {
		fail(err)
		return
	}
	rest, model16, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		fail(err)
		return
	}
	rest, major, err := nvbin.UnpackUint(rest, 1)
	if err != nil {
		fail(err)
		return
	}
	rest, minor, err := nvbin.UnpackUint(rest, 1)
	if err != nil {
		fail(err)
		return
	}
	rest, swLen, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		fail(err)
		return
	}
	rest, sw, err := nvbin.UnpackCstr(rest, int(swLen))
	if err != nil {
		fail(err)
		return
	}
	rest, qpstLen, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		fail(err)
		return
	}
	_, qpst, err := nvbin.UnpackCstr(rest, int(qpstLen))
	if err != nil {
		fail(err)
		return
	}
	snap.Mobile = model.MobileProperty{
		Efs:         uint32(efs),
		ModelNo:     uint16(model16),
		MajorRev:    uint8(major),
		MinorRev:    uint8(minor),
		SWVersion:   sw,
		QPSTVersion: qpst,
	}
}

// readNumbered decodes the fixed-size packet stream.
func readNumbered(snap *model.Snapshot, body []byte) {
	rest := body
	for len(rest) > 0 {
		if len(rest) < numberedPacketSize {
			snap.AddError(fmt.Sprintf("NV_ITEM_ARRAY: trailing %d bytes", len(rest)))
			return
		}
		packet := rest[:numberedPacketSize]
		rest = rest[numberedPacketSize:]

		p, size, _ := nvbin.UnpackUint(packet, 2)
		p, index, _ := nvbin.UnpackUint(p, 2)
		p, id, _ := nvbin.UnpackUint(p, 2)
		p, _, _ = nvbin.UnpackUint(p, 2)
		if size != numberedPacketSize {
			snap.AddError(fmt.Sprintf("NV_ITEM_ARRAY: item %d declares stream size %d", id, size))
		}
		snap.Numbered[int(id)] = &model.NumberedValue{
			ID:    int(id),
			Index: int(index),
			Data:  p,
		}
	}
}

func entryPath(entry *mscfb.File) string {
	if len(entry.Path) == 0 {
		return entry.Name
	}
	return strings.Join(entry.Path, "/") + "/" + entry.Name
}

func sortedKeys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
