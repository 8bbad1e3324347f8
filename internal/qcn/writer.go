// Package qcn reads and writes QCN snapshots: an OLE2 compound file whose
// directory tree carries File_Version, Mobile_Property_Info, the numbered
// item array and the three EFS stores.
package qcn

import (
	"fmt"
	"io"
	"os"

	"github.com/vtsingaras/orct/internal/cfb"
	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
)

const (
	// numberedPayloadSize is the fixed zero-padded payload of one legacy
	// numbered item.
	numberedPayloadSize = 128
	// numberedPacketSize is one NV_ITEM_ARRAY packet: an 8-byte header
	// plus the payload.
	numberedPacketSize = numberedPayloadSize + 8
)

// efsBackupPathPrefix is prepended to every path stored under
// EFS_Backup/EFS_Dir, consuming the first byte of the original path. The
// sequence is carried over from QPST-produced captures; its field meaning
// is undocumented.
var efsBackupPathPrefix = []byte{0x01, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00}

// Options controls writer compatibility behaviour.
type Options struct {
	// ProvisioningKeyFormat selects the document naming inside
	// Provisioning_Item_Files: "dec" writes %08d ordinals (legacy writer),
	// "hex" reuses the %08X store keys.
	ProvisioningKeyFormat string
}

// DefaultOptions returns the legacy writer behaviour.
func DefaultOptions() Options {
	return Options{ProvisioningKeyFormat: "dec"}
}

// Write serialises the snapshot as a QCN compound file. Unlike the
// loaders the writer is strict: any size or container failure aborts.
func Write(out io.Writer, snap *model.Snapshot, opts Options) error {
	w := cfb.NewWriter()

	w.Root().AddStream("File_Version", packFileVersion(snap.Version))

	def := w.Root().AddStorage("00000000").AddStorage("default")
	def.AddStream("Mobile_Property_Info", packMobileProperty(snap.Mobile))

	if err := addEfsStore(def, "Provisioning_Item_Files", snap.Provisioning, opts.ProvisioningKeyFormat, false); err != nil {
		return err
	}
	if err := addEfsStore(def, "NV_Items", snap.NVItems, "key", false); err != nil {
		return err
	}
	if err := addEfsStore(def, "EFS_Backup", snap.Backup, "key", true); err != nil {
		return err
	}

	array, err := packNumbered(snap)
	if err != nil {
		return err
	}
	def.AddStorage("NV_NUMBERED_ITEMS").AddStream("NV_ITEM_ARRAY", array)

	return w.WriteTo(out)
}

// WriteFile serialises the snapshot to a file path.
func WriteFile(path string, snap *model.Snapshot, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	defer f.Close()
	if err := Write(f, snap, opts); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	return nil
}

// addEfsStore emits the EFS_Dir/EFS_Data document pair for every item in
// the store. backup items get the eight-byte path prefix.
func addEfsStore(parent *cfb.Storage, name string, store *model.EfsStore, keyFormat string, backup bool) error {
	storage := parent.AddStorage(name)
	dirs := storage.AddStorage("EFS_Dir")
	datas := storage.AddStorage("EFS_Data")

	for i, key := range store.Keys() {
		v := store.Get(key)
		doc := key
		if keyFormat == "dec" {
			doc = fmt.Sprintf("%08d", i)
		}
		path := []byte(v.Path)
		if backup {
			if len(path) == 0 {
				return fmt.Errorf("%w: empty path in %s", errors.ErrFormat, name)
			}
			path = append(append([]byte(nil), efsBackupPathPrefix...), path[1:]...)
		}
		dirs.AddStream(doc, path)
		datas.AddStream(doc, v.Data)
	}
	return nil
}

func packFileVersion(v model.FileVersion) []byte {
	out := make([]byte, 0, 6)
	for _, f := range []uint16{v.Major, v.Minor, v.Revision} {
		b, _ := nvbin.PackUint(16, uint64(f))
		out = append(out, b...)
	}
	return out
}

func packMobileProperty(p model.MobileProperty) []byte {
	var out []byte
	b, _ := nvbin.PackUint(32, uint64(p.Efs))
	out = append(out, b...)
	b, _ = nvbin.PackUint(16, uint64(p.ModelNo))
	out = append(out, b...)
	out = append(out, p.MajorRev, p.MinorRev)
	b, _ = nvbin.PackUint(16, uint64(len(p.SWVersion)))
	out = append(out, b...)
	out = append(out, p.SWVersion...)
	b, _ = nvbin.PackUint(16, uint64(len(p.QPSTVersion)))
	out = append(out, b...)
	out = append(out, p.QPSTVersion...)
	return out
}

// packNumbered concatenates one fixed-size packet per numbered item in
// ascending id order.
func packNumbered(snap *model.Snapshot) ([]byte, error) {
	var out []byte
	for _, id := range snap.NumberedIDs() {
		v := snap.Numbered[id]
		if len(v.Data) > numberedPayloadSize {
			return nil, fmt.Errorf("%w: item %d payload is %d bytes, limit %d",
				errors.ErrFormat, id, len(v.Data), numberedPayloadSize)
		}
		packet := make([]byte, 0, numberedPacketSize)
		for _, f := range []uint16{numberedPacketSize, uint16(v.Index), uint16(id), 0} {
			b, err := nvbin.PackUint(16, uint64(f))
			if err != nil {
				return nil, err
			}
			packet = append(packet, b...)
		}
		payload := make([]byte, numberedPayloadSize)
		copy(payload, v.Data)
		packet = append(packet, payload...)
		out = append(out, packet...)
	}
	return out, nil
}
