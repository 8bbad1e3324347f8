// Package mbn extracts carrier-configuration records from MBN images: an
// ELF32 file whose loadable segment carries an MCFG record stream. The
// records are normalised into the same snapshot shape the QCN reader
// produces.
package mbn

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"

	"github.com/vtsingaras/orct/internal/common/errors"
	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
)

const (
	// mcfgMagic is "MCFG" read as a little-endian uint32.
	mcfgMagic = 0x4753434D
	// mcfgMaxFormatVersion is the highest record-stream revision the
	// parser understands.
	mcfgMaxFormatVersion = 3

	itemTypeNv  = 0x01
	itemTypeEfs = 0x02
)

// Read parses an MBN image into a snapshot.
func Read(data []byte) (*model.Snapshot, error) {
	seg, err := mcfgSegment(data)
	if err != nil {
		return nil, err
	}
	return parseMcfg(seg)
}

// ReadFile parses an MBN image from disk.
func ReadFile(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrIO, err)
	}
	return Read(data)
}

// mcfgSegment walks the ELF program headers and returns the loadable
// segment that carries the MCFG stream.
func mcfgSegment(data []byte) ([]byte, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}
	defer f.Close()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		seg, err := io.ReadAll(prog.Open())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
		}
		if len(seg) >= 4 {
			if _, magic, _ := nvbin.UnpackUint(seg, 4); magic == mcfgMagic {
				return seg, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no loadable segment carries an MCFG stream", errors.ErrFormat)
}

func parseMcfg(seg []byte) (*model.Snapshot, error) {
	snap := model.NewSnapshot()

	// 16-byte MCFG header.
	rest, magic, err := nvbin.UnpackUint(seg, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}
	if magic != mcfgMagic {
		return nil, fmt.Errorf("%w: bad MCFG magic 0x%08X", errors.ErrFormat, magic)
	}
	rest, fmtVer, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}
	if fmtVer > mcfgMaxFormatVersion {
		return nil, fmt.Errorf("%w: MCFG format version %d not supported", errors.ErrFormat, fmtVer)
	}
	rest, _, _ = nvbin.UnpackUint(rest, 2) // config type
	rest, numItems, err := nvbin.UnpackUint(rest, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}
	rest, _, _ = nvbin.UnpackUint(rest, 2)   // muxd carrier index
	rest, _, err = nvbin.UnpackUint(rest, 2) // spare crc
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}

	// 8-byte version record.
	rest, _, _ = nvbin.UnpackUint(rest, 2) // record type
	rest, verLen, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFormat, err)
	}
	if len(rest) < int(verLen) {
		return nil, fmt.Errorf("%w: truncated MCFG version record", errors.ErrFormat)
	}
	rest = rest[verLen:]

	ordinal := 0
	for i := uint64(0); i < numItems; i++ {
		var itemLen, itemType uint64
		r, itemLen, err := nvbin.UnpackUint(rest, 4)
		if err != nil {
			snap.AddError(fmt.Sprintf("MCFG: truncated item prefix at record %d", i+1))
			break
		}
		r, itemType, _ = nvbin.UnpackUint(r, 1)
		r, _, _ = nvbin.UnpackUint(r, 1)   // attrib
		r, _, _ = nvbin.UnpackUint(r, 1)   // sp_ops
		r, _, err = nvbin.UnpackUint(r, 1) // spare
		if err != nil {
			snap.AddError(fmt.Sprintf("MCFG: truncated item prefix at record %d", i+1))
			break
		}

		switch itemType {
		case itemTypeNv:
			r, err = parseNvRecord(snap, r)
		case itemTypeEfs:
			ordinal++
			r, err = parseEfsRecord(snap, r, ordinal)
		default:
			snap.Unprocessed = append(snap.Unprocessed,
				fmt.Sprintf("MCFG item type 0x%02X", itemType))
			// the prefix length covers the whole record
			if itemLen < 8 || len(r) < int(itemLen-8) {
				snap.AddError(fmt.Sprintf("MCFG: bad length %d for item type 0x%02X", itemLen, itemType))
				rest = nil
				continue
			}
			r = r[itemLen-8:]
		}
		if err != nil {
			snap.AddError(err.Error())
			break
		}
		rest = r
	}

	return snap, nil
}

// parseNvRecord decodes a legacy numbered item. The first payload byte is
// the item index.
func parseNvRecord(snap *model.Snapshot, rest []byte) ([]byte, error) {
	rest, id, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated NV record: %v", err)
	}
	rest, length, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated NV record: %v", err)
	}
	if len(rest) < int(length) {
		return nil, fmt.Errorf("MCFG: NV item %d declares %d payload bytes, %d remain", id, length, len(rest))
	}
	payload := rest[:length]
	rest = rest[length:]

	index := 1
	var data []byte
	if len(payload) > 0 {
		index = int(payload[0])
		data = payload[1:]
	}
	snap.Numbered[int(id)] = &model.NumberedValue{
		ID:    int(id),
		Index: index,
		Data:  data,
	}
	return rest, nil
}

// parseEfsRecord decodes a file record: a path TLV followed by a content
// TLV.
func parseEfsRecord(snap *model.Snapshot, rest []byte, ordinal int) ([]byte, error) {
	rest, _, err := nvbin.UnpackUint(rest, 2) // path record type
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated EFS record: %v", err)
	}
	rest, pathLen, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated EFS record: %v", err)
	}
	rest, path, err := nvbin.UnpackCstr(rest, int(pathLen))
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated EFS path: %v", err)
	}
	rest, _, err = nvbin.UnpackUint(rest, 2) // content record type
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated EFS record: %v", err)
	}
	rest, contentLen, err := nvbin.UnpackUint(rest, 2)
	if err != nil {
		return nil, fmt.Errorf("MCFG: truncated EFS record: %v", err)
	}
	if len(rest) < int(contentLen) {
		return nil, fmt.Errorf("MCFG: EFS item %s declares %d content bytes, %d remain", path, contentLen, len(rest))
	}
	content := rest[:contentLen]
	rest = rest[contentLen:]

	// ordinal keys are seven-digit decimal, matching the QPST normaliser
	snap.NVItems.Put(fmt.Sprintf("%07d", ordinal), &model.EfsValue{
		Path:  path,
		Index: 1,
		Data:  content,
	})
	return rest, nil
}
