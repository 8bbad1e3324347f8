package mbn

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildElf32 wraps a payload as the single loadable segment of a minimal
// little-endian ELF32 image.
func buildElf32(segment []byte) []byte {
	const (
		ehSize = 52
		phSize = 32
	)
	le := binary.LittleEndian
	out := make([]byte, ehSize+phSize, ehSize+phSize+len(segment))

	copy(out, []byte{0x7F, 'E', 'L', 'F', 1, 1, 1})
	le.PutUint16(out[16:], 2)      // e_type EXEC
	le.PutUint16(out[18:], 40)     // e_machine ARM
	le.PutUint32(out[20:], 1)      // e_version
	le.PutUint32(out[28:], ehSize) // e_phoff
	le.PutUint16(out[40:], ehSize) // e_ehsize
	le.PutUint16(out[42:], phSize) // e_phentsize
	le.PutUint16(out[44:], 1)      // e_phnum
	le.PutUint16(out[46:], 40)     // e_shentsize

	ph := out[ehSize:]
	le.PutUint32(ph[0:], 1)                     // p_type PT_LOAD
	le.PutUint32(ph[4:], ehSize+phSize)         // p_offset
	le.PutUint32(ph[16:], uint32(len(segment))) // p_filesz
	le.PutUint32(ph[20:], uint32(len(segment))) // p_memsz
	le.PutUint32(ph[24:], 4)                    // p_flags
	le.PutUint32(ph[28:], 4)                    // p_align

	return append(out, segment...)
}

func u16(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func u32(v int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// buildMcfg assembles an MCFG stream with the given item records.
func buildMcfg(numItems int, records []byte) []byte {
	var seg []byte
	seg = append(seg, u32(0x4753434D)...) // magic
	seg = append(seg, u16(2)...)          // format version
	seg = append(seg, u16(0)...)          // config type
	seg = append(seg, u32(numItems)...)
	seg = append(seg, u16(0)...) // muxd carrier
	seg = append(seg, u16(0)...) // spare crc
	// version record
	seg = append(seg, u16(0)...)
	seg = append(seg, u16(4)...)
	seg = append(seg, u32(0x01020304)...)
	return append(seg, records...)
}

func efsRecord(path string, content []byte) []byte {
	var rec []byte
	rec = append(rec, u16(0x01)...)
	rec = append(rec, u16(len(path))...)
	rec = append(rec, path...)
	rec = append(rec, u16(0x02)...)
	rec = append(rec, u16(len(content))...)
	rec = append(rec, content...)

	var out []byte
	out = append(out, u32(len(rec)+8)...) // record length including prefix
	out = append(out, 0x02, 0, 0, 0)      // type, attrib, sp_ops, spare
	return append(out, rec...)
}

func nvRecord(id int, index byte, payload []byte) []byte {
	var rec []byte
	rec = append(rec, u16(id)...)
	rec = append(rec, u16(len(payload)+1)...)
	rec = append(rec, index)
	rec = append(rec, payload...)

	var out []byte
	out = append(out, u32(len(rec)+8)...)
	out = append(out, 0x01, 0, 0, 0)
	return append(out, rec...)
}

func TestReadEfsItem(t *testing.T) {
	img := buildElf32(buildMcfg(1, efsRecord("/nv/item_files/x", []byte{0x01, 0x02, 0x03})))

	snap, err := Read(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", snap.Errors)
	}
	v := snap.NVItems.Get("0000001")
	if v == nil {
		t.Fatalf("NV_Items[0000001] missing, keys %v", snap.NVItems.Keys())
	}
	if v.Path != "/nv/item_files/x" {
		t.Errorf("path: %q", v.Path)
	}
	if !bytes.Equal(v.Data, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("data: % x", v.Data)
	}
}

func TestReadNvItem(t *testing.T) {
	img := buildElf32(buildMcfg(1, nvRecord(946, 1, []byte{0x17, 0x04})))

	snap, err := Read(img)
	if err != nil {
		t.Fatal(err)
	}
	v := snap.Numbered[946]
	if v == nil {
		t.Fatal("item 946 missing")
	}
	if v.Index != 1 {
		t.Errorf("index: %d", v.Index)
	}
	if !bytes.Equal(v.Data, []byte{0x17, 0x04}) {
		t.Errorf("data: % x", v.Data)
	}
}

func TestUnknownItemTypeLogged(t *testing.T) {
	var rec []byte
	rec = append(rec, u32(12)...) // prefix + 4 opaque bytes
	rec = append(rec, 0x7F, 0, 0, 0)
	rec = append(rec, 0xDE, 0xAD, 0xBE, 0xEF)
	rec = append(rec, efsRecord("/nv/item_files/y", []byte{9})...)

	img := buildElf32(buildMcfg(2, rec))
	snap, err := Read(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Unprocessed) != 1 {
		t.Errorf("unknown type should be logged, got %v", snap.Unprocessed)
	}
	// parsing continues past the unknown record
	if snap.NVItems.Get("0000001") == nil {
		t.Errorf("record after unknown type should still decode")
	}
}

func TestBadMagicRejected(t *testing.T) {
	seg := buildMcfg(0, nil)
	seg[0] = 'X'
	img := buildElf32(seg)
	if _, err := Read(img); err == nil {
		t.Errorf("bad magic should be fatal")
	}
}

func TestUnsupportedFormatVersionRejected(t *testing.T) {
	seg := buildMcfg(0, nil)
	seg[4] = 9
	img := buildElf32(seg)
	if _, err := Read(img); err == nil {
		t.Errorf("format version above the ceiling should be fatal")
	}
}

func TestNoMcfgSegment(t *testing.T) {
	img := buildElf32([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	if _, err := Read(img); err == nil {
		t.Errorf("segment without MCFG magic should be fatal")
	}
}
