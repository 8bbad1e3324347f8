package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/vtsingaras/orct/internal/nv/schema"
	"github.com/vtsingaras/orct/internal/qcn"
)

const e2eSchema = `<NvDefinition>
  <NvItem id="946" name="band_pref">
    <Member name="band1" type="int32" sizeOf="1"/>
    <Member name="band2" type="int16" sizeOf="1"/>
  </NvItem>
  <NvEfsItem fullpathname="/nv/item_files/a">
    <Member name="v" type="uint8" sizeOf="2"/>
  </NvEfsItem>
  <NvItem id="20000">
    <Member name="cal" type="uint16" sizeOf="1"/>
  </NvItem>
</NvDefinition>`

const e2eMaster = `<NvMaster>
  <NvItem id="946" encoding="dec">132183, 10211</NvItem>
  <NvEfsItem fullpathname="/nv/item_files/a">1 2</NvEfsItem>
  <NvItem id="20000">7</NvItem>
</NvMaster>`

func TestCompileAndReadBack(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "master.xml")
	if err := os.WriteFile(xmlPath, []byte(e2eMaster), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := schema.Parse([]byte(e2eSchema), schema.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out.qcn")
	if _, err := Compile(xmlPath, out, cat, qcn.DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	snap, err := Load(out, cat)
	if err != nil {
		t.Fatal(err)
	}

	nv := snap.Numbered[946]
	if nv == nil {
		t.Fatal("item 946 missing after round trip")
	}
	if !bytes.Equal(nv.Data[:6], []byte{0x57, 0x04, 0x02, 0x00, 0xe3, 0x27}) {
		t.Errorf("payload: % x", nv.Data[:6])
	}
	// decode enrichment ran against the schema
	if len(nv.Params) != 2 || nv.Params[0].Val != int64(132183) {
		t.Errorf("decoded params: %+v", nv.Params)
	}

	if snap.NVItems.Len() != 1 {
		t.Errorf("NV_Items: %d entries", snap.NVItems.Len())
	}
	if snap.Backup.Len() != 1 {
		t.Errorf("EFS_Backup: %d entries", snap.Backup.Len())
	}
	backup := snap.Backup.Values()[0]
	if backup.Path != "/nv/item_files/rfnv/00020000" {
		t.Errorf("backup path after prefix round trip: %q", backup.Path)
	}
	if !bytes.Equal(backup.Data, []byte{7, 0}) {
		t.Errorf("backup data: % x", backup.Data)
	}
}

func TestCompileRequiresQcnExtension(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "master.xml")
	if err := os.WriteFile(xmlPath, []byte(e2eMaster), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := schema.Parse([]byte(e2eSchema), schema.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(xmlPath, filepath.Join(dir, "out.bin"), cat, qcn.DefaultOptions()); err == nil {
		t.Errorf("non-.qcn output should be refused")
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weird.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := schema.Parse([]byte(e2eSchema), schema.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, cat); err == nil {
		t.Errorf("unknown extension should be refused")
	}
}
