package master

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vtsingaras/orct/internal/nv/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScalarItem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "master.xml", `<NvMaster>
  <NvItem id="946" encoding="dec">132183, 10211</NvItem>
</NvMaster>`)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	v := m.Numbered[946]
	if v == nil {
		t.Fatal("item 946 missing")
	}
	if v.Encoding != "dec" || v.Index != 1 {
		t.Errorf("attrs: encoding=%q index=%d", v.Encoding, v.Index)
	}
	if v.Raw.Shape != model.ShapeScalar || v.Raw.Scalar != "132183, 10211" {
		t.Errorf("raw value: %+v", v.Raw)
	}
}

func TestLoadStructuredEfsItem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "master.xml", `<NvMaster>
  <NvEfsItem fullpathname="/nv/item_files/modem/x" useProvisioningStore="true" encoding="hex">
    <rx>1f</rx>
    <tx>2e</tx>
  </NvEfsItem>
</NvMaster>`)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	v := m.Efs("/nv/item_files/modem/x")
	if v == nil {
		t.Fatal("EFS item missing")
	}
	if !v.Provisioning {
		t.Errorf("useProvisioningStore not captured")
	}
	if v.Raw.Shape != model.ShapeMembers || len(v.Raw.Fields) != 2 {
		t.Fatalf("raw value: %+v", v.Raw)
	}
	if v.Raw.Fields[0].Tag != "rx" || v.Raw.Fields[0].Text != "1f" {
		t.Errorf("first field: %+v", v.Raw.Fields[0])
	}
}

func TestHighIDRedirectsToEfs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "master.xml", `<NvMaster>
  <NvItem id="20000">1 2 3</NvItem>
</NvMaster>`)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Numbered) != 0 {
		t.Errorf("id 20000 should not be a numbered value")
	}
	v := m.Efs("/nv/item_files/rfnv/00020000")
	if v == nil {
		t.Fatal("rfnv path missing")
	}
	if !v.Backup {
		t.Errorf("rfnv item should be marked for the backup store")
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "extra.xml", `<NvMaster>
  <NvItem id="5">7</NvItem>
  <NvItem id="6">8</NvItem>
</NvMaster>`)
	path := writeFile(t, dir, "master.xml", `<NvMaster>
  <xi:include xmlns:xi="http://www.w3.org/2001/XInclude" href="sub/extra.xml"/>
  <NvItem id="6">9</NvItem>
</NvMaster>`)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Numbered[5] == nil {
		t.Errorf("included item 5 missing")
	}
	// last write wins across includes
	if v := m.Numbered[6]; v == nil || v.Raw.Scalar != "9" {
		t.Errorf("item 6 should take the including file's value, got %+v", v)
	}
}

func TestMissingIncludeReported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "master.xml", `<NvMaster>
  <xi:include xmlns:xi="http://www.w3.org/2001/XInclude" href="gone.xml"/>
</NvMaster>`)

	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Errors) == 0 {
		t.Errorf("missing include should be reported")
	}
}
