package schema

import (
	"reflect"
	"testing"

	"github.com/vtsingaras/orct/internal/nv/model"
)

const bandSchema = `<NvDefinition>
  <NvItem id="946" name="band_pref">
    <Member name="band1" type="int32" sizeOf="1"/>
    <Member name="band2" type="int16" sizeOf="1"/>
  </NvItem>
</NvDefinition>`

func TestParseNumberedItem(t *testing.T) {
	cat, err := Parse([]byte(bandSchema), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	item := cat.Numbered[946]
	if item == nil {
		t.Fatal("item 946 missing from catalog")
	}
	if item.Size != 6 {
		t.Errorf("aggregate size: got %d, want 6", item.Size)
	}
	if len(item.Members) != 2 || item.Members[0].Name != "band1" || item.Members[1].Type != "int16" {
		t.Errorf("unexpected members: %+v", item.Members)
	}
	if len(cat.Errors) != 0 {
		t.Errorf("unexpected errors: %v", cat.Errors)
	}
}

func TestHighIDBecomesEfsItem(t *testing.T) {
	doc := `<NvDefinition>
  <NvItem id="20000">
    <Member name="cal" type="uint16" sizeOf="4"/>
  </NvItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Numbered) != 0 {
		t.Errorf("id 20000 should not appear as a numbered item")
	}
	item := cat.Efs["/nv/item_files/rfnv/00020000"]
	if item == nil {
		t.Fatalf("synthesised EFS path missing; have %v", keys(cat.Efs))
	}
	if item.Size != 8 {
		t.Errorf("aggregate size: got %d, want 8", item.Size)
	}
}

func TestCompositeSubstitution(t *testing.T) {
	doc := `<NvDefinition>
  <DataType name="chan_pair">
    <Member name="rx" type="uint16" sizeOf="1"/>
    <Member name="tx" type="uint16" sizeOf="1"/>
  </DataType>
  <NvEfsItem fullpathname="/nv/item_files/test/chans">
    <Member name="pairs" type="chan_pair" sizeOf="2"/>
  </NvEfsItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	item := cat.Efs["/nv/item_files/test/chans"]
	if item == nil {
		t.Fatal("EFS item missing")
	}
	want := []model.Member{
		{Name: "rx", Type: "uint16", Size: 1},
		{Name: "tx", Type: "uint16", Size: 1},
		{Name: "rx", Type: "uint16", Size: 1},
		{Name: "tx", Type: "uint16", Size: 1},
	}
	if !reflect.DeepEqual(item.Members, want) {
		t.Errorf("substitution: got %+v", item.Members)
	}
	if item.Size != 8 {
		t.Errorf("aggregate size: got %d, want 8", item.Size)
	}
}

func TestNestedSubstitution(t *testing.T) {
	doc := `<NvDefinition>
  <DataType name="inner">
    <Member name="v" type="uint8" sizeOf="2"/>
  </DataType>
  <DataType name="outer">
    <Member name="in" type="inner" sizeOf="3"/>
  </DataType>
  <NvEfsItem fullpathname="/nv/item_files/test/nested">
    <Member name="o" type="outer" sizeOf="1"/>
  </NvEfsItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	item := cat.Efs["/nv/item_files/test/nested"]
	if len(item.Members) != 3 {
		t.Fatalf("nested substitution: got %d members, want 3", len(item.Members))
	}
	for _, m := range item.Members {
		if m.Type != "uint8" || m.Size != 2 {
			t.Errorf("unresolved member: %+v", m)
		}
	}
	if item.Size != 6 {
		t.Errorf("aggregate size: got %d, want 6", item.Size)
	}
}

func TestSubstitutionFixedPoint(t *testing.T) {
	doc := `<NvDefinition>
  <DataType name="pair">
    <Member name="a" type="uint16" sizeOf="1"/>
    <Member name="b" type="uint16" sizeOf="1"/>
  </DataType>
  <NvEfsItem fullpathname="/nv/item_files/test/p">
    <Member name="ps" type="pair" sizeOf="4"/>
  </NvEfsItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	item := cat.Efs["/nv/item_files/test/p"]
	again := Substitute(item.Members, cat.Types)
	if !reflect.DeepEqual(again, item.Members) {
		t.Errorf("substitution is not a fixed point: %+v vs %+v", again, item.Members)
	}
}

func TestDuplicateDefinition(t *testing.T) {
	doc := `<NvDefinition>
  <NvItem id="10"><Member type="uint8" sizeOf="1"/></NvItem>
  <NvItem id="10"><Member type="uint16" sizeOf="1"/></NvItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Errors) == 0 {
		t.Errorf("duplicate id should be reported")
	}
	// last definition wins
	if cat.Numbered[10].Members[0].Type != "uint16" {
		t.Errorf("last definition should win, got %+v", cat.Numbered[10].Members)
	}
}

func TestBadSizeOf(t *testing.T) {
	doc := `<NvDefinition>
  <NvItem id="11"><Member name="x" type="uint8" sizeOf="lots"/></NvItem>
</NvDefinition>`
	cat, err := Parse([]byte(doc), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Errors) == 0 {
		t.Errorf("non-numeric sizeOf should be reported")
	}
}

func keys(m map[string]*model.EfsItem) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
