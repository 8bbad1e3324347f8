package cfb

import (
	"bytes"
	"io"
	"testing"

	"github.com/richardlehane/mscfb"
)

// readAll walks a serialised compound file with the mscfb reader and
// returns stream contents keyed by slash-joined path.
func readAll(t *testing.T, raw []byte) map[string][]byte {
	t.Helper()
	doc, err := mscfb.New(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("mscfb rejected the output: %v", err)
	}
	out := make(map[string][]byte)
	for entry, err := doc.Next(); err != io.EOF; entry, err = doc.Next() {
		if err != nil {
			t.Fatalf("walking entries: %v", err)
		}
		key := ""
		for _, p := range entry.Path {
			key += p + "/"
		}
		key += entry.Name
		if entry.Size > 0 {
			buf := make([]byte, entry.Size)
			if _, err := io.ReadFull(entry, buf); err != nil {
				t.Fatalf("reading %s: %v", key, err)
			}
			out[key] = buf
		} else {
			out[key] = nil
		}
	}
	return out
}

func TestWriteReadSmallStreams(t *testing.T) {
	w := NewWriter()
	w.Root().AddStream("File_Version", []byte{1, 0, 2, 0, 3, 0})
	dir := w.Root().AddStorage("00000000").AddStorage("default")
	dir.AddStream("Mobile_Property_Info", []byte("props"))

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got := readAll(t, buf.Bytes())

	if !bytes.Equal(got["File_Version"], []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("File_Version: % x", got["File_Version"])
	}
	if !bytes.Equal(got["00000000/default/Mobile_Property_Info"], []byte("props")) {
		t.Errorf("nested stream: % x", got["00000000/default/Mobile_Property_Info"])
	}
}

func TestWriteReadLargeStream(t *testing.T) {
	big := make([]byte, 3*4096+17)
	for i := range big {
		big[i] = byte(i % 251)
	}
	w := NewWriter()
	w.Root().AddStream("NV_ITEM_ARRAY", big)

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got := readAll(t, buf.Bytes())
	if !bytes.Equal(got["NV_ITEM_ARRAY"], big) {
		t.Errorf("large stream corrupted (len %d vs %d)", len(got["NV_ITEM_ARRAY"]), len(big))
	}
}

func TestWriteReadManySiblings(t *testing.T) {
	w := NewWriter()
	dir := w.Root().AddStorage("EFS_Dir")
	want := make(map[string][]byte)
	for i := 0; i < 40; i++ {
		name := []byte{'0' + byte(i/10), '0' + byte(i%10)}
		body := []byte{byte(i), byte(i + 1)}
		dir.AddStream(string(name), body)
		want["EFS_Dir/"+string(name)] = body
	}

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got := readAll(t, buf.Bytes())
	for key, body := range want {
		if !bytes.Equal(got[key], body) {
			t.Errorf("%s: got % x, want % x", key, got[key], body)
		}
	}
}

func TestEmptyStream(t *testing.T) {
	w := NewWriter()
	w.Root().AddStream("empty", nil)

	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got := readAll(t, buf.Bytes())
	if _, ok := got["empty"]; !ok {
		t.Errorf("empty stream entry missing")
	}
}

func TestInvalidName(t *testing.T) {
	w := NewWriter()
	w.Root().AddStream("", nil)
	var buf bytes.Buffer
	if err := w.WriteTo(&buf); err == nil {
		t.Errorf("empty name should be rejected")
	}
}
