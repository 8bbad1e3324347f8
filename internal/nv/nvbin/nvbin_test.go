package nvbin

import (
	"bytes"
	"math"
	"testing"
)

func TestPackUnpackUintRoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16, 32, 64} {
		values := []uint64{0, 1, 0x7F}
		if bits < 64 {
			values = append(values, 1<<uint(bits)-1)
		} else {
			values = append(values, math.MaxUint64)
		}
		for _, v := range values {
			packed, err := PackUint(bits, v)
			if err != nil {
				t.Fatalf("PackUint(%d, %d): %v", bits, v, err)
			}
			if len(packed) != bits/8 {
				t.Fatalf("PackUint(%d, %d): got %d bytes", bits, v, len(packed))
			}
			rest, got, err := UnpackUint(packed, bits/8)
			if err != nil {
				t.Fatalf("UnpackUint(%d): %v", bits, err)
			}
			if len(rest) != 0 || got != v {
				t.Errorf("round trip uint%d: got %d, want %d", bits, got, v)
			}
		}
	}
}

func TestPackUnpackIntRoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16, 32, 64} {
		values := []int64{0, 1, -1}
		if bits < 64 {
			values = append(values, int64(-1)<<uint(bits-1), int64(1)<<uint(bits-1)-1)
		} else {
			values = append(values, math.MinInt64+1, math.MaxInt64)
		}
		for _, v := range values {
			packed, err := PackInt(bits, v)
			if err != nil {
				t.Fatalf("PackInt(%d, %d): %v", bits, v, err)
			}
			rest, got, err := UnpackInt(packed, bits/8)
			if err != nil {
				t.Fatalf("UnpackInt(%d): %v", bits, err)
			}
			if len(rest) != 0 || got != v {
				t.Errorf("round trip int%d: got %d, want %d", bits, got, v)
			}
		}
	}
}

func TestPackUintRange(t *testing.T) {
	if _, err := PackUint(16, 65535); err != nil {
		t.Errorf("PackUint(16, 65535): %v", err)
	}
	if _, err := PackUint(16, 65536); err == nil {
		t.Errorf("PackUint(16, 65536) should fail")
	}
}

func TestPackIntRange(t *testing.T) {
	if _, err := PackInt(16, -32768); err != nil {
		t.Errorf("PackInt(16, -32768): %v", err)
	}
	if _, err := PackInt(16, -32769); err == nil {
		t.Errorf("PackInt(16, -32769) should fail")
	}
	if _, err := PackInt(64, math.MinInt64); err == nil {
		t.Errorf("PackInt(64, MinInt64) should fail")
	}
}

func TestPackLittleEndian(t *testing.T) {
	packed, err := PackUint(32, 0x11223344)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(packed, []byte{0x44, 0x33, 0x22, 0x11}) {
		t.Errorf("unexpected byte order: % x", packed)
	}
}

func TestPackStringFixed(t *testing.T) {
	out := PackStringFixed("ims", 6)
	if !bytes.Equal(out, []byte{'i', 'm', 's', 0, 0, 0}) {
		t.Errorf("padding: % x", out)
	}
	out = PackStringFixed("overlong", 4)
	if !bytes.Equal(out, []byte("over")) {
		t.Errorf("truncation: % x", out)
	}
}

func TestUnpackCstr(t *testing.T) {
	rest, s, err := UnpackCstr([]byte{'a', 'b', 0, 0, 0xFF}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if s != "ab" {
		t.Errorf("got %q, want %q", s, "ab")
	}
	if !bytes.Equal(rest, []byte{0xFF}) {
		t.Errorf("rest: % x", rest)
	}
}

func TestUnpackLengthChecked(t *testing.T) {
	if _, _, err := UnpackUint([]byte{1, 2}, 4); err == nil {
		t.Errorf("UnpackUint on short buffer should fail")
	}
	if _, _, err := UnpackCstr([]byte{1}, 2); err == nil {
		t.Errorf("UnpackCstr on short buffer should fail")
	}
}

func TestUint8OrASCII(t *testing.T) {
	if s, ok := Uint8OrASCII([]byte("ims")); !ok || s != "ims" {
		t.Errorf("printable run should decode as ASCII, got %q %v", s, ok)
	}
	if _, ok := Uint8OrASCII([]byte{0x01, 0x02, 0x03}); ok {
		t.Errorf("non-printable bytes should not decode as ASCII")
	}
	if _, ok := Uint8OrASCII([]byte("ab")); ok {
		t.Errorf("two bytes should not decode as ASCII")
	}
}
