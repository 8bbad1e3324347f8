// Package nvbin implements the little-endian packing primitives the NV
// calibration formats are built from. All multi-byte integers on the wire
// are little-endian.
package nvbin

import (
	"fmt"
	"math"

	"github.com/vtsingaras/orct/internal/common/errors"
)

// widthBytes returns the byte width for a supported bit width.
func widthBytes(bits int) (int, error) {
	switch bits {
	case 8, 16, 32, 64:
		return bits / 8, nil
	}
	return 0, fmt.Errorf("%w: unsupported bit width %d", errors.ErrType, bits)
}

// PackUint packs v as an unsigned little-endian integer of the given bit
// width. Values that do not fit the declared width are rejected.
func PackUint(bits int, v uint64) ([]byte, error) {
	n, err := widthBytes(bits)
	if err != nil {
		return nil, err
	}
	if bits < 64 && v >= 1<<uint(bits) {
		return nil, fmt.Errorf("%w: %d does not fit in uint%d", errors.ErrRange, v, bits)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(v >> uint(8*i))
	}
	return out, nil
}

// PackInt packs v as a two's-complement little-endian integer of the given
// bit width. The extreme -2^63 value is rejected for 64-bit fields so that
// every packed value has an exact in-range reading on every consumer.
func PackInt(bits int, v int64) ([]byte, error) {
	n, err := widthBytes(bits)
	if err != nil {
		return nil, err
	}
	if bits == 64 {
		if v == math.MinInt64 {
			return nil, fmt.Errorf("%w: %d at the int64 limit", errors.ErrRange, v)
		}
	} else {
		min := int64(-1) << uint(bits-1)
		max := int64(1)<<uint(bits-1) - 1
		if v < min || v > max {
			return nil, fmt.Errorf("%w: %d does not fit in int%d", errors.ErrRange, v, bits)
		}
	}
	out := make([]byte, n)
	u := uint64(v)
	for i := 0; i < n; i++ {
		out[i] = byte(u >> uint(8*i))
	}
	return out, nil
}

// PackStringFixed packs s into exactly size bytes, right-padded with zero
// bytes or truncated.
func PackStringFixed(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, s)
	return out
}

// UnpackUint consumes n bytes from buf and returns the remainder and the
// little-endian unsigned value.
func UnpackUint(buf []byte, n int) ([]byte, uint64, error) {
	if len(buf) < n {
		return buf, 0, fmt.Errorf("%w: need %d bytes, have %d", errors.ErrFormat, n, len(buf))
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return buf[n:], v, nil
}

// UnpackInt consumes n bytes from buf and returns the remainder and the
// sign-extended two's-complement value.
func UnpackInt(buf []byte, n int) ([]byte, int64, error) {
	rest, u, err := UnpackUint(buf, n)
	if err != nil {
		return buf, 0, err
	}
	shift := uint(64 - 8*n)
	return rest, int64(u<<shift) >> shift, nil
}

// UnpackCstr consumes n bytes from buf, strips trailing zero bytes and
// returns the remainder and the text.
func UnpackCstr(buf []byte, n int) ([]byte, string, error) {
	if len(buf) < n {
		return buf, "", fmt.Errorf("%w: need %d bytes, have %d", errors.ErrFormat, n, len(buf))
	}
	raw := buf[:n]
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return buf[n:], string(raw[:end]), nil
}

// Uint8OrASCII is the diagnostic heuristic the decoder applies to uint8
// payloads: a run of more than two printable bytes reads as one ASCII
// string, anything else as individual unsigned bytes. The bytes themselves
// are never changed.
func Uint8OrASCII(buf []byte) (string, bool) {
	if len(buf) <= 2 {
		return "", false
	}
	for _, b := range buf {
		if b < 32 || b > 127 {
			return "", false
		}
	}
	return string(buf), true
}
