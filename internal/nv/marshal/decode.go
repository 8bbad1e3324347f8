package marshal

import (
	"fmt"
	"strings"

	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
	"github.com/vtsingaras/orct/internal/nv/schema"
)

// TrimVariableSize produces the byte buffer for a variable-size EFS item:
// trailing members the source never supplied are dropped, provided the
// present flags form a monotone prefix. A gap in the middle keeps every
// member and reports the layout instead.
func TrimVariableSize(params []model.Param) ([]byte, []string) {
	lastPresent := -1
	for i, p := range params {
		if p.Present {
			lastPresent = i
		}
	}
	monotone := true
	for i := 0; i <= lastPresent; i++ {
		if !params[i].Present {
			monotone = false
			break
		}
	}

	var data []byte
	if !monotone {
		for _, p := range params {
			data = append(data, p.Data...)
		}
		return data, []string{"absent members precede present ones in variable-size item"}
	}
	for i := 0; i <= lastPresent; i++ {
		data = append(data, params[i].Data...)
	}
	return data, nil
}

// Unmarshal decodes a container-sourced byte payload back into member
// values. uint8 runs go through the ASCII heuristic so hex dumps stay
// legible; the bytes themselves are carried unchanged.
func Unmarshal(members []model.Member, data []byte) ([]model.Param, []string) {
	var itemErrors []string
	params := make([]model.Param, 0, len(members))
	rest := data

	for _, m := range members {
		p := model.Param{Name: m.Name, Type: m.Type, Size: m.Size, Present: true}

		if m.Type == "string" {
			var s string
			var err error
			rest, s, err = nvbin.UnpackCstr(rest, m.Size)
			if err != nil {
				p.Present = false
				itemErrors = append(itemErrors, decodeError(m, err))
				params = append(params, p)
				break
			}
			p.Val = s
			p.Data = []byte(s)
			params = append(params, p)
			continue
		}

		bits := schema.BitsOf(m.Type)
		if bits == 0 {
			p.Errors = append(p.Errors, fmt.Sprintf("unknown type %q", m.Type))
			params = append(params, p)
			continue
		}
		width := bits / 8

		if m.Type == "uint8" {
			if len(rest) < m.Size {
				p.Present = false
				itemErrors = append(itemErrors,
					decodeError(m, fmt.Errorf("need %d bytes, have %d", m.Size, len(rest))))
				params = append(params, p)
				break
			}
			raw := rest[:m.Size]
			rest = rest[m.Size:]
			p.Data = raw
			if s, ok := nvbin.Uint8OrASCII(raw); ok {
				p.Val = s
			} else {
				vals := make([]uint64, len(raw))
				for i, b := range raw {
					vals[i] = uint64(b)
				}
				if len(vals) == 1 {
					p.Val = vals[0]
				} else {
					p.Val = vals
				}
			}
			params = append(params, p)
			continue
		}

		signed := strings.HasPrefix(m.Type, "int")
		start := len(data) - len(rest)
		var svals []int64
		var uvals []uint64
		short := false
		for i := 0; i < m.Size; i++ {
			var err error
			if signed {
				var v int64
				rest, v, err = nvbin.UnpackInt(rest, width)
				svals = append(svals, v)
			} else {
				var v uint64
				rest, v, err = nvbin.UnpackUint(rest, width)
				uvals = append(uvals, v)
			}
			if err != nil {
				itemErrors = append(itemErrors, decodeError(m, err))
				short = true
				break
			}
		}
		p.Data = data[start : len(data)-len(rest)]
		if signed {
			if len(svals) == 1 {
				p.Val = svals[0]
			} else {
				p.Val = svals
			}
		} else {
			if len(uvals) == 1 {
				p.Val = uvals[0]
			} else {
				p.Val = uvals
			}
		}
		params = append(params, p)
		if short {
			break
		}
	}

	return params, itemErrors
}

func decodeError(m model.Member, err error) string {
	name := m.Name
	if name == "" {
		name = m.Type
	}
	return fmt.Sprintf("error in %s: %v", name, err)
}
