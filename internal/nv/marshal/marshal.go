// Package marshal converts textual value expressions into bit-exact byte
// layouts against their schema members, and decodes container-sourced byte
// payloads back into member values. Both directions are tolerant: every
// problem is collected on the item and a best-effort buffer is still
// produced.
package marshal

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/vtsingaras/orct/internal/nv/model"
	"github.com/vtsingaras/orct/internal/nv/nvbin"
	"github.com/vtsingaras/orct/internal/nv/schema"
)

// stringPromotionThreshold is the element count above which a comma-free
// uint8 value expression is treated as ASCII text rather than a byte list.
// The policy lives here and nowhere else.
const stringPromotionThreshold = 20

var (
	decimalToken = regexp.MustCompile(`^-?[0-9]+$`)
	hexToken     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	tokenSplit   = regexp.MustCompile(`[ ,\t\r\n]+`)
)

// Tokenize splits a flat scalar value expression into its tokens.
func Tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return tokenSplit.Split(s, -1)
}

// Marshal converts one value expression into per-member params and the
// aggregated byte buffer. Item-level diagnostics (length mismatches,
// missing schema, flattened member errors) come back as the third result.
func Marshal(members []model.Member, val model.Value, encoding string) ([]model.Param, []byte, []string) {
	var itemErrors []string

	switch encoding {
	case "hex", "dec", "string", "":
	default:
		itemErrors = append(itemErrors, fmt.Sprintf("unknown encoding %q", encoding))
		encoding = "dec"
	}

	if len(members) == 0 {
		return marshalSchemaless(val, encoding, itemErrors)
	}

	var params []model.Param
	switch val.Shape {
	case model.ShapeMembers:
		params, itemErrors = marshalFields(members, val.Fields, encoding, itemErrors)
	default:
		params, itemErrors = marshalScalar(members, val.Scalar, encoding, itemErrors)
	}

	var data []byte
	for _, p := range params {
		data = append(data, p.Data...)
		for _, e := range p.Errors {
			name := p.Name
			if name == "" {
				name = p.Type
			}
			itemErrors = append(itemErrors, fmt.Sprintf("error in %s: %s", name, e))
		}
	}
	return params, data, itemErrors
}

// marshalSchemaless handles items the schema does not describe: a single
// scalar token still packs as one unsigned byte so the pipeline can carry
// it, anything wider is refused.
func marshalSchemaless(val model.Value, encoding string, itemErrors []string) ([]model.Param, []byte, []string) {
	if val.Shape == model.ShapeMembers {
		itemErrors = append(itemErrors,
			fmt.Sprintf("no schema for item with %d elements", len(val.Fields)))
		return nil, nil, itemErrors
	}
	tokens := Tokenize(val.Scalar)
	if len(tokens) > 1 {
		itemErrors = append(itemErrors,
			fmt.Sprintf("no schema for item with %d elements", len(tokens)))
		return nil, nil, itemErrors
	}
	itemErrors = append(itemErrors, "missing schema!")
	member := model.Member{Type: "uint8", Size: 1}
	p := marshalMember(member, tokens, encoding, false)
	return []model.Param{p}, p.Data, itemErrors
}

// marshalScalar distributes a flat token list across the member list, each
// member consuming its element count of tokens; a string member consumes
// one token, and a promoted uint8 string consumes the rest.
func marshalScalar(members []model.Member, scalar string, encoding string, itemErrors []string) ([]model.Param, []string) {
	tokens := Tokenize(scalar)
	noComma := !strings.Contains(scalar, ",")

	declared := 0
	for _, m := range members {
		if tokensWanted(m, encoding) == 1 {
			declared++
		} else {
			declared += m.Size
		}
	}

	params := make([]model.Param, 0, len(members))
	pos := 0
	promoted := false
	for _, m := range members {
		want := tokensWanted(m, encoding)
		if m.Type == "uint8" && m.Size > stringPromotionThreshold && noComma {
			// Comma-free wide uint8 arrays carry ASCII; consume the rest of
			// the expression as one string.
			promoted = true
			text := strings.Join(tokens[min(pos, len(tokens)):], " ")
			p := model.Param{
				Name: m.Name, Type: "string", Size: m.Size,
				Val: text, Data: nvbin.PackStringFixed(text, m.Size), Present: true,
			}
			params = append(params, p)
			pos = len(tokens)
			continue
		}
		end := pos + want
		var supplied []string
		if pos < len(tokens) {
			if end > len(tokens) {
				end = len(tokens)
			}
			supplied = tokens[pos:end]
		}
		params = append(params, marshalMember(m, supplied, encoding, true))
		pos += want
	}

	if promoted {
		if len(members) > 1 {
			itemErrors = append(itemErrors, "only one string element allowed")
		}
	} else if pos != len(tokens) {
		itemErrors = append(itemErrors,
			fmt.Sprintf("mismatch between %d declared, %d defined elements", declared, len(tokens)))
	}
	return params, itemErrors
}

// marshalFields matches structured children to members by tag name, then
// by position when no name matches.
func marshalFields(members []model.Member, fields []model.Field, encoding string, itemErrors []string) ([]model.Param, []string) {
	if len(fields) != len(members) {
		itemErrors = append(itemErrors,
			fmt.Sprintf("mismatch between %d declared, %d defined elements", len(members), len(fields)))
	}

	params := make([]model.Param, 0, len(members))
	for i, m := range members {
		var field *model.Field
		for j := range fields {
			if m.Name != "" && fields[j].Tag == m.Name {
				field = &fields[j]
				break
			}
		}
		if field == nil && i < len(fields) {
			field = &fields[i]
		}
		if field == nil {
			p := marshalMember(m, nil, encoding, false)
			params = append(params, p)
			continue
		}
		params = append(params, marshalMember(m, Tokenize(field.Text), encoding, true))
	}
	return params, itemErrors
}

// tokensWanted returns the number of source tokens a member consumes.
func tokensWanted(m model.Member, encoding string) int {
	if m.Type == "string" || encoding == "string" {
		return 1
	}
	return m.Size
}

// marshalMember packs one member from its tokens. Missing tokens pack as
// zero bytes; present records whether any source token existed.
func marshalMember(m model.Member, tokens []string, encoding string, present bool) model.Param {
	p := model.Param{Name: m.Name, Type: m.Type, Size: m.Size, Present: present && len(tokens) > 0}

	if m.Type == "string" || encoding == "string" {
		text := strings.Join(tokens, " ")
		p.Val = text
		p.Data = nvbin.PackStringFixed(text, m.Size)
		return p
	}

	bits := schema.BitsOf(m.Type)
	if bits == 0 {
		p.Errors = append(p.Errors, fmt.Sprintf("unknown type %q", m.Type))
		p.Data = make([]byte, m.Size)
		return p
	}
	width := bits / 8
	signed := strings.HasPrefix(m.Type, "int")

	var vals []interface{}
	var data []byte
	stringTokens := 0
	for i := 0; i < m.Size; i++ {
		if i >= len(tokens) {
			data = append(data, make([]byte, width)...)
			continue
		}
		tok := tokens[i]

		if m.Type == "uint8" && !isNumeric(tok, encoding) {
			// The uint8 overload: a non-numeric token carries ASCII.
			stringTokens++
			vals = append(vals, tok)
			data = append(data, nvbin.PackStringFixed(tok, m.Size)...)
			continue
		}

		neg, u, ok := parseToken(tok, encoding)
		if !ok {
			p.Errors = append(p.Errors, fmt.Sprintf("parameter %s not a number", tok))
			data = append(data, make([]byte, width)...)
			continue
		}

		var packed []byte
		var err error
		if signed {
			var v int64
			v, err = toSigned(neg, u)
			if err == nil {
				packed, err = nvbin.PackInt(bits, v)
				vals = append(vals, v)
			}
		} else {
			if neg {
				err = fmt.Errorf("%d does not fit in %s", -int64(u), m.Type)
			} else {
				packed, err = nvbin.PackUint(bits, u)
				vals = append(vals, u)
			}
		}
		if err != nil {
			p.Errors = append(p.Errors, err.Error())
			data = append(data, make([]byte, width)...)
			continue
		}
		data = append(data, packed...)
	}

	if stringTokens > 0 && m.Size > 1 {
		p.Errors = append(p.Errors, "only one string element allowed")
	}

	if len(vals) == 1 {
		p.Val = vals[0]
	} else if len(vals) > 0 {
		p.Val = vals
	}
	p.Data = data
	return p
}

// isNumeric reports whether the token parses as a number under the
// encoding, without committing to a value.
func isNumeric(tok, encoding string) bool {
	_, _, ok := parseToken(tok, encoding)
	return ok
}

// parseToken parses one integer token. A 0x prefix always reads as hex;
// bare hex digits are accepted under encoding=hex; anything else must be a
// plain decimal.
func parseToken(tok, encoding string) (neg bool, u uint64, ok bool) {
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		v, err := strconv.ParseUint(tok[2:], 16, 64)
		return false, v, err == nil
	}
	if encoding == "hex" && hexToken.MatchString(tok) {
		v, err := strconv.ParseUint(tok, 16, 64)
		return false, v, err == nil
	}
	if !decimalToken.MatchString(tok) {
		return false, 0, false
	}
	if strings.HasPrefix(tok, "-") {
		v, err := strconv.ParseInt(tok, 10, 64)
		return true, uint64(-v), err == nil
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	return false, v, err == nil
}

func toSigned(neg bool, u uint64) (int64, error) {
	if neg {
		if u > uint64(math.MaxInt64)+1 {
			return 0, fmt.Errorf("-%d below the int64 limit", u)
		}
		return -int64(u-1) - 1, nil
	}
	if u > uint64(math.MaxInt64) {
		return 0, fmt.Errorf("%d above the int64 limit", u)
	}
	return int64(u), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
