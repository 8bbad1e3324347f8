// Package schema interprets the NV-definition XML into an immutable
// catalog of numbered items, EFS items and named composite data types,
// with composites resolved down to primitive members and aggregate sizes
// computed.
package schema

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/vtsingaras/orct/internal/common/fsutil"
	"github.com/vtsingaras/orct/internal/common/xmlutil"
	"github.com/vtsingaras/orct/internal/nv/model"
)

// primitiveBits maps the primitive type tags to their bit widths. A string
// member's size is already a byte length; it carries width zero here, and
// like every type without a numeric suffix it adds zero to the aggregate
// size.
var primitiveBits = map[string]int{
	"int8":   8,
	"int16":  16,
	"int32":  32,
	"int64":  64,
	"uint8":  8,
	"uint16": 16,
	"uint32": 32,
	"uint64": 64,
	"string": 0,
}

// IsPrimitive reports whether the type tag is one of the wire primitives.
func IsPrimitive(typ string) bool {
	_, ok := primitiveBits[typ]
	return ok
}

var trailingDigits = regexp.MustCompile(`([0-9]+)$`)

// BitsOf derives a type's bit width from the numeric suffix of its name.
// Types without one (string, unresolved aliases) contribute zero.
func BitsOf(typ string) int {
	m := trailingDigits.FindString(typ)
	if m == "" {
		return 0
	}
	bits, _ := strconv.Atoi(m)
	return bits
}

// Options controls composite-type substitution depth. The legacy tool ran
// five passes over EFS items but only one over numbered items; both counts
// are kept configurable and default to the legacy behaviour.
type Options struct {
	NumberedSubstPasses int
	EfsSubstPasses      int
}

// DefaultOptions returns the legacy substitution depths.
func DefaultOptions() Options {
	return Options{NumberedSubstPasses: 1, EfsSubstPasses: 5}
}

// Load reads and interprets a schema file.
func Load(path string, opts Options) (*model.Catalog, error) {
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, opts)
}

// Parse interprets a schema document.
func Parse(data []byte, opts Options) (*model.Catalog, error) {
	root, err := xmlutil.Parse(data)
	if err != nil {
		return nil, err
	}

	cat := &model.Catalog{
		Numbered: make(map[int]*model.NumberedItem),
		Efs:      make(map[string]*model.EfsItem),
		Types:    make(map[string][]model.Member),
	}

	for i := range root.Children {
		child := &root.Children[i]
		switch child.Tag() {
		case "NvItem":
			parseNvItem(cat, child)
		case "NvEfsItem":
			parseEfsItem(cat, child)
		case "DataType":
			parseDataType(cat, child)
		default:
			cat.Errors = append(cat.Errors,
				fmt.Sprintf("unexpected element %s in schema", child.Tag()))
		}
	}

	resolve(cat, opts)
	computeSizes(cat)
	return cat, nil
}

func parseNvItem(cat *model.Catalog, node *xmlutil.Node) {
	idText, ok := node.Attr("id")
	if !ok {
		cat.Errors = append(cat.Errors, "NvItem without id attribute")
		return
	}
	id, err := strconv.Atoi(idText)
	if err != nil {
		cat.Errors = append(cat.Errors, fmt.Sprintf("NvItem id %q is not a number", idText))
		return
	}

	members := parseMembers(cat, node, fmt.Sprintf("NvItem %d", id))

	// Ids at or above the threshold live on the modem filesystem; they are
	// synthesised into EFS items under the rfnv path.
	if id >= model.EfsItemThreshold {
		path := model.RfnvPath(id)
		if _, dup := cat.Efs[path]; dup {
			cat.Errors = append(cat.Errors, fmt.Sprintf("duplicate definition for %s", path))
		}
		cat.Efs[path] = &model.EfsItem{
			Path:         path,
			Permission:   node.AttrDefault("permission", ""),
			Compressed:   boolAttr(node, "compressed"),
			VariableSize: boolAttr(node, "variableSize"),
			Members:      members,
		}
		return
	}

	if _, dup := cat.Numbered[id]; dup {
		cat.Errors = append(cat.Errors, fmt.Sprintf("duplicate definition for item %d", id))
	}
	cat.Numbered[id] = &model.NumberedItem{
		ID:         id,
		Name:       node.AttrDefault("name", ""),
		Permission: node.AttrDefault("permission", ""),
		Members:    members,
	}
}

func parseEfsItem(cat *model.Catalog, node *xmlutil.Node) {
	path, ok := node.Attr("fullpathname")
	if !ok {
		cat.Errors = append(cat.Errors, "NvEfsItem without fullpathname attribute")
		return
	}
	if _, dup := cat.Efs[path]; dup {
		cat.Errors = append(cat.Errors, fmt.Sprintf("duplicate definition for %s", path))
	}
	cat.Efs[path] = &model.EfsItem{
		Path:         path,
		Permission:   node.AttrDefault("permission", ""),
		Compressed:   boolAttr(node, "compressed"),
		VariableSize: boolAttr(node, "variableSize"),
		Members:      parseMembers(cat, node, path),
	}
}

func parseDataType(cat *model.Catalog, node *xmlutil.Node) {
	name, ok := node.Attr("name")
	if !ok {
		cat.Errors = append(cat.Errors, "DataType without name attribute")
		return
	}
	if _, dup := cat.Types[name]; dup {
		cat.Errors = append(cat.Errors, fmt.Sprintf("duplicate definition for type %s", name))
	}
	cat.Types[name] = parseMembers(cat, node, "DataType "+name)
}

func parseMembers(cat *model.Catalog, node *xmlutil.Node, owner string) []model.Member {
	var members []model.Member
	for i := range node.Children {
		child := &node.Children[i]
		if child.Tag() != "Member" {
			cat.Errors = append(cat.Errors,
				fmt.Sprintf("unexpected element %s in %s", child.Tag(), owner))
			continue
		}
		size := 1
		if sizeText, ok := child.Attr("sizeOf"); ok {
			n, err := strconv.Atoi(sizeText)
			if err != nil {
				cat.Errors = append(cat.Errors,
					fmt.Sprintf("%s: sizeOf %q is not a number", owner, sizeText))
			} else {
				size = n
			}
		}
		members = append(members, model.Member{
			Name: child.AttrDefault("name", ""),
			Type: child.AttrDefault("type", ""),
			Size: size,
		})
	}
	return members
}

func boolAttr(node *xmlutil.Node, name string) bool {
	v, ok := node.Attr(name)
	return ok && (v == "true" || v == "1")
}

// resolve substitutes composite-type references with the alias body
// repeated size times, flattening one nesting level per pass. References
// still unresolved after the configured passes are left literal and
// contribute zero to the aggregate size.
func resolve(cat *model.Catalog, opts Options) {
	for _, item := range cat.Numbered {
		for pass := 0; pass < opts.NumberedSubstPasses; pass++ {
			item.Members = Substitute(item.Members, cat.Types)
		}
	}
	for _, item := range cat.Efs {
		for pass := 0; pass < opts.EfsSubstPasses; pass++ {
			item.Members = Substitute(item.Members, cat.Types)
		}
	}
}

// Substitute performs one substitution pass over a member list.
func Substitute(members []model.Member, types map[string][]model.Member) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		body, ok := types[m.Type]
		if !ok || IsPrimitive(m.Type) {
			out = append(out, m)
			continue
		}
		for i := 0; i < m.Size; i++ {
			out = append(out, body...)
		}
	}
	return out
}

// AggregateSize computes the advisory byte size of a member list: the
// packed width of each member times its element count. Types without a
// numeric width suffix (string, unresolved aliases) contribute zero; the
// size is used only where payload length is otherwise unknown.
func AggregateSize(members []model.Member) int {
	total := 0
	for _, m := range members {
		total += BitsOf(m.Type) / 8 * m.Size
	}
	return total
}

func computeSizes(cat *model.Catalog) {
	for _, item := range cat.Numbered {
		item.Size = AggregateSize(item.Members)
	}
	for _, item := range cat.Efs {
		item.Size = AggregateSize(item.Members)
	}
}
