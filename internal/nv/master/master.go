// Package master loads the value XML ("master file"): per-item value
// expressions keyed by numeric id or EFS path, with xi:include resolution.
package master

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vtsingaras/orct/internal/common/fsutil"
	"github.com/vtsingaras/orct/internal/common/xmlutil"
	"github.com/vtsingaras/orct/internal/nv/model"
)

// Master holds the loaded value expressions. EFS entries preserve document
// order; numbered entries are sorted by the consumers that need ordering.
type Master struct {
	Numbered map[int]*model.NumberedValue
	efsPaths []string
	efs      map[string]*model.EfsValue
	Errors   []string
}

// New returns an empty master document.
func New() *Master {
	return &Master{
		Numbered: make(map[int]*model.NumberedValue),
		efs:      make(map[string]*model.EfsValue),
	}
}

// Efs returns the value for an EFS path, or nil.
func (m *Master) Efs(path string) *model.EfsValue {
	return m.efs[path]
}

// EfsPaths returns the loaded EFS paths in document order.
func (m *Master) EfsPaths() []string {
	return append([]string(nil), m.efsPaths...)
}

func (m *Master) putEfs(path string, v *model.EfsValue) {
	if _, ok := m.efs[path]; !ok {
		m.efsPaths = append(m.efsPaths, path)
	}
	m.efs[path] = v
}

// Load reads and parses a master file, resolving xi:include directives
// relative to the file's own directory.
func Load(path string) (*Master, error) {
	m := New()
	if err := m.loadInto(path); err != nil {
		return nil, err
	}
	return m, nil
}

// loadInto parses one file and merges its items into m. Collisions are
// last-write-wins; includee errors are merged into the parent's list.
func (m *Master) loadInto(path string) error {
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return err
	}
	root, err := xmlutil.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for i := range root.Children {
		child := &root.Children[i]
		switch child.Tag() {
		case "include":
			href, ok := child.Attr("href")
			if !ok {
				m.Errors = append(m.Errors, fmt.Sprintf("%s: include without href", path))
				continue
			}
			target := href
			if !filepath.IsAbs(target) {
				target = filepath.Join(baseDir, href)
			}
			if err := m.loadInto(target); err != nil {
				m.Errors = append(m.Errors, fmt.Sprintf("include %s: %v", href, err))
			}
		case "NvItem":
			m.parseNvItem(child)
		case "NvEfsItem":
			m.parseEfsItem(child)
		default:
			m.Errors = append(m.Errors,
				fmt.Sprintf("%s: unexpected element %s", path, child.Tag()))
		}
	}
	return nil
}

func (m *Master) parseNvItem(node *xmlutil.Node) {
	idText, ok := node.Attr("id")
	if !ok {
		m.Errors = append(m.Errors, "NvItem without id attribute")
		return
	}
	id, err := strconv.Atoi(idText)
	if err != nil {
		m.Errors = append(m.Errors, fmt.Sprintf("NvItem id %q is not a number", idText))
		return
	}

	if id >= model.EfsItemThreshold {
		v := &model.EfsValue{
			Path:         model.RfnvPath(id),
			Index:        indexAttr(node),
			Mapping:      node.AttrDefault("mapping", ""),
			Encoding:     node.AttrDefault("encoding", "dec"),
			Provisioning: boolAttr(node, "useProvisioningStore"),
			Backup:       true,
			Raw:          parseValue(node),
		}
		m.putEfs(v.Path, v)
		return
	}

	m.Numbered[id] = &model.NumberedValue{
		ID:       id,
		Name:     node.AttrDefault("name", ""),
		Index:    indexAttr(node),
		Mapping:  node.AttrDefault("mapping", ""),
		Encoding: node.AttrDefault("encoding", "dec"),
		Raw:      parseValue(node),
	}
}

func (m *Master) parseEfsItem(node *xmlutil.Node) {
	path, ok := node.Attr("fullpathname")
	if !ok {
		m.Errors = append(m.Errors, "NvEfsItem without fullpathname attribute")
		return
	}
	v := &model.EfsValue{
		Path:         path,
		Index:        indexAttr(node),
		Mapping:      node.AttrDefault("mapping", ""),
		Encoding:     node.AttrDefault("encoding", "dec"),
		Provisioning: boolAttr(node, "useProvisioningStore"),
		Raw:          parseValue(node),
	}
	m.putEfs(path, v)
}

// parseValue captures the raw value expression: structured member
// children when present, a flat scalar token string otherwise.
func parseValue(node *xmlutil.Node) model.Value {
	if len(node.Children) > 0 {
		fields := make([]model.Field, 0, len(node.Children))
		for i := range node.Children {
			child := &node.Children[i]
			fields = append(fields, model.Field{
				Tag:  child.Tag(),
				Text: strings.TrimSpace(child.Content),
			})
		}
		return model.Value{Shape: model.ShapeMembers, Fields: fields}
	}
	return model.Value{Shape: model.ShapeScalar, Scalar: strings.TrimSpace(node.Content)}
}

func indexAttr(node *xmlutil.Node) int {
	n, err := strconv.Atoi(node.AttrDefault("index", "1"))
	if err != nil {
		return 1
	}
	return n
}

func boolAttr(node *xmlutil.Node, name string) bool {
	v, ok := node.Attr(name)
	return ok && (v == "true" || v == "1")
}
