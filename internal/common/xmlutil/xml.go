package xmlutil

import (
	"encoding/xml"
	"fmt"

	"github.com/vtsingaras/orct/internal/common/errors"
)

// Node is a generic XML element tree. The NV dialects are too loosely
// shaped for struct tags: an item body can be a scalar token list, a list
// of member children, or a mixture, so loaders walk Nodes directly.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Parse unmarshals an XML document into its root Node.
func Parse(data []byte) (*Node, error) {
	var root Node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, err.Error())
	}
	return &root, nil
}

// Tag returns the node's local element name.
func (n *Node) Tag() string {
	return n.XMLName.Local
}

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrDefault returns the named attribute value or def when absent.
func (n *Node) AttrDefault(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// UnmarshalXML unmarshals XML data into a provided struct.
func UnmarshalXML(data []byte, v any) error {
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, err.Error())
	}
	return nil
}

// MarshalXML marshals a struct into an XML byte slice.
func MarshalXML(v any, indent bool) ([]byte, error) {
	var data []byte
	var err error
	if indent {
		data, err = xml.MarshalIndent(v, "", "  ")
	} else {
		data, err = xml.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileWriteError, err.Error())
	}
	return data, nil
}
