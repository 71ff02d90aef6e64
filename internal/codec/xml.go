package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/SoftwearDevelopment/spynl/internal/core/domain"
)

const (
	xmlRoot       = "response"
	xmlItem       = "item"
	xmlCollection = "collection"
)

// XMLHandler returns the application/xml handler.
//
// Elements with type="collection" are sequences of <item> children; other
// elements with children are mappings; leaves are text run through the
// text hooks. The root element itself is not part of the decoded value.
func XMLHandler() Handler {
	return Handler{
		ContentType: ContentTypeXML,
		Decode:      decodeXML,
		Encode:      encodeXML,
	}
}

type xmlNode struct {
	name       string
	collection bool
	children   []*xmlNode
	text       strings.Builder
}

func decodeXML(body []byte, dc DecodeContext) (map[string]any, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, domain.ErrMalformedRequest(ContentTypeXML, err)
	}

	v := root.value(dc.Hooks)
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return map[string]any{}, nil
	}
	return map[string]any{root.name: v}, nil
}

func parseXML(body []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local}
			for _, attr := range t.Attr {
				if attr.Name.Local == "type" && attr.Value == xmlCollection {
					n.collection = true
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func (n *xmlNode) value(hooks *Hooks) any {
	if n.collection {
		items := make([]any, 0, len(n.children))
		for _, c := range n.children {
			items = append(items, c.value(hooks))
		}
		return items
	}
	if len(n.children) == 0 {
		return hooks.DecodeString(strings.TrimSpace(n.text.String()), true)
	}

	counts := make(map[string]int, len(n.children))
	for _, c := range n.children {
		counts[c.name]++
	}

	m := make(map[string]any, len(n.children))
	for _, c := range n.children {
		v := c.value(hooks)
		// repeated element names collect into a list
		if counts[c.name] > 1 {
			list, _ := m[c.name].([]any)
			m[c.name] = append(list, v)
			continue
		}
		m[c.name] = v
	}
	return m
}

func encodeXML(value any, hooks *Hooks, pretty bool) ([]byte, error) {
	tree, err := toTree(value, hooks)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if pretty {
		enc.Indent("", "    ")
	}
	if err := writeXMLElement(enc, xmlRoot, tree); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXMLElement(enc *xml.Encoder, name string, v any) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}

	switch t := v.(type) {
	case map[string]any:
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !isXMLName(k) {
				return fmt.Errorf("key %q is not a valid XML element name", k)
			}
			if err := writeXMLElement(enc, k, t[k]); err != nil {
				return err
			}
		}
	case []any:
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "type"}, Value: xmlCollection}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, item := range t {
			if err := writeXMLElement(enc, xmlItem, item); err != nil {
				return err
			}
		}
	default:
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		if text := xmlText(t); text != "" {
			if err := enc.EncodeToken(xml.CharData(text)); err != nil {
				return err
			}
		}
	}
	return enc.EncodeToken(start.End())
}

// isXMLName reports whether s can be used as an unprefixed element name.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func xmlText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
