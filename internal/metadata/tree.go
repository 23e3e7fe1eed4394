package metadata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/starford/beamline/internal/apperr"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

// Node is one element of a parsed document. Names are kept exactly as written
// (prefix included) so serialization reproduces the original nesting and
// attributes.
type Node struct {
	Name     string
	Attr     []xml.Attr
	Children []Item
}

// Item is either a child element or a non-element token (text, comment,
// processing instruction, directive).
type Item struct {
	Elem *Node
	Tok  xml.Token
}

// Document is a parsed tagged-metadata file.
type Document struct {
	Items []Item
}

// ParseDocument builds a tree from UTF-8 input. Mismatched or unclosed
// elements are reported as apperr.ErrMalformed.
func ParseDocument(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	doc := &Document{}
	var stack []*Node
	add := func(it Item) {
		if len(stack) == 0 {
			doc.Items = append(doc.Items, it)
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, it)
	}

	roots := 0
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualified(t.Name), Attr: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				roots++
			}
			add(Item{Elem: n})
			stack = append(stack, n)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Name != name {
				return nil, fmt.Errorf("%w: unexpected end element </%s>", apperr.ErrMalformed, name)
			}
			stack = stack[:len(stack)-1]
		default:
			add(Item{Tok: xml.CopyToken(tok)})
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element <%s>", apperr.ErrMalformed, stack[len(stack)-1].Name)
	}
	if roots != 1 {
		return nil, fmt.Errorf("%w: document has %d root elements", apperr.ErrMalformed, roots)
	}
	return doc, nil
}

// Bytes serializes the document as UTF-8 with a UTF-8 declaration.
func (d *Document) Bytes() []byte {
	var b bytes.Buffer
	b.WriteString(xmlDeclaration)
	items := d.Items
	if len(items) > 0 && isDeclaration(items[0].Tok) {
		items = items[1:]
	} else {
		b.WriteByte('\n')
	}
	for _, it := range items {
		writeItem(&b, it)
	}
	return b.Bytes()
}

// FindAll returns every element whose local name is name, in document order.
func (d *Document) FindAll(name string) []*Node {
	var out []*Node
	var walk func(items []Item)
	walk = func(items []Item) {
		for _, it := range items {
			if it.Elem == nil {
				continue
			}
			if localName(it.Elem.Name) == name {
				out = append(out, it.Elem)
			}
			walk(it.Elem.Children)
		}
	}
	walk(d.Items)
	return out
}

// Child returns the first direct child element with the given local name.
func (n *Node) Child(name string) *Node {
	for _, it := range n.Children {
		if it.Elem != nil && localName(it.Elem.Name) == name {
			return it.Elem
		}
	}
	return nil
}

// Text returns the concatenated character data directly inside n.
func (n *Node) Text() string {
	var sb strings.Builder
	for _, it := range n.Children {
		if cd, ok := it.Tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	return sb.String()
}

// SetText replaces the character data of a leaf element. Elements with child
// elements are left alone and SetText reports false.
func (n *Node) SetText(s string) bool {
	kept := make([]Item, 0, len(n.Children)+1)
	placed := false
	for _, it := range n.Children {
		if it.Elem != nil {
			return false
		}
		if _, ok := it.Tok.(xml.CharData); ok {
			if !placed {
				kept = append(kept, Item{Tok: xml.CharData(s)})
				placed = true
			}
			continue
		}
		kept = append(kept, it)
	}
	if !placed {
		kept = append([]Item{{Tok: xml.CharData(s)}}, kept...)
	}
	n.Children = kept
	return true
}

func writeItem(b *bytes.Buffer, it Item) {
	if it.Elem != nil {
		writeElement(b, it.Elem)
		return
	}
	switch t := it.Tok.(type) {
	case xml.CharData:
		b.WriteString(escapeText(string(t)))
	case xml.Comment:
		b.WriteString("<!--")
		b.Write(t)
		b.WriteString("-->")
	case xml.ProcInst:
		b.WriteString("<?")
		b.WriteString(t.Target)
		if len(t.Inst) > 0 {
			b.WriteByte(' ')
			b.Write(t.Inst)
		}
		b.WriteString("?>")
	case xml.Directive:
		b.WriteString("<!")
		b.Write(t)
		b.WriteByte('>')
	}
}

func writeElement(b *bytes.Buffer, n *Node) {
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(qualified(a.Name))
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}
	if len(n.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, it := range n.Children {
		writeItem(b, it)
	}
	b.WriteString("</")
	b.WriteString(n.Name)
	b.WriteByte('>')
}

// xml.EscapeText also escapes newlines and tabs, which would turn the
// producer's indentation into character references.
var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isDeclaration(tok xml.Token) bool {
	pi, ok := tok.(xml.ProcInst)
	return ok && pi.Target == "xml"
}
