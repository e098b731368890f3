package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// WordprocessingML main namespaces (transitional and strict).
const (
	WordNamespace       = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	StrictWordNamespace = "http://purl.oclc.org/ooxml/wordprocessingml/main"
)

// Document is one parsed XML part: the nodes before the root element
// (XML declaration, comments), the root element itself and anything after it.
type Document struct {
	Prolog []Node
	Root   *Element
	Epilog []Node

	prefix string
}

// ParseDocument parses an XML part into a lossless tree.
func ParseDocument(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	doc := &Document{}
	var stack []*Element

	add := func(n Node) {
		switch {
		case len(stack) > 0:
			top := stack[len(stack)-1]
			top.Children = append(top.Children, n)
		case doc.Root == nil:
			doc.Prolog = append(doc.Prolog, n)
		default:
			doc.Epilog = append(doc.Epilog, n)
		}
	}

	for {
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name}
			if len(t.Attr) > 0 {
				el.Attr = append([]xml.Attr(nil), t.Attr...)
			}
			if len(stack) == 0 {
				if doc.Root != nil {
					return nil, fmt.Errorf("failed to parse document: second root element <%s>", qualified(t.Name))
				}
				doc.Root = el
			} else {
				add(el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].Name != t.Name {
				return nil, fmt.Errorf("failed to parse document: unexpected end element </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			add(CharData(string(t)))
		case xml.Comment:
			add(Comment(string(t)))
		case xml.ProcInst:
			add(ProcInst{Target: t.Target, Inst: string(t.Inst)})
		case xml.Directive:
			add(Directive(string(t)))
		}
	}

	if doc.Root == nil {
		return nil, errors.New("failed to parse document: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("failed to parse document: unclosed element <%s>", qualified(stack[len(stack)-1].Name))
	}

	doc.prefix = resolvePrefix(doc.Root)
	return doc, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// resolvePrefix finds the prefix bound to the WordprocessingML namespace on
// the root element. Word always writes "w", which is also the fallback.
func resolvePrefix(root *Element) string {
	for _, a := range root.Attr {
		if a.Name.Space == "xmlns" && (a.Value == WordNamespace || a.Value == StrictWordNamespace) {
			return a.Name.Local
		}
	}
	return "w"
}

// Prefix returns the prefix bound to the WordprocessingML namespace.
func (d *Document) Prefix() string {
	if d.prefix == "" {
		return "w"
	}
	return d.prefix
}

// WriteTo serializes the part.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	wr := &writer{w: w}
	for _, n := range d.Prolog {
		n.writeTo(wr)
	}
	if d.Root != nil {
		d.Root.writeTo(wr)
	}
	for _, n := range d.Epilog {
		n.writeTo(wr)
	}
	return wr.n, wr.err
}

// Bytes serializes the part into a byte slice.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone returns a deep copy of the part.
func (d *Document) Clone() *Document {
	out := &Document{Root: d.Root.Clone(), prefix: d.prefix}
	for _, n := range d.Prolog {
		out.Prolog = append(out.Prolog, n.clone())
	}
	for _, n := range d.Epilog {
		out.Epilog = append(out.Epilog, n.clone())
	}
	return out
}

// Body returns the w:body element, or nil for parts without one (headers,
// footers, notes).
func (d *Document) Body() *Element {
	if d.Root == nil {
		return nil
	}
	return d.Root.Child(d.Prefix(), "body")
}

// SectionProperties returns the body's final w:sectPr, which describes the
// last section of the document (page setup, header and footer references).
func (d *Document) SectionProperties() *Element {
	body := d.Body()
	if body == nil {
		return nil
	}
	els := body.ChildElements()
	if len(els) == 0 {
		return nil
	}
	if last := els[len(els)-1]; last.Is(d.Prefix(), "sectPr") {
		return last
	}
	return nil
}

// BodyElements returns the top-level body elements in order, without the
// final section properties.
func (d *Document) BodyElements() []*Element {
	body := d.Body()
	if body == nil {
		return nil
	}
	sectPr := d.SectionProperties()
	var out []*Element
	for _, el := range body.ChildElements() {
		if el != sectPr {
			out = append(out, el)
		}
	}
	return out
}

// AppendBody appends elements to the body, keeping the final section
// properties last.
func (d *Document) AppendBody(els ...*Element) {
	body := d.Body()
	if body == nil || len(els) == 0 {
		return
	}
	nodes := make([]Node, len(els))
	for i, el := range els {
		nodes[i] = el
	}

	sectPr := d.SectionProperties()
	if sectPr == nil {
		body.Append(nodes...)
		return
	}
	for i, c := range body.Children {
		if c == Node(sectPr) {
			rest := append(nodes, body.Children[i:]...)
			body.Children = append(body.Children[:i:i], rest...)
			return
		}
	}
}

// SetSectionProperties replaces the body's final section properties.
func (d *Document) SetSectionProperties(sectPr *Element) {
	body := d.Body()
	if body == nil || sectPr == nil {
		return
	}
	if current := d.SectionProperties(); current != nil {
		for i, c := range body.Children {
			if c == Node(current) {
				body.Children[i] = sectPr
				return
			}
		}
	}
	body.Append(sectPr)
}
