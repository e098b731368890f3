package xml

import (
	"encoding/xml"
	"io"
	"strings"
)

// Node is any item of a parsed part: elements, character data, comments,
// processing instructions and directives.
type Node interface {
	writeTo(w *writer)
	clone() Node
}

// Element is an XML element. Name.Space holds the prefix exactly as written
// in the source ("w" in <w:p>), not a namespace URI.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []Node
}

// CharData is text content between tags, already unescaped.
type CharData string

// Comment is an XML comment without the <!-- --> delimiters.
type Comment string

// ProcInst is a processing instruction such as the <?xml ...?> declaration.
type ProcInst struct {
	Target string
	Inst   string
}

// Directive is a <!...> directive.
type Directive string

// NewElement creates an empty element with the given prefix and local name.
func NewElement(prefix, local string) *Element {
	return &Element{Name: xml.Name{Space: prefix, Local: local}}
}

// Is reports whether the element has the given prefix and local name.
func (e *Element) Is(prefix, local string) bool {
	return e != nil && e.Name.Space == prefix && e.Name.Local == local
}

// AttrValue returns the value of the attribute prefix:local.
func (e *Element) AttrValue(prefix, local string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the attribute prefix:local, appending it if it is not present.
func (e *Element) SetAttr(prefix, local, value string) {
	for i, a := range e.Attr {
		if a.Name.Space == prefix && a.Name.Local == local {
			e.Attr[i].Value = value
			return
		}
	}
	e.Attr = append(e.Attr, xml.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value})
}

// Child returns the first child element with the given prefix and local name.
func (e *Element) Child(prefix, local string) *Element {
	for _, c := range e.Children {
		if ce, ok := c.(*Element); ok && ce.Is(prefix, local) {
			return ce
		}
	}
	return nil
}

// ChildElements returns the element children, skipping text and comments.
func (e *Element) ChildElements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if ce, ok := c.(*Element); ok {
			out = append(out, ce)
		}
	}
	return out
}

// Append adds nodes to the end of the element's children.
func (e *Element) Append(nodes ...Node) {
	e.Children = append(e.Children, nodes...)
}

// Text returns the concatenated character data of the element's direct children.
func (e *Element) Text() string {
	var b strings.Builder
	for _, c := range e.Children {
		if cd, ok := c.(CharData); ok {
			b.WriteString(string(cd))
		}
	}
	return b.String()
}

// Walk calls fn for e and every element below it in document order.
// Returning false from fn skips the element's children.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		if ce, ok := c.(*Element); ok {
			ce.Walk(fn)
		}
	}
}

// Clone returns a deep copy of the element.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{Name: e.Name}
	if len(e.Attr) > 0 {
		out.Attr = make([]xml.Attr, len(e.Attr))
		copy(out.Attr, e.Attr)
	}
	if len(e.Children) > 0 {
		out.Children = make([]Node, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.clone()
		}
	}
	return out
}

func (e *Element) clone() Node { return e.Clone() }
func (c CharData) clone() Node { return c }
func (c Comment) clone() Node { return c }
func (p ProcInst) clone() Node { return p }
func (d Directive) clone() Node { return d }

// String serializes the element, mostly useful in tests and debug logging.
func (e *Element) String() string {
	var b strings.Builder
	w := &writer{w: &b}
	e.writeTo(w)
	return b.String()
}

// writer accumulates the first write error so node serialization stays linear.
type writer struct {
	w   io.Writer
	n   int64
	err error
}

func (w *writer) str(s string) {
	if w.err != nil {
		return
	}
	n, err := io.WriteString(w.w, s)
	w.n += int64(n)
	w.err = err
}

func (w *writer) name(n xml.Name) {
	if n.Space != "" {
		w.str(n.Space)
		w.str(":")
	}
	w.str(n.Local)
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

func (e *Element) writeTo(w *writer) {
	w.str("<")
	w.name(e.Name)
	for _, a := range e.Attr {
		w.str(" ")
		w.name(a.Name)
		w.str(`="`)
		w.str(attrEscaper.Replace(a.Value))
		w.str(`"`)
	}
	if len(e.Children) == 0 {
		w.str("/>")
		return
	}
	w.str(">")
	for _, c := range e.Children {
		c.writeTo(w)
	}
	w.str("</")
	w.name(e.Name)
	w.str(">")
}

func (c CharData) writeTo(w *writer) { w.str(textEscaper.Replace(string(c))) }

func (c Comment) writeTo(w *writer) {
	w.str("<!--")
	w.str(string(c))
	w.str("-->")
}

func (p ProcInst) writeTo(w *writer) {
	w.str("<?")
	w.str(p.Target)
	if p.Inst != "" {
		w.str(" ")
		w.str(p.Inst)
	}
	w.str("?>")
}

func (d Directive) writeTo(w *writer) {
	w.str("<!")
	w.str(string(d))
	w.str(">")
}
