package xml

import "strings"

// Run is a view over a w:r element, the atomic unit of formatting.
type Run struct {
	el     *Element
	prefix string
}

// Element returns the underlying w:r element.
func (r Run) Element() *Element {
	return r.el
}

// Properties returns the run's w:rPr, or nil.
func (r Run) Properties() *Element {
	return r.el.Child(r.prefix, "rPr")
}

// Segment is one piece of a run's visible text: either a w:t element, whose
// content may be rewritten, or a fixed character standing for a w:tab, w:cr
// or line break w:br.
type Segment struct {
	el   *Element
	text string
}

// Text returns the segment's visible text.
func (s Segment) Text() string {
	return s.text
}

// Editable reports whether the segment is a w:t element.
func (s Segment) Editable() bool {
	return s.el != nil
}

// SetText replaces the content of a w:t segment. Fixed segments ignore it.
func (s *Segment) SetText(text string) {
	if s.el == nil {
		return
	}
	s.text = text
	if text == "" {
		s.el.Children = nil
		return
	}
	s.el.Children = []Node{CharData(text)}
	s.el.SetAttr("xml", "space", "preserve")
}

// Segments returns the run's text pieces in document order. Page and column
// breaks carry no text and are left out.
func (r Run) Segments() []Segment {
	var out []Segment
	for _, c := range r.el.Children {
		ce, ok := c.(*Element)
		if !ok || ce.Name.Space != r.prefix {
			continue
		}
		switch ce.Name.Local {
		case "t":
			out = append(out, Segment{el: ce, text: ce.Text()})
		case "tab":
			out = append(out, Segment{text: "\t"})
		case "cr":
			out = append(out, Segment{text: "\n"})
		case "br":
			if typ, _ := ce.AttrValue(r.prefix, "type"); typ == "" || typ == "textWrapping" {
				out = append(out, Segment{text: "\n"})
			}
		}
	}
	return out
}

// Text returns the run's visible text: w:t content with tabs and line
// breaks in place.
func (r Run) Text() string {
	segs := r.Segments()
	if len(segs) == 1 {
		return segs[0].text
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String()
}
