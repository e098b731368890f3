package xml

import "strings"

// Paragraph is a view over a w:p element.
type Paragraph struct {
	el     *Element
	prefix string
}

// NewParagraph wraps an existing w:p element.
func NewParagraph(el *Element, prefix string) Paragraph {
	return Paragraph{el: el, prefix: prefix}
}

// Element returns the underlying w:p element.
func (p Paragraph) Element() *Element {
	return p.el
}

// Runs returns the paragraph's runs in document order.
func (p Paragraph) Runs() []Run {
	return collectRuns(p.el, p.prefix, nil)
}

// Text returns the paragraph's visible text: its run texts concatenated.
func (p Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs() {
		b.WriteString(r.Text())
	}
	return b.String()
}

// collectRuns gathers w:r elements owned by el. It descends through inline
// containers (hyperlinks, w:ins, smart tags, fields, content controls) but
// not into runs themselves, so paragraphs inside text boxes belong to their
// own w:p and are not mixed into the outer paragraph.
func collectRuns(el *Element, prefix string, out []Run) []Run {
	for _, c := range el.Children {
		ce, ok := c.(*Element)
		if !ok {
			continue
		}
		if ce.Name.Space == prefix {
			switch ce.Name.Local {
			case "r":
				out = append(out, Run{el: ce, prefix: prefix})
				continue
			case "pPr", "del", "moveFrom", "p":
				continue
			}
		}
		if ce.Name.Local == "Fallback" {
			// mc:Fallback repeats the mc:Choice content.
			continue
		}
		out = collectRuns(ce, prefix, out)
	}
	return out
}

// Paragraphs returns every w:p in the part in document order: body
// paragraphs, table cell paragraphs at any nesting depth, header and footer
// paragraphs, and paragraphs inside text boxes.
func (d *Document) Paragraphs() []Paragraph {
	if d.Root == nil {
		return nil
	}
	prefix := d.Prefix()
	var out []Paragraph
	d.Root.Walk(func(el *Element) bool {
		if el.Is(prefix, "p") {
			out = append(out, Paragraph{el: el, prefix: prefix})
		}
		return true
	})
	return out
}

// NewPageBreakParagraph builds <w:p><w:r><w:br w:type="page"/></w:r></w:p>.
func NewPageBreakParagraph(prefix string) *Element {
	br := NewElement(prefix, "br")
	br.SetAttr(prefix, "type", "page")
	r := NewElement(prefix, "r")
	r.Append(br)
	p := NewElement(prefix, "p")
	p.Append(r)
	return p
}

// NewSectionBreakParagraph builds an empty paragraph whose properties carry
// sectPr, ending a section at that paragraph.
func NewSectionBreakParagraph(prefix string, sectPr *Element) *Element {
	pPr := NewElement(prefix, "pPr")
	pPr.Append(sectPr)
	p := NewElement(prefix, "p")
	p.Append(pPr)
	return p
}
