package mailmerge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/xml"
)

// Separator is the break inserted between two composed records.
type Separator int

const (
	// SeparatorSection starts every record in a new section on a new page,
	// carrying the template's section properties (page setup, headers and
	// footers).
	SeparatorSection Separator = iota
	// SeparatorPage inserts a plain page break.
	SeparatorPage
)

func (s Separator) String() string {
	switch s {
	case SeparatorPage:
		return "page"
	default:
		return "section"
	}
}

// ParseSeparator parses "section" or "page". The empty string is "section".
func ParseSeparator(s string) (Separator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "section":
		return SeparatorSection, nil
	case "page":
		return SeparatorPage, nil
	default:
		return SeparatorSection, fmt.Errorf("invalid separator %q: want section or page", s)
	}
}

// Composer appends documents to a base document one at a time.
//
// The base is the first document; its header and footer parts serve the
// whole composed document. Every appended document contributes the
// top-level elements of its body, without its final section properties,
// after a separator. Appended documents must come from the same template as
// the base, since relationship ids in their content resolve against the
// base package.
type Composer struct {
	base      *Document
	sep       Separator
	prevSect  *xml.Element
	bookmarks int
	drawings  int
	count     int
}

// NewComposer starts a composition with base as its first document. The base
// is modified in place by Append.
func NewComposer(base *Document, sep Separator) *Composer {
	c := &Composer{base: base, sep: sep, count: 1}
	main := base.Main()
	if sectPr := main.SectionProperties(); sectPr != nil {
		c.prevSect = sectPr.Clone()
	}
	c.bookmarks, c.drawings = maxIDs(main.Root, main.Prefix())
	return c
}

// Append adds doc after everything composed so far. doc is not modified and
// may be discarded afterwards.
func (c *Composer) Append(doc *Document) error {
	if doc == nil {
		return NewDocumentError("compose", "", fmt.Errorf("nil document"))
	}
	if doc.tmpl.hash != c.base.tmpl.hash {
		return NewDocumentError("compose", doc.tmpl.name,
			fmt.Errorf("document is from a different template than %s", c.base.tmpl.name))
	}

	main := c.base.Main()
	src := doc.Main()
	prefix := main.Prefix()

	var els []*xml.Element
	els = append(els, c.separator(prefix))
	for _, el := range src.BodyElements() {
		els = append(els, el.Clone())
	}
	c.renumber(els, prefix)
	main.AppendBody(els...)
	if c.sep == SeparatorSection {
		// The final sectPr now describes the last record's section.
		if last := main.SectionProperties(); last != nil {
			forceNextPage(last, prefix)
		}
	}

	if sectPr := src.SectionProperties(); sectPr != nil {
		c.prevSect = sectPr.Clone()
	}
	c.count++
	return nil
}

// Document returns the composed document.
func (c *Composer) Document() *Document {
	return c.base
}

// Len returns the number of composed documents.
func (c *Composer) Len() int {
	return c.count
}

func (c *Composer) separator(prefix string) *xml.Element {
	if c.sep == SeparatorSection {
		if c.prevSect != nil {
			sectPr := c.prevSect.Clone()
			forceNextPage(sectPr, prefix)
			return xml.NewSectionBreakParagraph(prefix, sectPr)
		}
		WithFields(Fields{"template": c.base.tmpl.name, "record": c.count + 1}).
			Debug("no section properties to carry, using a page break")
	}
	return xml.NewPageBreakParagraph(prefix)
}

// forceNextPage makes a section start on a new page. An absent w:type
// already means nextPage.
func forceNextPage(sectPr *xml.Element, prefix string) {
	typ := sectPr.Child(prefix, "type")
	if typ == nil {
		return
	}
	typ.SetAttr(prefix, "val", "nextPage")
}

// renumber gives bookmarks and drawing objects of appended content ids that
// continue after the highest ids used so far.
func (c *Composer) renumber(els []*xml.Element, prefix string) {
	bookmarks := make(map[string]string)
	for _, root := range els {
		root.Walk(func(el *xml.Element) bool {
			switch {
			case el.Is(prefix, "bookmarkStart"), el.Is(prefix, "bookmarkEnd"):
				old, ok := el.AttrValue(prefix, "id")
				if !ok {
					return true
				}
				id, ok := bookmarks[old]
				if !ok {
					c.bookmarks++
					id = strconv.Itoa(c.bookmarks)
					bookmarks[old] = id
				}
				el.SetAttr(prefix, "id", id)
			case el.Name.Local == "docPr":
				if _, ok := el.AttrValue("", "id"); ok {
					c.drawings++
					el.SetAttr("", "id", strconv.Itoa(c.drawings))
				}
			}
			return true
		})
	}
}

func maxIDs(root *xml.Element, prefix string) (bookmarks, drawings int) {
	if root == nil {
		return 0, 0
	}
	root.Walk(func(el *xml.Element) bool {
		switch {
		case el.Is(prefix, "bookmarkStart"), el.Is(prefix, "bookmarkEnd"):
			if v, ok := el.AttrValue(prefix, "id"); ok {
				if n, err := strconv.Atoi(v); err == nil && n > bookmarks {
					bookmarks = n
				}
			}
		case el.Name.Local == "docPr":
			if v, ok := el.AttrValue("", "id"); ok {
				if n, err := strconv.Atoi(v); err == nil && n > drawings {
					drawings = n
				}
			}
		}
		return true
	})
	return bookmarks, drawings
}

// Compose concatenates docs in order into the first one. A single document
// is returned unchanged.
func Compose(docs []*Document, sep Separator) (*Document, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	c := NewComposer(docs[0], sep)
	for i, doc := range docs[1:] {
		if err := c.Append(doc); err != nil {
			return nil, WithContext(err, "compose", map[string]any{"index": i + 1})
		}
	}
	return c.Document(), nil
}
