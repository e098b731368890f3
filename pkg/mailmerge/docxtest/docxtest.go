// Package docxtest builds small in-memory DOCX packages for tests.
// It should not be used in production code.
package docxtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

const (
	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	relNS  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// Builder assembles a DOCX package.
type Builder struct {
	body    []string
	sectPr  string
	headers []string
	footers []string
	extra   map[string]string
}

// New starts a package whose body holds the given XML fragments.
func New(body ...string) *Builder {
	return &Builder{body: body, sectPr: `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr>`}
}

// Body appends body fragments.
func (b *Builder) Body(fragments ...string) *Builder {
	b.body = append(b.body, fragments...)
	return b
}

// SectPr sets the body's final section properties. The empty string omits them.
func (b *Builder) SectPr(sectPr string) *Builder {
	b.sectPr = sectPr
	return b
}

// Header adds a header part with the given paragraphs and references it
// from the final section properties.
func (b *Builder) Header(paragraphs ...string) *Builder {
	b.headers = append(b.headers, strings.Join(paragraphs, ""))
	return b
}

// Footer adds a footer part with the given paragraphs.
func (b *Builder) Footer(paragraphs ...string) *Builder {
	b.footers = append(b.footers, strings.Join(paragraphs, ""))
	return b
}

// File adds an arbitrary package entry, such as an image.
func (b *Builder) File(name, content string) *Builder {
	if b.extra == nil {
		b.extra = make(map[string]string)
	}
	b.extra[name] = content
	return b
}

// Bytes returns the package.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	write := func(name, content string) {
		f, err := w.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			panic(err)
		}
	}

	var overrides, rels, refs strings.Builder
	for i := range b.headers {
		name := fmt.Sprintf("header%d.xml", i+1)
		id := fmt.Sprintf("rIdH%d", i+1)
		fmt.Fprintf(&overrides, `<Override PartName="/word/%s" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>`, name)
		fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%s/header" Target="%s"/>`, id, relNS, name)
		fmt.Fprintf(&refs, `<w:headerReference w:type="default" r:id="%s"/>`, id)
	}
	for i := range b.footers {
		name := fmt.Sprintf("footer%d.xml", i+1)
		id := fmt.Sprintf("rIdF%d", i+1)
		fmt.Fprintf(&overrides, `<Override PartName="/word/%s" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>`, name)
		fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%s/footer" Target="%s"/>`, id, relNS, name)
		fmt.Fprintf(&refs, `<w:footerReference w:type="default" r:id="%s"/>`, id)
	}

	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`+
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`+
		`<Default Extension="xml" ContentType="application/xml"/>`+
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`+
		overrides.String()+`</Types>`)

	write("_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
		`<Relationship Id="rId1" Type="`+relNS+`/officeDocument" Target="word/document.xml"/>`+
		`</Relationships>`)

	write("word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
		rels.String()+`</Relationships>`)

	sectPr := b.sectPr
	if sectPr != "" && refs.Len() > 0 {
		sectPr = strings.Replace(sectPr, "<w:sectPr>", "<w:sectPr>"+refs.String(), 1)
	}
	write("word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<w:document xmlns:w="`+wordNS+`" xmlns:r="`+relNS+`"><w:body>`+
		strings.Join(b.body, "")+sectPr+`</w:body></w:document>`)

	for i, h := range b.headers {
		write(fmt.Sprintf("word/header%d.xml", i+1), `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<w:hdr xmlns:w="`+wordNS+`" xmlns:r="`+relNS+`">`+h+`</w:hdr>`)
	}
	for i, f := range b.footers {
		write(fmt.Sprintf("word/footer%d.xml", i+1), `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<w:ftr xmlns:w="`+wordNS+`" xmlns:r="`+relNS+`">`+f+`</w:ftr>`)
	}
	for name, content := range b.extra {
		write(name, content)
	}

	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Paragraph builds a paragraph with one plain run per text.
func Paragraph(texts ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for _, t := range texts {
		b.WriteString(Run(t))
	}
	b.WriteString("</w:p>")
	return b.String()
}

// Run builds a plain run.
func Run(text string) string {
	return `<w:r><w:t xml:space="preserve">` + html.EscapeString(text) + `</w:t></w:r>`
}

// BoldRun builds a bold run.
func BoldRun(text string) string {
	return `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">` + html.EscapeString(text) + `</w:t></w:r>`
}
