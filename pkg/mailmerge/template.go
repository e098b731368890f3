package mailmerge

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/xml"
)

// packagePart is one raw entry of a DOCX package.
type packagePart struct {
	name     string
	method   uint16
	modified time.Time
	data     []byte
}

// Template is a parsed DOCX template. It is never mutated after Prepare and
// is safe for concurrent use; every merge works on a Document obtained from
// NewDocument.
type Template struct {
	name      string
	hash      string
	parts     []packagePart
	textParts []string
	parsed    map[string]*xml.Document
}

// Prepare parses DOCX bytes into a template.
func Prepare(name string, data []byte) (*Template, error) {
	return prepare(name, data, contentHash(data))
}

// contentHash is the hex SHA-256 of a template's bytes. It identifies the
// template in the cache and in composition checks.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func prepare(name string, data []byte, hash string) (*Template, error) {
	dr, err := NewDocxReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewDocumentError("prepare", name, err)
	}

	textParts, err := dr.TextParts()
	if err != nil {
		return nil, NewDocumentError("prepare", name, err)
	}

	t := &Template{
		name:      name,
		hash:      hash,
		textParts: textParts,
		parsed:    make(map[string]*xml.Document, len(textParts)),
	}

	for _, f := range dr.Files() {
		content, err := readZipFile(f)
		if err != nil {
			return nil, NewDocumentError("prepare", name, err)
		}
		t.parts = append(t.parts, packagePart{
			name:     f.Name,
			method:   f.Method,
			modified: f.Modified,
			data:     content,
		})
	}

	for _, p := range t.parts {
		if !contains(textParts, p.name) {
			continue
		}
		doc, err := xml.ParseDocument(bytes.NewReader(p.data))
		if err != nil {
			return nil, NewDocumentError("prepare", name, fmt.Errorf("%s: %w", p.name, err))
		}
		t.parsed[p.name] = doc
	}

	return t, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PrepareReader reads a template from r.
func PrepareReader(name string, r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewDocumentError("prepare", name, err)
	}
	return Prepare(name, data)
}

// PrepareFile reads a template from disk.
func PrepareFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("prepare", path, err)
	}
	return Prepare(filepath.Base(path), data)
}

// Name returns the template's file name.
func (t *Template) Name() string { return t.name }

// Stem returns the file name without its extension.
func (t *Template) Stem() string {
	return strings.TrimSuffix(t.name, filepath.Ext(t.name))
}

// Hash returns the hex SHA-256 of the template bytes.
func (t *Template) Hash() string { return t.hash }

// TextParts returns the names of the parts that carry paragraphs.
func (t *Template) TextParts() []string {
	out := make([]string, len(t.textParts))
	copy(out, t.textParts)
	return out
}

// withName returns a shallow copy sharing the parsed content.
func (t *Template) withName(name string) *Template {
	cp := *t
	cp.name = name
	return &cp
}

// NewDocument returns a fresh, independently mutable copy of the template.
func (t *Template) NewDocument() *Document {
	d := &Document{tmpl: t, parts: make(map[string]*xml.Document, len(t.parsed))}
	for name, p := range t.parsed {
		d.parts[name] = p.Clone()
	}
	return d
}

// Document is one populated copy of a template. Parts that carry no
// paragraphs are shared with the template and written back unchanged.
type Document struct {
	tmpl  *Template
	parts map[string]*xml.Document
}

// Template returns the template the document was created from.
func (d *Document) Template() *Template { return d.tmpl }

// Main returns the parsed word/document.xml.
func (d *Document) Main() *xml.Document { return d.parts[mainPart] }

// TextParts returns the names of the parts that carry paragraphs.
func (d *Document) TextParts() []string { return d.tmpl.textParts }

// Part returns a parsed text part, or nil.
func (d *Document) Part(name string) *xml.Document { return d.parts[name] }

// Paragraphs returns the paragraphs of every text part.
func (d *Document) Paragraphs() []xml.Paragraph {
	var out []xml.Paragraph
	for _, name := range d.tmpl.textParts {
		out = append(out, d.parts[name].Paragraphs()...)
	}
	return out
}

// Text returns the visible text of the main document, one line per paragraph.
func (d *Document) Text() string {
	var b strings.Builder
	for _, p := range d.Main().Paragraphs() {
		b.WriteString(p.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

// Write writes the document as a DOCX package.
func (d *Document) Write(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, p := range d.tmpl.parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     p.name,
			Method:   p.method,
			Modified: p.modified,
		})
		if err != nil {
			return NewDocumentError("write", p.name, err)
		}

		if parsed, ok := d.parts[p.name]; ok {
			_, err = parsed.WriteTo(fw)
		} else {
			_, err = fw.Write(p.data)
		}
		if err != nil {
			return NewDocumentError("write", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return NewDocumentError("write", d.tmpl.name, err)
	}
	return nil
}

// Bytes returns the document as DOCX bytes.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the document to path.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return NewDocumentError("save", path, err)
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return NewDocumentError("save", path, err)
	}
	return nil
}
