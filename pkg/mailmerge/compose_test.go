package mailmerge

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/docxtest"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/xml"
)

// bodySummary describes each top-level body element: paragraph text, "SECTION"
// for a section break paragraph, "PAGE" for a page break paragraph and
// "sectPr" for the final section properties.
func bodySummary(doc *Document) []string {
	main := doc.Main()
	var out []string
	for _, el := range main.Body().ChildElements() {
		switch {
		case el.Is("w", "sectPr"):
			out = append(out, "sectPr")
		case el.Is("w", "p"):
			p := xml.NewParagraph(el, "w")
			if pPr := el.Child("w", "pPr"); pPr != nil && pPr.Child("w", "sectPr") != nil {
				out = append(out, "SECTION")
				continue
			}
			if strings.Contains(el.String(), `w:type="page"`) {
				out = append(out, "PAGE")
				continue
			}
			out = append(out, p.Text())
		default:
			out = append(out, el.Name.Local)
		}
	}
	return out
}

func mergedDocs(t *testing.T, tmpl *Template, names ...string) []*Document {
	t.Helper()
	reg := NewRegistry("NAME")
	var docs []*Document
	for i, name := range names {
		doc := tmpl.NewDocument()
		Substitute(doc, reg, RecordOf(4+i, map[string]any{"NAME": name}))
		docs = append(docs, doc)
	}
	return docs
}

func TestComposeOrderAndSeparators(t *testing.T) {
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("<<NAME>>")))

	tests := []struct {
		name string
		sep  Separator
		want []string
	}{
		{"section", SeparatorSection, []string{"A", "SECTION", "B", "SECTION", "C", "sectPr"}},
		{"page", SeparatorPage, []string{"A", "PAGE", "B", "PAGE", "C", "sectPr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composed, err := Compose(mergedDocs(t, tmpl, "A", "B", "C"), tt.sep)
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, bodySummary(composed)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComposeSingleDocumentUnchanged(t *testing.T) {
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("<<NAME>>")))
	docs := mergedDocs(t, tmpl, "A")
	before := mainXML(t, docs[0])

	composed, err := Compose(docs, SeparatorSection)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if composed != docs[0] {
		t.Error("Compose([A]) should return A")
	}
	if after := mainXML(t, composed); after != before {
		t.Errorf("Compose([A]) changed A\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestComposeNoDocuments(t *testing.T) {
	_, err := Compose(nil, SeparatorSection)
	if !errors.Is(err, ErrNoDocuments) {
		t.Errorf("Compose(nil) error = %v, want ErrNoDocuments", err)
	}
}

func TestComposeSectionBreakCarriesSectionProperties(t *testing.T) {
	b := docxtest.New(docxtest.Paragraph("<<NAME>>")).
		SectPr(`<w:sectPr><w:type w:val="continuous"/><w:pgSz w:w="12240" w:h="15840"/></w:sectPr>`).
		Header(docxtest.Paragraph("Letterhead"))
	tmpl := prepareFixture(t, b)

	composed, err := Compose(mergedDocs(t, tmpl, "A", "B"), SeparatorSection)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	sep := composed.Main().BodyElements()[1]
	sectPr := sep.Child("w", "pPr").Child("w", "sectPr")
	if sectPr == nil {
		t.Fatal("separator has no sectPr")
	}
	if sectPr.Child("w", "headerReference") == nil {
		t.Error("separator sectPr lost the header reference")
	}
	if v, _ := sectPr.Child("w", "type").AttrValue("w", "val"); v != "nextPage" {
		t.Errorf("separator section type = %q, want nextPage", v)
	}
	if v, _ := sectPr.Child("w", "pgSz").AttrValue("w", "w"); v != "12240" {
		t.Errorf("separator page width = %q, want 12240", v)
	}

	final := composed.Main().SectionProperties()
	if v, _ := final.Child("w", "type").AttrValue("w", "val"); v != "nextPage" {
		t.Errorf("final section type = %q, want nextPage", v)
	}

	// Headers stay the base document's parts.
	if got := composed.Part("word/header1.xml").Paragraphs()[0].Text(); got != "Letterhead" {
		t.Errorf("header text = %q", got)
	}
}

func TestComposeWithoutSectionPropertiesFallsBackToPageBreak(t *testing.T) {
	var logs bytes.Buffer
	prev := GetLogger()
	SetLogger(NewLogger(&logs, LogDebug))
	t.Cleanup(func() { SetLogger(prev) })

	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("<<NAME>>")).SectPr(""))

	composed, err := Compose(mergedDocs(t, tmpl, "A", "B"), SeparatorSection)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A", "PAGE", "B"}, bodySummary(composed)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "using a page break") || !strings.Contains(logs.String(), "record=2") {
		t.Errorf("expected fallback debug log, got %s", logs.String())
	}
}

func TestComposeRenumbersBookmarksAndDrawings(t *testing.T) {
	body := `<w:p><w:bookmarkStart w:id="0" w:name="intro"/>` + docxtest.Run("<<NAME>>") + `<w:bookmarkEnd w:id="0"/></w:p>` +
		`<w:p><w:r><w:drawing><wp:inline><wp:docPr id="1" name="Picture 1"/></wp:inline></w:drawing></w:r></w:p>`
	tmpl := prepareFixture(t, docxtest.New(body))

	composed, err := Compose(mergedDocs(t, tmpl, "A", "B", "C"), SeparatorPage)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	var starts, ends, drawings []string
	composed.Main().Root.Walk(func(el *xml.Element) bool {
		switch {
		case el.Is("w", "bookmarkStart"):
			v, _ := el.AttrValue("w", "id")
			starts = append(starts, v)
		case el.Is("w", "bookmarkEnd"):
			v, _ := el.AttrValue("w", "id")
			ends = append(ends, v)
		case el.Is("wp", "docPr"):
			v, _ := el.AttrValue("", "id")
			drawings = append(drawings, v)
		}
		return true
	})

	want := []string{"0", "1", "2"}
	if diff := cmp.Diff(want, starts); diff != "" {
		t.Errorf("bookmarkStart ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, ends); diff != "" {
		t.Errorf("bookmarkEnd ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, drawings); diff != "" {
		t.Errorf("docPr ids (-want +got):\n%s", diff)
	}
}

func TestComposerAppendDoesNotModifySource(t *testing.T) {
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("<<NAME>>")))
	docs := mergedDocs(t, tmpl, "A", "B")
	before := mainXML(t, docs[1])

	c := NewComposer(docs[0], SeparatorSection)
	if err := c.Append(docs[1]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if after := mainXML(t, docs[1]); after != before {
		t.Error("Append() modified the appended document")
	}
}

func TestComposerRejectsOtherTemplates(t *testing.T) {
	a := prepareFixture(t, docxtest.New(docxtest.Paragraph("a")))
	b := prepareFixture(t, docxtest.New(docxtest.Paragraph("b")))

	c := NewComposer(a.NewDocument(), SeparatorPage)
	err := c.Append(b.NewDocument())
	if !IsDocumentError(err) {
		t.Errorf("Append() error = %v, want DocumentError", err)
	}
}

func TestComposedDocumentRoundTrips(t *testing.T) {
	tmpl := prepareFixture(t, docxtest.New(docxtest.Paragraph("Hello <<NAME>>")).Header(docxtest.Paragraph("H")))
	composed, err := Compose(mergedDocs(t, tmpl, "A", "B"), SeparatorSection)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	data, err := composed.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	reread, err := Prepare("out.docx", data)
	if err != nil {
		t.Fatalf("Prepare(composed) error = %v", err)
	}
	got := reread.NewDocument().Text()
	if want := "Hello A\n\nHello B\n"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if diff := cmp.Diff(tmpl.TextParts(), reread.TextParts()); diff != "" {
		t.Errorf("text parts changed (-want +got):\n%s", diff)
	}
}

func TestParseSeparator(t *testing.T) {
	tests := []struct {
		input   string
		want    Separator
		wantErr bool
	}{
		{"", SeparatorSection, false},
		{"section", SeparatorSection, false},
		{" Page ", SeparatorPage, false},
		{"column", SeparatorSection, true},
	}

	for _, tt := range tests {
		got, err := ParseSeparator(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeparator(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseSeparator(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
