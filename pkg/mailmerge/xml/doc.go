// Package xml provides a lossless element tree for the XML parts of DOCX files.
//
// DOCX files are ZIP archives of XML parts (word/document.xml, headers, footers,
// footnotes). Mail merge only ever rewrites the text of runs, so everything else
// in a part has to survive a parse/serialize round trip untouched: unknown
// elements, attribute order, namespace prefixes, comments and the XML prolog.
// The tree is therefore built from raw tokens (prefixes are kept as written,
// never resolved to namespace URIs) and serialized back token by token.
//
// # Structure Organization
//
//   - node.go: Node, Element, CharData and the other token nodes, plus Clone
//   - document.go: Document (one parsed part), ParseDocument, serialization,
//     body helpers used when composing documents
//   - paragraph.go: Paragraph view over a w:p element and paragraph walking
//   - run.go: Run view over a w:r element (text get/set)
//
// # Key Concepts
//
// Paragraph: a w:p element. Its runs are the w:r elements it owns in document
// order, including runs nested in hyperlinks, insertions, smart tags, simple
// fields and content controls. Deleted and moved-from revision runs are not
// part of the visible text and are skipped.
//
// Run: the atomic unit of formatting. Its text is the concatenation of its w:t
// children. Setting a run's text keeps the run element and its properties.
//
// # Usage
//
//	doc, err := xml.ParseDocument(r)
//	if err != nil {
//	    return err
//	}
//	for _, p := range doc.Paragraphs() {
//	    for _, run := range p.Runs() {
//	        fmt.Println(run.Text())
//	    }
//	}
//	_, err = doc.WriteTo(w)
package xml
