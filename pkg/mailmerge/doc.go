// Package mailmerge fills DOCX templates with spreadsheet records and
// concatenates the results into one continuous document.
//
// Basic Usage:
//
//	engine := mailmerge.NewWithOptions(
//	    mailmerge.WithRegistry(mailmerge.NewRegistry("NAME", "JOB #")),
//	)
//
//	tmpl, err := engine.PrepareFile("letter.docx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var composer *mailmerge.Composer
//	for _, rec := range records {
//	    doc, _ := engine.Merge(tmpl, rec)
//	    if composer == nil {
//	        composer = engine.NewComposer(doc)
//	        continue
//	    }
//	    if err := composer.Append(doc); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	if err := composer.Document().Save("letters.docx"); err != nil {
//	    log.Fatal(err)
//	}
//
// Placeholders:
//
// A placeholder is a registered token such as <<NAME>>. Word often splits
// typed text across several runs (spell checking, revisions, formatting
// changes), so a token may span runs. Substitution writes the value into the
// first run the token touches, keeping that run's formatting, and empties
// the rest of the span. Text that merely looks like a placeholder but is not
// registered is left as is.
//
// Values:
//
// Cell values are typed (Empty, Integer, Decimal, Date, Text) and rendered
// by Format: 4.0 becomes "4", 4.5 stays "4.5", dates are YYYY-MM-DD and
// empty cells become "".
//
// Composition:
//
// Records are joined with a section break carrying the template's page setup
// and header/footer references, or with a plain page break.
package mailmerge
