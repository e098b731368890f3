package mailmerge

import (
	"strings"

	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/xml"
)

// Stats summarizes one substitution pass.
type Stats struct {
	// Paragraphs is the number of paragraphs with at least one run.
	Paragraphs int
	// Replaced counts substituted placeholder occurrences.
	Replaced int
	// Missing counts occurrences whose field was absent from the record;
	// they were substituted with the empty string.
	Missing int
	// Unresolved counts occurrences whose runs could not be located. They
	// are left in place.
	Unresolved int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Paragraphs += other.Paragraphs
	s.Replaced += other.Replaced
	s.Missing += other.Missing
	s.Unresolved += other.Unresolved
}

// Substitute replaces every registered placeholder in every text-bearing part
// of doc with the record's formatted value. Formatting lives on runs, so a
// placeholder split across runs is written into the first run it touches and
// the rest of the span is emptied; no run is ever removed and runs whose text
// does not change are not touched.
func Substitute(doc *Document, reg *Registry, rec Record) Stats {
	var stats Stats
	if doc == nil || reg == nil || reg.Len() == 0 {
		return stats
	}
	for _, name := range doc.TextParts() {
		for _, p := range doc.Part(name).Paragraphs() {
			stats.Add(substituteParagraph(p, reg, rec))
		}
	}
	return stats
}

// SubstituteParagraph runs the substitution on a single paragraph.
func SubstituteParagraph(p xml.Paragraph, reg *Registry, rec Record) Stats {
	return substituteParagraph(p, reg, rec)
}

func substituteParagraph(p xml.Paragraph, reg *Registry, rec Record) Stats {
	var stats Stats
	runs := p.Runs()
	if len(runs) == 0 {
		return stats
	}
	stats.Paragraphs = 1

	// Offsets are per text segment; tabs and breaks between w:t elements
	// stay where they are.
	var segs []*xml.Segment
	for _, r := range runs {
		for _, seg := range r.Segments() {
			seg := seg
			segs = append(segs, &seg)
		}
	}
	original := make([]string, len(segs))
	fixed := make([]bool, len(segs))
	for i, seg := range segs {
		original[i] = seg.Text()
		fixed[i] = !seg.Editable()
	}

	texts, s := replaceSegments(original, fixed, reg, rec)
	stats.Replaced, stats.Missing, stats.Unresolved = s.Replaced, s.Missing, s.Unresolved
	if stats.Replaced == 0 {
		return stats
	}

	for i, seg := range segs {
		if texts[i] != original[i] {
			seg.SetText(texts[i])
		}
	}
	return stats
}

// replaceTokens performs the scan over plain run texts and returns the new
// run texts.
func replaceTokens(texts []string, reg *Registry, rec Record) ([]string, Stats) {
	return replaceSegments(texts, nil, reg, rec)
}

// replaceSegments is replaceTokens where fixed[i] marks a segment that
// cannot be rewritten. An occurrence whose span includes one is unresolved.
func replaceSegments(texts []string, fixed []bool, reg *Registry, rec Record) ([]string, Stats) {
	var stats Stats
	text := strings.Join(texts, "")
	cursor := 0
	for {
		idx, tok, ok := reg.next(text, cursor)
		if !ok {
			break
		}
		length := len(tok.Text)
		table := tableFor(texts)
		span, ok := table.Locate(idx, length)
		if !ok || spansFixed(fixed, span) {
			stats.Unresolved++
			cursor = idx + length
			continue
		}

		if !rec.Has(tok.Field) {
			stats.Missing++
		}
		value := Format(rec.Get(tok.Field))
		texts = Splice(texts, table, span, idx, length, value)
		text = text[:idx] + value + text[idx+length:]
		cursor = idx + len(value)
		stats.Replaced++
	}
	return texts, stats
}

func spansFixed(fixed []bool, span Span) bool {
	if fixed == nil {
		return false
	}
	for i := span.First; i <= span.Last; i++ {
		if fixed[i] {
			return true
		}
	}
	return false
}
