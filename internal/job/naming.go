package job

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/benjaminschreck/go-mailmerge/internal/sheet"
)

// ShortCode derives a file-name-safe template code from a template stem:
// accents are folded to ASCII, letters upper-cased and every other run of
// characters collapsed to one underscore. "Lettre d'été" becomes
// "LETTRE_D_ETE".
func ShortCode(stem string) string {
	// transform.Chain keeps state, so it cannot be shared between goroutines.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, stem)
	if err != nil {
		folded = stem
	}

	var b strings.Builder
	pending := false
	for _, r := range strings.ToUpper(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return "DOC"
	}
	return b.String()
}

// DateStamp formats t as YYYY-MM-DD in loc.
func DateStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// CombinedName names the composed document of one template.
func CombinedName(date string, w sheet.Window, code string) string {
	return fmt.Sprintf("%s_%s_%s.docx", date, w, code)
}

// ArchiveName names the download archive of a job.
func ArchiveName(date string, w sheet.Window) string {
	return fmt.Sprintf("%s_%s.zip", date, w)
}

// SeparateName names one standalone record document.
func SeparateName(stem string, row int) string {
	return fmt.Sprintf("%s_row%d.docx", stem, row)
}

// nameSet hands out unique file names, suffixing repeats with -2, -3 and so on.
type nameSet map[string]int

func (s nameSet) unique(name string) string {
	n := s[name]
	s[name] = n + 1
	if n == 0 {
		return name
	}
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name, ext = name[:i], name[i:]
	}
	return s.unique(fmt.Sprintf("%s-%d%s", name, n+1, ext))
}
