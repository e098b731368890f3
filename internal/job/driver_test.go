package job

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/benjaminschreck/go-mailmerge/internal/sheet"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge/docxtest"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// people is a sheet with a title row, the header in row 3 and three records.
func people(t *testing.T) *sheet.Sheet {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := map[string][]any{
		"A1": {"Staff list"},
		"A3": {"NAME", "JOB #"},
		"A4": {"Alice", 42},
		"A5": {"Bob", 7},
		"A6": {"Cleo"},
	}
	for cell, row := range rows {
		row := row
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	s, err := sheet.Read(bytes.NewReader(buf.Bytes()), sheet.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func letter(text ...string) []byte {
	return docxtest.New(docxtest.Paragraph(text...)).Bytes()
}

func newTestDriver(t *testing.T, opts Options) (*Driver, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 7, 22, 30, 0, 0, time.UTC)}
	if opts.Engine == nil {
		opts.Engine = mailmerge.NewWithOptions(mailmerge.WithLogger(mailmerge.NewLogger(nil, mailmerge.LogOff)))
	}
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	opts.Now = clk.Now
	d := NewDriver(opts)
	t.Cleanup(d.Wait)
	return d, clk
}

func submitAndWait(t *testing.T, d *Driver, req Request) *Job {
	t.Helper()
	j, err := d.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if j.Status != StatusQueued {
		t.Errorf("submitted status = %s, want queued", j.Status)
	}
	d.Wait()
	got, err := d.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func docText(t *testing.T, path string) string {
	t.Helper()
	tmpl, err := mailmerge.PrepareFile(path)
	if err != nil {
		t.Fatalf("PrepareFile(%s) error = %v", path, err)
	}
	return tmpl.NewDocument().Text()
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestDriver_CombinedSingleTemplate(t *testing.T) {
	d, _ := newTestDriver(t, Options{Location: time.FixedZone("UTC+3", 3*60*60)})

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 6},
		Templates: []Template{{Name: "Offer.docx", Data: letter("Hi <<NA", "ME>>, job <<JOB #>>.")}},
	})

	if j.Status != StatusSucceeded {
		t.Fatalf("status = %s (%s), want succeeded", j.Status, j.Message)
	}
	if j.Total != 4 || j.Completed != 4 {
		t.Errorf("progress = %d/%d, want 4/4", j.Completed, j.Total)
	}

	name, path, err := d.Result(context.Background(), j.ID)
	if err != nil {
		t.Fatal(err)
	}
	// 22:30 UTC is already the next day at UTC+3.
	if name != "2024-03-08_rows4-6_OFFER.docx" {
		t.Errorf("result name = %q", name)
	}
	want := "Hi Alice, job 42.\n\nHi Bob, job 7.\n\nHi Cleo, job .\n"
	if got := docText(t, path); got != want {
		t.Errorf("composed text = %q, want %q", got, want)
	}
}

func TestDriver_MultipleTemplatesZip(t *testing.T) {
	d, _ := newTestDriver(t, Options{})

	j := submitAndWait(t, d, Request{
		Sheet:  people(t),
		Window: sheet.Window{Start: 4, End: 5},
		Templates: []Template{
			{Name: "Offer.docx", Data: letter("<<NAME>>")},
			{Name: "Lettre d'été.docx", Data: letter("Cher <<NAME>>")},
		},
	})
	if j.Status != StatusSucceeded {
		t.Fatalf("status = %s (%s)", j.Status, j.Message)
	}
	if j.ResultName != "2024-03-07_rows4-5.zip" {
		t.Errorf("ResultName = %q", j.ResultName)
	}
	want := []string{"2024-03-07_rows4-5_LETTRE_D_ETE.docx", "2024-03-07_rows4-5_OFFER.docx"}
	if diff := cmp.Diff(want, zipNames(t, j.ResultPath)); diff != "" {
		t.Errorf("archive entries (-want +got):\n%s", diff)
	}
}

func TestDriver_SeparateMode(t *testing.T) {
	d, _ := newTestDriver(t, Options{})

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 5, End: 6},
		Templates: []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}},
		Mode:      ModeSeparate,
	})
	if j.Status != StatusSucceeded {
		t.Fatalf("status = %s (%s)", j.Status, j.Message)
	}
	if j.Total != 3 || j.Completed != 3 {
		t.Errorf("progress = %d/%d, want 3/3", j.Completed, j.Total)
	}
	want := []string{"Offer_row5.docx", "Offer_row6.docx"}
	if diff := cmp.Diff(want, zipNames(t, j.ResultPath)); diff != "" {
		t.Errorf("archive entries (-want +got):\n%s", diff)
	}
	if !strings.Contains(j.Message, "2 document") {
		t.Errorf("Message = %q", j.Message)
	}
}

func TestDriver_RejectsInvalidRequests(t *testing.T) {
	store := NewMemoryStore()
	d, _ := newTestDriver(t, Options{Store: store, MaxRows: 2, MaxTemplates: 2})
	good := []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}}

	tests := []struct {
		name   string
		req    Request
		fields []string
	}{
		{"range beyond data", Request{Sheet: people(t), Window: sheet.Window{Start: 4, End: 7}, Templates: good}, []string{"row_end", "row_end"}},
		{"header row", Request{Sheet: people(t), Window: sheet.Window{Start: 3, End: 4}, Templates: good}, []string{"row_start"}},
		{"no sheet", Request{Window: sheet.Window{Start: 4, End: 4}, Templates: good}, []string{"excel"}},
		{"no templates", Request{Sheet: people(t), Window: sheet.Window{Start: 4, End: 4}}, []string{"word_templates"}},
		{"too many templates", Request{Sheet: people(t), Window: sheet.Window{Start: 4, End: 4}, Templates: append(good, good[0], good[0])}, []string{"word_templates"}},
		{"not a docx", Request{Sheet: people(t), Window: sheet.Window{Start: 4, End: 4}, Templates: []Template{{Name: "x.docx", Data: []byte("nope")}, {Name: "y.pdf"}}}, []string{"word_templates", "word_templates"}},
		{"bad mode", Request{Sheet: people(t), Window: sheet.Window{Start: 4, End: 4}, Templates: good, Mode: "both"}, []string{"mode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := d.Submit(context.Background(), tt.req)
			if j != nil {
				t.Fatal("invalid request created a job")
			}
			var verr *mailmerge.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Submit() error = %v, want ValidationError", err)
			}
			var fields []string
			for _, issue := range verr.Issues {
				fields = append(fields, issue.Field)
			}
			if diff := cmp.Diff(tt.fields, fields); diff != "" {
				t.Errorf("issue fields (-want +got):\n%s", diff)
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d jobs after rejected requests", store.Len())
	}
}

func TestDriver_QueueTimeoutFailsJob(t *testing.T) {
	d, _ := newTestDriver(t, Options{MaxConcurrent: 1, QueueTimeout: 20 * time.Millisecond})
	if !d.Limiter().TryAcquire() {
		t.Fatal("could not occupy the only slot")
	}
	defer d.Limiter().Release()

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 4},
		Templates: []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}},
	})
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if !strings.Contains(j.Message, "timed out") {
		t.Errorf("Message = %q", j.Message)
	}
	if _, _, err := d.Result(context.Background(), j.ID); !errors.Is(err, ErrNotReady) {
		t.Errorf("Result() error = %v, want ErrNotReady", err)
	}
}

func TestDriver_CleanupRemovesExpiredJobs(t *testing.T) {
	store := NewMemoryStore()
	d, clk := newTestDriver(t, Options{Store: store, Retention: time.Hour})

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 4},
		Templates: []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}},
	})
	if _, err := os.Stat(j.WorkDir); err != nil {
		t.Fatalf("workspace missing: %v", err)
	}

	if n, err := d.Cleanup(context.Background()); err != nil || n != 0 {
		t.Errorf("Cleanup() = %d, %v; want nothing expired yet", n, err)
	}

	clk.Add(2 * time.Hour)
	if n, err := d.Cleanup(context.Background()); err != nil || n != 1 {
		t.Errorf("Cleanup() = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(j.WorkDir); !os.IsNotExist(err) {
		t.Errorf("workspace still present: %v", err)
	}
	if _, err := d.Get(context.Background(), j.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestDriver_ProgressAndShutdown(t *testing.T) {
	d, _ := newTestDriver(t, Options{})

	if _, err := d.Progress(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Progress(unknown) error = %v", err)
	}

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 5},
		Templates: []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}},
	})
	p, err := d.Progress(context.Background(), j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Percent != 100 || !p.Download || p.ResultName != j.ResultName {
		t.Errorf("Progress() = %+v", p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	_, err = d.Submit(context.Background(), Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 4},
		Templates: []Template{{Name: "Offer.docx", Data: letter("<<NAME>>")}},
	})
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Submit() after Shutdown error = %v, want ErrShuttingDown", err)
	}
}

func TestDriver_RegistryOverride(t *testing.T) {
	reg := mailmerge.NewRegistryWithDelimiters("{{", "}}", "NAME")
	d, _ := newTestDriver(t, Options{Registry: reg})

	j := submitAndWait(t, d, Request{
		Sheet:     people(t),
		Window:    sheet.Window{Start: 4, End: 4},
		Templates: []Template{{Name: "Offer.docx", Data: letter("{{NAME}} <<NAME>>")}},
	})
	if j.Status != StatusSucceeded {
		t.Fatalf("status = %s (%s)", j.Status, j.Message)
	}
	if got := docText(t, j.ResultPath); got != "Alice <<NAME>>\n" {
		t.Errorf("text = %q", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeCombined, false},
		{"combined", ModeCombined, false},
		{" Separate ", ModeSeparate, false},
		{"zip", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out.zip")
	if err := writeArchive(dst, []archiveEntry{{name: "x/a.txt", path: src}}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"x/a.txt"}, zipNames(t, dst)); diff != "" {
		t.Error(diff)
	}
	if err := writeArchive(filepath.Join(dir, "bad.zip"), []archiveEntry{{name: "m", path: filepath.Join(dir, "missing")}}, time.Now()); err == nil {
		t.Error("writeArchive() with a missing file should fail")
	}
}
