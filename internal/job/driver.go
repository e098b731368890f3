package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benjaminschreck/go-mailmerge/internal/sheet"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

var (
	// ErrNotReady is returned when a job has no downloadable result (yet).
	ErrNotReady = errors.New("job result is not ready")
	// ErrShuttingDown rejects submissions after Shutdown started.
	ErrShuttingDown = errors.New("merge driver is shutting down")
)

// Mode selects the output layout of a job.
type Mode string

const (
	// ModeCombined composes all records of a template into one document.
	ModeCombined Mode = "combined"
	// ModeSeparate writes one document per template and record.
	ModeSeparate Mode = "separate"
)

// ParseMode parses a mode name; empty means ModeCombined.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCombined:
		return ModeCombined, nil
	case ModeSeparate:
		return ModeSeparate, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Template is one uploaded template file.
type Template struct {
	Name string
	Data []byte
}

// Request describes one merge.
type Request struct {
	Sheet     *sheet.Sheet
	Window    sheet.Window
	Templates []Template
	Mode      Mode
}

// Options configure a Driver. Zero values fall back to defaults.
type Options struct {
	Engine *mailmerge.Engine
	Store  Store
	// Registry overrides the placeholder registry built from the sheet header.
	Registry      *mailmerge.Registry
	DefaultMode   Mode
	MaxRows       int
	MaxTemplates  int
	MaxConcurrent int
	QueueTimeout  time.Duration
	WorkDir       string
	Location      *time.Location
	Retention     time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// Driver validates, runs and tracks merge jobs.
type Driver struct {
	engine       *mailmerge.Engine
	store        Store
	registry     *mailmerge.Registry
	defaultMode  Mode
	maxRows      int
	maxTemplates int
	workDir      string
	location     *time.Location
	retention    time.Duration
	limiter      *Limiter
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewDriver creates a driver.
func NewDriver(opts Options) *Driver {
	d := &Driver{
		engine:       opts.Engine,
		store:        opts.Store,
		registry:     opts.Registry,
		defaultMode:  opts.DefaultMode,
		maxRows:      opts.MaxRows,
		maxTemplates: opts.MaxTemplates,
		workDir:      opts.WorkDir,
		location:     opts.Location,
		retention:    opts.Retention,
		limiter:      NewLimiter(opts.MaxConcurrent, opts.QueueTimeout),
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if d.engine == nil {
		d.engine = mailmerge.New()
	}
	if d.store == nil {
		d.store = NewMemoryStore()
	}
	if d.defaultMode == "" {
		d.defaultMode = ModeCombined
	}
	if d.location == nil {
		d.location = time.UTC
	}
	if d.retention <= 0 {
		d.retention = time.Hour
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Store returns the job store.
func (d *Driver) Store() Store { return d.store }

// Limiter returns the concurrency limiter.
func (d *Driver) Limiter() *Limiter { return d.limiter }

// plan is a validated request.
type plan struct {
	templates []*mailmerge.Template
	records   []mailmerge.Record
	registry  *mailmerge.Registry
	window    sheet.Window
	mode      Mode
}

// steps counts one step per merged record and one per written template.
func (p *plan) steps() int {
	return len(p.templates) * (len(p.records) + 1)
}

// Submit validates req and starts a job for it. Invalid requests return a
// *mailmerge.ValidationError and create no job.
func (d *Driver) Submit(ctx context.Context, req Request) (*Job, error) {
	p, err := d.plan(req)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil, ErrShuttingDown
	}
	d.wg.Add(1)
	d.mu.Unlock()

	j := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Total:     p.steps(),
		CreatedAt: d.now(),
	}
	if err := d.store.Put(ctx, j); err != nil {
		d.wg.Done()
		return nil, fmt.Errorf("store job: %w", err)
	}

	d.logger.Info("merge job queued",
		"job_id", j.ID,
		"templates", len(p.templates),
		"rows", p.window.String(),
		"mode", string(p.mode),
	)

	go d.run(j.ID, p)
	return j, nil
}

func (d *Driver) plan(req Request) (*plan, error) {
	verr := &mailmerge.ValidationError{}

	mode := req.Mode
	if mode == "" {
		mode = d.defaultMode
	}
	if _, err := ParseMode(string(mode)); err != nil {
		verr.Add("mode", "must be %q or %q", ModeCombined, ModeSeparate)
	}

	if req.Sheet == nil {
		verr.Add("excel", "a spreadsheet is required")
	} else if err := req.Sheet.Validate(req.Window, d.maxRows); err != nil {
		var sheetErr *mailmerge.ValidationError
		if !errors.As(err, &sheetErr) {
			return nil, err
		}
		verr.Issues = append(verr.Issues, sheetErr.Issues...)
	}

	var templates []*mailmerge.Template
	switch {
	case len(req.Templates) == 0:
		verr.Add("word_templates", "at least one template is required")
	case d.maxTemplates > 0 && len(req.Templates) > d.maxTemplates:
		verr.Add("word_templates", "%d templates uploaded, at most %d allowed", len(req.Templates), d.maxTemplates)
	default:
		for _, in := range req.Templates {
			if !strings.EqualFold(filepath.Ext(in.Name), ".docx") {
				verr.Add("word_templates", "%s is not a .docx file", in.Name)
				continue
			}
			t, err := d.engine.Prepare(in.Name, in.Data)
			if err != nil {
				verr.Add("word_templates", "%s could not be read as a Word document", in.Name)
				continue
			}
			templates = append(templates, t)
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}

	records, err := req.Sheet.Records(req.Window)
	if err != nil {
		return nil, err
	}
	reg := d.registry
	if reg == nil {
		reg = req.Sheet.Registry()
	}
	return &plan{templates: templates, records: records, registry: reg, window: req.Window, mode: mode}, nil
}

func (d *Driver) run(id string, p *plan) {
	defer d.wg.Done()
	ctx := context.Background()
	logger := d.logger.With("job_id", id)

	if err := d.limiter.Acquire(ctx); err != nil {
		d.fail(ctx, id, "", err, logger)
		return
	}
	defer d.limiter.Release()

	started := d.now()
	workDir, err := os.MkdirTemp(d.workDir, "mailmerge-")
	if err != nil {
		d.fail(ctx, id, "", fmt.Errorf("create workspace: %w", err), logger)
		return
	}
	if _, err := d.store.Update(ctx, id, func(j *Job) error {
		j.Status = StatusRunning
		j.StartedAt = &started
		j.WorkDir = workDir
		return nil
	}); err != nil {
		d.fail(ctx, id, workDir, err, logger)
		return
	}
	logger.Info("merge job started", "workspace", workDir)

	var (
		res   result
		stats mailmerge.Stats
	)
	err = func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in merge job", "panic", r)
				err = mailmerge.RecoverError(r)
			}
		}()
		res, stats, err = d.execute(ctx, id, p, workDir, started)
		return err
	}()
	if err != nil {
		d.fail(ctx, id, workDir, err, logger)
		return
	}

	finished := d.now()
	if _, err := d.store.Update(ctx, id, func(j *Job) error {
		j.Status = StatusSucceeded
		j.Completed = j.Total
		j.ResultName = res.name
		j.ResultPath = res.path
		j.Message = fmt.Sprintf("%d document(s) generated", res.documents)
		j.FinishedAt = &finished
		return nil
	}); err != nil {
		d.fail(ctx, id, workDir, err, logger)
		return
	}

	logger.Info("merge job finished",
		"result", res.name,
		"documents", res.documents,
		"replaced", stats.Replaced,
		"missing", stats.Missing,
		"unresolved", stats.Unresolved,
		"duration_ms", finished.Sub(started).Milliseconds(),
	)
}

type result struct {
	name      string
	path      string
	documents int
}

// execute processes templates and records strictly in order, keeping at
// most one populated document per template in memory besides the composed
// one.
func (d *Driver) execute(ctx context.Context, id string, p *plan, dir string, started time.Time) (result, mailmerge.Stats, error) {
	var (
		stats   mailmerge.Stats
		entries []archiveEntry
		names   = nameSet{}
		date    = DateStamp(started, d.location)
	)

	save := func(doc *mailmerge.Document, name string) error {
		name = names.unique(name)
		path := filepath.Join(dir, name)
		if err := doc.Save(path); err != nil {
			return err
		}
		entries = append(entries, archiveEntry{name: name, path: path})
		return nil
	}

	for _, t := range p.templates {
		if p.mode == ModeSeparate {
			for _, rec := range p.records {
				doc, s := d.engine.MergeWith(t, p.registry, rec)
				stats.Add(s)
				if err := save(doc, SeparateName(t.Stem(), rec.Row())); err != nil {
					return result{}, stats, mailmerge.WithContext(err, "save", map[string]any{"template": t.Name(), "row": rec.Row()})
				}
				d.advance(ctx, id)
			}
			d.advance(ctx, id)
			continue
		}

		var composer *mailmerge.Composer
		for _, rec := range p.records {
			doc, s := d.engine.MergeWith(t, p.registry, rec)
			stats.Add(s)
			if composer == nil {
				composer = d.engine.NewComposer(doc)
			} else if err := composer.Append(doc); err != nil {
				return result{}, stats, mailmerge.WithContext(err, "compose", map[string]any{"template": t.Name(), "row": rec.Row()})
			}
			d.advance(ctx, id)
		}
		if composer == nil {
			return result{}, stats, mailmerge.WithContext(mailmerge.ErrNoDocuments, "compose", map[string]any{"template": t.Name()})
		}
		if err := save(composer.Document(), CombinedName(date, p.window, ShortCode(t.Stem()))); err != nil {
			return result{}, stats, mailmerge.WithContext(err, "save", map[string]any{"template": t.Name()})
		}
		d.advance(ctx, id)
	}

	if p.mode == ModeCombined && len(entries) == 1 {
		return result{name: entries[0].name, path: entries[0].path, documents: 1}, stats, nil
	}

	name := ArchiveName(date, p.window)
	path := filepath.Join(dir, name)
	if err := writeArchive(path, entries, started); err != nil {
		return result{}, stats, fmt.Errorf("write archive: %w", err)
	}
	return result{name: name, path: path, documents: len(entries)}, stats, nil
}

// advance records one finished step. A store failure only costs progress
// accuracy, so it is logged rather than failing the job.
func (d *Driver) advance(ctx context.Context, id string) {
	if _, err := d.store.Update(ctx, id, func(j *Job) error {
		j.Advance(1)
		return nil
	}); err != nil {
		d.logger.Warn("progress update failed", "job_id", id, "error", err)
	}
}

func (d *Driver) fail(ctx context.Context, id, workDir string, cause error, logger *slog.Logger) {
	if workDir != "" {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove workspace", "workspace", workDir, "error", err)
		}
	}
	finished := d.now()
	if _, err := d.store.Update(ctx, id, func(j *Job) error {
		j.Status = StatusFailed
		j.Message = cause.Error()
		j.ResultName = ""
		j.ResultPath = ""
		j.WorkDir = ""
		j.FinishedAt = &finished
		return nil
	}); err != nil {
		logger.Error("failed to record job failure", "error", err)
	}
	logger.Error("merge job failed", "error", cause)
}

// Get returns the current state of a job.
func (d *Driver) Get(ctx context.Context, id string) (*Job, error) {
	return d.store.Get(ctx, id)
}

// Progress returns the polling view of a job.
func (d *Driver) Progress(ctx context.Context, id string) (Progress, error) {
	j, err := d.store.Get(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return j.Snapshot(d.now()), nil
}

// Result returns the download name and path of a finished job.
func (d *Driver) Result(ctx context.Context, id string) (name, path string, err error) {
	j, err := d.store.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if j.Status != StatusSucceeded || j.ResultPath == "" {
		return "", "", ErrNotReady
	}
	if _, err := os.Stat(j.ResultPath); err != nil {
		return "", "", ErrJobNotFound
	}
	return j.ResultName, j.ResultPath, nil
}

// Cleanup removes finished jobs older than the retention period together
// with their workspaces.
func (d *Driver) Cleanup(ctx context.Context) (int, error) {
	expired, err := d.store.Expired(ctx, d.now().Add(-d.retention))
	if err != nil {
		return 0, err
	}
	errs := mailmerge.NewMultiError()
	removed := 0
	for _, j := range expired {
		if j.WorkDir != "" {
			if err := os.RemoveAll(j.WorkDir); err != nil {
				errs.Add(err)
				continue
			}
		}
		if err := d.store.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			errs.Add(err)
			continue
		}
		removed++
	}
	return removed, errs.Err()
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (d *Driver) StartJanitor(ctx context.Context, interval time.Duration) {
	d.logger.Info("job janitor started", "interval", interval, "retention", d.retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("job janitor stopped")
			return
		case <-ticker.C:
			n, err := d.Cleanup(ctx)
			if err != nil {
				d.logger.Warn("job cleanup incomplete", "removed", n, "error", err)
			} else if n > 0 {
				d.logger.Info("expired jobs removed", "removed", n)
			}
		}
	}
}

// Wait blocks until every submitted job has finished.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones until ctx is
// done.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
