package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/benjaminschreck/go-mailmerge/internal/job"
	"github.com/benjaminschreck/go-mailmerge/internal/logging"
	"github.com/benjaminschreck/go-mailmerge/internal/sheet"
	"github.com/benjaminschreck/go-mailmerge/pkg/mailmerge"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// SubmitResponse is returned for an accepted merge request.
type SubmitResponse struct {
	JobID       string     `json:"job_id"`
	Status      job.Status `json:"status"`
	Total       int        `json:"total"`
	ProgressURL string     `json:"progress_url"`
}

// handleIndex renders the upload page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := IndexPage(PageData{
		FirstDataRow: s.cfg.Merge.HeaderRow + 1,
		MaxRows:      s.cfg.Merge.MaxRows,
		DefaultMode:  strings.ToLower(s.cfg.Merge.Mode),
	})
	if err := page.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}

// handleHealth reports liveness and worker usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": s.driver.Limiter().Active(),
		"max_jobs":    s.driver.Limiter().Max(),
	})
}

// handleMerge validates an upload and starts a merge job.
//
// Form fields: excel (xlsx file), word_templates (one or more docx files),
// row_start and row_end (1-based spreadsheet rows, inclusive) and an
// optional mode (combined or separate).
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		verr := &mailmerge.ValidationError{}
		verr.Add("form", "upload too large or not a multipart form")
		respondError(w, r, verr)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := s.parseMergeRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	j, err := s.driver.Submit(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", j.ID).Info("merge request accepted",
		"templates", len(req.Templates),
		"rows", req.Window.String(),
	)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:       j.ID,
		Status:      j.Status,
		Total:       j.Total,
		ProgressURL: "/progress/" + j.ID,
	})
}

// parseMergeRequest reads the multipart form into a job request. Form
// problems are collected into one ValidationError.
func (s *Server) parseMergeRequest(r *http.Request) (job.Request, error) {
	verr := &mailmerge.ValidationError{}
	var req job.Request

	req.Window.Start = formInt(r, "row_start", verr)
	req.Window.End = formInt(r, "row_end", verr)

	if raw := r.FormValue("mode"); raw != "" {
		mode, err := job.ParseMode(raw)
		if err != nil {
			verr.Add("mode", "must be %q or %q", job.ModeCombined, job.ModeSeparate)
		}
		req.Mode = mode
	}

	files := r.MultipartForm.File
	if len(files["excel"]) == 0 {
		verr.Add("excel", "a spreadsheet is required")
	} else {
		sh, err := s.readSheet(files["excel"][0])
		var sheetErr *mailmerge.ValidationError
		switch {
		case errors.As(err, &sheetErr):
			verr.Issues = append(verr.Issues, sheetErr.Issues...)
		case err != nil:
			verr.Add("excel", "%s could not be read as an .xlsx workbook", filepath.Base(files["excel"][0].Filename))
		default:
			req.Sheet = sh
		}
	}

	for _, fh := range files["word_templates"] {
		data, err := readPart(fh)
		if err != nil {
			return req, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		req.Templates = append(req.Templates, job.Template{Name: filepath.Base(fh.Filename), Data: data})
	}
	if len(req.Templates) == 0 {
		verr.Add("word_templates", "at least one template is required")
	}

	return req, verr.Err()
}

func (s *Server) readSheet(fh *multipart.FileHeader) (*sheet.Sheet, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sheet.Read(f, sheet.Options{Sheet: s.cfg.Merge.Sheet, HeaderRow: s.cfg.Merge.HeaderRow})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formInt(r *http.Request, name string, verr *mailmerge.ValidationError) int {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		verr.Add(name, "is required")
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(name, "%q is not a row number", raw)
		return 0
	}
	return n
}

// handleProgress returns the polling view of a job.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	p, err := s.driver.Progress(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if p.Download {
		p.DownloadURL = "/download/" + id
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, p)
}

// handleDownload serves the result of a finished job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	name, path, err := s.driver.Result(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, r, job.ErrJobNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
