// Package job runs merge jobs in the background and tracks their progress.
//
// A job covers every template times every requested record for one request.
// Requests are validated before a job exists; once submitted, a job runs to
// completion or failure in its own goroutine and reports progress through an
// injected Store that pollers read from.
package job

import (
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is the externally visible state of one merge job.
type Job struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Completed  int        `json:"completed"`
	Total      int        `json:"total"`
	Message    string     `json:"message,omitempty"`
	ResultName string     `json:"result_name,omitempty"`
	ResultPath string     `json:"-"`
	WorkDir    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares no pointers with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Advance adds n completed steps. Counters never decrease and never pass
// Total.
func (j *Job) Advance(n int) {
	if n <= 0 {
		return
	}
	j.Completed += n
	if j.Completed > j.Total {
		j.Completed = j.Total
	}
}

// Percent returns completion in whole percent.
func (j *Job) Percent() int {
	if j.Status == StatusSucceeded {
		return 100
	}
	if j.Total <= 0 {
		return 0
	}
	return j.Completed * 100 / j.Total
}

// Elapsed returns the running time so far, or the total running time of a
// finished job.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// ETA estimates the remaining time as elapsed / completed * remaining. The
// second result is false until at least one step has completed.
func (j *Job) ETA(now time.Time) (time.Duration, bool) {
	if j.Status.Terminal() {
		return 0, true
	}
	if j.StartedAt == nil || j.Completed == 0 {
		return 0, false
	}
	elapsed := j.Elapsed(now)
	remaining := j.Total - j.Completed
	return time.Duration(float64(elapsed) / float64(j.Completed) * float64(remaining)), true
}

// Progress is the polling view of a job.
type Progress struct {
	ID          string  `json:"id"`
	Status      Status  `json:"status"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
	Percent     int     `json:"percent"`
	Elapsed     float64 `json:"elapsed_seconds"`
	ETA         float64 `json:"eta_seconds"`
	ETAKnown    bool    `json:"eta_known"`
	Message     string  `json:"message,omitempty"`
	Download    bool    `json:"download_ready"`
	ResultName  string  `json:"result_name,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}

// Snapshot builds the polling view at now.
func (j *Job) Snapshot(now time.Time) Progress {
	eta, known := j.ETA(now)
	p := Progress{
		ID:        j.ID,
		Status:    j.Status,
		Completed: j.Completed,
		Total:     j.Total,
		Percent:   j.Percent(),
		Elapsed:   j.Elapsed(now).Seconds(),
		ETA:       eta.Seconds(),
		ETAKnown:  known,
		Message:   j.Message,
	}
	if j.Status == StatusSucceeded && j.ResultPath != "" {
		p.Download = true
		p.ResultName = j.ResultName
	}
	return p
}
