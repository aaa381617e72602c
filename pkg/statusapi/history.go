package statusapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lcdprint-go/pkg/header"
	"lcdprint-go/pkg/session"
)

// HistorySize is how many jobs the history keeps.
const HistorySize = 16

// Job is one entry of the print history.
type Job struct {
	ID            string     `json:"job_id"`
	Filename      string     `json:"filename"`
	Flavor        string     `json:"flavor"`
	Status        string     `json:"status"` // "in_progress" or a session outcome
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	TotalDuration float64    `json:"total_duration"`
}

// JobTotals aggregates the jobs still in the history.
type JobTotals struct {
	TotalJobs  int     `json:"total_jobs"`
	Completed  int     `json:"completed"`
	TotalTime  float64 `json:"total_time"`
	LongestJob float64 `json:"longest_job"`
}

// History is an in-memory ring of recent jobs, newest first. It observes
// the session for job start and end.
type History struct {
	mu     sync.RWMutex
	jobs   []*Job
	active *Job
	now    func() time.Time
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{now: time.Now}
}

// JobStarted records a new in-progress job.
func (h *History) JobStarted(name string, flavor header.Flavor) {
	h.mu.Lock()
	defer h.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Filename:  name,
		Flavor:    flavor.String(),
		Status:    "in_progress",
		StartTime: h.now(),
	}
	h.jobs = append([]*Job{job}, h.jobs...)
	if len(h.jobs) > HistorySize {
		h.jobs = h.jobs[:HistorySize]
	}
	h.active = job
}

// JobFinished closes the active job with its outcome.
func (h *History) JobFinished(_ string, outcome session.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == nil {
		return
	}
	end := h.now()
	h.active.EndTime = &end
	h.active.Status = outcome.String()
	h.active.TotalDuration = end.Sub(h.active.StartTime).Seconds()
	h.active = nil
}

func (h *History) PhaseChanged(session.Phase, session.Phase) {}
func (h *History) CacheLookup(string, bool)                  {}
func (h *History) Deferred(string)                           {}

// Jobs returns copies of the recorded jobs, newest first.
func (h *History) Jobs() []Job {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Job, len(h.jobs))
	for i, j := range h.jobs {
		out[i] = *j
	}
	return out
}

// Job looks a job up by id.
func (h *History) Job(id string) (Job, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, j := range h.jobs {
		if j.ID == id {
			return *j, true
		}
	}
	return Job{}, false
}

// Totals summarizes the recorded jobs.
func (h *History) Totals() JobTotals {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var t JobTotals
	for _, j := range h.jobs {
		t.TotalJobs++
		if j.Status == session.OutcomeCompleted.String() {
			t.Completed++
		}
		t.TotalTime += j.TotalDuration
		if j.TotalDuration > t.LongestJob {
			t.LongestJob = j.TotalDuration
		}
	}
	return t
}

func (h *History) routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		jobs := h.Jobs()
		writeJSON(w, map[string]any{"count": len(jobs), "jobs": jobs})
	})
	r.Get("/totals", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"job_totals": h.Totals()})
	})
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := h.Job(chi.URLParam(r, "id"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, map[string]any{"job": job})
	})
}
