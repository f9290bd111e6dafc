// Package ledger keeps the process-lifetime history of submitted jobs.
// There is deliberately no database behind it: assets are durable at the
// storage provider, history is not.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"imageforge/internal/domain"
)

// SortOrder selects a read-side ordering.
type SortOrder string

const (
	SortNewestFirst SortOrder = "newest"
	SortOldestFirst SortOrder = "oldest"
	SortByModel     SortOrder = "model"
)

// Query filters and orders a history read. Empty filters match everything.
type Query struct {
	Model  string
	Status domain.JobStatus
	Sort   SortOrder
}

// Mutation is the write applied on a poll transition. A zero Status leaves
// the state machine untouched so terminal entries can still accrue archived
// assets.
type Mutation struct {
	Status        domain.JobStatus
	ResultURLs    []string
	FailureReason string
	CostTimeMS    int64
	CompletedAt   time.Time
	Assets        []domain.StoredAsset
}

// Ledger is the append-only in-memory job history. Safe for concurrent use;
// the HTTP host serves requests in parallel.
type Ledger struct {
	mu      sync.RWMutex
	entries []domain.Job
	byID    map[string]int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{byID: make(map[string]int)}
}

// Record appends a job. Resubmitting an identical prompt creates a new,
// independent entry; there is no dedup.
func (l *Ledger) Record(job domain.Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, cloneJob(job))
	l.byID[job.ID] = len(l.entries) - 1
}

// Update applies a mutation to the job. A job reaches at most one terminal
// status exactly once: transitions out of a terminal state are rejected.
func (l *Ledger) Update(jobID string, m Mutation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byID[jobID]
	if !ok {
		return fmt.Errorf("ledger: job %s: %w", jobID, domain.ErrNotFound)
	}
	job := &l.entries[idx]
	if m.Status != "" {
		if job.Status.Terminal() {
			return fmt.Errorf("ledger: job %s is already %s", jobID, job.Status)
		}
		job.Status = m.Status
		if m.Status.Terminal() {
			if m.CompletedAt.IsZero() {
				m.CompletedAt = time.Now()
			}
			job.CompletedAt = m.CompletedAt
		}
	}
	if len(m.ResultURLs) > 0 {
		job.ResultURLs = append([]string(nil), m.ResultURLs...)
	}
	if m.FailureReason != "" {
		job.FailureReason = m.FailureReason
	}
	if m.CostTimeMS > 0 {
		job.CostTimeMS = m.CostTimeMS
	}
	if len(m.Assets) > 0 {
		job.Archived = append(job.Archived, m.Assets...)
	}
	return nil
}

// Get returns a copy of the job with the given id.
func (l *Ledger) Get(jobID string) (domain.Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[jobID]
	if !ok {
		return domain.Job{}, false
	}
	return cloneJob(l.entries[idx]), true
}

// Jobs returns the entries matching q in the requested order. The result is
// a projection over copies; mutating it never touches the ledger.
func (l *Ledger) Jobs(q Query) []domain.Job {
	l.mu.RLock()
	jobs := make([]domain.Job, 0, len(l.entries))
	for _, job := range l.entries {
		if q.Model != "" && job.Model != q.Model {
			continue
		}
		if q.Status != "" && job.Status != q.Status {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	l.mu.RUnlock()

	switch q.Sort {
	case SortOldestFirst:
		sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt) })
	case SortByModel:
		c := collate.New(language.Und)
		sort.SliceStable(jobs, func(i, j int) bool { return c.CompareString(jobs[i].Model, jobs[j].Model) < 0 })
	default:
		sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt) })
	}
	return jobs
}

// Len reports the number of recorded jobs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func cloneJob(job domain.Job) domain.Job {
	out := job
	if job.ResultURLs != nil {
		out.ResultURLs = append([]string(nil), job.ResultURLs...)
	}
	if job.Archived != nil {
		out.Archived = append([]domain.StoredAsset(nil), job.Archived...)
	}
	if job.Input != nil {
		out.Input = make(map[string]any, len(job.Input))
		for k, v := range job.Input {
			out.Input[k] = v
		}
	}
	return out
}
