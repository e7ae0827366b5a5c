package service

import (
	"sync"
	"time"

	"github.com/okian/skillboard/internal/domain/model"
)

const defaultJobRetention = 1000

// jobRegistry keeps the status of recent jobs. Finished jobs beyond the
// retention limit are forgotten oldest first.
type jobRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*model.JobStatus
	order  []string
	retain int
}

func newJobRegistry(retain int) *jobRegistry {
	if retain <= 0 {
		retain = defaultJobRetention
	}
	return &jobRegistry{jobs: make(map[string]*model.JobStatus), retain: retain}
}

func (r *jobRegistry) add(id string, kind model.JobKind, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = &model.JobStatus{ID: id, Kind: kind, State: model.JobPending, EnqueuedAt: now}
	r.order = append(r.order, id)
	r.trim()
}

// addExclusive registers id unless a job of the same kind is pending or
// running. It reports whether id was added.
func (r *jobRegistry) addExclusive(id string, kind model.JobKind, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked(kind) {
		return false
	}
	r.jobs[id] = &model.JobStatus{ID: id, Kind: kind, State: model.JobPending, EnqueuedAt: now}
	r.order = append(r.order, id)
	r.trim()
	return true
}

func (r *jobRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *jobRegistry) running(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		j.State = model.JobRunning
	}
}

func (r *jobRegistry) finish(id string, detail string, err error, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	j.State = model.JobDone
	j.Detail = detail
	j.FinishedAt = now
	if err != nil {
		j.State = model.JobFailed
		j.Error = err.Error()
	}
}

func (r *jobRegistry) get(id string) (model.JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return model.JobStatus{}, false
	}
	return *j, true
}

func (r *jobRegistry) active(kind model.JobKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(kind)
}

// activeLocked must be called with mu held.
func (r *jobRegistry) activeLocked(kind model.JobKind) bool {
	for _, j := range r.jobs {
		if j.Kind == kind && (j.State == model.JobPending || j.State == model.JobRunning) {
			return true
		}
	}
	return false
}

// trim must be called with mu held.
func (r *jobRegistry) trim() {
	for len(r.order) > r.retain {
		dropped := false
		for i, id := range r.order {
			j := r.jobs[id]
			if j == nil || j.State == model.JobDone || j.State == model.JobFailed {
				delete(r.jobs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}
