package web

import (
	"sync"
	"time"

	"video-pipeline/internal/domain/model"
)

// Download states of an explorer task.
const (
	downloadNone    = ""
	downloadQueued  = "queued"
	downloadRunning = "running"
	downloadDone    = "done"
	downloadFailed  = "failed"
)

// task is an explorer submission. The credential that submitted the job is
// needed to poll it and fetch its artifact.
type task struct {
	ID        string
	Cred      model.Credential
	Job       model.GenerationJob
	CreatedAt time.Time

	Download     string
	LocalPath    string
	DownloadErr  string
	DownloadedAt time.Time
}

// taskRegistry keeps explorer tasks in memory for the process lifetime.
type taskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*task
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*task)}
}

func (r *taskRegistry) put(cred model.Credential, job model.GenerationJob, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[job.ID] = &task{ID: job.ID, Cred: cred, Job: job, CreatedAt: now}
}

// get returns a copy.
func (r *taskRegistry) get(id string) (task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return task{}, false
	}
	return *t, true
}

func (r *taskRegistry) update(id string, fn func(t *task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if ok {
		fn(t)
	}
	return ok
}

// claimDownload moves a task into the queued state unless a download is
// already queued or running.
func (r *taskRegistry) claimDownload(id string) (task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Download == downloadQueued || t.Download == downloadRunning {
		return task{}, false
	}
	t.Download = downloadQueued
	t.DownloadErr = ""
	return *t, true
}

// evictBefore removes tasks created before cutoff. Tasks with a download in
// flight stay until it settles.
func (r *taskRegistry) evictBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.tasks {
		if t.Download == downloadQueued || t.Download == downloadRunning {
			continue
		}
		if t.CreatedAt.Before(cutoff) {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}
