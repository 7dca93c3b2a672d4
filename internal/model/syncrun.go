package model

import "time"

// SyncRun collects the outcome of one sync pass. It is not safe for
// concurrent use; a pass owns its run exclusively.
type SyncRun struct {
	ID      string
	Session string
	Started time.Time

	// Failed maps destination name to the files it rejected, in walk order.
	Failed map[string][]string

	succeeded map[string]struct{}
	order     []string
}

// NewSyncRun creates an empty run.
func NewSyncRun(id string, started time.Time) *SyncRun {
	return &SyncRun{
		ID:        id,
		Session:   SessionName(started),
		Started:   started,
		Failed:    make(map[string][]string),
		succeeded: make(map[string]struct{}),
	}
}

// RecordFailure notes that destination rejected path.
func (r *SyncRun) RecordFailure(destination, path string) {
	r.Failed[destination] = append(r.Failed[destination], path)
}

// RecordSuccess notes that at least one destination accepted path.
func (r *SyncRun) RecordSuccess(path string) {
	if _, ok := r.succeeded[path]; ok {
		return
	}
	r.succeeded[path] = struct{}{}
	r.order = append(r.order, path)
}

// Succeeded reports whether path was accepted by any destination.
func (r *SyncRun) Succeeded(path string) bool {
	_, ok := r.succeeded[path]
	return ok
}

// Delivered returns the accepted paths in first-success order.
func (r *SyncRun) Delivered() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
