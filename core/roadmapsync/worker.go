// Package roadmapsync republishes the roadmaps affected by tech stack changes.
package roadmapsync

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/presence"
	"github.com/niat-ops/opsboard/core/roadmap"
	"github.com/niat-ops/opsboard/core/techstack"
)

const DefaultTimeout = 30 * time.Second

// Worker consumes tech stack changes and re-publishes every roadmap referencing the changed stack.
// Roadmaps are synced one at a time, each with its own deadline; a failure never stops the others.
// There is no locking: concurrent publishes of the same file are resolved by the last write.
type Worker struct {
	roadmaps roadmap.Service
	changes  <-chan techstack.Change
	notifier *presence.Notifier
	logger   core.Logger
	timeout  time.Duration
}

// NewWorker returns a worker reading from changes. notifier may be nil.
func NewWorker(roadmaps roadmap.Service, changes <-chan techstack.Change, notifier *presence.Notifier, logger core.Logger, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{roadmaps: roadmaps, changes: changes, notifier: notifier, logger: logger, timeout: timeout}
}

// Run processes changes until ctx is done or the change channel is closed.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("roadmap sync worker started")
	defer w.logger.Info("roadmap sync worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.changes:
			if !ok {
				return
			}
			w.Process(ctx, change)
		}
	}
}

// Process syncs every roadmap referencing the changed stack, by id or by its current or previous name.
func (w *Worker) Process(ctx context.Context, change techstack.Change) roadmap.Report {
	rep := roadmap.Report{Synced: []roadmap.SyncResult{}, Failed: []roadmap.SyncResult{}}

	affected, err := w.roadmaps.FindReferencing(ctx, change.TechStackID, change.Names()...)
	if err != nil {
		w.logger.Error(fmt.Sprintf("finding roadmaps referencing tech stack %s: %v", change.TechStackID, err), err)
		return rep
	}
	if len(affected) == 0 {
		return rep
	}

	fields := map[string]interface{}{
		"techStackId": change.TechStackID,
		"techStack":   change.Name,
		"reason":      change.Reason,
		"roadmaps":    len(affected),
	}
	w.logger.Info("syncing roadmaps", fields)

	for _, r := range affected {
		if ctx.Err() != nil {
			break
		}
		if change.PreviousName != "" && change.Reason != techstack.ReasonDeleted {
			r.Content, _ = roadmap.Relink(r.Content, change.PreviousName, roadmap.TechStackRef{ID: change.TechStackID, Name: change.Name})
		}
		res := w.syncOne(ctx, r)
		rep.Add(res)
		w.notify(change.ChangedBy, res)
	}

	w.logger.Info(fmt.Sprintf("roadmap sync done: %d synced, %d failed", len(rep.Synced), len(rep.Failed)), fields)
	return rep
}

func (w *Worker) syncOne(ctx context.Context, r roadmap.Roadmap) (res roadmap.SyncResult) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Errorf("panic: %v", rec)
			res = roadmap.SyncResult{RoadmapID: r.ID, CompanyName: r.CompanyName, Role: r.Role(), Filename: r.Filename, Error: err.Error()}
			w.logger.Error(fmt.Sprintf("syncing roadmap %s: %v", r.ID, err), err)
		}
	}()

	res = w.roadmaps.Sync(ctx, r)
	if !res.OK() {
		w.logger.Error(fmt.Sprintf("syncing roadmap %s (%s): %s", r.ID, r.Filename, res.Error), map[string]interface{}{
			"roadmapId":   r.ID,
			"companyName": r.CompanyName,
			"role":        r.Role(),
		})
	}
	return res
}

func (w *Worker) notify(userID string, res roadmap.SyncResult) {
	if w.notifier == nil || userID == "" {
		return
	}
	n := presence.Notification{
		Kind:    presence.KindSyncSucceeded,
		Message: fmt.Sprintf("%s %s roadmap updated", res.CompanyName, res.Role),
		Data:    res,
	}
	if !res.OK() {
		n.Kind = presence.KindSyncFailed
		n.Message = fmt.Sprintf("%s %s roadmap could not be updated: %s", res.CompanyName, res.Role, res.Error)
	}
	w.notifier.Notify(userID, n)
}
