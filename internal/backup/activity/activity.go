// Package activity turns the source activity feed into destination actions
// for an incremental run.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/backup/owner"
	"github.com/dl-alexandre/docdr/internal/backup/reconcile"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// Update is the consolidated state of one resource over a batch of events
type Update struct {
	ResourceID string
	Kind       types.ResourceKind
	Type       types.ActivityType
	OwnerID    string
	Timestamp  time.Time
	// OldFolderIDs lists every folder the resource was moved out of, in
	// feed order, whichever event was kept.
	OldFolderIDs []string
}

// Consolidate keeps the latest event per resource. Ties go to the event seen
// last. Updates come back in the order their resource first appeared.
func Consolidate(events []types.ActivityEvent) (documents, folders []Update) {
	docIndex := make(map[string]int)
	folderIndex := make(map[string]int)

	for _, ev := range events {
		list, index := &documents, docIndex
		if ev.Kind == types.KindFolder {
			list, index = &folders, folderIndex
		}

		i, ok := index[ev.ResourceID]
		if !ok {
			i = len(*list)
			index[ev.ResourceID] = i
			*list = append(*list, Update{ResourceID: ev.ResourceID, Kind: ev.Kind})
		}
		u := &(*list)[i]
		if !ok || !ev.Timestamp.Before(u.Timestamp) {
			u.Type = ev.Type
			u.OwnerID = ev.OwnerID
			u.Timestamp = ev.Timestamp
		}
		if ev.Type.IsMove() && ev.OriginalParentID != "" {
			u.OldFolderIDs = append(u.OldFolderIDs, ev.OriginalParentID)
		}
	}
	return documents, folders
}

// Report describes one consolidation pass
type Report struct {
	Events    int `json:"events"`
	Documents int `json:"documents"`
	Folders   int `json:"folders"`
	Actions   int `json:"actions"`
	// Dropped counts updates whose owner could not be found
	Dropped int `json:"dropped"`
	// Failures counts updates that could not be planned
	Failures int `json:"failures"`
	// Truncated counts actions left out once the limit was reached, plus
	// the updates never planned because of it
	Truncated int `json:"truncated"`
}

type Option func(*Consolidator)

func WithWorkers(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLimit caps the number of actions one pass emits
func WithLimit(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.limit = n
		}
	}
}

func WithDequeueTimeout(d time.Duration) Option {
	return func(c *Consolidator) {
		c.dequeueTimeout = d
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Consolidator) {
		c.logger = logging.OrNoOp(l)
	}
}

// Consolidator plans the actions for the changes reported since a cutoff
type Consolidator struct {
	src            source.Service
	owners         *owner.Resolver
	reconciler     *reconcile.Reconciler
	workers        int
	limit          int
	dequeueTimeout time.Duration
	logger         logging.Logger
}

func New(src source.Service, owners *owner.Resolver, reconciler *reconcile.Reconciler, opts ...Option) *Consolidator {
	c := &Consolidator{
		src:        src,
		owners:     owners,
		reconciler: reconciler,
		workers:    utils.DefaultConsolidateWorkers,
		limit:      utils.DefaultActivityActionLimit,
		logger:     logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type planned struct {
	actions []types.Action
	dropped bool
	failed  bool
}

// Consolidate reads the feed from since, plans the updates on a worker pool
// and puts the resulting actions on out, document actions first. Planning
// stops once the action limit is reached.
func (c *Consolidator) Consolidate(ctx context.Context, since time.Time, out *pool.Queue[types.Action]) (Report, error) {
	events, err := c.src.ListActivities(ctx, since, types.ActionableActivityTypes)
	if err != nil {
		return Report{}, fmt.Errorf("list activities since %s: %w", since.Format(time.RFC3339), err)
	}
	documents, folders := Consolidate(events)
	updates := append(documents, folders...)

	report := Report{
		Events:    len(events),
		Documents: len(documents),
		Folders:   len(folders),
	}
	c.logger.Info("Consolidated activity",
		logging.F("since", since.Format(time.RFC3339)),
		logging.F("events", len(events)),
		logging.F("documents", len(documents)),
		logging.F("folders", len(folders)),
	)

	// Updates are planned in batches no larger than the remaining action
	// budget; once it is spent the rest are never sent to the source.
	next := 0
	for next < len(updates) && report.Actions < c.limit {
		batch := updates[next:min(len(updates), next+c.limit-report.Actions)]
		next += len(batch)

		for _, r := range c.planBatch(ctx, batch) {
			switch {
			case r.dropped:
				report.Dropped++
			case r.failed:
				report.Failures++
			}
			for _, a := range r.actions {
				if report.Actions >= c.limit {
					report.Truncated++
					continue
				}
				out.Put(a)
				report.Actions++
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	report.Truncated += len(updates) - next

	if report.Truncated > 0 {
		c.logger.Warn("Activity action limit reached",
			logging.F("limit", c.limit),
			logging.F("truncated", report.Truncated),
		)
	}
	return report, nil
}

func (c *Consolidator) planBatch(ctx context.Context, batch []Update) []planned {
	results := make([]planned, len(batch))
	plan := func(ctx context.Context, i int, _ *sync.Mutex) error {
		results[i] = c.plan(ctx, batch[i])
		return nil
	}
	p := pool.New("consolidate", pool.NewQueue[int](), c.workers, plan,
		pool.WithDequeueTimeout(c.dequeueTimeout),
		pool.WithLogger(c.logger),
	)
	p.Start(ctx)
	for i := range batch {
		p.Queue().Put(i)
	}
	p.Finish()
	return results
}

func (c *Consolidator) plan(ctx context.Context, u Update) planned {
	user, ok := c.resolveOwner(ctx, u)
	if !ok {
		return planned{dropped: true}
	}

	if u.Kind == types.KindFolder {
		if u.Type.RemovesFolder() {
			return planned{actions: []types.Action{types.RemoveFolderAction(user.Username, u.ResourceID)}}
		}
		return planned{actions: []types.Action{types.UnlistedFolderSummaryAction(user.Username, u.ResourceID)}}
	}

	actions, err := c.reconciler.ReconcileDocument(ctx, user.Username, u.ResourceID, "", u.OldFolderIDs)
	if err != nil {
		c.logger.Warn("Cannot reconcile document",
			logging.F("document", u.ResourceID),
			logging.F("error", err.Error()),
		)
		return planned{failed: true}
	}
	return planned{actions: actions}
}

// resolveOwner finds the user whose tree holds the resource. A resource the
// source no longer shows falls back to the feed's owner guess.
func (c *Consolidator) resolveOwner(ctx context.Context, u Update) (types.User, bool) {
	var (
		user types.User
		err  error
	)
	if u.Kind == types.KindFolder {
		user, err = c.owners.ByFolderID(ctx, u.ResourceID)
	} else {
		user, err = c.owners.ByDocumentID(ctx, u.ResourceID)
	}
	if err == nil {
		return user, true
	}

	if utils.IsUnreachable(err) {
		if user, ok := c.owners.ByUserID(u.OwnerID); ok {
			return user, true
		}
	}
	c.logger.Warn("Dropping update without owner",
		logging.F("resource", u.ResourceID),
		logging.F("kind", string(u.Kind)),
		logging.F("type", string(u.Type)),
		logging.F("error", err.Error()),
	)
	return types.User{}, false
}
