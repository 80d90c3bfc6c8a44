// Package walker enumerates a folder tree of the source service with a pool
// of workers and hands one snapshot per non-empty folder downstream.
package walker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

type config struct {
	workers        int
	dequeueTimeout time.Duration
	logger         logging.Logger
}

// Option configures a Walker
type Option func(*config)

// WithWorkers sets the number of concurrent listings
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithDequeueTimeout sets the idle timeout of the walk workers
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dequeueTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(c *config) {
		c.logger = logging.OrNoOp(l)
	}
}

// Walker walks folder trees. Folders are taken most recent first, so a
// single worker walks depth-first.
type Walker struct {
	src        source.Service
	downstream *pool.Queue[types.FolderSnapshot]
	pool       *pool.Pool[types.FolderRef]
	logger     logging.Logger

	// guarded by the pool lock
	visited map[string]bool
	empty   map[string]bool

	started bool
}

// New returns a walker emitting into downstream
func New(src source.Service, downstream *pool.Queue[types.FolderSnapshot], opts ...Option) *Walker {
	cfg := config{
		workers: utils.DefaultWalkWorkers,
		logger:  logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Walker{
		src:        src,
		downstream: downstream,
		logger:     cfg.logger,
		visited:    make(map[string]bool),
		empty:      make(map[string]bool),
	}
	w.pool = pool.New("walk", pool.NewLIFOQueue[types.FolderRef](), cfg.workers, w.visit,
		pool.WithDequeueTimeout(cfg.dequeueTimeout),
		pool.WithLogger(cfg.logger),
	)
	return w
}

// StartWalk starts the workers if needed and walks the tree under
// rootFolderID. It can be called for several roots before FinishWalk.
// A root that is not active is not walked.
func (w *Walker) StartWalk(ctx context.Context, rootFolderID string) error {
	root, err := w.src.GetFolder(ctx, rootFolderID)
	if err != nil {
		return fmt.Errorf("walk root %s: %w", rootFolderID, err)
	}
	w.pool.Start(ctx)
	w.started = true

	if !root.State.IsActive() {
		w.logger.Info("Root folder is not active, nothing to walk",
			logging.F("folder", root.ID),
			logging.F("state", string(root.State)),
		)
		return nil
	}
	w.pool.Queue().Put(root)
	return nil
}

// FinishWalk waits until every reachable folder has been listed and stops
// the workers. The downstream queue is left open.
func (w *Walker) FinishWalk() {
	if !w.started {
		return
	}
	w.pool.Finish()
}

// Visited returns the ids of every folder the walk listed
func (w *Walker) Visited() map[string]bool {
	return copySet(w.visited)
}

// Empty returns the visited folders that had no active children or had
// vanished by the time they were listed
func (w *Walker) Empty() map[string]bool {
	return copySet(w.empty)
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for id := range in {
		out[id] = true
	}
	return out
}

// Stats returns the walk pool counters
func (w *Walker) Stats() pool.Stats {
	return w.pool.Stats()
}

func (w *Walker) visit(ctx context.Context, folder types.FolderRef, lock *sync.Mutex) error {
	lock.Lock()
	if w.visited[folder.ID] {
		lock.Unlock()
		return nil
	}
	w.visited[folder.ID] = true
	lock.Unlock()

	contents, err := w.src.ListFolder(ctx, folder.ID)
	if err != nil {
		if utils.IsUnreachable(err) {
			// gone since its parent was listed
			w.logger.Debug("Folder vanished during walk", logging.F("folder", folder.ID))
			lock.Lock()
			w.empty[folder.ID] = true
			lock.Unlock()
			return nil
		}
		return fmt.Errorf("list folder %s: %w", folder.ID, err)
	}

	if contents.IsEmpty() {
		lock.Lock()
		w.empty[folder.ID] = true
		lock.Unlock()
		return nil
	}

	w.downstream.Put(types.FolderSnapshot{
		Folder:         folder,
		ChildFolders:   contents.Folders,
		ChildDocuments: contents.Documents,
	})
	for _, child := range contents.Folders {
		if child.State.IsActive() {
			w.pool.Queue().Put(child)
		}
	}
	return nil
}
