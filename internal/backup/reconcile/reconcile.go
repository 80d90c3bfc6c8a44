// Package reconcile compares source folders with what the blob store holds
// and plans the actions that bring the store up to date.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// Diff plans the actions for one folder given the objects listed under its
// prefix. Deletes come first, then copies, each sorted by document id; a
// folder summary rewrite, when needed, comes last.
func Diff(username string, snap types.FolderSnapshot, listing []types.DestinationObject) []types.Action {
	folderID := snap.Folder.ID

	docs := make(map[string]types.DocumentRef, len(snap.ChildDocuments))
	for _, d := range snap.ChildDocuments {
		docs[d.ID] = d
	}

	stored := make(map[string]types.DestinationObject, len(listing))
	var summary *types.DestinationObject
	for i := range listing {
		name := listing[i].Name()
		switch {
		case name == layout.FolderInfoName:
			summary = &listing[i]
		case layout.IsReserved(name), name == "":
		default:
			stored[name] = listing[i]
		}
	}

	var deletes, copies []string
	for id := range stored {
		if _, ok := docs[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	for id, doc := range docs {
		obj, ok := stored[id]
		if !ok || NeedsCopy(doc, obj) {
			copies = append(copies, id)
		}
	}
	sort.Strings(deletes)
	sort.Strings(copies)

	actions := make([]types.Action, 0, len(deletes)+len(copies)+1)
	for _, id := range deletes {
		actions = append(actions, types.DeleteAction(username, folderID, id))
	}
	for _, id := range copies {
		actions = append(actions, types.CopyAction(username, folderID, id, docs[id].LatestVersionID))
	}

	if needsSummary(snap, summary, len(actions) > 0) {
		actions = append(actions, types.FolderSummaryAction(username, snap.Folder, snap.ChildFolders, snap.ChildDocuments))
	}
	return actions
}

// NeedsCopy reports whether the stored object is behind the document: the
// sizes differ or the document changed after the object was written. An
// unknown document size only compares times.
func NeedsCopy(doc types.DocumentRef, obj types.DestinationObject) bool {
	if doc.Size >= 0 && doc.Size != obj.Size {
		return true
	}
	return doc.ModifiedAt.After(obj.LastModified)
}

func needsSummary(snap types.FolderSnapshot, summary *types.DestinationObject, changed bool) bool {
	if changed {
		return true
	}
	hasChildren := len(snap.ChildFolders) > 0 || len(snap.ChildDocuments) > 0
	if summary == nil {
		return hasChildren
	}
	latest := snap.Folder.ModifiedAt
	for _, f := range snap.ChildFolders {
		if f.ModifiedAt.After(latest) {
			latest = f.ModifiedAt
		}
	}
	return !summary.LastModified.After(latest)
}

// Reconciler plans actions against a live blob store
type Reconciler struct {
	src    source.Service
	store  blobstore.Store
	layout layout.Layout
	logger logging.Logger
}

// New returns a Reconciler
func New(src source.Service, store blobstore.Store, lay layout.Layout, logger logging.Logger) *Reconciler {
	return &Reconciler{
		src:    src,
		store:  store,
		layout: lay,
		logger: logging.OrNoOp(logger),
	}
}

// Plan lists the folder prefix of snap and diffs it
func (r *Reconciler) Plan(ctx context.Context, username string, snap types.FolderSnapshot) ([]types.Action, error) {
	listing, err := r.store.List(ctx, r.layout.FolderPrefix(username, snap.Folder.ID))
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", snap.Folder.ID, err)
	}
	actions := Diff(username, snap, listing)
	if len(actions) > 0 {
		r.logger.Info("Planned folder actions",
			logging.F("user", username),
			logging.F("folder", snap.Folder.ID),
			logging.F("actions", len(actions)),
		)
	} else {
		r.logger.Debug("Folder in sync", logging.F("user", username), logging.F("folder", snap.Folder.ID))
	}
	return actions, nil
}

// ReconcileDocument plans the actions for one document without listing its
// folder. folderHint, when set, is where the document is expected to be
// stored. Copies left in oldFolderIDs other than the current folder are
// deleted.
func (r *Reconciler) ReconcileDocument(ctx context.Context, username, documentID, folderHint string, oldFolderIDs []string) ([]types.Action, error) {
	doc, err := r.src.GetDocument(ctx, documentID)
	if err != nil {
		if !utils.IsUnreachable(err) {
			return nil, fmt.Errorf("get document %s: %w", documentID, err)
		}
		actions := staleCopies(username, documentID, "", oldFolderIDs)
		if folderHint == "" {
			r.logger.Debug("Unreachable document has no known location",
				logging.F("document", documentID),
				logging.F("error", err.Error()),
			)
			return actions, nil
		}
		return append(actions, types.DeleteAction(username, folderHint, documentID)), nil
	}

	folderID := folderHint
	if folderID == "" {
		folderID = doc.ParentFolderID
	}
	actions := staleCopies(username, documentID, folderID, oldFolderIDs)

	if !doc.State.IsActive() {
		// trashed items keep their parent
		return append(actions, types.DeleteAction(username, folderID, documentID)), nil
	}

	obj, ok, err := blobstore.HeadIfExists(ctx, r.store, r.layout.DocumentKey(username, folderID, documentID))
	if err != nil {
		return nil, fmt.Errorf("head document %s: %w", documentID, err)
	}
	if !ok || NeedsCopy(doc, obj) {
		actions = append(actions, types.CopyAction(username, folderID, documentID, doc.LatestVersionID))
	}
	return actions, nil
}

func staleCopies(username, documentID, currentFolderID string, oldFolderIDs []string) []types.Action {
	var actions []types.Action
	seen := make(map[string]bool, len(oldFolderIDs))
	for _, f := range oldFolderIDs {
		if f == "" || f == currentFolderID || seen[f] {
			continue
		}
		seen[f] = true
		actions = append(actions, types.DeleteAction(username, f, documentID))
	}
	return actions
}

// Stage is the pool turning folder snapshots of one user into actions
type Stage struct {
	*pool.Pool[types.FolderSnapshot]
}

// NewStage wires a pool that plans each snapshot from snapshots and puts the
// resulting actions on actions. The caller starts and finishes it.
func NewStage(r *Reconciler, username string, snapshots *pool.Queue[types.FolderSnapshot], actions *pool.Queue[types.Action], workers int, dequeueTimeout time.Duration) *Stage {
	if workers <= 0 {
		workers = utils.DefaultReconcileWorkers
	}
	plan := func(ctx context.Context, snap types.FolderSnapshot, _ *sync.Mutex) error {
		planned, err := r.Plan(ctx, username, snap)
		if err != nil {
			return err
		}
		for _, a := range planned {
			actions.Put(a)
		}
		return nil
	}
	return &Stage{pool.New("reconcile", snapshots, workers, plan,
		pool.WithDequeueTimeout(dequeueTimeout),
		pool.WithLogger(r.logger),
	)}
}
