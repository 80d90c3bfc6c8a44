// Package restore rebuilds a local directory tree from what backups left in
// the blob store.
package restore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/metadata"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// FolderPlan is where one stored folder is restored
type FolderPlan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Path     string `json:"path"`
	// LostAndFound is set when the parent of the folder is unknown
	LostAndFound bool `json:"lostAndFound,omitempty"`
}

// Plan lists the folders of one user, every parent before its children
type Plan struct {
	Username string       `json:"username"`
	Target   string       `json:"target"`
	Folders  []FolderPlan `json:"folders"`
}

// Reconciler plans and runs restores against a blob store
type Reconciler struct {
	store  blobstore.Store
	layout layout.Layout
	opts   Options
	logger logging.Logger
}

func NewReconciler(store blobstore.Store, lay layout.Layout, opts Options, logger logging.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		layout: lay,
		opts:   opts.withDefaults(),
		logger: logging.OrNoOp(logger),
	}
}

type folderInfo struct {
	name     string
	parentID string
	known    bool
}

// PlanRestore maps every stored folder of username to a directory under
// target. The user root maps to target itself; a folder whose parent is not
// known goes under the lost and found directory.
func (r *Reconciler) PlanRestore(ctx context.Context, username, target string) (*Plan, error) {
	rootID, err := r.rootFolderID(ctx, username)
	if err != nil {
		return nil, err
	}
	ids, err := r.store.ListPrefixes(ctx, r.layout.UserPrefix(username))
	if err != nil {
		return nil, fmt.Errorf("list folders of %s: %w", username, err)
	}

	p := &planner{
		r:        r,
		plan:     &Plan{Username: username, Target: target},
		rootID:   rootID,
		lostDir:  filepath.Join(target, utils.LostAndFoundDir),
		stored:   make(map[string]bool, len(ids)),
		paths:    make(map[string]string),
		visiting: make(map[string]bool),
	}
	for _, id := range ids {
		p.stored[id] = true
	}
	for _, id := range ids {
		if err := p.visit(ctx, id); err != nil {
			return nil, err
		}
	}
	return p.plan, nil
}

func (r *Reconciler) rootFolderID(ctx context.Context, username string) (string, error) {
	obj, ok, err := blobstore.HeadIfExists(ctx, r.store, r.layout.UserInfoKey(username))
	if err != nil {
		return "", fmt.Errorf("read user info of %s: %w", username, err)
	}
	if !ok {
		r.logger.Warn("No user info, every folder restores by parent only", logging.F("user", username))
		return "", nil
	}
	rec, err := metadata.Decode(obj.Metadata)
	if err != nil {
		return "", fmt.Errorf("decode user info of %s: %w", username, err)
	}
	rootID, _ := rec.String(metadata.KeyRootFolderID)
	return rootID, nil
}

func (r *Reconciler) folderInfo(ctx context.Context, username, folderID string) (folderInfo, error) {
	obj, ok, err := blobstore.HeadIfExists(ctx, r.store, r.layout.FolderSummaryKey(username, folderID))
	if err != nil || !ok {
		return folderInfo{}, err
	}
	rec, err := metadata.Decode(obj.Metadata)
	if err != nil {
		return folderInfo{}, fmt.Errorf("decode summary of %s: %w", folderID, err)
	}
	info := folderInfo{known: true}
	info.name, _ = rec.String(metadata.KeyName)
	info.parentID, _ = rec.String(metadata.KeyParentFolderID)
	return info, nil
}

type planner struct {
	r        *Reconciler
	plan     *Plan
	rootID   string
	lostDir  string
	stored   map[string]bool
	paths    map[string]string
	visiting map[string]bool
}

// visit plans folderID after its ancestors. A folder met again while its
// own chain is being planned ends that chain in lost and found.
func (p *planner) visit(ctx context.Context, folderID string) error {
	if _, done := p.paths[folderID]; done || p.visiting[folderID] {
		return nil
	}
	p.visiting[folderID] = true
	defer delete(p.visiting, folderID)

	info, err := p.r.folderInfo(ctx, p.plan.Username, folderID)
	if err != nil {
		return err
	}
	isRoot := folderID == p.rootID || (info.known && info.parentID == "")
	if info.known && !isRoot && p.stored[info.parentID] {
		if err := p.visit(ctx, info.parentID); err != nil {
			return err
		}
	}

	fp := FolderPlan{ID: folderID, Name: info.name, ParentID: info.parentID}
	parentPath, parentKnown := p.paths[info.parentID]
	switch {
	case isRoot:
		fp.Path = p.plan.Target
	case info.known && parentKnown:
		fp.Path = filepath.Join(parentPath, safeName(info.name, folderID))
	default:
		fp.Path = filepath.Join(p.lostDir, safeName(info.name, folderID))
		fp.LostAndFound = true
	}
	p.paths[folderID] = fp.Path
	p.plan.Folders = append(p.plan.Folders, fp)
	return nil
}

// safeName turns a stored name into a single path element, falling back to
// the id for names that cannot be one
func safeName(name, id string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator || r == 0 {
			return '_'
		}
		return r
	}, name)
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return id
	}
	return name
}
