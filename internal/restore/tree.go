package restore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disiqueira/gotree/v3"

	"github.com/dl-alexandre/docdr/internal/layout"
)

const lostAndFoundMark = "? "

// previewTree is a directory tree rooted at a restore target
type previewTree struct {
	root string
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

func newPreviewTree(root string) previewTree {
	return previewTree{root: root, tree: gotree.New(root), dirs: make(map[string]gotree.Tree)}
}

func (t previewTree) dir(path string) gotree.Tree {
	rel, err := filepath.Rel(t.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return t.tree
	}
	if d := t.dirs[path]; d != nil {
		return d
	}
	d := t.dir(filepath.Dir(path)).Add(filepath.Base(path))
	t.dirs[path] = d
	return d
}

// Preview renders what Restore would create for plan without touching the
// local filesystem. Folders under lost and found are marked with "?".
func (r *Reconciler) Preview(ctx context.Context, plan *Plan) (string, error) {
	t := newPreviewTree(plan.Target)
	for _, f := range plan.Folders {
		d := t.dir(f.Path)
		objects, err := r.store.List(ctx, r.layout.FolderPrefix(plan.Username, f.ID))
		if err != nil {
			return "", fmt.Errorf("list folder %s: %w", f.ID, err)
		}
		var names []string
		for _, obj := range objects {
			if layout.IsReserved(obj.Name()) {
				continue
			}
			doc, err := describe(obj)
			if err != nil {
				return "", err
			}
			names = append(names, doc.name)
		}
		sort.Strings(names)
		prefix := ""
		if f.LostAndFound {
			prefix = lostAndFoundMark
		}
		for _, name := range names {
			d.Add(prefix + name)
		}
	}
	return t.tree.Print(), nil
}
