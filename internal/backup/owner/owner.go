// Package owner maps any folder or document id to the user whose tree holds
// it. A Resolver lives for one run; its memo is never shared across runs.
package owner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

type Option func(*Resolver)

// WithReservedPrefix marks ids starting with prefix as user ids rather than
// folders. A chain reaching one resolves through the user list or fails.
func WithReservedPrefix(prefix string) Option {
	return func(r *Resolver) {
		r.reservedPrefix = prefix
	}
}

// WithMaxDepth bounds the parent chain followed for one id
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

type Resolver struct {
	src            source.Service
	reservedPrefix string
	maxDepth       int

	mu        sync.Mutex
	users     map[string]types.User
	roots     map[string]types.User
	folders   map[string]types.User
	documents map[string]types.User
}

// New returns a resolver for the given users
func New(src source.Service, users []types.User, opts ...Option) *Resolver {
	r := &Resolver{
		src:       src,
		maxDepth:  utils.MaxOwnerChainDepth,
		users:     make(map[string]types.User, len(users)),
		roots:     make(map[string]types.User, len(users)),
		folders:   make(map[string]types.User),
		documents: make(map[string]types.User),
	}
	for _, u := range users {
		r.users[u.ID] = u
		if u.RootFolderID != "" {
			r.roots[u.RootFolderID] = u
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ByUserID returns a known user
func (r *Resolver) ByUserID(id string) (types.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok
}

// ByDocumentID resolves the owner of a document through its parent folder
func (r *Resolver) ByDocumentID(ctx context.Context, documentID string) (types.User, error) {
	r.mu.Lock()
	u, ok := r.documents[documentID]
	r.mu.Unlock()
	if ok {
		return u, nil
	}

	doc, err := r.src.GetDocument(ctx, documentID)
	if err != nil {
		return types.User{}, err
	}
	u, err = r.ByFolderID(ctx, doc.ParentFolderID)
	if err != nil {
		return types.User{}, err
	}

	r.mu.Lock()
	r.documents[documentID] = u
	r.mu.Unlock()
	return u, nil
}

// ByFolderID follows parent links until it meets a user root folder or an
// already resolved folder. Source errors are returned unchanged; a broken
// chain fails with utils.ErrOwnershipCycle.
func (r *Resolver) ByFolderID(ctx context.Context, folderID string) (types.User, error) {
	var chain []string
	seen := make(map[string]bool)
	id := folderID

	for {
		if u, ok := r.lookup(id); ok {
			r.remember(chain, u)
			return u, nil
		}
		switch {
		case id == "":
			return types.User{}, cycleError(folderID, "chain ends without reaching a user root")
		case seen[id]:
			return types.User{}, cycleError(folderID, fmt.Sprintf("%s appears twice in the chain", id))
		case len(chain) >= r.maxDepth:
			return types.User{}, cycleError(folderID, fmt.Sprintf("chain deeper than %d", r.maxDepth))
		case r.reservedPrefix != "" && strings.HasPrefix(id, r.reservedPrefix):
			return types.User{}, cycleError(folderID, fmt.Sprintf("reserved id %s is not a known user", id))
		}
		seen[id] = true

		folder, err := r.src.GetFolder(ctx, id)
		if err != nil {
			return types.User{}, err
		}
		chain = append(chain, id)
		id = folder.ParentID
	}
}

func (r *Resolver) lookup(id string) (types.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.roots[id]; ok {
		return u, true
	}
	if u, ok := r.folders[id]; ok {
		return u, true
	}
	if r.reservedPrefix != "" && strings.HasPrefix(id, r.reservedPrefix) {
		u, ok := r.users[id]
		return u, ok
	}
	return types.User{}, false
}

func (r *Resolver) remember(chain []string, u types.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range chain {
		r.folders[id] = u
	}
}

func cycleError(folderID, reason string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeOwnershipCycle,
		fmt.Sprintf("cannot resolve owner of %s: %s", folderID, reason)).
		WithContext("folderId", folderID).
		Build())
}
