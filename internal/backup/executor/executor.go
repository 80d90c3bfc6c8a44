// Package executor applies planned actions to the blob store.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/blobstore"
	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/metadata"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/source"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
	"gopkg.in/yaml.v3"
)

const yamlContentType = "application/x-yaml"

type Executor struct {
	src             source.Service
	store           blobstore.Store
	layout          layout.Layout
	logger          logging.Logger
	streamThreshold int64
	spoolDir        string

	mu      sync.Mutex
	results []types.ActionResult
	summary Summary
}

// Summary counts executed actions by kind
type Summary struct {
	Copies         int   `json:"copies"`
	Deletes        int   `json:"deletes"`
	FolderRemovals int   `json:"folderRemovals"`
	Summaries      int   `json:"summaries"`
	Skipped        int   `json:"skipped"`
	Failed         int   `json:"failed"`
	BytesCopied    int64 `json:"bytesCopied"`
}

type Option func(*Executor)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.OrNoOp(l)
	}
}

// WithStreamThreshold sets the body size above which copies are spooled to
// a temporary file instead of memory
func WithStreamThreshold(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.streamThreshold = n
		}
	}
}

// WithSpoolDir sets where spooled bodies go; empty means os.TempDir
func WithSpoolDir(dir string) Option {
	return func(e *Executor) {
		e.spoolDir = dir
	}
}

func New(src source.Service, store blobstore.Store, lay layout.Layout, opts ...Option) *Executor {
	e := &Executor{
		src:             src,
		store:           store,
		layout:          lay,
		logger:          logging.NewNoOpLogger(),
		streamThreshold: utils.StreamThresholdBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// errSkipped marks an action that had nothing left to do
var errSkipped = errors.New("skipped")

// Execute runs one action and records its result
func (e *Executor) Execute(ctx context.Context, a types.Action) error {
	detail, err := e.apply(ctx, a)

	result := types.ActionResult{Action: a, Status: types.ActionStatusOK, Detail: detail}
	switch {
	case errors.Is(err, errSkipped):
		result.Status = types.ActionStatusSkipped
		err = nil
	case err != nil:
		result.Status = types.ActionStatusFailed
		result.Error = err.Error()
	}
	e.record(result)
	return err
}

func (e *Executor) apply(ctx context.Context, a types.Action) (string, error) {
	switch a.Kind {
	case types.ActionCopy:
		return e.copy(ctx, a)
	case types.ActionDelete:
		return "", e.store.Delete(ctx, e.layout.DocumentKey(a.Username, a.FolderID, a.DocumentID))
	case types.ActionRemoveFolderSubtree:
		return e.removeFolder(ctx, a)
	case types.ActionWriteFolderSummary:
		return e.writeFolderSummary(ctx, a)
	}
	return "", fmt.Errorf("unknown action kind %q", a.Kind)
}

func (e *Executor) record(r types.ActionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
	switch r.Status {
	case types.ActionStatusSkipped:
		e.summary.Skipped++
		return
	case types.ActionStatusFailed:
		e.summary.Failed++
		return
	}
	switch r.Action.Kind {
	case types.ActionCopy:
		e.summary.Copies++
	case types.ActionDelete:
		e.summary.Deletes++
	case types.ActionRemoveFolderSubtree:
		e.summary.FolderRemovals++
	case types.ActionWriteFolderSummary:
		e.summary.Summaries++
	}
}

// Results returns every recorded result
func (e *Executor) Results() []types.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.ActionResult, len(e.results))
	copy(out, e.results)
	return out
}

// Failed returns the results of failed actions
func (e *Executor) Failed() []types.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.ActionResult
	for _, r := range e.results {
		if r.Status == types.ActionStatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Summary returns the counters so far
func (e *Executor) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

func (e *Executor) copy(ctx context.Context, a types.Action) (string, error) {
	version, body, err := e.src.OpenVersion(ctx, a.DocumentID, a.VersionID)
	if err != nil {
		if utils.IsUnreachable(err) {
			e.logger.Debug("Document gone before copy", logging.F("action", a.String()))
			return "source unreachable", errSkipped
		}
		return "", fmt.Errorf("open %s: %w", a.DocumentID, err)
	}
	defer body.Close()

	var reader io.Reader
	if utils.IsLarge(version.Size, e.streamThreshold) {
		spool, n, err := e.spool(body)
		if err != nil {
			return "", err
		}
		defer func() {
			spool.Close()
			os.Remove(spool.Name())
		}()
		reader = spool
		version.Size = n
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", a.DocumentID, err)
		}
		reader = bytes.NewReader(data)
		version.Size = int64(len(data))
	}

	md, err := metadata.Encode(metadata.VersionRecord(version))
	if err != nil {
		return "", fmt.Errorf("encode metadata of %s: %w", a.DocumentID, err)
	}
	contentType := version.ContentType
	if contentType == "" {
		contentType = utils.DefaultContentType
	}

	key := e.layout.DocumentKey(a.Username, a.FolderID, a.DocumentID)
	if err := e.store.Put(ctx, key, reader, version.Size, contentType, md); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}

	e.mu.Lock()
	e.summary.BytesCopied += version.Size
	e.mu.Unlock()
	e.logger.Info("Copied document",
		logging.F("key", key),
		logging.F("size", version.Size),
	)
	return fmt.Sprintf("%d bytes", version.Size), nil
}

func (e *Executor) spool(body io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp(e.spoolDir, "docdr-spool-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file: %w", err)
	}
	n, err := io.Copy(f, body)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, fmt.Errorf("spool body: %w", err)
	}
	return f, n, nil
}

func (e *Executor) removeFolder(ctx context.Context, a types.Action) (string, error) {
	prefix := e.layout.FolderPrefix(a.Username, a.FolderID)
	objects, err := e.store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", prefix, err)
	}
	var errs []error
	for _, obj := range objects {
		if err := e.store.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	e.logger.Info("Removed folder", logging.F("prefix", prefix), logging.F("objects", len(objects)))
	return fmt.Sprintf("%d objects", len(objects)), nil
}

func (e *Executor) writeFolderSummary(ctx context.Context, a types.Action) (string, error) {
	key := e.layout.FolderSummaryKey(a.Username, a.FolderID)

	folder, err := e.src.GetFolder(ctx, a.FolderID)
	if err != nil && !utils.IsUnreachable(err) {
		return "", fmt.Errorf("get folder %s: %w", a.FolderID, err)
	}
	if err != nil || !folder.State.IsActive() {
		if err := e.store.Delete(ctx, key); err != nil {
			return "", err
		}
		return "folder inactive, summary removed", nil
	}

	subfolders, documents := a.Subfolders, a.Documents
	if !a.Listed {
		contents, err := e.src.ListFolder(ctx, a.FolderID)
		if err != nil {
			return "", fmt.Errorf("list folder %s: %w", a.FolderID, err)
		}
		subfolders, documents = contents.Folders, contents.Documents
	}

	body, err := yaml.Marshal(types.NewFolderSummary(subfolders, documents))
	if err != nil {
		return "", fmt.Errorf("marshal summary of %s: %w", a.FolderID, err)
	}
	md, err := metadata.Encode(metadata.FolderRecord(folder))
	if err != nil {
		return "", fmt.Errorf("encode metadata of %s: %w", a.FolderID, err)
	}
	if err := e.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), yamlContentType, md); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return fmt.Sprintf("%d folders, %d documents", len(subfolders), len(documents)), nil
}

// UpdateUserInfo writes the user info object unless the stored one is newer
// than the user's last modification. It reports whether it wrote.
func (e *Executor) UpdateUserInfo(ctx context.Context, user types.User) (bool, error) {
	key := e.layout.UserInfoKey(user.Username)
	obj, ok, err := blobstore.HeadIfExists(ctx, e.store, key)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	if ok && obj.LastModified.After(user.ModifiedAt) {
		return false, nil
	}

	body, err := yaml.Marshal(user)
	if err != nil {
		return false, fmt.Errorf("marshal user %s: %w", user.Username, err)
	}
	md, err := metadata.Encode(metadata.UserRecord(user))
	if err != nil {
		return false, fmt.Errorf("encode metadata of %s: %w", user.Username, err)
	}
	if err := e.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), yamlContentType, md); err != nil {
		return false, fmt.Errorf("store %s: %w", key, err)
	}
	e.logger.Debug("Updated user info", logging.F("user", user.Username))
	return true, nil
}

// Stage is the pool executing actions
type Stage struct {
	*pool.Pool[types.Action]
}

// NewStage wires a pool executing every action put on actions. The caller
// starts and finishes it.
func (e *Executor) NewStage(actions *pool.Queue[types.Action], workers int, dequeueTimeout time.Duration) *Stage {
	if workers <= 0 {
		workers = utils.DefaultExecuteWorkers
	}
	run := func(ctx context.Context, a types.Action, _ *sync.Mutex) error {
		return e.Execute(ctx, a)
	}
	return &Stage{pool.New("execute", actions, workers, run,
		pool.WithDequeueTimeout(dequeueTimeout),
		pool.WithLogger(e.logger),
	)}
}
