package restore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dl-alexandre/docdr/internal/layout"
	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/metadata"
	"github.com/dl-alexandre/docdr/internal/pool"
	"github.com/dl-alexandre/docdr/internal/types"
	"github.com/dl-alexandre/docdr/internal/utils"
)

// Options tune a restore. Zero values take the defaults.
type Options struct {
	FolderWorkers   int
	FileWorkers     int
	DequeueTimeout  time.Duration
	StreamThreshold int64
}

func (o Options) withDefaults() Options {
	if o.FolderWorkers <= 0 {
		o.FolderWorkers = utils.DefaultRestoreFolderWorkers
	}
	if o.FileWorkers <= 0 {
		o.FileWorkers = utils.DefaultRestoreFileWorkers
	}
	if o.StreamThreshold <= 0 {
		o.StreamThreshold = utils.StreamThresholdBytes
	}
	return o
}

// File outcomes
const (
	FileRestored = "restored"
	FileSkipped  = "skipped"
	FileFailed   = "failed"
)

// FileResult is the outcome of restoring one stored document
type FileResult struct {
	Key    string `json:"key"`
	Path   string `json:"path,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result sums up one restore
type Result struct {
	Username     string       `json:"username"`
	Folders      int          `json:"folders"`
	FolderErrors []string     `json:"folderErrors,omitempty"`
	Restored     int          `json:"restored"`
	Skipped      int          `json:"skipped"`
	Downloads    int          `json:"downloads"`
	BytesWritten int64        `json:"bytesWritten"`
	Failed       []FileResult `json:"failed,omitempty"`
}

type fileTask struct {
	dir    string
	object types.DestinationObject
	// fetchMetadataFirst asks for the object metadata before its body
	// because a local file of the same size may already be current
	fetchMetadataFirst bool
}

// Restore creates the planned folders and fills them. A local file whose
// size matches and whose mtime is within utils.MtimeTolerance of the stored
// content time is left alone.
func (r *Reconciler) Restore(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Username: plan.Username}
	var mu sync.Mutex

	files := pool.New("restore-files", pool.NewQueue[fileTask](), r.opts.FileWorkers,
		func(ctx context.Context, t fileTask, _ *sync.Mutex) error {
			fr, downloaded, written := r.restoreFile(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			result.Downloads += downloaded
			result.BytesWritten += written
			switch fr.Status {
			case FileRestored:
				result.Restored++
			case FileSkipped:
				result.Skipped++
			default:
				result.Failed = append(result.Failed, fr)
				return fmt.Errorf("%s: %s", fr.Key, fr.Error)
			}
			return nil
		},
		pool.WithDequeueTimeout(r.opts.DequeueTimeout),
		pool.WithLogger(r.logger),
	)

	folders := pool.New("restore-folders", pool.NewQueue[FolderPlan](), r.opts.FolderWorkers,
		func(ctx context.Context, f FolderPlan, lock *sync.Mutex) error {
			err := r.restoreFolder(ctx, plan.Username, f, lock, files.Queue())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FolderErrors = append(result.FolderErrors, err.Error())
				return err
			}
			result.Folders++
			return nil
		},
		pool.WithDequeueTimeout(r.opts.DequeueTimeout),
		pool.WithLogger(r.logger),
	)

	folders.Start(ctx)
	files.Start(ctx)
	for _, f := range plan.Folders {
		folders.Queue().Put(f)
	}
	folders.Finish()
	files.Finish()

	r.logger.Info("Restored user",
		logging.F("user", plan.Username),
		logging.F("folders", result.Folders),
		logging.F("restored", result.Restored),
		logging.F("skipped", result.Skipped),
		logging.F("failed", len(result.Failed)),
	)
	return result, ctx.Err()
}

func (r *Reconciler) restoreFolder(ctx context.Context, username string, f FolderPlan, lock *sync.Mutex, files *pool.Queue[fileTask]) error {
	info, err := os.Stat(f.Path)
	switch {
	case err == nil && !info.IsDir():
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("cannot restore folder %s into %s: it is a file", f.ID, f.Path)).
			WithContext("path", f.Path).
			Build())
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}
	isNew := err != nil

	lock.Lock()
	err = os.MkdirAll(f.Path, 0o755)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Path, err)
	}

	objects, err := r.store.List(ctx, r.layout.FolderPrefix(username, f.ID))
	if err != nil {
		return fmt.Errorf("list folder %s: %w", f.ID, err)
	}

	var sizes map[int64]bool
	if !isNew {
		sizes, err = localSizes(f.Path)
		if err != nil {
			return err
		}
	}
	for _, obj := range objects {
		if layout.IsReserved(obj.Name()) {
			continue
		}
		files.Put(fileTask{dir: f.Path, object: obj, fetchMetadataFirst: sizes[obj.Size]})
	}
	return nil
}

func localSizes(dir string) (map[int64]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	sizes := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sizes[info.Size()] = true
	}
	return sizes, nil
}

type storedDocument struct {
	name       string
	size       int64
	modifiedAt time.Time
}

func describe(obj types.DestinationObject) (storedDocument, error) {
	rec, err := metadata.Decode(obj.Metadata)
	if err != nil {
		return storedDocument{}, fmt.Errorf("decode metadata of %s: %w", obj.Key, err)
	}
	doc := storedDocument{size: obj.Size}
	name, _ := rec.String(metadata.KeyName)
	doc.name = safeName(name, obj.Name())
	if size, ok := rec.Int64(metadata.KeySize); ok && size >= 0 {
		doc.size = size
	}
	doc.modifiedAt, _ = rec.Time(metadata.KeyContentModifiedTimestamp)
	return doc, nil
}

// current reports whether the file at path already holds doc
func current(path string, doc storedDocument) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() != doc.size {
		return false
	}
	delta := info.ModTime().Sub(doc.modifiedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta < utils.MtimeTolerance
}

func (r *Reconciler) restoreFile(ctx context.Context, t fileTask) (fr FileResult, downloads int, written int64) {
	fr = FileResult{Key: t.object.Key, Status: FileFailed}
	fail := func(err error) (FileResult, int, int64) {
		fr.Error = err.Error()
		return fr, downloads, 0
	}

	var body io.ReadCloser
	obj := t.object
	large := utils.IsLarge(t.object.Size, r.opts.StreamThreshold)
	if t.fetchMetadataFirst || large {
		head, err := r.store.Head(ctx, obj.Key)
		if err != nil {
			return fail(err)
		}
		obj = head
	} else {
		got, rc, err := r.store.Get(ctx, obj.Key)
		if err != nil {
			return fail(err)
		}
		downloads++
		obj, body = got, rc
	}
	if body != nil {
		defer body.Close()
	}

	doc, err := describe(obj)
	if err != nil {
		return fail(err)
	}
	fr.Path = filepath.Join(t.dir, doc.name)
	if current(fr.Path, doc) {
		fr.Status = FileSkipped
		return fr, downloads, 0
	}

	if body == nil {
		_, rc, err := r.store.Get(ctx, obj.Key)
		if err != nil {
			return fail(err)
		}
		downloads++
		defer rc.Close()
		body = rc
	}

	var src io.Reader = body
	if !large {
		data, err := io.ReadAll(body)
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", obj.Key, err))
		}
		src = bytes.NewReader(data)
	}
	n, err := writeFile(fr.Path, src, doc.modifiedAt)
	if err != nil {
		return fail(err)
	}
	fr.Status = FileRestored
	r.logger.Debug("Restored file", logging.F("path", fr.Path), logging.F("bytes", n))
	return fr, downloads, n
}

// writeFile replaces path with the contents of src through a temporary file
// in the same directory, then sets its mtime
func writeFile(path string, src io.Reader, modifiedAt time.Time) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docdr-restore-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if !modifiedAt.IsZero() {
		if err := os.Chtimes(path, time.Now(), modifiedAt); err != nil {
			return n, fmt.Errorf("set times of %s: %w", path, err)
		}
	}
	return n, nil
}
