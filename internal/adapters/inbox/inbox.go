// Package inbox watches a drop directory for CDM files and turns each new
// file into a queued ingestion job.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/conjunct/internal/domain/dedupe"
	"github.com/okian/conjunct/internal/domain/model"
	"github.com/okian/conjunct/pkg/logger"
	"github.com/okian/conjunct/pkg/metrics"
)

const (
	defaultSettle   = 200 * time.Millisecond
	defaultMaxBytes = 1 << 20
)

// ErrQueueFull is returned by Sink implementations that reject a job.
var ErrQueueFull = errors.New("cdm queue full")

// Sink receives jobs for files that appeared in the inbox.
type Sink interface {
	Enqueue(ctx context.Context, job model.CdmJob) bool
}

// Watcher feeds CDM files from a directory into a Sink.
type Watcher struct {
	dir        string
	extensions []string
	sink       Sink
	settle     time.Duration
	maxBytes   int64
	now        func() time.Time
	log        logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions limits the watched file extensions. Matching ignores case.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) > 0 {
			w.extensions = normalizeExts(exts)
		}
	}
}

// WithSettleDelay sets how long a file must be quiet before it is read.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a watcher for dir. It does not start watching.
func New(dir string, sink Sink, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("inbox directory must not be empty")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		dir:        dir,
		extensions: []string{".kvn", ".cdm", ".txt"},
		sink:       sink,
		settle:     defaultSettle,
		maxBytes:   defaultMaxBytes,
		now:        time.Now,
		pending:    make(map[string]*time.Timer),
		watcher:    fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Get().Named("inbox")
	}
	return w, nil
}

// Start enqueues files already in the directory, then watches for new ones
// until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if err := w.scan(ctx); err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	w.log.Info(ctx, "watching cdm inbox", logger.String("dir", w.dir), logger.Any("extensions", w.extensions))
	return nil
}

// Stop closes the watcher and waits for the loop to exit. Pending settle
// timers are cancelled.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	w.wg.Wait()
	w.mu.Lock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isWatchedExtension(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			metrics.RecordErrorByComponent("inbox", "watch_error")
			w.log.Warn(ctx, "inbox watch error", logger.Error(err))
		}
	}
}

// schedule debounces writes so a file is read once it stops changing.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.submit(ctx, path); err != nil {
			w.log.Warn(ctx, "inbox file not queued", logger.String("path", path), logger.Error(err))
		}
	})
}

// scan queues files present before the watch began, in name order.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox %s: %w", w.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && w.isWatchedExtension(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		path := filepath.Join(w.dir, n)
		if err := w.submit(ctx, path); err != nil {
			w.log.Warn(ctx, "inbox file not queued", logger.String("path", path), logger.Error(err))
		}
	}
	return nil
}

func (w *Watcher) submit(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	if info.Size() > w.maxBytes {
		metrics.RecordCDMRejected("too_large")
		return fmt.Errorf("file is %d bytes, limit %d", info.Size(), w.maxBytes)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	job := model.CdmJob{
		ID:         dedupe.Digest(string(raw)),
		Raw:        string(raw),
		Origin:     path,
		ReceivedAt: w.now(),
	}
	if !w.sink.Enqueue(ctx, job) {
		return ErrQueueFull
	}
	w.log.Debug(ctx, "cdm queued", logger.String("path", path), logger.String("digest", job.ID))
	return nil
}

func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
