// Package watcher turns descriptor files dropped into a directory into
// fetched volumes.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/fsnotify/fsnotify"
)

// Processor handles a single descriptor path
type Processor interface {
	Process(ctx context.Context, path string) Result
}

// Options tune the watcher
type Options struct {
	// SettleDelay is how long the directory must be quiet before a scan
	SettleDelay time.Duration
	// ScanOnStart processes descriptors already present when Run starts
	ScanOnStart bool
}

// ignoreTTL bounds how long a self-deletion waits for its event
const ignoreTTL = time.Minute

// Watcher processes every descriptor in one directory, once, and removes it.
// Scans never overlap. Deletions made by the watcher itself do not trigger
// further scans.
type Watcher struct {
	dir       string
	processor Processor
	opts      Options

	scanMu sync.Mutex

	stateMu sync.RWMutex
	state   State

	ignoreMu sync.Mutex
	ignore   map[string]time.Time
}

// New creates a watcher for dir
func New(dir string, processor Processor, opts Options) *Watcher {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 100 * time.Millisecond
	}
	return &Watcher{
		dir:       dir,
		processor: processor,
		opts:      opts,
		state:     StateIdle,
		ignore:    make(map[string]time.Time),
	}
}

// Dir returns the watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// State returns StateProcessing while a scan is running
func (w *Watcher) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *Watcher) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

// Run watches the directory until ctx is done. A directory that does not
// exist is logged and Run stays idle until cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		slog.Warn("watch_dir_unavailable", "dir", w.dir, "error", err)
		<-ctx.Done()
		return nil
	}

	slog.Info("watch_started", "dir", w.dir, "settle_delay", w.opts.SettleDelay)

	if w.opts.ScanOnStart {
		w.scanAndLog(ctx)
	}

	settle := time.NewTimer(w.opts.SettleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch_stopped", "dir", w.dir)
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("watch_event", "name", event.Name, "op", event.Op.String())
			settle.Reset(w.opts.SettleDelay)

		case <-settle.C:
			w.scanAndLog(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch_error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if w.consumeIgnored(event.Name) {
			slog.Debug("watch_self_delete_ignored", "name", event.Name)
			return false
		}
	}
	return true
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	summary, err := w.Scan(ctx)
	if err != nil {
		slog.Error("scan_failed", "dir", w.dir, "error", err)
		return
	}
	if summary.Processed > 0 {
		slog.Info("scan_complete", "dir", w.dir, "processed", summary.Processed, "failed", summary.Failed)
	}
}

// Scan processes every descriptor currently in the directory. Each one is
// removed after processing whatever the outcome. Failures are reported in
// the summary; the returned error is for the listing itself or ctx.
func (w *Watcher) Scan(ctx context.Context) (Summary, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	w.setState(StateProcessing)
	defer w.setState(StateIdle)

	w.pruneIgnored()

	var summary Summary
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return summary, errors.Wrap(err, "failed to list watch dir")
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if entry.IsDir() || !IsDescriptorName(entry.Name()) {
			continue
		}

		path := filepath.Join(w.dir, entry.Name())
		res := w.processor.Process(ctx, path)

		summary.Processed++
		if res.Err != nil {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)

		if err := w.remove(path); err != nil {
			slog.Error("descriptor_delete_failed", "path", path, "error", err)
		}
	}

	return summary, nil
}

// remove deletes a descriptor and marks its removal event as our own.
func (w *Watcher) remove(path string) error {
	w.ignoreMu.Lock()
	w.ignore[path] = time.Now()
	w.ignoreMu.Unlock()

	err := os.Remove(path)
	if err == nil {
		slog.Info("descriptor_deleted", "path", path)
		return nil
	}

	w.ignoreMu.Lock()
	delete(w.ignore, path)
	w.ignoreMu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (w *Watcher) consumeIgnored(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	if _, ok := w.ignore[path]; ok {
		delete(w.ignore, path)
		return true
	}
	return false
}

func (w *Watcher) pruneIgnored() {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	cutoff := time.Now().Add(-ignoreTTL)
	for path, at := range w.ignore {
		if at.Before(cutoff) {
			delete(w.ignore, path)
		}
	}
}
