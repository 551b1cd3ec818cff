package portal

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/soyeahso/idpforge/internal/logging"
)

// Change is a file event under the watched root.
type Change struct {
	Path string // slash-separated, relative to the root
	Op   string
}

// Watcher reports file changes under a directory tree. New subdirectories
// are watched as they appear.
type Watcher struct {
	root string
	fsw  *fsnotify.Watcher
	log  *logging.Logger
}

// NewWatcher starts watching root and every directory below it. root is
// created if missing.
func NewWatcher(root string, log *logging.Logger) (*Watcher, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{root: root, fsw: fsw, log: log}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run delivers changes to fn until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn().Err(err).Str("dir", ev.Name).Msg("not watching new directory")
					}
				}
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			// renameio writes through hidden temp files first
			if strings.HasPrefix(filepath.Base(rel), ".") {
				continue
			}
			fn(Change{Path: filepath.ToSlash(rel), Op: opName(ev.Op)})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return strings.ToLower(op.String())
	}
}
