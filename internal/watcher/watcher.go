// Package watcher reports files written into a directory, once their writes have
// settled.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// defaultSettleDuration is the quiet period after the last write to a file before it
// is reported.
const defaultSettleDuration time.Duration = 500 * time.Millisecond

// FileWatcher watches a directory for created or written files having the configured
// suffixes.
type FileWatcher struct {
	dir            string
	suffixes       []string
	watcher        *fsnotify.Watcher
	files          chan string
	settleDuration time.Duration
}

// New registers a FileWatcher on dir.
//
// Note that suffixes provided without the leading "dot" ('.') have this prepended to
// the provided suffix. Suffixes are matched case-insensitively.
func New(dir string, suffixes []string) (*FileWatcher, error) {

	if len(suffixes) < 1 {
		return nil, errors.New("at least one file suffix needed")
	}

	dir = filepath.Clean(dir)
	check, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("dir %q not found: %w", dir, err)
	}
	if !check.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dir)
	}

	fw := FileWatcher{
		dir:            dir,
		files:          make(chan string),
		settleDuration: defaultSettleDuration,
	}
	for _, ix := range suffixes {
		ix = strings.ToLower(ix)
		if len(ix) > 0 && ix[0] != '.' {
			ix = "." + ix
		}
		fw.suffixes = append(fw.suffixes, ix)
	}

	fw.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify new watcher error: %w", err)
	}
	if err := fw.watcher.Add(dir); err != nil {
		_ = fw.watcher.Close()
		return nil, fmt.Errorf("fsnotify add error for dir %q: %w", dir, err)
	}
	return &fw, nil
}

// matches reports whether the file name is watched. Dot files are ignored.
func (fw *FileWatcher) matches(name string) bool {
	basename := filepath.Base(name)
	if basename == "" || basename[0] == '.' {
		return false
	}
	lower := strings.ToLower(basename)
	for _, ix := range fw.suffixes {
		if strings.HasSuffix(lower, ix) {
			return true
		}
	}
	return false
}

// Existing returns the watched files already in the directory, sorted by name.
func (fw *FileWatcher) Existing() ([]string, error) {
	entries, err := os.ReadDir(fw.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read dir %q: %w", fw.dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && fw.matches(e.Name()) {
			files = append(files, filepath.Join(fw.dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// Watch watches the directory, returning any error found while doing so. Watch
// blocks, so needs to be run in a goroutine.
//
// Consumers should range over [Files] to receive the path of each file once no write
// to it has been seen for the settle duration. Files is closed when Watch returns.
func (fw *FileWatcher) Watch(ctx context.Context) error {

	// eventChan carries the names of written files to the settling goroutine.
	eventChan := make(chan string)

	g, ctx := errgroup.WithContext(ctx)

	// This goroutine watches for *fsnotify.Watcher events.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return errors.New("unexpected close from watcher.Errors")
				}
				return fmt.Errorf("unexpected notify error: %w", err)

			case e, ok := <-fw.watcher.Events:
				if !ok {
					return errors.New("unexpected close from watcher.Events")
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
					continue
				}
				if !fw.matches(e.Name) {
					continue
				}
				select {
				case eventChan <- e.Name:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	// Hold each file until its writes have stopped for the settle duration.
	g.Go(func() error {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(fw.settleDuration / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case name := <-eventChan:
				pending[name] = time.Now()
			case now := <-ticker.C:
				var ready []string
				for name, last := range pending {
					if now.Sub(last) >= fw.settleDuration {
						ready = append(ready, name)
					}
				}
				slices.Sort(ready)
				for _, name := range ready {
					delete(pending, name)
					if _, err := os.Stat(name); err != nil {
						continue // removed before settling
					}
					select {
					case fw.files <- name:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	})

	err := g.Wait()
	close(fw.files)
	_ = fw.watcher.Close()
	return err
}

// Files returns a channel of settled file paths.
func (fw *FileWatcher) Files() <-chan string {
	return fw.files
}
