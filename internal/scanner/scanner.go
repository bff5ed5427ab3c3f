// Package scanner walks a project tree and feeds source files to workers.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("lspadapter.scanner")

// ignoredDirs are never descended into, in addition to dot directories.
var ignoredDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"build":        true,
	"target":       true,
}

// IgnoreDir reports whether the directory at path is skipped.
func IgnoreDir(path string) bool {
	name := filepath.Base(path)
	return (strings.HasPrefix(name, ".") && name != "." && name != "..") || ignoredDirs[name]
}

// Options control a scan.
type Options struct {
	// Workers is the number of concurrent callbacks.
	Workers int
	// Extensions limits the scan to these file extensions. Empty accepts
	// every file.
	Extensions []string
	// Skip, when set, drops files before they are read.
	Skip func(path string, info fs.FileInfo) bool
}

func (o Options) accepts(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range o.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Scan walks the subtree under root and calls callback with the absolute
// path and content of every accepted file. Callbacks run on up to
// opts.Workers goroutines. Scan returns after every callback finished; the
// first callback error or a cancelled ctx stops the walk and is returned.
// Unreadable files and directories are logged and skipped.
func Scan(ctx context.Context, root string, opts Options, callback func(path string, content []byte) error) error {
	workers := max(opts.Workers, 1)
	g, ctx := errgroup.WithContext(ctx)
	files := make(chan string, 100)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(path)
				if err != nil {
					log.Warningf("read %s: %s", path, err)
					continue
				}
				if err := callback(path, data); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(files)
		log.Debugf("walking %s", root)
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return fmt.Errorf("walk %s: %w", root, err)
				}
				log.Warningf("walk %s: %s", path, err)
				return nil
			}
			if d.IsDir() {
				if path != root && IgnoreDir(path) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !opts.accepts(path) {
				return nil
			}
			if opts.Skip != nil {
				info, err := d.Info()
				if err != nil || opts.Skip(path, info) {
					return nil
				}
			}
			select {
			case files <- path:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	return g.Wait()
}

// Dirs lists root and every directory below it that a scan would enter.
func Dirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IgnoreDir(path) {
			return fs.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list directories of %s: %w", root, err)
	}
	return dirs, nil
}
