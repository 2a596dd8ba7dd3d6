// Package mounts provides file mounts for use as fs.FS filesystems. A mount is either
// a subdirectory of an embedded filesystem or, when specified, a directory on disk
// holding the same layout, allowing the sql statement files shipped in the binary to be
// overridden without rebuilding.
package mounts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileMount is a mount that may be mounted by either an embedded fs.FS or a dirPath.
type FileMount struct {
	MountName string
	Embedded  bool
	fs.FS
}

// String describes a FileMount by its source and files.
func (fm FileMount) String() string {
	from := "disk"
	if fm.Embedded {
		from = "embedded"
	}
	files, _ := fm.Files()
	return fmt.Sprintf("mount %q (%s): %s", fm.MountName, from, strings.Join(files, ", "))
}

// ErrInvalidPath reports an invalid mount name.
type ErrInvalidPath struct {
	mountName string
}

// Error fulfills the Error interface requirement for ErrInvalidPath.
func (e ErrInvalidPath) Error() string {
	tpl := strings.Join([]string{
		"mount name %q is not a valid fs.ValidPath path",
		"see https://pkg.go.dev/io/fs#ValidPath for more information.",
	}, "\n")
	return fmt.Sprintf(tpl, e.mountName)
}

// NewFileMount takes an embedded fs.FS or a path to a directory. If dirPath is "" the
// embedded fs is used, sub-mounted at mountName so that its files are at the top
// level, as they would be for os.DirFS(dirPath). For example, given
//
//	//go:embed sql
//	var sqlFS embed.FS
//
// both NewFileMount("sql", sqlFS, "") and NewFileMount("sql", sqlFS, "/etc/orders/sql")
// provide "schema.sql" rather than "sql/schema.sql".
func NewFileMount(mountName string, embeddedFS fs.FS, dirPath string) (*FileMount, error) {

	if mountName == "" {
		return nil, errors.New("no mount name provided for new file mount")
	}
	if !fs.ValidPath(mountName) {
		return nil, ErrInvalidPath{mountName}
	}

	if dirPath == "" {
		subFS, err := fs.Sub(embeddedFS, mountName)
		if err != nil {
			return nil, fmt.Errorf("could not sub-mount embedded fs at %q: %w", mountName, err)
		}
		return &FileMount{
			MountName: mountName,
			Embedded:  true,
			FS:        subFS,
		}, nil
	}

	s, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("new mount at %q error: %w", dirPath, err)
	}
	if !s.IsDir() {
		return nil, fmt.Errorf("new mount at %q is not a directory", dirPath)
	}

	return &FileMount{
		MountName: mountName,
		FS:        os.DirFS(dirPath),
	}, nil
}

// Files lists the regular files in the mount, in lexical order.
func (fm *FileMount) Files() ([]string, error) {
	var files []string
	err := fs.WalkDir(fm.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Materialize writes the files of the mount to dir, creating it and any
// subdirectories as necessary. Existing files are not overwritten; finding one is an
// error. The written file paths are returned.
func (fm *FileMount) Materialize(dir string) ([]string, error) {

	if s, err := os.Stat(dir); err == nil && !s.IsDir() {
		return nil, fmt.Errorf("materialize target %q is not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create %q: %w", dir, err)
	}

	var written []string
	err := fs.WalkDir(fm.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		fullPath := filepath.Join(dir, filepath.FromSlash(path))

		if d.IsDir() {
			if err := os.MkdirAll(fullPath, 0755); err != nil {
				return fmt.Errorf("could not make dir %q: %w", fullPath, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := fs.ReadFile(fm.FS, path)
		if err != nil {
			return fmt.Errorf("could not read %q from mount %s: %w", path, fm.MountName, err)
		}
		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("could not create %q: %w", fullPath, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not write %q: %w", fullPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, fullPath)
		return nil
	})
	return written, err
}
