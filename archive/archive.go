// Package archive implements the updater's Archive collaborator: a
// read-only view over a directory or zip file of candidate firmware images,
// with transparent decompression of xz/lz4/bzip2/gzip-packed entries, the
// way the original treats "the archive" as an opaque container (directory
// or packed shellball) the core never needs to distinguish.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// Archive is a read-only, closeable collection of named byte blobs. The
// core updater only ever asks "does this name exist" and "give me its
// bytes"; it never cares whether the backing store is a directory on disk
// or a zip file.
type Archive interface {
	HasEntry(name string) bool
	ReadFile(name string) ([]byte, error)
	// List returns every entry name present, for manifest scanning.
	List() ([]string, error)
	Close() error
}

// Open determines the archive type from path and returns the matching
// Archive implementation: a directory if path is a directory, a zip
// Archive if it looks like a zip file, otherwise an error. A bare directory
// is the common case (an already-unpacked shellball or extract dir).
func Open(path string) (Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return &dirArchive{root: path}, nil
	}
	return openZip(path)
}

type dirArchive struct {
	root string
}

func (d *dirArchive) resolve(name string) string {
	return filepath.Join(d.root, name)
}

func (d *dirArchive) HasEntry(name string) bool {
	_, err := os.Stat(d.resolve(name))
	return err == nil
}

func (d *dirArchive) ReadFile(name string) ([]byte, error) {
	raw, err := os.ReadFile(d.resolve(name))
	if err != nil {
		return nil, err
	}
	return MaybeDecompress(raw)
}

func (d *dirArchive) List() ([]string, error) {
	var names []string
	err := filepath.Walk(d.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	return names, err
}

func (d *dirArchive) Close() error { return nil }

type zipArchive struct {
	f  *os.File
	zr *zip.Reader
}

func openZip(path string) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zipArchive{f: f, zr: zr}, nil
}

func (z *zipArchive) find(name string) *zip.File {
	for _, fh := range z.zr.File {
		if fh.Name == name {
			return fh
		}
	}
	return nil
}

func (z *zipArchive) HasEntry(name string) bool {
	return z.find(name) != nil
}

func (z *zipArchive) ReadFile(name string) ([]byte, error) {
	fh := z.find(name)
	if fh == nil {
		return nil, os.ErrNotExist
	}
	r, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return MaybeDecompress(raw)
}

func (z *zipArchive) List() ([]string, error) {
	names := make([]string, 0, len(z.zr.File))
	for _, fh := range z.zr.File {
		names = append(names, fh.Name)
	}
	return names, nil
}

func (z *zipArchive) Close() error {
	return z.f.Close()
}
