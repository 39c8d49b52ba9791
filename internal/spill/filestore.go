// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package spill

import (
	"os"
	"path/filepath"

	"github.com/logannye/emsqrt/internal/emerrors"
)

// FileStore is the filesystem BlobStore implementation (§4.D): one file
// per segment under a configured directory, written atomically via
// write-to-temp-then-rename.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating dir if it does
// not already exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "create spill dir %q: %v", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string { return filepath.Join(f.dir, name+".seg") }

// Put writes raw atomically: to a temp file in the same directory, then
// renamed into place, so a crash mid-write never leaves a partial
// segment visible under its final name.
func (f *FileStore) Put(name string, raw []byte) error {
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return emerrors.New(emerrors.KindStorage, "create temp segment file: %v", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return emerrors.New(emerrors.KindStorage, "write segment %q: %v", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return emerrors.New(emerrors.KindStorage, "close segment %q: %v", name, err)
	}
	if err := os.Rename(tmpPath, f.path(name)); err != nil {
		os.Remove(tmpPath)
		return emerrors.New(emerrors.KindStorage, "rename segment %q into place: %v", name, err)
	}
	return nil
}

// Get reads the named segment's raw bytes.
func (f *FileStore) Get(name string) ([]byte, error) {
	b, err := os.ReadFile(f.path(name))
	if err != nil {
		return nil, emerrors.New(emerrors.KindStorage, "read segment %q: %v", name, err)
	}
	return b, nil
}

// List returns the segment names present in the store directory.
func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, emerrors.New(emerrors.KindStorage, "list spill dir %q: %v", f.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".seg"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			names = append(names, name[:len(name)-len(suffix)])
		}
	}
	return names, nil
}

// Delete removes the named segment's file.
func (f *FileStore) Delete(name string) error {
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return emerrors.New(emerrors.KindStorage, "delete segment %q: %v", name, err)
	}
	return nil
}
