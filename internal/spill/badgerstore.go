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
	"github.com/Connor1996/badger"

	"github.com/logannye/emsqrt/internal/emerrors"
)

// BadgerStore is the embedded-LSM BlobStore backend: each segment is one
// key/value entry keyed by its derived name. This is the backend to
// prefer over FileStore when many small segments would otherwise incur
// one-file-per-segment filesystem overhead.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if necessary) a badger database rooted
// at dir to back segment storage.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, emerrors.New(emerrors.KindConfig, "open badger store at %q: %v", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying badger database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// Put writes raw under name in a single badger transaction.
func (s *BadgerStore) Put(name string, raw []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), raw)
	})
	if err != nil {
		return emerrors.New(emerrors.KindStorage, "badger put segment %q: %v", name, err)
	}
	return nil
}

// Get reads the bytes stored under name.
func (s *BadgerStore) Get(name string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, emerrors.New(emerrors.KindStorage, "badger get segment %q: %v", name, err)
	}
	return out, nil
}

// List enumerates every segment name currently stored.
func (s *BadgerStore) List() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, emerrors.New(emerrors.KindStorage, "badger list segments: %v", err)
	}
	return names, nil
}

// Delete removes the named segment.
func (s *BadgerStore) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(name))
	})
	if err != nil {
		return emerrors.New(emerrors.KindStorage, "badger delete segment %q: %v", name, err)
	}
	return nil
}
