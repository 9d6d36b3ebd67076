// Package blobstore keeps uploaded dataset files in BadgerDB, compressed
// with zstd.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/rpggio/runledger/internal/repository"
)

var keyPrefix = []byte("dataset/")

// Config holds store configuration.
type Config struct {
	// Path is the badger directory. Empty keeps everything in memory.
	Path             string
	CompressionLevel int
}

// Store implements dataset.BlobStore.
type Store struct {
	db         *badger.DB
	compressor *compressor
	logger     *slog.Logger
}

// Open opens or creates a store.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	c, err := newCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, compressor: c, logger: logger}, nil
}

// Put stores content under name, replacing any previous value.
func (s *Store) Put(ctx context.Context, name string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	packed := s.compressor.compress(content)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), packed)
	})
	if err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("blob stored", "name", name, "raw_bytes", len(content), "stored_bytes", len(packed))
	}
	return nil
}

// Get returns the content stored under name or repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var packed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		packed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return s.compressor.decompress(packed)
}

// List returns the stored names in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			k := it.Item().Key()
			names = append(names, string(k[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return names, nil
}

// Close releases the database and codec.
func (s *Store) Close() error {
	s.compressor.close()
	return s.db.Close()
}

func key(name string) []byte {
	return append(append([]byte{}, keyPrefix...), name...)
}
