package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"roomhub/pkg/interfaces"
)

// BadgerStore keeps uploads in an embedded key-value store
// ARCHITECTURAL DISCOVERY: Bytes live under image:<id>; the sniffed mime type
// lives beside them under meta:<id> so reads never re-detect
type BadgerStore struct {
	db *badger.DB
}

func imageKey(id string) []byte { return []byte("image:" + id) }
func metaKey(id string) []byte  { return []byte("meta:" + id) }

// NewBadgerStore opens a store at dir; an empty dir runs in memory
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Store(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	mime := mimetype.Detect(data).String()

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(imageKey(id), data); err != nil {
			return err
		}
		return txn.Set(metaKey(id), []byte(mime))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	log.Debug().Str("module", "storage").Str("image_id", id).Str("mime", mime).Msg("Image stored in badger")
	return id, nil
}

// Get returns the stored bytes and mime type for id
func (s *BadgerStore) Get(id string) ([]byte, string, error) {
	var (
		data []byte
		mime []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(id))
		if err != nil {
			return err
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		meta, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		mime, err = meta.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", interfaces.ErrImageNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return data, string(mime), nil
}

// Count returns the number of stored images
func (s *BadgerStore) Count() (int, error) {
	count := 0
	prefix := []byte("image:")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) HealthCheck(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	_, err := s.Count()
	return err
}

func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
