package cachetier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Entry is a stored response
type Entry struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"storedAt"`
}

// Store persists responses in named caches
type Store interface {
	// Match returns the entry stored under key in cache name, or nil.
	Match(ctx context.Context, name, key string) (*Entry, error)
	Put(ctx context.Context, name, key string, entry *Entry) error
	CacheNames(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, name string) error
}

// Key prefixes for BadgerDB storage
const (
	entryKeyPrefix = "cache/"
	nameKeyPrefix  = "cachename/"
)

// BadgerStore implements Store on top of BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a BadgerDB at dir, or an in-memory one when dir is empty.
func OpenBadger(dir string, logger *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if logger != nil {
		opts.Logger = badgerLogger{logger.Named("badger").Sugar()}
	} else {
		opts.Logger = nil
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return db, nil
}

// NewBadgerStore creates a new BadgerDB-backed cache store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func entryKey(name, key string) []byte {
	return []byte(entryKeyPrefix + name + "/" + key)
}

func (s *BadgerStore) Match(ctx context.Context, name, key string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(name, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", name, err)
	}
	return &entry, nil
}

func (s *BadgerStore) Put(ctx context.Context, name, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(nameKeyPrefix+name), nil); err != nil {
			return fmt.Errorf("register cache: %w", err)
		}
		if err := txn.Set(entryKey(name, key), data); err != nil {
			return fmt.Errorf("set entry: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) CacheNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(nameKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), nameKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *BadgerStore) DeleteCache(ctx context.Context, name string) error {
	prefix := []byte(entryKeyPrefix + name + "/")
	if err := s.db.DropPrefix(prefix); err != nil {
		return fmt.Errorf("drop cache %s: %w", name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(nameKeyPrefix + name))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// badgerLogger forwards BadgerDB's internal logging to zap
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.s.Errorf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.s.Warnf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.s.Debugf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.s.Debugf(strings.TrimSpace(format), args...)
}
