// Package storage persists search results between runs in BadgerDB, keyed
// by the position's Zobrist hash.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("storage: not found")

const analysisPrefix = "analysis/"

// Analysis is the stored outcome of searching one position.
type Analysis struct {
	FEN     string        `json:"fen"`
	Move    string        `json:"move"`
	Score   int           `json:"score"`
	Depth   int           `json:"depth"`
	Nodes   uint64        `json:"nodes"`
	Time    time.Duration `json:"time"`
	Updated time.Time     `json:"updated"`
}

// Store wraps BadgerDB for persistent storage
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the store in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = badgerLogger{log.Logger.With().Str("component", "badger").Logger()}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open analysis store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func analysisKey(hash uint64) []byte {
	key := make([]byte, len(analysisPrefix)+8)
	copy(key, analysisPrefix)
	binary.BigEndian.PutUint64(key[len(analysisPrefix):], hash)
	return key
}

// Put stores a, replacing any earlier analysis of the same position.
func (s *Store) Put(hash uint64, a Analysis) error {
	if a.Updated.IsZero() {
		a.Updated = time.Now()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(analysisKey(hash), data)
	})
}

// Get loads the analysis stored for hash, or ErrNotFound.
func (s *Store) Get(hash uint64) (Analysis, error) {
	var a Analysis
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(analysisKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	return a, err
}

// Delete removes the analysis for hash. Deleting a missing key is not an error.
func (s *Store) Delete(hash uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(analysisKey(hash))
	})
}

// Each calls fn for every stored analysis in key order until fn returns
// an error.
func (s *Store) Each(fn func(hash uint64, a Analysis) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(analysisPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			hash := binary.BigEndian.Uint64(item.Key()[len(analysisPrefix):])
			var a Analysis
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("analysis %016x: %w", hash, err)
			}
			if err := fn(hash, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored analyses.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.Each(func(uint64, Analysis) error {
		n++
		return nil
	})
	return n, err
}

// badgerLogger routes badger's internal logging into zerolog. Badger is
// chatty at info level, so that goes to debug.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error().Msgf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn().Msgf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug().Msgf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Trace().Msgf(format, args...)
}
