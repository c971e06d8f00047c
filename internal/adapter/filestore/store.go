// Package filestore is a ports.KV backed by one JSON document on disk.
//
// Several processes may share the file (a CLI command next to a running
// panel). Every read and read-modify-write holds an advisory lock on
// "<path>.lock", and writes land through a uniquely named temp file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"timersync/internal/ports"
)

var _ ports.KV = (*Store)(nil)

const lockRetry = 10 * time.Millisecond

// Store keeps every key in a single JSON object. Values must be JSON.
type Store struct {
	path string
	log  *slog.Logger

	mu  sync.Mutex // serializes use of flk within the process
	flk *flock.Flock
}

func New(path string, log *slog.Logger) *Store {
	return &Store{path: path, log: log, flk: flock.New(path + ".lock")}
}

// Path returns the file location, for watchers.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := doc[key]
	if !ok {
		return "", false, nil
	}
	return string(v), true, nil
}

// GetMany reads the file once, so all values come from the same write.
func (s *Store) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	doc, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			out[k] = string(v)
		}
	}
	return out, nil
}

func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if !json.Valid([]byte(v)) {
			return fmt.Errorf("filestore: value for %q is not JSON", k)
		}
	}
	return s.update(ctx, func(doc map[string]json.RawMessage) {
		for k, v := range values {
			doc[k] = json.RawMessage(v)
		}
	})
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.update(ctx, func(doc map[string]json.RawMessage) {
		for _, k := range keys {
			delete(doc, k)
		}
	})
}

func (s *Store) read(ctx context.Context) (map[string]json.RawMessage, error) {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load()
}

// update applies fn to the current document under the exclusive lock.
func (s *Store) update(ctx context.Context, fn func(map[string]json.RawMessage)) error {
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	fn(doc)
	return s.save(doc)
}

func (s *Store) lock(ctx context.Context, exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.flk.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = s.flk.TryRLockContext(ctx, lockRetry)
	}
	if err == nil && !ok {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("filestore: lock %s: %w", s.flk.Path(), err)
	}
	return func() {
		if err := s.flk.Unlock(); err != nil {
			s.log.Warn("unlock state file failed", slog.String("error", err.Error()))
		}
		s.mu.Unlock()
	}, nil
}

// load reads the document. A missing, empty or corrupt file is an empty document.
func (s *Store) load() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("state file is corrupt, starting empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return make(map[string]json.RawMessage), nil
	}
	return doc, nil
}

// save writes the document atomically through a temp file in the same directory.
func (s *Store) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
