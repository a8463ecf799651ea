// Package store implements the shared key/value store backing session
// and settings persistence. The store is a single JSON document on disk,
// readable by every examdesk process of the same user; external writes
// surface through an fsnotify-based change subscription so a credential
// written by one process is adopted by the others without polling.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrMalformed reports a persisted value that could not be decoded (or
// decrypted). Callers treat it as absence.
var ErrMalformed = errors.New("store: malformed value")

// ChangeFunc receives external changes for a subscribed key. A nil raw
// value means the key was removed.
type ChangeFunc func(raw json.RawMessage)

// Options configures a Store.
type Options struct {
	// EncryptedKeys lists keys whose values are encrypted at rest.
	EncryptedKeys []string

	// KeyFile is the path of the local key material file used to derive
	// the encryption key. Created with a fresh random key if missing.
	// Required when EncryptedKeys is non-empty.
	KeyFile string

	Logger *slog.Logger
}

// Store is a file-backed key/value store with last-writer-wins
// semantics. Values are raw JSON. Concurrent writers are expected to be
// rare (one process performs login/logout at a time); readers in other
// processes observe changes via OnExternalChange.
type Store struct {
	path   string
	logger *slog.Logger
	cipher *valueCipher // nil when no keys are encrypted

	encrypted map[string]bool

	mu       sync.Mutex
	snapshot map[string]json.RawMessage
	subs     map[string][]ChangeFunc

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads (or initializes) the store file at path and starts watching
// it for external changes.
func Open(path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:      path,
		logger:    logger.With("component", "store"),
		encrypted: make(map[string]bool, len(opts.EncryptedKeys)),
		subs:      make(map[string][]ChangeFunc),
		done:      make(chan struct{}),
	}
	for _, k := range opts.EncryptedKeys {
		s.encrypted[k] = true
	}

	if len(opts.EncryptedKeys) > 0 {
		c, err := newValueCipher(opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("store: init cipher: %w", err)
		}
		s.cipher = c
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	snap, err := readDocument(path)
	if err != nil {
		// A corrupt store file is not fatal; start from empty and let
		// the next write replace it.
		s.logger.Warn("store file unreadable, starting empty", "path", path, "error", err)
		snap = make(map[string]json.RawMessage)
	}
	s.snapshot = snap

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: watcher: %w", err)
	}
	// Watch the directory, not the file: atomic replace via rename would
	// otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("store: watch %s: %w", filepath.Dir(path), err)
	}
	s.watcher = watcher

	go s.watchLoop()

	return s, nil
}

// Close stops the change watcher. Idempotent.
func (s *Store) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	return s.watcher.Close()
}

// Get decodes the value stored under key into target. The second return
// is false when the key is absent. Undecodable or undecryptable values
// return ErrMalformed; callers treat that as absence.
func (s *Store) Get(key string, target any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.snapshot[key]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}

	plain, err := s.decodeValue(key, raw)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(plain, target); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) error {
	plain, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}

	raw := json.RawMessage(plain)
	if s.encrypted[key] {
		raw, err = s.cipher.seal(plain)
		if err != nil {
			return fmt.Errorf("store: seal %s: %w", key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot[key] = raw
	return s.flushLocked()
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshot[key]; !ok {
		return nil
	}
	delete(s.snapshot, key)
	return s.flushLocked()
}

// OnExternalChange registers fn for changes to key made by other
// processes. The local process's own writes are not delivered.
// Callbacks run on the watcher goroutine in arrival order.
func (s *Store) OnExternalChange(key string, fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[key] = append(s.subs[key], fn)
}

// DecodeRaw decodes a raw value previously delivered by OnExternalChange
// for the given key, applying decryption when the key is encrypted.
func (s *Store) DecodeRaw(key string, raw json.RawMessage, target any) error {
	plain, err := s.decodeValue(key, raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

func (s *Store) decodeValue(key string, raw json.RawMessage) (json.RawMessage, error) {
	if !s.encrypted[key] {
		return raw, nil
	}
	plain, err := s.cipher.open(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return plain, nil
}

// flushLocked writes the snapshot to disk atomically. Caller holds mu.
// Because the snapshot is updated before the write, the watcher's diff
// sees no difference for self-originated events and stays quiet.
func (s *Store) flushLocked() error {
	b, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: replace: %w", err)
	}
	return nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.reloadAndNotify()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("store watch error", "error", err)
		}
	}
}

// reloadAndNotify re-reads the store file, diffs it against the
// last-known snapshot and fires subscriber callbacks for keys that
// changed externally.
func (s *Store) reloadAndNotify() {
	current, err := readDocument(s.path)
	if err != nil {
		s.logger.Warn("external store change unreadable, ignoring", "error", err)
		return
	}

	type delta struct {
		fns []ChangeFunc
		raw json.RawMessage
	}

	s.mu.Lock()
	var deltas []delta
	for key, fns := range s.subs {
		oldRaw, hadOld := s.snapshot[key]
		newRaw, hasNew := current[key]

		switch {
		case hadOld && !hasNew:
			deltas = append(deltas, delta{fns: fns, raw: nil})
		case hasNew && (!hadOld || !jsonEqual(oldRaw, newRaw)):
			deltas = append(deltas, delta{fns: fns, raw: newRaw})
		}
	}
	s.snapshot = current
	s.mu.Unlock()

	for _, d := range deltas {
		for _, fn := range d.fns {
			fn(d.raw)
		}
	}
}

func readDocument(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("store: read: %w", err)
	}
	out := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("store: parse: %w", err)
	}
	return out, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	return string(a) == string(b)
}
