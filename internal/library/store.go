package library

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"kitsu2sonarr/internal/util"

	"github.com/gofrs/flock"
)

var NilLogger = log.New(io.Discard, "", 0)

var (
	ErrCorruptStore = errors.New("record store is corrupt")
	ErrStoreLocked  = errors.New("record store is locked by another run")
)

// CorruptStoreError points at the place in the file where decoding failed.
type CorruptStoreError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("there seems to be an issue with %s at L%d:C%d: %v", e.Path, e.Line, e.Column, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

func (e *CorruptStoreError) Is(target error) bool { return target == ErrCorruptStore }

// Store reads and rewrites the whole record map as one JSON object.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *log.Logger
}

func NewStore(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = NilLogger
	}
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) GetLogger() *log.Logger { return s.logger }

func (s *Store) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = NilLogger
	}
	s.logger = logger
}

// Lock takes an exclusive, non-blocking lock on a sibling .lock file.
func (s *Store) Lock() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrStoreLocked, s.lock.Path())
	}
	return nil
}

func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Load returns an empty map when the file does not exist yet.
func (s *Store) Load() (Records, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("  %s No library file at %s, starting fresh.", util.Cyan("[STORE]"), s.path)
			return Records{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Records{}, nil
	}

	var records Records
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, corruptError(s.path, data, err)
	}
	if records == nil {
		records = Records{}
	}
	s.logger.Printf("  %s Loaded %s records from %s.", util.Cyan("[STORE]"), util.Green(len(records)), s.path)
	return records, nil
}

// Save replaces the file with the full map via a temp file and rename.
func (s *Store) Save(records Records) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func corruptError(path string, data []byte, err error) error {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	line, col := position(data, offset)
	return &CorruptStoreError{Path: path, Line: line, Column: col, Err: err}
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset < 0 {
		return 0, 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	prefix := data[:offset]
	line := bytes.Count(prefix, []byte("\n")) + 1
	col := len(prefix) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}
