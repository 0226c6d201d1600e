package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"survey-platform/internal/locking"
)

// FileRepo keeps every survey in one JSON document on disk. Writes replace the
// file atomically. Writers in other processes are excluded by an advisory
// "<path>.lock" file held across each read-modify-write.
type FileRepo struct {
	mu       sync.Mutex
	path     string
	lockWait time.Duration
}

const defaultFileLockWait = 5 * time.Second

func NewFileRepo(path string) *FileRepo {
	return &FileRepo{path: path, lockWait: defaultFileLockWait}
}

type fileDoc struct {
	Surveys []Survey `json:"surveys"`
}

func (r *FileRepo) Create(ctx context.Context, s Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	doc, err := r.read()
	if err != nil {
		return err
	}
	for _, cur := range doc.Surveys {
		if cur.ID == s.ID {
			return fmt.Errorf("%w: survey %s already exists", ErrConflict, s.ID)
		}
	}
	s.Version = 1
	doc.Surveys = append(doc.Surveys, s.Clone())
	return r.write(doc)
}

func (r *FileRepo) Load(ctx context.Context, id string) (Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return Survey{}, err
	}
	for _, s := range doc.Surveys {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return Survey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *FileRepo) Save(ctx context.Context, s Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	unlock, err := r.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	doc, err := r.read()
	if err != nil {
		return err
	}
	for i, cur := range doc.Surveys {
		if cur.ID != s.ID {
			continue
		}
		if cur.Version != s.Version-1 {
			return fmt.Errorf("%w: %s at version %d, got %d", ErrConflict, s.ID, cur.Version, s.Version)
		}
		doc.Surveys[i] = s.Clone()
		return r.write(doc)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
}

func (r *FileRepo) List(ctx context.Context, f ListFilter) ([]Survey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make([]Survey, 0, len(doc.Surveys))
	for _, s := range doc.Surveys {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	return sortAndLimit(out, f), nil
}

func (r *FileRepo) lockPath() string { return r.path + ".lock" }

// lockFile creates the lock file exclusively, polling until lockWait elapses.
// A lock file left behind by a crashed process must be removed by hand.
func (r *FileRepo) lockFile(ctx context.Context) (func(), error) {
	path := r.lockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("survey: mkdir %s: %w", filepath.Dir(path), err)
	}
	deadline := time.Now().Add(r.lockWait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("survey: lock %s: %w", path, err)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s is held by another writer", locking.ErrBusy, path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (r *FileRepo) read() (fileDoc, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileDoc{}, nil
	}
	if err != nil {
		return fileDoc{}, fmt.Errorf("survey: read %s: %w", r.path, err)
	}
	var doc fileDoc
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return fileDoc{}, fmt.Errorf("survey: decode %s: %w", r.path, err)
	}
	return doc, nil
}

func (r *FileRepo) write(doc fileDoc) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("survey: encode: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("survey: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".surveys-*.json")
	if err != nil {
		return fmt.Errorf("survey: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("survey: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("survey: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("survey: replace %s: %w", r.path, err)
	}
	return nil
}
