package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmehdipour/notify-gateway/internal/model"
)

// FileSubscribersRepository stores the snapshot as one JSON document.
// Writes go to a temp file in the same directory and are renamed over the
// target, so readers see either the old or the new document, never a torn one.
type FileSubscribersRepository struct {
	path string
}

func NewFileSubscribersRepository(path string) (*FileSubscribersRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileSubscribersRepository{path: path}, nil
}

var _ SubscribersRepository = (*FileSubscribersRepository)(nil)

func (r *FileSubscribersRepository) Path() string { return r.path }

func (r *FileSubscribersRepository) Load(_ context.Context) (model.Subscribers, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Subscribers{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return model.Subscribers{}, nil
	}

	var subs model.Subscribers
	if err := json.Unmarshal(b, &subs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	if subs == nil {
		subs = model.Subscribers{}
	}
	return subs, nil
}

func (r *FileSubscribersRepository) Save(_ context.Context, subs model.Subscribers) error {
	if subs == nil {
		subs = model.Subscribers{}
	}
	b, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}

	dir := filepath.Dir(r.path)
	f, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		cleanup()
		return err
	}
	return nil
}
