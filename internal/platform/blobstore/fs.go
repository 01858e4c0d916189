package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// FSStore persists blobs under a root directory, one file per path plus a
// sidecar .meta.json holding the ObjectInfo.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns an FSStore.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) resolve(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *FSStore) metaPath(path string) string {
	return s.resolve(path) + ".meta.json"
}

func (s *FSStore) Put(_ context.Context, path, contentType string, data []byte) (*ObjectInfo, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxBlobSize {
		return nil, ErrBlobTooLarge
	}

	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, err
	}

	info := describe(path, contentType, data)
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.metaPath(path), meta, 0o644); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *FSStore) Get(ctx context.Context, path string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := s.Stat(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.resolve(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, err
	}
	return f, info, nil
}

func (s *FSStore) Delete(_ context.Context, path string) error {
	err := os.Remove(s.resolve(path))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return err
	}
	_ = os.Remove(s.metaPath(path))
	return nil
}

func (s *FSStore) Stat(_ context.Context, path string) (*ObjectInfo, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	meta, err := os.ReadFile(s.metaPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	var info ObjectInfo
	if err := json.Unmarshal(meta, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
