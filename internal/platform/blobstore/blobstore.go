// Package blobstore stores imported instance payloads under caller-chosen
// paths. It defines the BlobStore interface, an in-memory implementation for
// tests and development, a filesystem implementation, and an Echo download
// handler.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrEmptyPath    = errors.New("blob path is required")
	ErrBlobTooLarge = errors.New("blob exceeds maximum allowed size")
)

// MaxBlobSize is the maximum allowed payload size in bytes (500 MB, sized for
// uncompressed multi-frame DICOM instances).
const MaxBlobSize = 500 * 1024 * 1024

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Hash        string    `json:"hash"`
	DownloadRef string    `json:"download_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) (*ObjectInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, *ObjectInfo, error)
	Delete(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (*ObjectInfo, error)
}

// downloadRef is the public route serving a stored path.
func downloadRef(path string) string {
	return "/api/v1/blobs/" + path
}

func describe(path, contentType string, data []byte) *ObjectInfo {
	h := sha256.Sum256(data)
	return &ObjectInfo{
		Path:        path,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		DownloadRef: downloadRef(path),
		CreatedAt:   time.Now().UTC(),
	}
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("invalid blob path %q", path)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	info    ObjectInfo
	content []byte
}

// InMemoryStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryStore) Put(_ context.Context, path, contentType string, data []byte) (*ObjectInfo, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxBlobSize {
		return nil, ErrBlobTooLarge
	}

	info := describe(path, contentType, data)

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[path] = &storedBlob{info: *info, content: buf}
	s.mu.Unlock()

	return info, nil
}

func (s *InMemoryStore) Get(_ context.Context, path string) (io.ReadCloser, *ObjectInfo, error) {
	s.mu.RLock()
	blob, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	info := blob.info // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &info, nil
}

func (s *InMemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, path)
	return nil
}

func (s *InMemoryStore) Stat(_ context.Context, path string) (*ObjectInfo, error) {
	s.mu.RLock()
	blob, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	info := blob.info // copy
	return &info, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves stored blobs for download.
type Handler struct {
	store BlobStore
}

// NewHandler creates a new download Handler.
func NewHandler(store BlobStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the download route on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/blobs/*", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	path := c.Param("*")

	rc, info, err := h.store.Get(c.Request().Context(), path)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Stream(http.StatusOK, info.ContentType, rc)
}
