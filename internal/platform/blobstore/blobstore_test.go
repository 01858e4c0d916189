package blobstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestInMemoryStore_PutAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	data := []byte("dicom bytes")
	info, err := store.Put(ctx, "dicom/p1/s1/sop1.dcm", "application/dicom", data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if info.SizeBytes != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), info.SizeBytes)
	}
	if info.Hash == "" {
		t.Error("expected non-empty hash")
	}
	if info.DownloadRef != "/api/v1/blobs/dicom/p1/s1/sop1.dcm" {
		t.Errorf("unexpected download ref: %s", info.DownloadRef)
	}

	rc, got, err := store.Get(ctx, "dicom/p1/s1/sop1.dcm")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != string(data) {
		t.Errorf("content mismatch: %q", content)
	}
	if got.Hash != info.Hash {
		t.Error("hash mismatch between Put and Get")
	}
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	store := NewInMemoryStore()
	_, _, err := store.Get(context.Background(), "no/such/blob")
	if err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryStore_PutValidatesPath(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if _, err := store.Put(ctx, "", "application/dicom", []byte("x")); err != ErrEmptyPath {
		t.Errorf("expected ErrEmptyPath, got %v", err)
	}
	if _, err := store.Put(ctx, "../etc/passwd", "text/plain", []byte("x")); err == nil {
		t.Error("expected error for path traversal")
	}
}

func TestInMemoryStore_PutCopiesData(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	data := []byte("original")
	if _, err := store.Put(ctx, "p", "text/plain", data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data[0] = 'X'

	rc, _, err := store.Get(ctx, "p")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "original" {
		t.Errorf("stored blob was mutated by caller: %q", content)
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "p", "text/plain", []byte("x"))
	if err := store.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "p"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestFSStore_PutGetStat(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	ctx := context.Background()

	data := []byte("file contents")
	info, err := store.Put(ctx, "dicom/p1/s1/sop1.dcm", "application/dicom", data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if info.SizeBytes != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), info.SizeBytes)
	}

	rc, got, err := store.Get(ctx, "dicom/p1/s1/sop1.dcm")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != string(data) {
		t.Errorf("content mismatch: %q", content)
	}
	if got.SizeBytes != int64(len(data)) {
		t.Errorf("Stat size mismatch: %d", got.SizeBytes)
	}

	stat, err := store.Stat(ctx, "dicom/p1/s1/sop1.dcm")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.SizeBytes != int64(len(data)) {
		t.Errorf("unexpected stat size: %d", stat.SizeBytes)
	}
}

func TestFSStore_GetMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	_, _, err = store.Get(context.Background(), "no/such/blob")
	if err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestHandler_Download(t *testing.T) {
	store := NewInMemoryStore()
	store.Put(context.Background(), "dicom/p1/s1/sop1.dcm", "application/dicom", []byte("payload"))

	e := echo.New()
	g := e.Group("/api/v1")
	NewHandler(store).RegisterRoutes(g)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/dicom/p1/s1/sop1.dcm", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "payload" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/dicom" {
		t.Errorf("expected application/dicom, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="sop1.dcm"` {
		t.Errorf("unexpected content disposition: %q", cd)
	}
}

func TestHandler_DownloadMissing(t *testing.T) {
	e := echo.New()
	g := e.Group("/api/v1")
	NewHandler(NewInMemoryStore()).RegisterRoutes(g)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/missing.dcm", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
