package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the archive bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// ArchiveResult summarises one archive run.
type ArchiveResult struct {
	Path    string `json:"path"`
	FromSeq uint64 `json:"from_seq"`
	ToSeq   uint64 `json:"to_seq"`
	Events  int    `json:"events"`
}

// EventArchiver moves ledger events to cold storage.
type EventArchiver interface {
	ArchiveEvents(ctx context.Context) (ArchiveResult, error)
}
