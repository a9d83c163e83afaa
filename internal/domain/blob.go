package domain

import (
	"context"
	"encoding/json"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver keeps the raw venue payloads of one fetched page. It returns the
// object key the page was stored under.
type Archiver interface {
	Archive(ctx context.Context, site Site, records []json.RawMessage) (string, error)
}
