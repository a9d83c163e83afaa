package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// multipartThreshold switches large pages to the multipart uploader.
const multipartThreshold = 16 * 1024 * 1024

// BatchArchiver implements domain.Archiver by writing each fetched page as
// one JSONL object:
//
//	{prefix}/ingest/{site}/{yyyy-mm-dd}/{uuid}.jsonl
type BatchArchiver struct {
	blob   domain.BlobWriter
	prefix string
	now    func() time.Time
}

var _ domain.Archiver = (*BatchArchiver)(nil)

// NewBatchArchiver creates an archiver writing through blob under prefix.
func NewBatchArchiver(blob domain.BlobWriter, prefix string) *BatchArchiver {
	return &BatchArchiver{blob: blob, prefix: prefix, now: time.Now}
}

// Archive uploads records, one JSON value per line, and returns the key.
func (a *BatchArchiver) Archive(ctx context.Context, site domain.Site, records []json.RawMessage) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, r := range records {
		if err := json.Compact(&buf, r); err != nil {
			return "", fmt.Errorf("s3blob: archive %s record %d: %w", site, i, err)
		}
		buf.WriteByte('\n')
	}

	day := a.now().UTC().Format(time.DateOnly)
	key := path.Join(a.prefix, "ingest", string(site), day, uuid.NewString()+".jsonl")

	var err error
	if buf.Len() >= multipartThreshold {
		err = a.blob.PutMultipart(ctx, key, &buf, minPartSize)
	} else {
		err = a.blob.Put(ctx, key, &buf, "application/x-ndjson")
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
