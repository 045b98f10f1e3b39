package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// snapshotPartSize is the multipart chunk size for JSONL snapshots.
const snapshotPartSize int64 = 8 * 1024 * 1024

// ReportArchiver writes pipeline run reports and record snapshots to object
// storage, partitioned by run date:
//
//	reports/relations/2025/06/01/<run-id>.json
//	snapshots/volatility/2025/06/01/<run-id>.jsonl
type ReportArchiver struct {
	writer domain.BlobWriter
}

// NewReportArchiver creates a ReportArchiver on top of writer.
func NewReportArchiver(writer domain.BlobWriter) *ReportArchiver {
	return &ReportArchiver{writer: writer}
}

// WriteReport uploads report as indented JSON and returns its key.
func (a *ReportArchiver) WriteReport(ctx context.Context, kind, runID string, at time.Time, report any) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal %s report: %w", kind, err)
	}

	path := datedPath("reports", kind, runID, at, "json")
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload %s report: %w", kind, err)
	}
	return path, nil
}

// WriteVolatilitySnapshot uploads one JSONL line per record through the
// multipart uploader and returns the key. Empty snapshots are skipped.
func (a *ReportArchiver) WriteVolatilitySnapshot(ctx context.Context, runID string, at time.Time, records []domain.VolatilityRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal volatility snapshot: %w", err)
	}

	path := datedPath("snapshots", "volatility", runID, at, "jsonl")
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), snapshotPartSize); err != nil {
		return "", fmt.Errorf("s3blob: upload volatility snapshot: %w", err)
	}
	return path, nil
}

// datedPath builds <root>/<kind>/yyyy/mm/dd/<run-id>.<ext> from the UTC date.
func datedPath(root, kind, runID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s", root, kind, at.UTC().Format("2006/01/02"), runID, ext)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
