package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

const ndjson = "application/x-ndjson"

// multipartThreshold is the batch size above which uploads go through the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver buffers trade records and uploads them as JSON Lines objects.
// It satisfies the engine's trade sink contract: Append never touches the
// network, Run flushes every interval and once more on shutdown.
type Archiver struct {
	writer   domain.BlobWriter
	prefix   string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []domain.TradeRecord
	seq     int
}

// NewArchiver creates an archiver writing under prefix (default "polysniper").
func NewArchiver(writer domain.BlobWriter, prefix string, interval time.Duration, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "polysniper"
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Archiver{
		writer:   writer,
		prefix:   prefix,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// Append queues a record for the next upload.
func (a *Archiver) Append(_ context.Context, rec domain.TradeRecord) error {
	a.mu.Lock()
	a.pending = append(a.pending, rec)
	a.mu.Unlock()
	return nil
}

// Pending returns the number of records not yet uploaded.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush uploads every pending record as one object and returns its key.
// An empty buffer uploads nothing. On failure the records are put back
// in front of anything appended meanwhile.
func (a *Archiver) Flush(ctx context.Context) (string, error) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	if len(batch) == 0 {
		a.mu.Unlock()
		return "", nil
	}
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	buf, err := marshalJSONL(batch)
	if err != nil {
		a.requeue(batch)
		return "", fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(a.prefix, a.now().UTC(), seq)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(buf), ndjson)
	}
	if err != nil {
		a.requeue(batch)
		return "", fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("key", key),
		slog.Int("records", len(batch)),
	)
	return key, nil
}

// Run flushes on every tick until ctx is cancelled, then makes a final
// flush that is not bound to ctx.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			if _, err := a.Flush(final); err != nil {
				a.logger.Error("final archive flush failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) requeue(batch []domain.TradeRecord) {
	a.mu.Lock()
	a.pending = append(batch, a.pending...)
	a.mu.Unlock()
}

// archiveKey partitions objects by day:
//
//	polysniper/trades/2026-05-01/20260501T120000Z-0001.jsonl
func archiveKey(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s/trades/%s/%s-%04d.jsonl", prefix, at.Format("2006-01-02"), at.Format("20060102T150405Z"), seq)
}

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
