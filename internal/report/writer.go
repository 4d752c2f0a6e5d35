package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

const contentType = "application/json"

// Writer persists reports. The primary store is required; the archive copy
// and the notification are best effort.
type Writer struct {
	primary   ingest.BlobStore
	archive   ingest.BlobStore
	publisher ingest.Publisher
	topic     string
	logger    *zap.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithArchive adds a secondary store, such as a GCS bucket.
func WithArchive(store ingest.BlobStore) Option {
	return func(w *Writer) {
		w.archive = store
	}
}

// WithPublisher publishes a Summary to topic after each write.
func WithPublisher(p ingest.Publisher, topic string) Option {
	return func(w *Writer) {
		w.publisher = p
		w.topic = topic
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates a Writer over primary.
func NewWriter(primary ingest.BlobStore, opts ...Option) *Writer {
	w := &Writer{primary: primary, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores r and returns the primary URI.
func (w *Writer) Write(ctx context.Context, r Run) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	name := FileName(r.RunStartedAt)

	uri, err := w.primary.PutObject(ctx, name, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	if w.archive != nil {
		archived, err := w.archive.PutObject(ctx, name, contentType, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("report archive failed", zap.String("report", name), zap.Error(err))
		} else {
			w.logger.Info("report archived", zap.String("uri", archived))
		}
	}

	if w.publisher != nil && w.topic != "" {
		id, err := w.publisher.Publish(ctx, w.topic, Summarize(r, uri))
		if err != nil {
			w.logger.Warn("run notification failed", zap.String("topic", w.topic), zap.Error(err))
		} else {
			w.logger.Debug("run notification published", zap.String("message_id", id))
		}
	}
	return uri, nil
}
