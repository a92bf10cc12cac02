package livedir

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/keenon/AddBiomechanics-sub000/internal/events"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/internal/storage"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
	"github.com/keenon/AddBiomechanics-sub000/pkg/tree"
)

// UploadText stores text at path. On success the change is applied locally
// at once and then published so other clients converge.
func (d *Directory) UploadText(ctx context.Context, path, text string) error {
	key := tree.Normalize(d.root, path)
	if err := d.store.UploadText(ctx, key, text); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	metrics.RecordUpload(int64(len(text)))
	d.echo(ctx, events.TypeUpdate, models.ChangePayload{
		Key:          key,
		Size:         int64(len(text)),
		LastModified: time.Now().UnixMilli(),
	})
	return nil
}

// UploadFile stores size bytes from body at path, reporting progress to
// onProgress if non-nil.
func (d *Directory) UploadFile(ctx context.Context, path string, body io.Reader, size int64, onProgress storage.ProgressFunc) error {
	key := tree.Normalize(d.root, path)
	if err := d.store.UploadFile(ctx, key, body, size, onProgress); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	metrics.RecordUpload(size)
	d.echo(ctx, events.TypeUpdate, models.ChangePayload{
		Key:          key,
		Size:         size,
		LastModified: time.Now().UnixMilli(),
	})
	return nil
}

// Delete removes the object at path.
func (d *Directory) Delete(ctx context.Context, path string) error {
	key := tree.Normalize(d.root, path)
	if err := d.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	d.echo(ctx, events.TypeDelete, models.ChangePayload{
		Key:          key,
		LastModified: time.Now().UnixMilli(),
	})
	return nil
}

// DeleteByPrefix deletes every file under path. Deletes run concurrently and
// are not rolled back on failure; the first error is returned once all have
// finished.
func (d *Directory) DeleteByPrefix(ctx context.Context, path string) error {
	entry, err := d.Load(ctx, path, true)
	if err != nil {
		return fmt.Errorf("list %s: %w", path, err)
	}

	var g errgroup.Group
	g.SetLimit(d.deleteConcurrency)
	for _, f := range entry.Files {
		g.Go(func() error {
			return d.Delete(ctx, f.Key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logging.Debug("Deleted prefix",
		zap.String("path", entry.Path),
		zap.Int("files", len(entry.Files)),
	)
	return nil
}

// echo applies a successful mutation to the local cache and then publishes
// it. A failed publish is logged; the store already holds the change.
func (d *Directory) echo(ctx context.Context, eventType string, payload models.ChangePayload) {
	if err := d.ingest(eventType, payload, originLocal); err != nil {
		logging.Warn("Local echo failed", zap.String("key", payload.Key), zap.Error(err))
	}
	if d.bus == nil {
		return
	}

	msg, err := events.NewChangeMessage(d.deployment, eventType, payload)
	if err != nil {
		logging.Warn("Encoding change event failed", zap.String("key", payload.Key), zap.Error(err))
		return
	}
	if err := d.bus.Publish(ctx, msg); err != nil {
		logging.Warn("Publishing change event failed",
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
	}
}
