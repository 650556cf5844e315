// ABOUTME: Batch key-material updates fanned out as per-key store operations
// ABOUTME: A nil blob is a removal marker; per-key failures are logged and skipped

package credstore

import (
	"context"
	"log/slog"
)

// KeyBatch maps category to id to blob. A nil blob marks the key for removal.
type KeyBatch map[string]map[string][]byte

// Apply performs one PutBlob or DeleteBlob per composite key in the batch.
// There is no cross-key atomicity: a batch of N entries is N independent
// storage operations, and a failing entry is logged and dropped without
// stopping the rest.
func Apply(ctx context.Context, store Store, batch KeyBatch, logger *slog.Logger) {
	for category, entries := range batch {
		for id, blob := range entries {
			if blob == nil {
				if err := store.DeleteBlob(ctx, category, id); err != nil {
					logger.Error("deleting key material failed, update dropped",
						"key", CompositeKey(category, id),
						"error", err,
					)
				}
				continue
			}

			if err := store.PutBlob(ctx, category, id, blob); err != nil {
				logger.Error("persisting key material failed, update dropped",
					"key", CompositeKey(category, id),
					"error", err,
				)
			}
		}
	}
}
