package sync

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/fitsync/fitsync/internal/sync/gatewayerr"
	"github.com/fitsync/fitsync/internal/store"
)

const (
	outboxMaxRetries = 5
	outboxBackoffCap = 60 * time.Second
	outboxBackoffUnit = 1 * time.Second
)

// drainOutbox implements the outbox drain algorithm (spec §4.2): read
// ready entries ordered by retry schedule, dead-letter exhausted ones,
// replay the rest, and reschedule failures with exponential back-off.
func (e *Engine) drainOutbox(ctx context.Context) {
	now := e.clock().UTC()
	entries, err := e.store.Drain(ctx, true, now.Format(time.RFC3339))
	if err != nil {
		e.logger.Error("failed to read outbox", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.RetryCount >= outboxMaxRetries {
			if rerr := e.store.RemoveOutboxEntry(ctx, entry.ID); rerr != nil {
				e.logger.Error("failed to dead-letter outbox entry", "id", entry.ID, "error", rerr)
			} else {
				e.logger.Warn("dead-lettering outbox entry", "id", entry.ID, "table", entry.TableName, "record_id", entry.RecordID)
			}
			continue
		}
		e.replayOutboxEntry(ctx, entry, now)
	}
}

func (e *Engine) replayOutboxEntry(ctx context.Context, entry store.OutboxEntry, now time.Time) {
	cfg, ok := e.registry.Get(entry.TableName)
	if !ok {
		e.logger.Error("outbox entry for unregistered table, dropping", "table", entry.TableName)
		e.store.RemoveOutboxEntry(ctx, entry.ID)
		return
	}

	var err error
	switch entry.Op {
	case store.OpDelete:
		err = e.gateway.Delete(ctx, cfg.RemoteName, entry.RecordID)
	default:
		var row map[string]any
		if uerr := json.Unmarshal([]byte(entry.Payload), &row); uerr != nil {
			e.logger.Error("outbox payload decode failed, dropping", "id", entry.ID, "error", uerr)
			e.store.RemoveOutboxEntry(ctx, entry.ID)
			return
		}
		err = e.gateway.Upsert(ctx, cfg.RemoteName, []map[string]any{row}, cfg.OnConflict)
	}

	if err == nil {
		if rerr := e.store.RemoveOutboxEntry(ctx, entry.ID); rerr != nil {
			e.logger.Error("failed to remove drained outbox entry", "id", entry.ID, "error", rerr)
			return
		}
		if merr := e.store.UpdateSyncFlag(ctx, cfg, entry.RecordID, true); merr != nil {
			e.logger.Error("failed to mark row synced after drain", "id", entry.ID, "error", merr)
		}
		e.notifyMutation()
		return
	}

	if gatewayerr.Is(err, gatewayerr.KindAuth) || isIdentifierPurge(cfg, err) {
		e.purgeLocal(ctx, cfg, entry.RecordID)
		if rerr := e.store.RemoveOutboxEntry(ctx, entry.ID); rerr != nil {
			e.logger.Error("failed to remove purged outbox entry", "id", entry.ID, "error", rerr)
		}
		return
	}

	nextRetry := now.Add(backoffDelay(entry.RetryCount))
	if ierr := e.store.IncrementRetry(ctx, entry.ID, nextRetry.Format(time.RFC3339)); ierr != nil {
		e.logger.Error("failed to reschedule outbox entry", "id", entry.ID, "error", ierr)
	}
}

// backoffDelay computes min(60s, 1s * 2^retryCount).
func backoffDelay(retryCount int) time.Duration {
	d := outboxBackoffUnit * time.Duration(math.Pow(2, float64(retryCount)))
	if d > outboxBackoffCap {
		return outboxBackoffCap
	}
	return d
}
