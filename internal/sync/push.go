package sync

import (
	"context"
	"encoding/json"

	"github.com/fitsync/fitsync/internal/sync/gatewayerr"
	"github.com/fitsync/fitsync/internal/store"
	"github.com/fitsync/fitsync/internal/tableconfig"
)

// pushTable implements the per-table push protocol (spec §4.2). Rows are
// processed strictly sequentially: the next row is not touched until the
// previous row's remote round-trip and local sync-flag update complete.
func (e *Engine) pushTable(ctx context.Context, cfg tableconfig.Config) error {
	rows, err := e.store.GetAllUnsynced(ctx, cfg)
	if err != nil {
		return err
	}

	for _, row := range rows {
		e.pushRow(ctx, cfg, row)
	}
	return nil
}

func (e *Engine) pushRow(ctx context.Context, cfg tableconfig.Config, row map[string]any) {
	id, _ := row[cfg.PrimaryKey].(string)

	// Step 1: tombstone.
	if cfg.SupportsSoftDelete && truthy(row["deleted"]) {
		if err := e.gateway.Delete(ctx, cfg.RemoteName, id); err != nil {
			e.handlePushFailure(ctx, cfg, store.OpDelete, id, row, err)
			return
		}
		e.markSynced(ctx, cfg, id)
		return
	}

	// Step 2: append-only skips the timestamp check entirely.
	if cfg.AppendOnly {
		if err := e.upsertRemote(ctx, cfg, row); err != nil {
			e.handlePushFailure(ctx, cfg, store.OpUpsert, id, row, err)
			return
		}
		e.markSynced(ctx, cfg, id)
		return
	}

	// Step 3: clock comparison against the server's current updated_at.
	localUpdatedAt, _ := row["updated_at"].(string)
	remoteUpdatedAt, found, err := e.gateway.GetUpdatedAt(ctx, cfg.RemoteName, id)
	if err != nil {
		e.handlePushFailure(ctx, cfg, store.OpUpsert, id, row, err)
		return
	}
	if found && remoteUpdatedAt > localUpdatedAt {
		// Server wins: mark synced without pushing.
		e.markSynced(ctx, cfg, id)
		return
	}

	// Local is newer, equal (client wins ties), or absent remotely.
	if err := e.upsertRemote(ctx, cfg, row); err != nil {
		e.handlePushFailure(ctx, cfg, store.OpUpsert, id, row, err)
		return
	}
	e.markSynced(ctx, cfg, id)
}

func (e *Engine) upsertRemote(ctx context.Context, cfg tableconfig.Config, row map[string]any) error {
	projected := projectForWire(cfg, row)
	return e.gateway.Upsert(ctx, cfg.RemoteName, []map[string]any{projected}, cfg.OnConflict)
}

// projectForWire strips local-only fields and applies the table's
// LocalToRemote transform, if any.
func projectForWire(cfg tableconfig.Config, row map[string]any) map[string]any {
	out := make(map[string]any, len(cfg.Columns))
	for _, col := range cfg.Columns {
		out[col] = row[col]
	}
	if cfg.LocalToRemote != nil {
		out = cfg.LocalToRemote(out)
	}
	return out
}

func (e *Engine) markSynced(ctx context.Context, cfg tableconfig.Config, id string) {
	if err := e.store.UpdateSyncFlag(ctx, cfg, id, true); err != nil {
		e.logger.Error("failed to mark row synced", "table", cfg.LocalName, "id", id, "error", err)
		return
	}
	e.notifyMutation()
}

// handlePushFailure implements step 4/5: authorization rejections purge
// the local row outright; every other failure is durably enqueued.
func (e *Engine) handlePushFailure(ctx context.Context, cfg tableconfig.Config, op store.Op, id string, row map[string]any, err error) {
	if gatewayerr.Is(err, gatewayerr.KindAuth) || isIdentifierPurge(cfg, err) {
		e.purgeLocal(ctx, cfg, id)
		return
	}

	payload, mErr := json.Marshal(projectForWire(cfg, row))
	if mErr != nil {
		e.logger.Error("failed to marshal outbox payload", "table", cfg.LocalName, "id", id, "error", mErr)
		return
	}
	createdAt, _ := row["updated_at"].(string)
	if enqErr := e.store.Enqueue(ctx, cfg.LocalName, op, id, string(payload), createdAt); enqErr != nil {
		e.logger.Error("failed to enqueue outbox entry", "table", cfg.LocalName, "id", id, "error", enqErr)
	}
}

// isIdentifierPurge implements the health-summary-only malformed-identifier
// purge rule (spec §7/§9): a malformed id is treated as an authorization
// rejection solely on that table, since it is the one table known to carry
// legacy non-UUID ids.
func isIdentifierPurge(cfg tableconfig.Config, err error) bool {
	return cfg.LocalName == "health_summaries" && gatewayerr.Is(err, gatewayerr.KindMalformed)
}

func (e *Engine) purgeLocal(ctx context.Context, cfg tableconfig.Config, id string) {
	if err := e.store.HardDelete(ctx, cfg, id); err != nil {
		e.logger.Error("failed to purge local row after authorization rejection", "table", cfg.LocalName, "id", id, "error", err)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case int64:
		return t != 0
	case int:
		return t != 0
	case bool:
		return t
	default:
		return false
	}
}
