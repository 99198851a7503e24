package sync

import (
	"context"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// pullTable implements the per-table pull protocol (spec §4.2): merge the
// remote row set, then (for non-append-only tables) sweep local rows the
// server no longer has.
func (e *Engine) pullTable(ctx context.Context, cfg tableconfig.Config) error {
	userID := ""
	if cfg.UserScoped {
		userID = e.userID()
	}

	remoteRows, err := e.gateway.ListAll(ctx, cfg.RemoteName, userID, cfg.UserScoped)
	if err != nil {
		return err
	}

	serverIDs := make(map[string]struct{}, len(remoteRows))
	for _, remote := range remoteRows {
		id := e.mergeRemoteRow(ctx, cfg, remote)
		if id != "" {
			serverIDs[id] = struct{}{}
		}
	}

	if cfg.AppendOnly {
		return nil
	}
	return e.sweepDeletedOnServer(ctx, cfg, serverIDs)
}

// mergeRemoteRow applies one remote row against the local copy, returning
// the row's id (used by the caller to build the server-id set for the
// authoritative-delete sweep) regardless of whether the row was written
// locally.
func (e *Engine) mergeRemoteRow(ctx context.Context, cfg tableconfig.Config, remote map[string]any) string {
	if cfg.RemoteToLocal != nil {
		remote = cfg.RemoteToLocal(remote)
	}
	id, _ := remote[cfg.PrimaryKey].(string)
	if id == "" {
		return ""
	}

	local, found, err := e.store.GetByID(ctx, cfg, id, true)
	if err != nil {
		e.logger.Error("failed to read local row during pull", "table", cfg.LocalName, "id", id, "error", err)
		return id
	}

	if found {
		if cfg.SupportsSoftDelete && truthy(local["deleted"]) && !truthy(local["synced"]) {
			return id // local deletion wins
		}
		localUpdatedAt, _ := local["updated_at"].(string)
		remoteUpdatedAt, _ := remote["updated_at"].(string)
		if localUpdatedAt > remoteUpdatedAt {
			return id // local wins
		}
	}

	if err := e.store.Upsert(ctx, cfg, remote, true); err != nil {
		e.logger.Error("failed to apply pulled row", "table", cfg.LocalName, "id", id, "error", err)
		return id
	}
	e.notifyMutation()
	return id
}

// sweepDeletedOnServer removes local rows that are synced, not already
// tombstoned, and absent from the server's id set — the authoritative
// delete detection the specification requires on non-append-only tables.
func (e *Engine) sweepDeletedOnServer(ctx context.Context, cfg tableconfig.Config, serverIDs map[string]struct{}) error {
	localIDs, err := e.store.GetAllIDs(ctx, cfg)
	if err != nil {
		return err
	}
	for id := range localIDs {
		if _, onServer := serverIDs[id]; onServer {
			continue
		}
		local, found, err := e.store.GetByID(ctx, cfg, id, false)
		if err != nil || !found {
			continue
		}
		if !truthy(local["synced"]) {
			continue
		}
		if err := e.store.HardDelete(ctx, cfg, id); err != nil {
			e.logger.Error("failed to sweep server-deleted row", "table", cfg.LocalName, "id", id, "error", err)
			continue
		}
		e.notifyMutation()
	}
	return nil
}
