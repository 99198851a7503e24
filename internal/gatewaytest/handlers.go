package gatewaytest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type handlers struct {
	store *memoryStore
}

type upsertRequest struct {
	Rows       []map[string]any `json:"rows"`
	OnConflict string           `json:"onConflict,omitempty"`
}

func statusForRejection(rejected string) int {
	switch rejected {
	case typePermissionDenied:
		return http.StatusForbidden
	case typeMalformedID:
		return http.StatusUnprocessableEntity
	case typeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (h *handlers) upsertRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	var body upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, r, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	for _, row := range body.Rows {
		if rejected := h.store.upsert(table, row); rejected != "" {
			writeProblem(w, r, statusForRejection(rejected), rejected, "row rejected by table "+table)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) deleteRow(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	if rejected := h.store.delete(table, id); rejected != "" {
		writeProblem(w, r, statusForRejection(rejected), rejected, "delete rejected by table "+table)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) getUpdatedAt(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	updatedAt, ok, rejected := h.store.getUpdatedAt(table, id)
	if rejected != "" {
		writeProblem(w, r, statusForRejection(rejected), rejected, "row lookup rejected")
		return
	}
	if !ok {
		writeProblem(w, r, http.StatusNotFound, typeNotFound, "no such row")
		return
	}
	writeJSON(w, map[string]any{"updated_at": updatedAt})
}

func (h *handlers) listRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	userID := r.URL.Query().Get("user_id")
	rows := h.store.listAll(table, userID, userID != "")
	writeJSON(w, rows)
}

// changeEventWire is the wire shape of one change-feed line (spec §6),
// matching what internal/gateway.Client decodes.
type changeEventWire struct {
	EventType string         `json:"event_type"`
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
}

// changesFeed stands in for the realtime subscription (spec §6): this mock
// has no long-lived connection to hold open, so it answers immediately
// with whatever changes are already queued for the table (recorded by
// upsertRows/deleteRow since the last drain) and lets the client
// reconnect for the next batch, same as a round trip against the real
// long-poll endpoint that happened to return quickly.
func (h *handlers) changesFeed(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	userID := r.URL.Query().Get("user_id")
	events := h.store.drainChanges(table, userID, userID != "")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		_ = enc.Encode(changeEventWire{EventType: ev.eventType, New: ev.new, Old: ev.old})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
