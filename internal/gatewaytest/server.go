// Package gatewaytest provides an in-process mock of the Remote Gateway
// HTTP contract (spec §6), grounded on the teacher's internal/api package:
// same chi router shape, same RFC 7807 problem responses, same bearer
// auth middleware. It exists for tests and for `fitsyncd serve-mock`
// local development; it is not a production server.
package gatewaytest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fitsync/fitsync/internal/tableconfig"
)

// Server is a mock Remote Gateway. AuthorizedUserID is the one user whose
// rows pass the row-level authorization check; every other user_id value
// is rejected with permission_denied, simulating a foreign row.
type Server struct {
	APIKey           string
	AuthorizedUserID string

	store *memoryStore
}

// NewServer constructs a mock gateway. Call Handler to obtain the
// http.Handler to pass to httptest.NewServer.
func NewServer(apiKey, authorizedUserID string) *Server {
	registry := tableconfig.NewRegistry()
	if err := tableconfig.RegisterDefaults(registry); err != nil {
		panic(err)
	}
	return &Server{
		APIKey:           apiKey,
		AuthorizedUserID: authorizedUserID,
		store:            newMemoryStore(authorizedUserID, registry),
	}
}

// Handler builds the chi router for this mock instance.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	h := &handlers{store: s.store}

	r.Route("/v1/tables/{table}", func(r chi.Router) {
		r.Use(authMiddleware(s.APIKey))
		r.Post("/rows", h.upsertRows)
		r.Get("/rows", h.listRows)
		r.Get("/rows/{id}", h.getUpdatedAt)
		r.Delete("/rows/{id}", h.deleteRow)
		r.Get("/changes", h.changesFeed)
	})

	return r
}

// SeedRow inserts a row directly into the mock's backing store, bypassing
// authorization checks, for test setup.
func (s *Server) SeedRow(table string, row map[string]any) {
	id, _ := row["id"].(string)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.table(table)[id] = row
}
