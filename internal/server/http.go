package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/idgen"
	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *GateServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/gates", s.handleListGates)
	mux.HandleFunc("GET /v1/gates/{id}", s.handleGetGate)
	mux.HandleFunc("PUT /v1/gates/{id}", s.handleWriteGate)
	mux.HandleFunc("PATCH /v1/gates/{id}", s.handleWriteGate)
	mux.HandleFunc("DELETE /v1/gates/{id}", s.handleDeleteGate)
	mux.HandleFunc("GET /v1/gates/{id}/users", s.handleListUsers)
	mux.HandleFunc("POST /v1/gates/{id}/users", s.handleCreateUser)
	mux.HandleFunc("DELETE /v1/gates/{id}/users", s.handleDeleteUsers)
	mux.HandleFunc("GET /v1/gates/{id}/users/{uid}", s.handleGetUser)
	mux.HandleFunc("PUT /v1/gates/{id}/users/{uid}", s.handleWriteUser)
	mux.HandleFunc("PATCH /v1/gates/{id}/users/{uid}", s.handleWriteUser)
	mux.HandleFunc("DELETE /v1/gates/{id}/users/{uid}", s.handleDeleteUser)
	mux.HandleFunc("GET /v1/blobs/url", s.handleBlobURL)
	return RecoveryMiddleware(s.logger, LoggingMiddleware(s.logger, AuthMiddleware(authToken, mux)))
}

// handleHealth handles GET /v1/health.
func (s *GateServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListGates handles GET /v1/gates.
func (s *GateServer) handleListGates(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.List(r.Context(), docstore.GatesPath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleGetGate handles GET /v1/gates/{id}.
func (s *GateServer) handleGetGate(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), docstore.GatePath(r.PathValue("id")))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleWriteGate handles PUT and PATCH /v1/gates/{id}. PUT creates the
// document when absent; PATCH requires it to exist. Both merge fields.
func (s *GateServer) handleWriteGate(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	if err := model.ValidateGateFields(fields); err != nil {
		writeStoreError(w, err)
		return
	}
	path := docstore.GatePath(gateID)
	var (
		doc *docstore.Document
		err error
	)
	if r.Method == http.MethodPut {
		doc, err = s.store.Set(r.Context(), path, fields)
	} else {
		doc, err = s.store.Update(r.Context(), path, fields)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishGate(r.Context(), gateID, doc, 0)
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteGate handles DELETE /v1/gates/{id}.
func (s *GateServer) handleDeleteGate(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	rev, err := s.store.Delete(r.Context(), docstore.GatePath(gateID))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishGate(r.Context(), gateID, nil, rev)
	writeJSON(w, http.StatusOK, map[string]int64{"revision": rev})
}

// handleListUsers handles GET /v1/gates/{id}/users.
func (s *GateServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.List(r.Context(), docstore.UsersPath(r.PathValue("id")))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateUser handles POST /v1/gates/{id}/users. The user ID is
// generated.
func (s *GateServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	if err := model.ValidateUserFields(fields); err != nil {
		writeStoreError(w, err)
		return
	}
	userID, err := idgen.UserID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc, err := s.store.Set(r.Context(), docstore.UserPath(gateID, userID), fields)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishUsers(r.Context(), gateID)
	writeJSON(w, http.StatusCreated, doc)
}

// handleDeleteUsers handles DELETE /v1/gates/{id}/users, ending the session.
func (s *GateServer) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	rev, err := s.store.Delete(r.Context(), docstore.UsersPath(gateID))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishUsers(r.Context(), gateID)
	writeJSON(w, http.StatusOK, map[string]int64{"revision": rev})
}

// handleGetUser handles GET /v1/gates/{id}/users/{uid}.
func (s *GateServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), docstore.UserPath(r.PathValue("id"), r.PathValue("uid")))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleWriteUser handles PUT and PATCH /v1/gates/{id}/users/{uid}.
func (s *GateServer) handleWriteUser(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	if err := model.ValidateUserFields(fields); err != nil {
		writeStoreError(w, err)
		return
	}
	path := docstore.UserPath(gateID, r.PathValue("uid"))
	var (
		doc *docstore.Document
		err error
	)
	if r.Method == http.MethodPut {
		doc, err = s.store.Set(r.Context(), path, fields)
	} else {
		doc, err = s.store.Update(r.Context(), path, fields)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishUsers(r.Context(), gateID)
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteUser handles DELETE /v1/gates/{id}/users/{uid}.
func (s *GateServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("id")
	rev, err := s.store.Delete(r.Context(), docstore.UserPath(gateID, r.PathValue("uid")))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publishUsers(r.Context(), gateID)
	writeJSON(w, http.StatusOK, map[string]int64{"revision": rev})
}

// handleBlobURL handles GET /v1/blobs/url?path=.
func (s *GateServer) handleBlobURL(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "blob storage is not configured")
		return
	}
	url, err := s.blobs.Resolve(r.Context(), r.URL.Query().Get("path"))
	switch {
	case errors.Is(err, blob.ErrNoImage):
		writeError(w, http.StatusBadRequest, "path is required")
	case err != nil:
		s.logger.Warn("blob resolve failed", "path", r.URL.Query().Get("path"), "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// decodeFields reads a JSON object body. It writes the error response
// itself and reports false on failure.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return nil, false
	}
	if fields == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	return fields, true
}

// writeStoreError maps store and validation errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "fields": ve.Errors})
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, docstore.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
