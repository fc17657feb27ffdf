// ABOUTME: HTTP surface of the tree service behind a chi router with {data}/{error} envelopes.
// ABOUTME: Maps service errors onto 400/403/404/409/410/424 and exposes the stored digest as ETag.

package treeserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/2389-research/flowgraph/patch"
	"github.com/2389-research/flowgraph/render"
	"github.com/2389-research/flowgraph/tree"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 16 << 20

// Server is the HTTP front of a Service.
type Server struct {
	service    *Service
	router     chi.Router
	signingKey []byte
	authToken  string
	renders    *render.RenderCache
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSigningKey requires an HS256 JWT on every request and takes the caller
// identity from its subject.
func WithSigningKey(key []byte) ServerOption {
	return func(s *Server) { s.signingKey = key }
}

// WithAuthToken requires a static bearer token. It is ignored when a signing key is set.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.authToken = token }
}

// NewServer builds the router for svc.
func NewServer(svc *Service, opts ...ServerOption) *Server {
	s := &Server{
		service: svc,
		renders: render.NewRenderCache(render.RenderDOTSource, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(identityMiddleware(s.signingKey, s.authToken))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/tree", s.handleCreate)
	r.Route("/tree/{id}", func(r chi.Router) {
		r.Get("/", s.handleTree)
		r.Put("/", s.handleUpdate)
		r.Delete("/", s.handleTrash)
		r.Patch("/patchContent", s.handlePatchContent)
		r.Post("/recover", s.handleRecover)
		r.Post("/copyNode", s.handleCopy)
		r.Get("/history", s.handleHistory)
		r.Put("/history", s.handleCommentVersion)
		r.Get("/description", s.handleDescription)
		r.Get("/render", s.handleRender)
	})
	return r
}

// handleTree handles GET /tree/{id}.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := Query{
		Sparse:  q.Get("sparse") == "true",
		Trashed: q.Get("trashed") == "true",
	}
	if raw := q.Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		query.Depth = d
	}

	id := chi.URLParam(r, "id")
	user := UserFrom(r.Context())
	nodes, err := s.service.Tree(user, id, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if nodes == nil {
		nodes = []*tree.Node{}
	}
	if id != tree.RootID && len(nodes) > 0 {
		if _, dig, err := s.service.db.Get(id); err == nil {
			w.Header().Set("ETag", strconv.Quote(dig))
		}
	}
	writeData(w, http.StatusOK, nodes)
}

// handleCreate handles POST /tree.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	n, ok := decodeNodeBody(w, r)
	if !ok {
		return
	}
	created, err := s.service.Create(UserFrom(r.Context()), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

// handleUpdate handles PUT /tree/{id}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r, "v")
	if !ok {
		return
	}
	n, ok := decodeNodeBody(w, r)
	if !ok {
		return
	}
	sparse := r.URL.Query().Get("sparse") == "true"
	updated, err := s.service.Update(UserFrom(r.Context()), chi.URLParam(r, "id"), n, version, sparse)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// handlePatchContent handles PATCH /tree/{id}/patchContent.
func (s *Server) handlePatchContent(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r, "v")
	if !ok {
		return
	}
	var p patch.Patch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch: "+err.Error())
		return
	}
	updated, err := s.service.PatchContent(UserFrom(r.Context()), chi.URLParam(r, "id"), p, version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// handleTrash handles DELETE /tree/{id}.
func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r, "v")
	if !ok {
		return
	}
	ids, err := s.service.Trash(UserFrom(r.Context()), chi.URLParam(r, "id"), version)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, ids)
}

// handleRecover handles POST /tree/{id}/recover.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Recover(UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, n)
}

// handleCopy handles POST /tree/{id}/copyNode.
func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r, "v")
	if !ok {
		return
	}
	parentID := r.URL.Query().Get("parentId")
	n, err := s.service.Copy(UserFrom(r.Context()), chi.URLParam(r, "id"), version, parentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, n)
}

// handleHistory handles GET /tree/{id}/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History(UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

// handleCommentVersion handles PUT /tree/{id}/history?version=N.
func (s *Server) handleCommentVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r, "version")
	if !ok {
		return
	}
	if version == nil {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	entry, err := s.service.CommentVersion(UserFrom(r.Context()), chi.URLParam(r, "id"), *version, body.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, entry)
}

// handleDescription handles GET /tree/{id}/description.
func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	html, err := s.service.Description(UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

// handleRender handles GET /tree/{id}/render?format=dot|svg|png.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "svg"
	}
	n, _, err := s.service.Get(UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dotText, err := render.ToDOT(n)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := s.renders.RenderDOTSource(r.Context(), dotText, format)
	switch {
	case errors.Is(err, render.ErrGraphvizMissing):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeNodeBody(w http.ResponseWriter, r *http.Request) (*tree.Node, bool) {
	var n tree.Node
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid node: "+err.Error())
		return nil, false
	}
	return &n, true
}

func versionParam(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be an integer", name))
		return nil, false
	}
	return &v, true
}

// StatusFor maps a service error onto its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTrashed):
		return http.StatusGone
	case errors.Is(err, ErrFailedDependency):
		return http.StatusFailedDependency
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("component=treeserver action=internal_error err=%v", err)
	}
	writeError(w, status, err.Error())
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
